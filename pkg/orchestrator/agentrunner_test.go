package orchestrator

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innerline/yokeflow2-sub000/pkg/events"
)

func TestDemux_RoutesToolRequestLinesToToolRequests(t *testing.T) {
	stdout := bytes.NewBufferString(
		`{"method":"get_next_task","id":"1","params":{}}` + "\n" +
			`{"kind":"assistant_text","text":"thinking"}` + "\n",
	)

	reqR, reqW := io.Pipe()
	eventsCh := make(chan RunnerEvent, 8)

	done := make(chan struct{})
	go func() {
		demux(stdout, reqW, eventsCh, "sess-1")
		close(done)
	}()

	buf := make([]byte, 256)
	n, err := reqR.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), `"method":"get_next_task"`)

	select {
	case evt := <-eventsCh:
		assert.Equal(t, events.Kind("assistant_text"), evt.Kind)
		assert.Equal(t, "thinking", evt.Data["text"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for runner event")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("demux did not exit after stdout closed")
	}

	_, ok := <-eventsCh
	assert.False(t, ok, "events channel should be closed once demux returns")
}

func TestDemux_SkipsBlankLinesAndUnparseableFrames(t *testing.T) {
	stdout := bytes.NewBufferString("\n   \nnot json at all\n" + `{"kind":"error","message":"boom"}` + "\n")

	reqR, reqW := io.Pipe()
	eventsCh := make(chan RunnerEvent, 8)
	_ = reqR

	go demux(stdout, reqW, eventsCh, "sess-1")

	select {
	case evt, ok := <-eventsCh:
		require.True(t, ok)
		assert.Equal(t, events.Kind("error"), evt.Kind)
		assert.Equal(t, "boom", evt.Data["message"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error event")
	}
}

func TestTerminatorFunc_CallsUnderlyingFunc(t *testing.T) {
	called := false
	var tf terminatorFunc = func() { called = true }
	tf.Terminate()
	assert.True(t, called)
}
