package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishAssignsIncreasingSeq(t *testing.T) {
	b := NewBus()

	e1 := b.Publish("sess-1", KindPrompt, nil)
	e2 := b.Publish("sess-1", KindToolUse, map[string]any{"tool": "bash"})

	assert.Equal(t, uint64(1), e1.Seq)
	assert.Equal(t, uint64(2), e2.Seq)
	assert.Equal(t, "sess-1", e2.SessionID)
}

func TestBus_SubscribeSeesHistoryThenLiveEvents(t *testing.T) {
	b := NewBus()
	b.Publish("sess-1", KindPrompt, nil)

	ch, history := b.Subscribe("sess-1")
	require.Len(t, history, 1)
	assert.Equal(t, KindPrompt, history[0].Kind)

	b.Publish("sess-1", KindAssistantText, nil)

	select {
	case evt := <-ch:
		assert.Equal(t, KindAssistantText, evt.Kind)
		assert.Equal(t, uint64(2), evt.Seq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestBus_MultipleSubscribersEachSeeEveryEventExactlyOnce(t *testing.T) {
	b := NewBus()
	ch1, _ := b.Subscribe("sess-1")
	ch2, _ := b.Subscribe("sess-1")

	b.Publish("sess-1", KindToolResult, nil)

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			assert.Equal(t, uint64(1), evt.Seq)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for broadcast event")
		}
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	ch, _ := b.Subscribe("sess-1")
	b.Unsubscribe("sess-1", ch)

	b.Publish("sess-1", KindError, nil)

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should not receive after unsubscribe unless closed")
	case <-time.After(50 * time.Millisecond):
		// no delivery — expected, subscriber was removed before publish.
	}
}

func TestBus_CloseSessionClosesSubscriberChannels(t *testing.T) {
	b := NewBus()
	ch, _ := b.Subscribe("sess-1")

	b.CloseSession("sess-1")

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestBus_HistoryIsBoundedByLimit(t *testing.T) {
	b := NewBus()
	for i := 0; i < historyLimit+10; i++ {
		b.Publish("sess-1", KindSystemMessage, nil)
	}

	history := b.History("sess-1")
	assert.Len(t, history, historyLimit)
	assert.Equal(t, uint64(historyLimit+10), history[len(history)-1].Seq)
}
