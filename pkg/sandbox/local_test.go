package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
)

func newTestLocalSandbox(t *testing.T) *LocalSandbox {
	t.Helper()
	return NewLocalSandbox("proj-1", t.TempDir(), NewBlocklist())
}

func TestLocalSandbox_ExecuteReturnsStdoutAndExitCode(t *testing.T) {
	s := newTestLocalSandbox(t)

	result, err := s.Execute(context.Background(), "echo hello", 5*time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello\n", result.Stdout)
}

func TestLocalSandbox_ExecuteCapturesNonZeroExitCode(t *testing.T) {
	s := newTestLocalSandbox(t)

	result, err := s.Execute(context.Background(), "exit 7", 5*time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, result.ExitCode)
}

func TestLocalSandbox_ExecuteRejectsBlockedCommand(t *testing.T) {
	s := newTestLocalSandbox(t)

	_, err := s.Execute(context.Background(), "sudo reboot", 5*time.Second, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.BlockedCommand, apperrors.KindOf(err))
}

func TestLocalSandbox_ExecuteStreamsOutputChunks(t *testing.T) {
	s := newTestLocalSandbox(t)

	var chunks []OutputChunk
	_, err := s.Execute(context.Background(), "echo one; echo two", 5*time.Second, func(c OutputChunk) {
		chunks = append(chunks, c)
	})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "one\n", chunks[0].Data)
	assert.Equal(t, "two\n", chunks[1].Data)
}

func TestLocalSandbox_ExecuteTimesOutAndKills(t *testing.T) {
	s := newTestLocalSandbox(t)

	start := time.Now()
	_, err := s.Execute(context.Background(), "sleep 10", 200*time.Millisecond, nil)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 5*time.Second, "command should have been killed well before its own sleep duration")
	_ = err // a killed command may surface as either a non-nil error or a non-zero exit code
}

func TestLocalSandbox_ExecuteFlagsBackgroundServerPattern(t *testing.T) {
	s := newTestLocalSandbox(t)

	result, err := s.Execute(context.Background(), "echo 'npm run dev'", 5*time.Second, nil)
	require.NoError(t, err)
	// detection is a pattern match on the command string passed to Execute,
	// not on sandbox output, so "npm run dev" inside an echo is flagged too.
	assert.Contains(t, result.BackgroundWarning, "npm_dev_server")
}

func TestLocalSandbox_StatusReflectsStopAndRemove(t *testing.T) {
	s := newTestLocalSandbox(t)

	status, err := s.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, status.State)

	require.NoError(t, s.Stop(context.Background()))
	status, err = s.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateStopped, status.State)

	require.NoError(t, s.Remove(context.Background()))
	status, err = s.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAbsent, status.State)
}
