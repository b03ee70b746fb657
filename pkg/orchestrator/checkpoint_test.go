package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointState_ObserveAccumulatesHistory(t *testing.T) {
	cs := newCheckpointState()
	cs.observe("assistant_text", "", map[string]any{"text": "working on it"})
	cs.observe("tool_use", "bash", map[string]any{"tool": "bash"})

	history, lastTaskID := cs.CurrentCheckpoint()
	require.NotEmpty(t, history)
	assert.Nil(t, lastTaskID)

	lines := splitLines(history)
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, "assistant_text", first["kind"])
}

func TestCheckpointState_ObserveTracksLastTaskIDFromStartTask(t *testing.T) {
	cs := newCheckpointState()
	input, _ := json.Marshal(map[string]any{"task_id": 42})
	cs.observe("tool_use", "start_task", map[string]any{"tool": "start_task", "input": json.RawMessage(input)})

	_, lastTaskID := cs.CurrentCheckpoint()
	require.NotNil(t, lastTaskID)
	assert.Equal(t, 42, *lastTaskID)
}

func TestCheckpointState_UpdateTaskStatusOverwritesLastTaskID(t *testing.T) {
	cs := newCheckpointState()
	startInput, _ := json.Marshal(map[string]any{"task_id": 1})
	cs.observe("tool_use", "start_task", map[string]any{"input": json.RawMessage(startInput)})

	updateInput, _ := json.Marshal(map[string]any{"task_id": 2})
	cs.observe("tool_use", "update_task_status", map[string]any{"input": json.RawMessage(updateInput)})

	_, lastTaskID := cs.CurrentCheckpoint()
	require.NotNil(t, lastTaskID)
	assert.Equal(t, 2, *lastTaskID)
}

func TestCheckpointState_CurrentCheckpointReturnsIndependentCopy(t *testing.T) {
	cs := newCheckpointState()
	cs.observe("prompt", "", map[string]any{"text": "go"})

	history1, _ := cs.CurrentCheckpoint()
	cs.observe("assistant_text", "", map[string]any{"text": "more"})
	history2, _ := cs.CurrentCheckpoint()

	assert.NotEqual(t, len(history1), len(history2))
	assert.Less(t, len(history1), len(history2))
}

func splitLines(b []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, c := range b {
		if c == '\n' {
			if i > start {
				out = append(out, b[start:i])
			}
			start = i + 1
		}
	}
	return out
}
