package orchestrator

import (
	"bytes"
	"encoding/json"
	"sync"
)

// checkpointState accumulates one session's in-flight conversation
// history (every frame sessionRunner.readEvents takes off the Agent
// Runner's event stream, newline-delimited JSON, the same shape a resumed
// session's checkpoint prefix is built from) and the task id it was last
// working on, so both the periodic checkpoint writer (sessionRunner) and
// the Intervention Engine's pre-blocker checkpoint
// (intervention.CheckpointProvider) read a consistent, lock-protected
// snapshot without coupling to each other. Tool Surface calls do not pass
// through it: their tool_use/tool_result events are published to the bus
// by Surface.Dispatch, so lastTaskID is set only when the runner's own
// event stream carries a start_task or update_task_status frame.
type checkpointState struct {
	mu         sync.Mutex
	history    bytes.Buffer
	lastTaskID *int
}

func newCheckpointState() *checkpointState {
	return &checkpointState{}
}

// observe appends one event frame to the running history and, for
// start_task/update_task_status tool calls, updates lastTaskID.
func (c *checkpointState) observe(kind, method string, data map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if line, err := json.Marshal(map[string]any{"kind": kind, "data": data}); err == nil {
		c.history.Write(line)
		c.history.WriteByte('\n')
	}

	if method != "start_task" && method != "update_task_status" {
		return
	}
	if raw, ok := data["input"]; ok {
		var p struct {
			TaskID int `json:"task_id"`
		}
		switch v := raw.(type) {
		case json.RawMessage:
			if json.Unmarshal(v, &p) == nil {
				id := p.TaskID
				c.lastTaskID = &id
			}
		case string:
			if json.Unmarshal([]byte(v), &p) == nil {
				id := p.TaskID
				c.lastTaskID = &id
			}
		}
	}
}

// CurrentCheckpoint implements intervention.CheckpointProvider.
func (c *checkpointState) CurrentCheckpoint() ([]byte, *int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	history := append([]byte(nil), c.history.Bytes()...)
	var lastTaskID *int
	if c.lastTaskID != nil {
		id := *c.lastTaskID
		lastTaskID = &id
	}
	return history, lastTaskID
}
