// Package intervention implements the Intervention Engine (spec §4.5):
// one Engine per running session, watching the same broadcast event
// stream as the Metrics Collector for retry-limit and critical-error
// triggers, gating task completion (installed into the Tool Surface as a
// toolsurface.QualityGate) for quality-violation rejection, and carrying
// out the pause action sequence — checkpoint, PausedSession row, progress
// note, notification event — plus a privileged auto-recovery path not
// reachable from the Tool Surface.
package intervention

// CheckpointProvider lets the Engine capture a session's in-flight state
// into a pre-blocker Checkpoint without importing the orchestrator (which
// itself constructs the Engine and wires it into the Tool Surface) —
// mirrors the inversion toolsurface.QualityGate already uses.
type CheckpointProvider interface {
	// CurrentCheckpoint returns the session's conversation history so far
	// and the task id it was last working on, if any.
	CurrentCheckpoint() (conversationHistory []byte, lastTaskID *int)
}

// Terminator instructs the running Agent Runner to shut down gracefully,
// called during the pause sequence after the checkpoint, PausedSession row,
// session status and progress note are written and before the notification
// event is published.
type Terminator interface {
	Terminate()
}

// Notification is the payload emitted on pause for external dispatchers
// (spec §4.5: "the event has fields {project, session, blocker_type,
// message, retry_stats}").
type Notification struct {
	Project     string         `json:"project"`
	Session     string         `json:"session"`
	BlockerType string         `json:"blocker_type"`
	Message     string         `json:"message"`
	RetryStats  map[string]any `json:"retry_stats,omitempty"`
}

// Outcome is what Run returns once the session's event stream closes (or
// the Engine paused it first).
type Outcome struct {
	Paused         bool
	PauseType      string
	ViolationCount int
}

// nopCheckpointProvider/nopTerminator back tests and any caller that
// doesn't need real checkpoint/termination behavior (e.g. the manual
// RequestPause path invoked outside a running session).
type nopCheckpointProvider struct{}

func (nopCheckpointProvider) CurrentCheckpoint() ([]byte, *int) { return nil, nil }

type nopTerminator struct{}

func (nopTerminator) Terminate() {}

var _ CheckpointProvider = nopCheckpointProvider{}
var _ Terminator = nopTerminator{}
