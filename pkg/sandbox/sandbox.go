// Package sandbox manages isolated per-project workspaces the Agent Runner
// executes commands in (spec §4.2, component C2). It exposes a single
// Sandbox interface with two implementations: ContainerSandbox (Docker CLI,
// production) and LocalSandbox (no-sandbox dev mode).
package sandbox

import (
	"context"
	"time"
)

// Kind identifies which Sandbox implementation backs a project.
type Kind string

const (
	KindContainer Kind = "container"
	KindLocal     Kind = "local"
)

// State is the lifecycle state of one project's sandbox.
type State string

const (
	StateAbsent  State = "absent"  // never created, or removed
	StateRunning State = "running" // ready to execute commands
	StateStopped State = "stopped" // exists but not running; acquire can restart it
)

// Status reports a sandbox's current runtime state (spec §4.2's status op).
type Status struct {
	State         State
	Ports         []int
	UptimeSeconds float64
	CPUPercent    float64
	MemoryBytes   uint64
}

// OutputChunk is one slice of streamed stdout/stderr from a running
// command, delivered to the caller's onOutput callback as it arrives so
// the tool surface can stream it back to the Agent Runner as partial RPC
// frames. Chunks are not published to the session event stream; only the
// call's final tool_result, carrying the full output, is.
type OutputChunk struct {
	Stream string // "stdout" or "stderr"
	Data   string
}

// ExecResult is the outcome of one Execute call (spec §4.2).
type ExecResult struct {
	ExitCode          int
	Stdout            string
	Stderr            string
	DurationMs        int64
	BackgroundWarning string // non-empty if command matched a background dev-server pattern
}

// Sandbox is a handle to one project's isolated workspace. Callers obtain
// one from Manager.Acquire and never construct an implementation directly.
type Sandbox interface {
	// ProjectID is the project this sandbox belongs to.
	ProjectID() string

	// Execute runs command inside the sandbox with the given timeout,
	// streaming output chunks to onOutput as they are produced (onOutput
	// may be nil). Returns BlockedCommand (apperrors) if command matches
	// the blocklist without ever starting the process.
	Execute(ctx context.Context, command string, timeout time.Duration, onOutput func(OutputChunk)) (*ExecResult, error)

	// ExecuteUnchecked runs command bypassing the blocklist entirely. Not
	// reachable from the Tool Surface — reserved for the Intervention
	// Engine's privileged auto-recovery actions (spec §4.5), which may
	// need to kill a process or restart a service the blocklist would
	// otherwise refuse.
	ExecuteUnchecked(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error)

	// Stop halts the sandbox's underlying resource without destroying it;
	// a later Acquire for the same project may reuse it.
	Stop(ctx context.Context) error

	// Remove force-destroys the sandbox and any volumes/state it owns.
	Remove(ctx context.Context) error

	// Status reports the sandbox's current runtime state.
	Status(ctx context.Context) (*Status, error)
}
