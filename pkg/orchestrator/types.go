// Package orchestrator implements the Session Orchestrator (spec §4.7,
// component C7): the control plane that creates projects, drives each
// project's coding sessions through the Agent Runner (C8), and wires the
// Metrics Collector (C4), Intervention Engine (C5) and Quality Pipeline
// (C6) around every session's event stream.
//
// Grounded on pkg/queue/worker.go + pkg/queue/pool.go (claim, heartbeat,
// terminal-status update, graceful stop) and pkg/queue/orphan.go (crash
// recovery), adapted from TARSy's global worker-pool-claims-any-session
// model to a per-project scheduler: one goroutine per active project,
// at most one running session per project, sessions across projects
// run independently.
package orchestrator

import (
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/config"
	"github.com/innerline/yokeflow2-sub000/pkg/events"
	"github.com/innerline/yokeflow2-sub000/pkg/quality"
	"github.com/innerline/yokeflow2-sub000/pkg/sandbox"
	"github.com/innerline/yokeflow2-sub000/pkg/store"
)

// defaultCheckpointIntervalSeconds is the periodic-checkpoint cadence T in spec
// §4.7 step 5 ("every task completion and every T seconds") when no
// config override is supplied.
const defaultCheckpointIntervalSeconds = 60

// Options bundles the shared collaborators every projectScheduler and
// sessionRunner is built from. One Options value, and one Orchestrator
// constructed from it, serves every project.
type Options struct {
	Store    *store.Store
	Sandbox  *sandbox.Manager
	Bus      *events.Bus
	Config   *config.Config
	Quality  *quality.Pipeline
	Runner   AgentRunner
	Reviewer quality.ReviewRequester

	// CheckpointIntervalSeconds overrides defaultCheckpointIntervalSeconds;
	// zero means use the default.
	CheckpointIntervalSeconds int
}

func (o Options) checkpointInterval() time.Duration {
	secs := o.CheckpointIntervalSeconds
	if secs <= 0 {
		secs = defaultCheckpointIntervalSeconds
	}
	return time.Duration(secs) * time.Second
}
