package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/intervention"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

// projectScheduler drives one project's session loop (spec §4.7 steps
// 2-6): acquire the project's advisory lock, confirm no session is
// already active, create and run the next session, then either stop
// (stop-after-current requested, project out of tasks, a pause, or a
// crash) or sleep opts.Config.Timing.Delay() and loop for the next one.
// One scheduler goroutine serves exactly one project, mirroring how
// pkg/queue's WorkerPool registers one cancel func per claimed session —
// here the registry is one cancel func per project instead, since at most
// one session runs per project at a time (spec §5).
type projectScheduler struct {
	opts    Options
	project *models.Project

	mu            sync.Mutex
	stopRequested bool
	engine        *intervention.Engine
}

// setEngine records (or clears, on nil) the Intervention Engine backing
// the session currently in flight, so pause can reach it.
func (ps *projectScheduler) setEngine(e *intervention.Engine) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.engine = e
}

// pause implements the Orchestrator's PauseSession operation (spec §4.5
// trigger #4): if a session is currently running for this project, ask
// its Engine to run the same pause sequence a detected blocker would.
// Returns false if no session is running.
func (ps *projectScheduler) pause(ctx context.Context, reason string) bool {
	ps.mu.Lock()
	e := ps.engine
	ps.mu.Unlock()
	if e == nil {
		return false
	}
	e.RequestPause(ctx, reason)
	return true
}

// loop runs until ctx is cancelled, a stop-after-current request takes
// effect, or the project has no incomplete tasks left to work on. The
// first iteration resumes parentSessionID/resumeCheckpoint/resolutionNotes
// when set (the Orchestrator's ResumeSession path); every iteration after
// that starts a fresh session. It is meant to be launched as its own
// goroutine by the Orchestrator facade.
func (ps *projectScheduler) loop(ctx context.Context, parentSessionID string, resumeCheckpoint *models.Checkpoint, resolutionNotes string,
	runner func(ctx context.Context, project *models.Project, parentSessionID string, resumeCheckpoint *models.Checkpoint, resolutionNotes string) runResult) {
	log := slog.With("project_id", ps.project.ID)

	for {
		if ctx.Err() != nil {
			return
		}

		lock, err := ps.opts.Store.AcquireProjectLock(ctx, ps.project.ID)
		if err != nil {
			log.Error("failed to acquire project lock", "error", err)
			return
		}

		active, err := ps.opts.Store.ActiveSessionForProject(ctx, ps.project.ID)
		if err != nil {
			log.Error("failed to check for an active session", "error", err)
			_ = lock.Release(ctx)
			return
		}
		if active != nil {
			// Another process already has a session running for this
			// project (shouldn't happen under single-scheduler ownership,
			// but the advisory lock makes it safe either way).
			_ = lock.Release(ctx)
			return
		}

		ps.mu.Lock()
		stop := ps.stopRequested
		ps.mu.Unlock()
		if stop {
			_ = lock.Release(ctx)
			return
		}

		result := runner(ctx, ps.project, parentSessionID, resumeCheckpoint, resolutionNotes)
		if err := lock.Release(ctx); err != nil {
			log.Warn("failed to release project lock", "error", err)
		}

		parentSessionID = ""
		resumeCheckpoint = nil
		resolutionNotes = ""

		switch result.Status {
		case models.SessionStatusPaused:
			log.Info("session paused, scheduler stopping until resumed")
			return
		case models.SessionStatusError:
			log.Warn("session ended in error, scheduler stopping")
			return
		}

		done, err := ps.projectComplete(ctx)
		if err != nil {
			log.Warn("failed to check project completion", "error", err)
		} else if done {
			if err := ps.opts.Store.UpdateProjectStatus(ctx, ps.project.ID, models.ProjectStatusCompleted); err != nil {
				log.Error("failed to mark project completed", "error", err)
			}
			if err := ps.opts.Sandbox.Stop(ctx, ps.project.ID); err != nil {
				log.Warn("failed to stop sandbox for completed project", "error", err)
			}
			return
		}

		ps.mu.Lock()
		stop = ps.stopRequested
		ps.mu.Unlock()
		if stop {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(ps.opts.Config.Timing.Delay()):
		}
	}
}

// projectComplete reports whether every task in the project is done —
// spec §4.7's auto-continue loop termination condition.
func (ps *projectScheduler) projectComplete(ctx context.Context) (bool, error) {
	progress, err := ps.opts.Store.GetProgress(ctx, ps.project.ID)
	if err != nil {
		return false, err
	}
	return progress.TotalTasks > 0 && progress.CompletedTasks >= progress.TotalTasks, nil
}

// requestStopAfterCurrent implements the Orchestrator's StopAfterCurrent
// operation: the in-flight session (if any) keeps running to completion,
// but loop will not start another one afterward.
func (ps *projectScheduler) requestStopAfterCurrent() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.stopRequested = true
}
