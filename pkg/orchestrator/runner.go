package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/events"
	"github.com/innerline/yokeflow2-sub000/pkg/intervention"
	"github.com/innerline/yokeflow2-sub000/pkg/metrics"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
	"github.com/innerline/yokeflow2-sub000/pkg/sandbox"
	"github.com/innerline/yokeflow2-sub000/pkg/toolsurface"
)

// sessionRunner drives one session end-to-end (spec §4.7 session loop
// steps 2-6): acquire a sandbox, spawn the Agent Runner, forward its
// event stream to the Metrics Collector and Intervention Engine, write
// checkpoints, and report the terminal outcome back to its
// projectScheduler.
type sessionRunner struct {
	opts    Options
	surface *toolsurface.Surface
	project *models.Project
	session *models.Session

	// resumeCheckpoint/resolutionNotes are set when this session is a
	// resume (spec §4.7 "Resume"): the conversation-history prefix and
	// the operator's notes on the blocker that paused the parent session.
	resumeCheckpoint *models.Checkpoint
	resolutionNotes  string

	// onEngineReady, if set, is called with the session's Intervention
	// Engine once constructed (and again with nil once the session ends)
	// so the projectScheduler can route a manual PauseSession request to
	// it while it's running.
	onEngineReady func(*intervention.Engine)
}

// runResult is what sessionRunner.run reports to its scheduler.
type runResult struct {
	Status models.SessionStatus
	Err    error
}

// terminatorFunc adapts a plain func() to intervention.Terminator.
type terminatorFunc func()

func (f terminatorFunc) Terminate() { f() }

func (r *sessionRunner) run(ctx context.Context) runResult {
	log := slog.With("project_id", r.project.ID, "session_id", r.session.ID, "session_number", r.session.SessionNumber)

	sb, err := r.opts.Sandbox.Acquire(ctx, r.project, r.session.Type)
	if err != nil {
		log.Error("sandbox acquisition failed", "error", err)
		_ = r.opts.Store.UpdateSessionStatus(context.Background(), r.session.ID, models.SessionStatusError)
		return runResult{Status: models.SessionStatusError, Err: err}
	}
	// Sandbox exposes no container/process identifier beyond the project
	// it belongs to (LocalSandbox has none at all) — pod_id is recorded as
	// the project id it's bound to, which is enough for an operator
	// inspecting a session row to find the sandbox that served it.
	if err := r.opts.Store.SetSessionPodID(ctx, r.session.ID, sb.ProjectID()); err != nil {
		log.Warn("failed to record session pod id", "error", err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	handle, err := r.opts.Runner.Launch(runCtx, LaunchSpec{
		ProjectID:   r.project.ID,
		SessionID:   r.session.ID,
		SessionType: string(r.session.Type),
		Prompt:      r.buildPrompt(),
	})
	if err != nil {
		log.Error("agent runner launch failed", "error", err)
		_ = r.opts.Store.UpdateSessionStatus(context.Background(), r.session.ID, models.SessionStatusError)
		return runResult{Status: models.SessionStatusError, Err: err}
	}

	checkpoints := newCheckpointState()

	engine := intervention.New(r.opts.Store, sandboxGetter{r.opts.Sandbox}, r.opts.Config.Intervention,
		r.project.ID, r.session.ID, checkpoints, terminatorFunc(handle.Terminate))
	r.surface.SetQualityGate(r.session.ID, engine)
	defer r.surface.UnsetQualityGate(r.session.ID)
	if r.onEngineReady != nil {
		r.onEngineReady(engine)
		defer r.onEngineReady(nil)
	}

	collector := metrics.New(r.opts.Store, r.project.ID, r.session.ID)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.surface.Serve(runCtx, r.project.ID, r.session.ID, r.session.Type, handle.ToolRequests, handle.ToolResponses); err != nil {
			log.Warn("tool surface serve ended with error", "error", err)
		}
	}()

	wg.Add(1)
	go r.readEvents(runCtx, &wg, handle, checkpoints)

	stopCheckpoints := make(chan struct{})
	wg.Add(1)
	go r.periodicCheckpoint(runCtx, &wg, checkpoints, stopCheckpoints)

	var interventionOutcome *intervention.Outcome
	var interventionErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		interventionOutcome, interventionErr = engine.Run(runCtx, r.opts.Bus)
	}()

	var summary *metrics.Summary
	var metricsErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		summary, metricsErr = collector.Run(ctx, r.opts.Bus)
	}()

	waitErr := handle.Wait()

	r.opts.Bus.Publish(r.session.ID, events.KindSessionEnd, map[string]any{"reason": endReason(waitErr)})
	cancelRun()
	close(stopCheckpoints)
	r.opts.Bus.CloseSession(r.session.ID)
	wg.Wait()

	if metricsErr != nil {
		log.Warn("metrics collector ended with error", "error", metricsErr)
	}
	if interventionErr != nil && interventionErr != context.Canceled {
		log.Warn("intervention engine ended with error", "error", interventionErr)
	}

	status := r.finalize(ctx, waitErr, interventionOutcome, summary)
	return runResult{Status: status, Err: nil}
}

// finalize implements spec §4.7 step 6 and the Failure model's "Agent
// Runner crash" clause: a crash always wins over whatever the Intervention
// Engine observed, since a crashed process can't have been cleanly paused.
func (r *sessionRunner) finalize(ctx context.Context, waitErr error, outcome *intervention.Outcome, summary *metrics.Summary) models.SessionStatus {
	if waitErr != nil {
		if err := r.opts.Store.UpdateSessionStatus(ctx, r.session.ID, models.SessionStatusError); err != nil {
			slog.Error("finalize: failed to mark session errored", "session_id", r.session.ID, "error", err)
		}
		return models.SessionStatusError
	}

	if outcome != nil && outcome.Paused {
		return models.SessionStatusPaused
	}

	if err := r.opts.Store.UpdateSessionStatus(ctx, r.session.ID, models.SessionStatusCompleted); err != nil {
		slog.Error("finalize: failed to mark session completed", "session_id", r.session.ID, "error", err)
	}

	if summary == nil || r.opts.Quality == nil {
		return models.SessionStatusCompleted
	}

	isFinal := r.projectHasNoRemainingTasks(ctx)
	check, reasons, err := r.opts.Quality.RunQuickCheck(ctx, r.project.ID, r.session.ID, summary, isFinal)
	if err != nil {
		slog.Error("finalize: quick check failed", "session_id", r.session.ID, "error", err)
		return models.SessionStatusCompleted
	}
	if check.DeepReviewDue {
		if _, err := r.opts.Quality.RequestDeepReview(ctx, r.project.ID, r.session.ID, summary, reasons); err != nil {
			slog.Error("finalize: deep review request failed", "session_id", r.session.ID, "error", err)
		}
	}
	if _, err := r.opts.Quality.MaybeTriggerEpicRetests(ctx, r.project.ID, r.opts.Config.EpicRetesting); err != nil {
		slog.Error("finalize: epic retest trigger failed", "session_id", r.session.ID, "error", err)
	}

	return models.SessionStatusCompleted
}

func (r *sessionRunner) projectHasNoRemainingTasks(ctx context.Context) bool {
	progress, err := r.opts.Store.GetProgress(ctx, r.project.ID)
	if err != nil {
		return false
	}
	return progress.CompletedTasks >= progress.TotalTasks
}

// readEvents demultiplexes the Agent Runner's event stream onto the
// session bus and the in-flight checkpoint buffer, until the handle
// closes its Events channel (process exited) or ctx is cancelled.
func (r *sessionRunner) readEvents(ctx context.Context, wg *sync.WaitGroup, handle *Handle, checkpoints *checkpointState) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-handle.Events:
			if !ok {
				return
			}
			method, _ := evt.Data["tool"].(string)
			checkpoints.observe(string(evt.Kind), method, evt.Data)
			r.opts.Bus.Publish(r.session.ID, evt.Kind, evt.Data)
		}
	}
}

// periodicCheckpoint writes a periodic checkpoint every
// opts.checkpointInterval() while the session runs, skipping ticks with no
// history yet. No checkpoint is written on task completion: besides these
// periodic ones, the only checkpoint a session gets is the Intervention
// Engine's pre-blocker checkpoint, taken on pause.
func (r *sessionRunner) periodicCheckpoint(ctx context.Context, wg *sync.WaitGroup, checkpoints *checkpointState, stop <-chan struct{}) {
	defer wg.Done()
	interval := r.opts.checkpointInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			history, lastTaskID := checkpoints.CurrentCheckpoint()
			if len(history) == 0 {
				continue
			}
			if _, err := r.opts.Store.CreateCheckpoint(ctx, &models.Checkpoint{
				SessionID:           r.session.ID,
				CheckpointType:      models.CheckpointPeriodic,
				ConversationHistory: history,
				LastTaskID:          lastTaskID,
			}); err != nil {
				slog.Error("periodic checkpoint failed", "session_id", r.session.ID, "error", err)
				continue
			}
			if err := r.opts.Store.SaveSessionCheckpoint(ctx, r.session.ID, history); err != nil {
				slog.Error("saving inline session checkpoint failed", "session_id", r.session.ID, "error", err)
			}
		}
	}
}

// buildPrompt assembles the Agent Runner's initial prompt: the
// type-appropriate base prompt, prefixed with the previous checkpoint's
// conversation history and the operator's resolution notes when this
// session resumes a paused one (spec §4.7 "Resume").
func (r *sessionRunner) buildPrompt() string {
	base := promptFor(r.session.Type)
	if r.resumeCheckpoint == nil {
		return base
	}

	prefix := fmt.Sprintf(
		"resume_context:\n  resolution_notes: %q\n  previous_conversation:\n%s\n---\n",
		r.resolutionNotes, indent(string(r.resumeCheckpoint.ConversationHistory)))
	return prefix + base
}

func indent(s string) string {
	out, err := json.Marshal(s)
	if err != nil {
		return s
	}
	return string(out)
}

func promptFor(sessionType models.SessionType) string {
	switch sessionType {
	case models.SessionTypeInitializer:
		return "You are initializing a new project. Create its epics, tasks and tests from the provided specification."
	case models.SessionTypeReview:
		return "Score the finished project against its specification and file a completion review."
	case models.SessionTypeRetest:
		return "Re-test the epics selected for this session and record their outcomes."
	default:
		return "Continue working through the project's backlog, one task at a time."
	}
}

func endReason(waitErr error) string {
	if waitErr != nil {
		return "crash"
	}
	return "exit"
}

// sandboxGetter narrows *sandbox.Manager to intervention.SandboxGetter.
type sandboxGetter struct {
	mgr *sandbox.Manager
}

func (g sandboxGetter) Get(projectID string) (sandbox.Sandbox, bool) {
	return g.mgr.Get(projectID)
}
