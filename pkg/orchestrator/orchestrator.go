package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
	"github.com/innerline/yokeflow2-sub000/pkg/quality"
	"github.com/innerline/yokeflow2-sub000/pkg/toolsurface"
)

// Orchestrator is the Session Orchestrator facade (spec §4.7, component
// C7): every Client Control API operation in spec §6 that touches a
// project's session lifecycle goes through here. It owns one
// projectScheduler goroutine per project with an active or resumed
// session, mirroring the registry pkg/queue.WorkerPool keeps of
// session_id -> cancel func (here, project_id -> cancel func, since
// scheduling is per-project rather than per-claim).
type Orchestrator struct {
	opts    Options
	surface *toolsurface.Surface

	mu         sync.Mutex
	schedulers map[string]*scheduled
}

type scheduled struct {
	ps     *projectScheduler
	cancel context.CancelFunc
}

// New constructs an Orchestrator. surface is the shared Tool Surface every
// session's Agent Runner dispatches against.
func New(opts Options, surface *toolsurface.Surface) *Orchestrator {
	if opts.Quality == nil {
		opts.Quality = quality.New(opts.Store, opts.Reviewer)
	}
	return &Orchestrator{opts: opts, surface: surface, schedulers: map[string]*scheduled{}}
}

// CreateProject implements spec §6's CreateProject: stores the project row;
// does not start any session (Initialize does that).
func (o *Orchestrator) CreateProject(ctx context.Context, name, spec string, projectType models.ProjectType, settings map[string]any) (*models.Project, error) {
	if name == "" {
		return nil, apperrors.New(apperrors.Validation, "project name is required")
	}
	return o.opts.Store.CreateProject(ctx, name, spec, projectType, settings)
}

// Initialize implements spec §6's Initialize: runs a single initializer
// session synchronously to populate the project's epics/tasks/tests, then
// returns once that session ends (it never auto-continues — initializer
// sessions are not part of the coding auto-continue loop). Refuses with
// Conflict if the project already has a completed initializer session
// (spec §4.7, spec §6's Initialize row).
func (o *Orchestrator) Initialize(ctx context.Context, projectID string) error {
	project, err := o.opts.Store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}

	alreadyInitialized, err := o.opts.Store.HasCompletedSessionOfType(ctx, projectID, models.SessionTypeInitializer)
	if err != nil {
		return err
	}
	if alreadyInitialized {
		return apperrors.New(apperrors.Conflict, "project %s is already initialized", projectID)
	}

	lock, err := o.opts.Store.AcquireProjectLock(ctx, projectID)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release(ctx) }()

	session, err := o.opts.Store.CreateSession(ctx, projectID, models.SessionTypeInitializer, o.opts.Config.ModelFor("initializer"), "")
	if err != nil {
		return err
	}

	runner := &sessionRunner{opts: o.opts, surface: o.surface, project: project, session: session}
	result := runner.run(ctx)
	if result.Status == models.SessionStatusError {
		return apperrors.New(apperrors.Internal, "initializer session %s ended in error", session.ID)
	}
	return nil
}

// StartCoding implements spec §6's StartCoding: launches the per-project
// scheduler goroutine that drives the coding auto-continue loop (spec
// §4.7 steps 2-6) until the project runs out of tasks, pauses, or errors.
// Refuses with Conflict if a session is already running for the project,
// and with NotFound/Conflict if the project hasn't been initialized yet
// (spec §4.7, spec §6's StartCoding row).
func (o *Orchestrator) StartCoding(ctx context.Context, projectID string) error {
	o.mu.Lock()
	_, exists := o.schedulers[projectID]
	o.mu.Unlock()
	if exists {
		return apperrors.New(apperrors.Conflict, "a session is already running for project %s", projectID)
	}

	project, err := o.opts.Store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}

	initialized, err := o.opts.Store.HasCompletedSessionOfType(ctx, projectID, models.SessionTypeInitializer)
	if err != nil {
		return err
	}
	if !initialized {
		return apperrors.New(apperrors.Conflict, "project %s has not been initialized", projectID)
	}

	o.mu.Lock()
	if _, exists := o.schedulers[projectID]; exists {
		o.mu.Unlock()
		return apperrors.New(apperrors.Conflict, "a session is already running for project %s", projectID)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	ps := &projectScheduler{opts: o.opts, project: project}
	o.schedulers[projectID] = &scheduled{ps: ps, cancel: cancel}
	o.mu.Unlock()

	go func() {
		ps.loop(runCtx, "", nil, "", o.runSession)
		o.mu.Lock()
		delete(o.schedulers, projectID)
		o.mu.Unlock()
	}()

	return nil
}

// runSession builds and runs one sessionRunner for project, wiring the
// scheduler's setEngine hook so PauseSession can reach the running
// Intervention Engine.
func (o *Orchestrator) runSession(ctx context.Context, project *models.Project, parentSessionID string, resumeCheckpoint *models.Checkpoint, resolutionNotes string) runResult {
	o.mu.Lock()
	sched, ok := o.schedulers[project.ID]
	o.mu.Unlock()

	sessionType := models.SessionTypeCoding
	session, err := o.opts.Store.CreateSession(ctx, project.ID, sessionType, o.opts.Config.ModelFor(string(sessionType)), parentSessionID)
	if err != nil {
		slog.Error("failed to create session", "project_id", project.ID, "error", err)
		return runResult{Status: models.SessionStatusError, Err: err}
	}

	runner := &sessionRunner{
		opts:             o.opts,
		surface:          o.surface,
		project:          project,
		session:          session,
		resumeCheckpoint: resumeCheckpoint,
		resolutionNotes:  resolutionNotes,
	}
	if ok {
		runner.onEngineReady = sched.ps.setEngine
	}
	return runner.run(ctx)
}

// StopAfterCurrent implements spec §6's StopAfterCurrent: the running
// session (if any) finishes normally, but no further session is started
// for this project.
func (o *Orchestrator) StopAfterCurrent(projectID string) error {
	o.mu.Lock()
	sched, ok := o.schedulers[projectID]
	o.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.NotFound, "no running scheduler for project %s", projectID)
	}
	sched.ps.requestStopAfterCurrent()
	return nil
}

// PauseSession implements spec §6's PauseSession / spec §4.5 trigger #4:
// routes a manual pause request to the currently running session's
// Intervention Engine, which carries out the same pause sequence a
// detected blocker would.
func (o *Orchestrator) PauseSession(ctx context.Context, projectID, reason string) error {
	o.mu.Lock()
	sched, ok := o.schedulers[projectID]
	o.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.NotFound, "no running scheduler for project %s", projectID)
	}
	if !sched.ps.pause(ctx, reason) {
		return apperrors.New(apperrors.Conflict, "no session currently running for project %s", projectID)
	}
	return nil
}

// ResumeSession implements spec §6's ResumeSession: loads the paused
// session's most recent checkpoint, marks the blocker resolved, and
// restarts the project's scheduler loop seeded with that checkpoint as
// the new session's resume context (spec §4.7 "Resume").
func (o *Orchestrator) ResumeSession(ctx context.Context, projectID, sessionID, resolvedBy, notes string) error {
	project, err := o.opts.Store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}

	if _, err := o.opts.Store.GetPausedSession(ctx, sessionID); err != nil {
		return err
	}
	checkpoint, err := o.opts.Store.LatestCheckpoint(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := o.opts.Store.ResolvePausedSession(ctx, sessionID, resolvedBy, notes); err != nil {
		return err
	}

	o.mu.Lock()
	if _, exists := o.schedulers[projectID]; exists {
		o.mu.Unlock()
		return apperrors.New(apperrors.Conflict, "project %s already has a running scheduler", projectID)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	ps := &projectScheduler{opts: o.opts, project: project}
	o.schedulers[projectID] = &scheduled{ps: ps, cancel: cancel}
	o.mu.Unlock()

	go func() {
		ps.loop(runCtx, sessionID, checkpoint, notes, o.runSession)
		o.mu.Lock()
		delete(o.schedulers, projectID)
		o.mu.Unlock()
	}()

	return nil
}

// DeleteProject implements spec §6's DeleteProject: stops any running
// scheduler and sandbox for the project, then removes its store rows.
func (o *Orchestrator) DeleteProject(ctx context.Context, projectID string) error {
	o.mu.Lock()
	sched, ok := o.schedulers[projectID]
	if ok {
		delete(o.schedulers, projectID)
	}
	o.mu.Unlock()
	if ok {
		sched.cancel()
	}

	if err := o.opts.Sandbox.Remove(ctx, projectID); err != nil {
		slog.Warn("failed to remove sandbox during project deletion", "project_id", projectID, "error", err)
	}
	return o.opts.Store.DeleteProject(ctx, projectID)
}

// GetProgress implements spec §6's GetProgress.
func (o *Orchestrator) GetProgress(ctx context.Context, projectID string) (*models.Progress, error) {
	return o.opts.Store.GetProgress(ctx, projectID)
}

// ListInterventions implements spec §6's ListInterventions: every
// unresolved paused session across all projects, for the operator
// dashboard to surface as actionable blockers.
func (o *Orchestrator) ListInterventions(ctx context.Context) ([]*models.PausedSession, error) {
	return o.opts.Store.ListUnresolvedPausedSessions(ctx)
}

// TriggerCompletionReview implements spec §6's TriggerCompletionReview:
// starts a one-shot review-type session whose agent scores the finished
// project and files its verdict via create_completion_review. Unlike
// coding sessions, a review session never auto-continues.
func (o *Orchestrator) TriggerCompletionReview(ctx context.Context, projectID string) (*models.CompletionReview, error) {
	project, err := o.opts.Store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	lock, err := o.opts.Store.AcquireProjectLock(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release(ctx) }()

	session, err := o.opts.Store.CreateSession(ctx, projectID, models.SessionTypeReview, o.opts.Config.ModelFor("review"), "")
	if err != nil {
		return nil, err
	}

	runner := &sessionRunner{opts: o.opts, surface: o.surface, project: project, session: session}
	if result := runner.run(ctx); result.Status == models.SessionStatusError {
		return nil, apperrors.New(apperrors.Internal, "completion review session %s ended in error", session.ID)
	}

	return o.opts.Store.LatestCompletionReview(ctx, projectID)
}

// Shutdown cancels every running project scheduler (used on process exit).
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, sched := range o.schedulers {
		sched.cancel()
		delete(o.schedulers, id)
	}
}
