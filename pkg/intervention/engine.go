package intervention

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/config"
	"github.com/innerline/yokeflow2-sub000/pkg/events"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
	"github.com/innerline/yokeflow2-sub000/pkg/sandbox"
	"github.com/innerline/yokeflow2-sub000/pkg/store"
)

// SandboxGetter is the subset of *sandbox.Manager the auto-recovery path
// needs, narrowed to keep that path testable without a live Manager.
type SandboxGetter interface {
	Get(projectID string) (sandbox.Sandbox, bool)
}

// Engine implements spec §4.5's triggers and pause action sequence. One
// Engine watches one running session's event stream, the way Metrics'
// Collector does (same bus, same replay-then-forward subscription), and
// additionally implements toolsurface.QualityGate so the Tool Surface can
// consult it synchronously before committing a task-completion mutation.
type Engine struct {
	store      *store.Store
	sandboxMgr SandboxGetter
	cfg        config.InterventionConfig
	projectID  string
	sessionID  string

	checkpoints CheckpointProvider
	terminator  Terminator

	additionalPatterns []*regexp.Regexp

	mu              sync.Mutex
	commandCounts   map[string]int
	violationCount  int
	paused          bool
	pauseType       models.PauseType
	currentBus      *events.Bus
}

// New constructs an Engine for one session. checkpoints/terminator may be
// nil, in which case a no-op stand-in is used — convenient for tests that
// only exercise trigger detection, not the full pause sequence.
func New(st *store.Store, sandboxMgr SandboxGetter, cfg config.InterventionConfig, projectID, sessionID string, checkpoints CheckpointProvider, terminator Terminator) *Engine {
	if checkpoints == nil {
		checkpoints = nopCheckpointProvider{}
	}
	if terminator == nil {
		terminator = nopTerminator{}
	}
	return &Engine{
		store:              st,
		sandboxMgr:         sandboxMgr,
		cfg:                cfg,
		projectID:          projectID,
		sessionID:          sessionID,
		checkpoints:        checkpoints,
		terminator:         terminator,
		additionalPatterns: compileAdditionalPatterns(cfg.AdditionalCriticalErrorPatterns),
		commandCounts:      map[string]int{},
	}
}

// Run subscribes to bus for sessionID, replays its history, then consumes
// live events until the stream closes, ctx is cancelled, or the Engine
// pauses the session — whichever comes first.
func (e *Engine) Run(ctx context.Context, bus *events.Bus) (*Outcome, error) {
	e.mu.Lock()
	e.currentBus = bus
	e.mu.Unlock()

	ch, history := bus.Subscribe(e.sessionID)
	defer bus.Unsubscribe(e.sessionID, ch)

	for _, evt := range history {
		if e.handleEvent(ctx, evt) {
			return e.outcome(), nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return e.outcome(), ctx.Err()
		case evt, ok := <-ch:
			if !ok {
				return e.outcome(), nil
			}
			if e.handleEvent(ctx, evt) {
				return e.outcome(), nil
			}
		}
	}
}

func (e *Engine) outcome() *Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &Outcome{Paused: e.paused, PauseType: string(e.pauseType), ViolationCount: e.violationCount}
}

// handleEvent processes one event and reports whether it caused a pause
// (in which case Run should stop consuming further events).
func (e *Engine) handleEvent(ctx context.Context, evt events.Event) bool {
	switch evt.Kind {
	case events.KindToolUse:
		return e.checkRetryLimit(ctx, evt)
	case events.KindToolResult:
		return e.checkCriticalError(ctx, evt)
	case events.KindError:
		if text, ok := evt.Data["message"].(string); ok {
			return e.checkCriticalErrorText(ctx, text)
		}
	}
	return false
}

// normalizedCommand returns a stable signature for a tool_use event's
// invocation: the method name plus its input payload, so that "bash npm
// test" repeated verbatim is recognized as the same invocation while a
// different command to the same tool is not (spec §4.5 trigger #1).
func normalizedCommand(evt events.Event) string {
	method, _ := evt.Data["tool"].(string)
	var inputStr string
	switch v := evt.Data["input"].(type) {
	case json.RawMessage:
		inputStr = string(v)
	case string:
		inputStr = v
	default:
		if data, err := json.Marshal(v); err == nil {
			inputStr = string(data)
		}
	}
	return method + "|" + inputStr
}

func (e *Engine) checkRetryLimit(ctx context.Context, evt events.Event) bool {
	sig := normalizedCommand(evt)
	if sig == "|" {
		return false
	}

	limit := e.cfg.RetryLimit
	if limit <= 0 {
		limit = 3
	}

	e.mu.Lock()
	e.commandCounts[sig]++
	count := e.commandCounts[sig]
	e.mu.Unlock()

	if count <= limit {
		return false
	}

	method, _ := evt.Data["tool"].(string)
	e.pause(ctx, models.PauseTypeRetryLimit,
		fmt.Sprintf("tool invocation %q repeated %d times, exceeding the configured limit of %d", method, count, limit),
		map[string]any{"tool": method, "occurrences": count, "limit": limit},
		map[string]any{"command": sig, "occurrences": count})
	return true
}

func (e *Engine) checkCriticalError(ctx context.Context, evt events.Event) bool {
	isError, _ := evt.Data["is_error"].(bool)
	if !isError {
		return false
	}
	text, _ := evt.Data["text"].(string)
	if text == "" {
		return false
	}
	return e.checkCriticalErrorText(ctx, text)
}

func (e *Engine) checkCriticalErrorText(ctx context.Context, text string) bool {
	kind, matched := classifyCriticalError(text, e.additionalPatterns)
	if !matched {
		return false
	}

	e.pause(ctx, models.PauseTypeCriticalError,
		fmt.Sprintf("critical error detected (%s): %s", kind, truncate(text, 300)),
		map[string]any{"blocker_kind": string(kind), "matched_text": truncate(text, 500)},
		nil)

	if recovered := e.autoRecover(ctx, kind, text); recovered {
		slog.Info("auto-recovery succeeded", "session_id", e.sessionID, "blocker_kind", kind)
	}
	return true
}

// CheckTaskCompletion implements toolsurface.QualityGate (spec §4.5
// trigger #3): a UI task none of whose browser-category tests has a
// recorded result (at any time; start_task is not used as a lower bound),
// or any owned test whose result is a failure, rejects the mutation; once
// the session's violation count exceeds the configured threshold, the
// Engine pauses it.
func (e *Engine) CheckTaskCompletion(ctx context.Context, projectID string, taskID int) error {
	tests, err := e.store.ListTestsForTask(ctx, projectID, taskID)
	if err != nil {
		return err
	}
	for _, t := range tests {
		if t.Passed != nil && !*t.Passed {
			return e.rejectCompletion(ctx, taskID,
				fmt.Sprintf("task %d has a failing test (test %d); it cannot be marked done", taskID, t.ID),
				map[string]any{"task_id": taskID, "test_id": t.ID, "reason": "failing_test"})
		}
	}

	task, err := e.store.GetTask(ctx, projectID, taskID)
	if err != nil {
		return err
	}
	if task.InferredType() == models.TaskKindUI {
		verified, err := e.store.AnyBrowserVerificationSince(ctx, projectID, taskID)
		if err != nil {
			return err
		}
		if !verified {
			return e.rejectCompletion(ctx, taskID,
				fmt.Sprintf("UI task %d completed without a browser verification", taskID),
				map[string]any{"task_id": taskID, "reason": "missing_browser_verification"})
		}
	}
	return nil
}

// rejectCompletion records one quality violation and, past the configured
// threshold, pauses the session — then always returns the QualityViolation
// error so the caller (the Tool Surface's update_task_status handler)
// refuses the mutation regardless of whether a pause was triggered.
func (e *Engine) rejectCompletion(ctx context.Context, taskID int, reason string, blockerInfo map[string]any) error {
	e.mu.Lock()
	e.violationCount++
	count := e.violationCount
	e.mu.Unlock()

	threshold := e.cfg.QualityViolationPauseThreshold
	if threshold <= 0 {
		threshold = 3
	}
	if count > threshold {
		e.pause(ctx, models.PauseTypeQualityViolation,
			fmt.Sprintf("quality violation count (%d) exceeded threshold (%d): %s", count, threshold, reason),
			blockerInfo, map[string]any{"violation_count": count, "threshold": threshold})
	}

	return apperrors.New(apperrors.QualityViolation, "%s", reason)
}

// RequestPause implements spec §4.5 trigger #4 (manual pause), called
// directly by the Orchestrator's PauseSession operation rather than
// detected from the event stream.
func (e *Engine) RequestPause(ctx context.Context, reason string) {
	e.pause(ctx, models.PauseTypeManual, reason, map[string]any{"reason": reason}, nil)
}

// pause carries out spec §4.5's full pause action sequence. Safe to call
// more than once for the same session; only the first call has effect.
func (e *Engine) pause(ctx context.Context, pauseType models.PauseType, reason string, blockerInfo, retryStats map[string]any) {
	e.mu.Lock()
	if e.paused {
		e.mu.Unlock()
		return
	}
	e.paused = true
	e.pauseType = pauseType
	bus := e.currentBus
	e.mu.Unlock()

	history, lastTaskID := e.checkpoints.CurrentCheckpoint()
	if e.store != nil {
		if _, err := e.store.CreateCheckpoint(ctx, &models.Checkpoint{
			SessionID:           e.sessionID,
			CheckpointType:      models.CheckpointPreBlocker,
			ConversationHistory: history,
			LastTaskID:          lastTaskID,
		}); err != nil {
			slog.Error("pause: failed to capture checkpoint", "session_id", e.sessionID, "error", err)
		}

		if err := e.store.CreatePausedSession(ctx, &models.PausedSession{
			SessionID:   e.sessionID,
			PauseReason: reason,
			PauseType:   pauseType,
			BlockerInfo: blockerInfo,
			RetryStats:  retryStats,
		}); err != nil {
			slog.Error("pause: failed to write paused_sessions row", "session_id", e.sessionID, "error", err)
		}

		if err := e.store.UpdateSessionStatus(ctx, e.sessionID, models.SessionStatusPaused); err != nil {
			slog.Error("pause: failed to mark session paused", "session_id", e.sessionID, "error", err)
		}

		if err := e.store.AppendProgressNote(ctx, e.projectID, models.NoteEntryBlocker, reason, e.sessionID); err != nil {
			slog.Error("pause: failed to append progress note", "session_id", e.sessionID, "error", err)
		}
	}

	e.terminator.Terminate()

	if bus != nil {
		bus.Publish(e.sessionID, events.KindNotification, map[string]any{
			"project":      e.projectID,
			"session":      e.sessionID,
			"blocker_type": string(pauseType),
			"message":      reason,
			"retry_stats":  retryStats,
		})
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
