package toolsurface

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/config"
	"github.com/innerline/yokeflow2-sub000/pkg/events"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
	"github.com/innerline/yokeflow2-sub000/pkg/sandbox"
	"github.com/innerline/yokeflow2-sub000/pkg/store"
)

// QualityGate lets the Intervention Engine veto an update_task_status call
// without toolsurface importing pkg/intervention (which itself needs to
// observe the event stream this package publishes — importing it back here
// would cycle). The orchestrator wires the real implementation in; nil
// means no gate is installed (every status update is allowed through).
type QualityGate interface {
	// CheckTaskCompletion returns a non-nil error (wrapping
	// apperrors.QualityViolation) when marking taskID done should be
	// refused, e.g. a UI task with no browser verification.
	CheckTaskCompletion(ctx context.Context, projectID string, taskID int) error
}

// Call is one dispatched request, resolved to its owning session/project.
type Call struct {
	SessionID   string
	ProjectID   string
	SessionType models.SessionType
	Request     *Request
}

// Surface implements every operation in spec §4.3, wired against the
// store, sandbox manager and event bus. One Surface instance is shared
// across sessions; per-call state lives entirely in the Call passed to
// Dispatch.
type Surface struct {
	store   *store.Store
	sandbox *sandbox.Manager
	bus     *events.Bus
	cfg     *config.Config

	mu    sync.RWMutex
	gates map[string]QualityGate // sessionID -> gate
}

// New constructs a Surface. cfg may be nil in tests that don't exercise
// retest/epic-testing configuration.
func New(st *store.Store, sb *sandbox.Manager, bus *events.Bus, cfg *config.Config) *Surface {
	return &Surface{store: st, sandbox: sb, bus: bus, cfg: cfg}
}

// SetQualityGate installs one session's Intervention Engine as its
// completion gate, keyed by sessionID — sessions from different projects
// run concurrently (spec §5), each with its own Engine and its own
// violation-count state, so the gate lookup must be per-session rather
// than a single shared field. Called once per session during orchestrator
// wiring, after both packages are constructed.
func (s *Surface) SetQualityGate(sessionID string, g QualityGate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gates == nil {
		s.gates = make(map[string]QualityGate)
	}
	s.gates[sessionID] = g
}

// UnsetQualityGate removes a session's installed gate once its Engine has
// stopped running, so the map doesn't grow unbounded across a process's
// lifetime.
func (s *Surface) UnsetQualityGate(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gates, sessionID)
}

func (s *Surface) qualityGate(sessionID string) QualityGate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gates[sessionID]
}

// handlerFunc implements one RPC method. onPartial is non-nil only when the
// call is eligible to stream (bash); handlers that ignore it behave as a
// normal unary call.
type handlerFunc func(ctx context.Context, s *Surface, call Call, params json.RawMessage, onPartial func(PartialPayload)) (any, error)

var handlers = map[string]handlerFunc{
	"task_status":               handleTaskStatus,
	"get_next_task":             handleGetNextTask,
	"list_epics":                handleListEpics,
	"get_epic":                  handleGetEpic,
	"list_tasks":                handleListTasks,
	"get_task":                  handleGetTask,
	"list_tests":                handleListTests,
	"get_session_history":       handleGetSessionHistory,
	"get_epic_stability_metrics": handleGetEpicStabilityMetrics,

	"start_task":                handleStartTask,
	"update_task_status":        handleUpdateTaskStatus,
	"update_task_test_result":   handleUpdateTaskTestResult,
	"update_epic_test_result":   handleUpdateEpicTestResult,

	"trigger_epic_retest":       handleTriggerEpicRetest,
	"record_epic_retest_result": handleRecordEpicRetestResult,

	"create_epic":  handleCreateEpic,
	"create_task":  handleCreateTask,
	"create_test":  handleCreateTest,
	"expand_epic":  handleExpandEpic,
	"log_session":  handleLogSession,

	"create_completion_review": handleCreateCompletionReview,

	"bash": handleBash,
}

// creationMethods are only callable from an initializer session (spec
// §4.3 "Creation (initializer-only)").
var creationMethods = map[string]bool{
	"create_epic": true,
	"create_task": true,
	"create_test": true,
	"expand_epic": true,
	"log_session": true,
}

// reviewOnlyMethods are only callable from a review-type session (the
// orchestrator's TriggerCompletionReview op, spec §6).
var reviewOnlyMethods = map[string]bool{
	"create_completion_review": true,
}

// Dispatch routes one request to its handler, publishing tool_use/
// tool_result events around the call (spec §4.3's closing sentence).
// onPartial, if non-nil, is invoked with streamed bash output chunks
// before the terminal result is returned.
func (s *Surface) Dispatch(ctx context.Context, call Call, onPartial func(PartialPayload)) (result any, err error) {
	method := call.Request.Method
	started := time.Now()

	s.bus.Publish(call.SessionID, events.KindToolUse, map[string]any{
		"tool":       method,
		"input":      json.RawMessage(call.Request.Params),
		"request_id": call.Request.ID,
	})

	defer func() {
		resultEvt := map[string]any{
			"tool":        method,
			"request_id":  call.Request.ID,
			"is_error":    err != nil,
			"duration_ms": time.Since(started).Milliseconds(),
		}
		if err != nil {
			resultEvt["text"] = err.Error()
		} else if result != nil {
			if data, marshalErr := json.Marshal(result); marshalErr == nil {
				resultEvt["text"] = string(data)
			}
		}
		s.bus.Publish(call.SessionID, events.KindToolResult, resultEvt)
	}()

	h, ok := handlers[method]
	if !ok {
		err = apperrors.New(apperrors.Validation, "unknown tool surface method %q", method)
		return nil, err
	}
	if creationMethods[method] && call.SessionType != models.SessionTypeInitializer {
		err = apperrors.New(apperrors.Validation, "method %q is only callable from an initializer session", method)
		return nil, err
	}
	if reviewOnlyMethods[method] && call.SessionType != models.SessionTypeReview {
		err = apperrors.New(apperrors.Validation, "method %q is only callable from a review session", method)
		return nil, err
	}

	result, err = h(ctx, s, call, call.Request.Params, onPartial)
	return result, err
}

// Serve runs the stdio RPC loop for one session until r is exhausted or
// a read fails. ctx is passed to every dispatched call; cancelling it does
// not interrupt a pending read. Each request is handled in its own goroutine so a
// long-running streaming `bash` call never blocks concurrent queries
// (spec §5: tool calls within a session may overlap; only event ordering
// is guaranteed, not call serialization).
func (s *Surface) Serve(ctx context.Context, projectID, sessionID string, sessionType models.SessionType, r io.Reader, w io.Writer) error {
	codec := NewCodec(r, w)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		req, err := codec.ReadRequest()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func(req *Request) {
			defer wg.Done()
			call := Call{SessionID: sessionID, ProjectID: projectID, SessionType: sessionType, Request: req}

			var onPartial func(PartialPayload)
			if req.Method == "bash" {
				onPartial = func(chunk PartialPayload) {
					if writeErr := codec.WritePartial(req.ID, chunk); writeErr != nil {
						slog.Warn("tool surface: write partial frame failed", "session_id", sessionID, "error", writeErr)
					}
				}
			}

			result, err := s.Dispatch(ctx, call, onPartial)
			if err != nil {
				if writeErr := codec.WriteError(req.ID, err); writeErr != nil {
					slog.Warn("tool surface: write error frame failed", "session_id", sessionID, "error", writeErr)
				}
				return
			}
			if writeErr := codec.WriteResult(req.ID, result); writeErr != nil {
				slog.Warn("tool surface: write result frame failed", "session_id", sessionID, "error", writeErr)
			}
		}(req)
	}
}
