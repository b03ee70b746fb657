package toolsurface

import (
	"context"
	"encoding/json"
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
	"github.com/innerline/yokeflow2-sub000/pkg/store"
)

type startTaskParams struct {
	TaskID int `json:"task_id"`
}

type startTaskResult struct {
	OK bool `json:"ok"`
}

// handleStartTask implements spec §4.3's start_task. Claiming the first
// task in an epic also advances the epic from pending to in_progress
// (spec §3's Epic invariant: status transitions monotonically pending ->
// in_progress -> completed).
func handleStartTask(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p startTaskParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if err := s.store.StartTask(ctx, call.ProjectID, p.TaskID, call.SessionID); err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, call.ProjectID, p.TaskID)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkEpicInProgress(ctx, call.ProjectID, task.EpicID); err != nil {
		return nil, err
	}
	return startTaskResult{OK: true}, nil
}

type updateTaskStatusParams struct {
	TaskID int    `json:"task_id"`
	Done   bool   `json:"done"`
	Notes  string `json:"notes,omitempty"`
}

type updateTaskStatusResult struct {
	OK bool `json:"ok"`
}

// handleUpdateTaskStatus implements spec §4.3's update_task_status: when
// marking a task done, it first verifies every owned test is resolved
// (spec §4.4 invariant #3) and refuses a task with no tests unless the
// project's settings.allow_untested_tasks is true, then defers to the installed QualityGate (the
// Intervention Engine's UI/browser-verification check) before committing.
func handleUpdateTaskStatus(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p updateTaskStatusParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}

	if p.Done {
		allResolved, total, err := s.store.AllResolvedForTask(ctx, call.ProjectID, p.TaskID)
		if err != nil {
			return nil, err
		}
		if total > 0 && !allResolved {
			return nil, apperrors.New(apperrors.QualityViolation,
				"task %d has unresolved tests; every owned test must report a result before it can be marked done", p.TaskID)
		}
		if total == 0 {
			project, err := s.store.GetProject(ctx, call.ProjectID)
			if err != nil {
				return nil, err
			}
			if !project.AllowUntestedTasks() {
				return nil, apperrors.New(apperrors.QualityViolation,
					"task %d has no tests; it can be marked done only when the project sets allow_untested_tasks", p.TaskID)
			}
		}
		if gate := s.qualityGate(call.SessionID); gate != nil {
			if err := gate.CheckTaskCompletion(ctx, call.ProjectID, p.TaskID); err != nil {
				return nil, err
			}
		}
	}

	task, err := s.store.GetTask(ctx, call.ProjectID, p.TaskID)
	if err != nil {
		return nil, err
	}

	upd := store.TaskUpdate{Done: &p.Done}
	if p.Notes != "" {
		meta := task.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		meta["notes"] = p.Notes
		upd.Metadata = meta
	}
	if err := s.store.UpdateTask(ctx, call.ProjectID, p.TaskID, upd); err != nil {
		return nil, err
	}

	if p.Done {
		if err := s.maybeCompleteEpic(ctx, call.ProjectID, task.EpicID); err != nil {
			return nil, err
		}
	}

	return updateTaskStatusResult{OK: true}, nil
}

// maybeCompleteEpic implements the completion half of spec §3's Epic
// invariant: transitions an epic to completed once every child task is
// done and every epic-owned test passes. A no-op when either condition
// isn't met yet.
func (s *Surface) maybeCompleteEpic(ctx context.Context, projectID string, epicID int) error {
	unresolved, err := s.store.CountUnresolvedTasksForEpic(ctx, projectID, epicID)
	if err != nil {
		return err
	}
	if unresolved > 0 {
		return nil
	}
	testsPassing, err := s.store.AllEpicTestsPassing(ctx, projectID, epicID)
	if err != nil {
		return err
	}
	if !testsPassing {
		return nil
	}
	return s.store.UpdateEpicStatus(ctx, projectID, epicID, models.EpicStatusCompleted)
}

type updateTaskTestResultParams struct {
	TestID            int    `json:"test_id"`
	Passed            bool   `json:"passed"`
	Error             string `json:"error,omitempty"`
	ExecutionTimeMs   int    `json:"execution_time_ms,omitempty"`
	VerificationNotes string `json:"verification_notes,omitempty"`
}

type updateTestResultResult struct {
	OK bool `json:"ok"`
}

// handleUpdateTaskTestResult implements spec §4.3's update_test: enforces
// spec §3's Test invariant before committing — passed=true requires
// verification_notes, passed=false requires last_error.
func handleUpdateTaskTestResult(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p updateTaskTestResultParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Passed && p.VerificationNotes == "" {
		return nil, apperrors.New(apperrors.Validation,
			"test %d marked passed but no verification_notes were given", p.TestID)
	}
	if !p.Passed && p.Error == "" {
		return nil, apperrors.New(apperrors.Validation,
			"test %d marked failed but no error was given", p.TestID)
	}
	err := s.store.UpdateTest(ctx, p.TestID, store.TestResult{
		Passed:            p.Passed,
		LastError:         p.Error,
		ExecutionTimeMs:   p.ExecutionTimeMs,
		VerificationNotes: p.VerificationNotes,
	})
	if err != nil {
		return nil, err
	}
	return updateTestResultResult{OK: true}, nil
}

type updateEpicTestResultParams struct {
	EpicTestID      int    `json:"epic_test_id"`
	Passed          bool   `json:"passed"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMs int    `json:"execution_time_ms,omitempty"`
}

// handleUpdateEpicTestResult implements spec §4.3's update_epic_test_result:
// on failure it records an EpicTestFailure, classifying it as flaky when the
// test previously passed in a run more recent than its most recent
// recorded failure.
func handleUpdateEpicTestResult(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p updateEpicTestResultParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}

	test, err := s.store.GetTest(ctx, p.EpicTestID)
	if err != nil {
		return nil, err
	}

	wasPassingBefore := test.Passed != nil && *test.Passed

	if err := s.store.UpdateTest(ctx, p.EpicTestID, store.TestResult{
		Passed:          p.Passed,
		LastError:       p.Error,
		ExecutionTimeMs: p.ExecutionTimeMs,
	}); err != nil {
		return nil, err
	}

	if p.Passed {
		if err := s.maybeCompleteEpic(ctx, call.ProjectID, test.EpicID); err != nil {
			return nil, err
		}
		return updateTestResultResult{OK: true}, nil
	}

	category := models.ErrorCategoryImplementationGap
	if wasPassingBefore {
		category = models.ErrorCategoryFlaky
	}

	failure := &models.EpicTestFailure{
		EpicID:              test.EpicID,
		ProjectID:           call.ProjectID,
		EpicTestID:          p.EpicTestID,
		SessionID:           call.SessionID,
		FailedAt:            time.Now(),
		ErrorMessage:        p.Error,
		ErrorCategory:       category,
		WasPassingBefore:    wasPassingBefore,
		RetryCountAtFailure: test.RetryCount + 1,
	}
	if err := s.store.RecordEpicTestFailure(ctx, failure); err != nil {
		return nil, err
	}
	return updateTestResultResult{OK: true}, nil
}
