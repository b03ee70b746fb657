package toolsurface

import (
	"context"
	"encoding/json"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

func handleTaskStatus(ctx context.Context, s *Surface, call Call, _ json.RawMessage, _ func(PartialPayload)) (any, error) {
	return s.store.GetProgress(ctx, call.ProjectID)
}

func handleGetNextTask(ctx context.Context, s *Surface, call Call, _ json.RawMessage, _ func(PartialPayload)) (any, error) {
	return s.store.NextTask(ctx, call.ProjectID)
}

func handleListEpics(ctx context.Context, s *Surface, call Call, _ json.RawMessage, _ func(PartialPayload)) (any, error) {
	return s.store.ListEpics(ctx, call.ProjectID)
}

type getEpicParams struct {
	EpicID int `json:"epic_id"`
}

func handleGetEpic(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p getEpicParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	return s.store.GetEpic(ctx, call.ProjectID, p.EpicID)
}

type listTasksParams struct {
	EpicID      int  `json:"epic_id"`
	OnlyPending bool `json:"only_pending"`
}

func handleListTasks(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p listTasksParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasksForEpic(ctx, call.ProjectID, p.EpicID)
	if err != nil {
		return nil, err
	}
	if !p.OnlyPending {
		return tasks, nil
	}
	pending := make([]*models.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Done {
			pending = append(pending, t)
		}
	}
	return pending, nil
}

type getTaskParams struct {
	TaskID int `json:"task_id"`
}

func handleGetTask(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p getTaskParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	return s.store.GetTask(ctx, call.ProjectID, p.TaskID)
}

type listTestsParams struct {
	TaskID *int `json:"task_id,omitempty"`
	EpicID *int `json:"epic_id,omitempty"`
}

func handleListTests(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p listTestsParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	switch {
	case p.TaskID != nil:
		return s.store.ListTestsForTask(ctx, call.ProjectID, *p.TaskID)
	case p.EpicID != nil:
		return s.store.ListTestsForEpic(ctx, call.ProjectID, *p.EpicID)
	default:
		return nil, apperrors.New(apperrors.Validation, "list_tests requires task_id or epic_id")
	}
}

type getSessionHistoryParams struct {
	Limit int `json:"limit"`
}

func handleGetSessionHistory(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p getSessionHistoryParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessionsForProject(ctx, call.ProjectID)
	if err != nil {
		return nil, err
	}
	if p.Limit <= 0 || p.Limit >= len(sessions) {
		return sessions, nil
	}
	// ListSessionsForProject orders newest-first; the caller wants the most
	// recent `limit` sessions, which is just the prefix.
	return sessions[:p.Limit], nil
}

type getEpicStabilityMetricsParams struct {
	EpicID *int `json:"epic_id,omitempty"`
}

// epicStabilityMetrics is the result shape for get_epic_stability_metrics
// (spec §4.3): stability score plus pass/fail counts and regressions
// observed, one entry per epic (or a single entry when epic_id is given).
type epicStabilityMetrics struct {
	EpicID             int      `json:"epic_id"`
	StabilityScore     *float64 `json:"stability_score,omitempty"`
	PassCount          int      `json:"pass_count"`
	FailCount          int      `json:"fail_count"`
	RegressionsDetected int     `json:"regressions_detected"`
}

func handleGetEpicStabilityMetrics(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p getEpicStabilityMetricsParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}

	var epicIDs []int
	if p.EpicID != nil {
		epicIDs = []int{*p.EpicID}
	} else {
		epics, err := s.store.ListEpics(ctx, call.ProjectID)
		if err != nil {
			return nil, err
		}
		for _, e := range epics {
			epicIDs = append(epicIDs, e.EpicID)
		}
	}

	window := 10
	if s.cfg != nil && s.cfg.EpicRetesting.StabilityWindow > 0 {
		window = s.cfg.EpicRetesting.StabilityWindow
	}

	out := make([]epicStabilityMetrics, 0, len(epicIDs))
	for _, epicID := range epicIDs {
		retests, err := s.store.RecentEpicRetests(ctx, call.ProjectID, epicID, window)
		if err != nil {
			return nil, err
		}
		m := epicStabilityMetrics{EpicID: epicID}
		for _, r := range retests {
			if r.Passed == nil {
				continue
			}
			if *r.Passed {
				m.PassCount++
			} else {
				m.FailCount++
			}
			if r.RegressionDetected {
				m.RegressionsDetected++
			}
		}
		if len(retests) > 0 && retests[0].StabilityScore != nil {
			m.StabilityScore = retests[0].StabilityScore
		}
		out = append(out, m)
	}
	return out, nil
}

func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.Wrap(apperrors.Validation, err, "decode tool surface params")
	}
	return nil
}
