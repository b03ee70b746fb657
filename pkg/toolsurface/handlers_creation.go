package toolsurface

import (
	"context"
	"encoding/json"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

type createEpicParams struct {
	EpicID      int             `json:"epic_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Priority    int             `json:"priority"`
	Tier        models.EpicTier `json:"tier"`
}

func handleCreateEpic(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p createEpicParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, apperrors.New(apperrors.Validation, "create_epic requires a name")
	}
	tier := p.Tier
	if tier == "" {
		tier = models.EpicTierStandard
	}
	epic := &models.Epic{
		ProjectID:   call.ProjectID,
		EpicID:      p.EpicID,
		Name:        p.Name,
		Description: p.Description,
		Priority:    p.Priority,
		Status:      models.EpicStatusPending,
		Tier:        tier,
	}
	if err := s.store.CreateEpic(ctx, epic); err != nil {
		return nil, err
	}
	return epic, nil
}

type createTaskParams struct {
	EpicID      int            `json:"epic_id"`
	TaskID      int            `json:"task_id"`
	Description string         `json:"description"`
	Action      string         `json:"action"`
	Priority    int            `json:"priority"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func handleCreateTask(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p createTaskParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Description == "" {
		return nil, apperrors.New(apperrors.Validation, "create_task requires a description")
	}
	task := &models.Task{
		ProjectID:   call.ProjectID,
		EpicID:      p.EpicID,
		TaskID:      p.TaskID,
		Description: p.Description,
		Action:      p.Action,
		Priority:    p.Priority,
		Metadata:    p.Metadata,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

type createTestParams struct {
	OwnerKind    models.OwnerKind    `json:"owner_kind"`
	EpicID       int                 `json:"epic_id"`
	TaskID       *int                `json:"task_id,omitempty"`
	Category     models.TestCategory `json:"category"`
	Description  string              `json:"description"`
	Requirements string              `json:"requirements,omitempty"`
}

func handleCreateTest(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p createTestParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if p.OwnerKind == models.OwnerTask && p.TaskID == nil {
		return nil, apperrors.New(apperrors.Validation, "create_test for owner_kind=task requires task_id")
	}
	test := &models.Test{
		ProjectID:    call.ProjectID,
		OwnerKind:    p.OwnerKind,
		EpicID:       p.EpicID,
		TaskID:       p.TaskID,
		Category:     p.Category,
		Description:  p.Description,
		Requirements: p.Requirements,
	}
	created, err := s.store.CreateTest(ctx, test)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// expandEpicParams carries a batch of tasks/tests for an existing epic —
// the initializer's way of fleshing out an epic it created in an earlier
// call without re-describing the epic itself.
type expandEpicParams struct {
	EpicID int                `json:"epic_id"`
	Tasks  []createTaskParams `json:"tasks,omitempty"`
	Tests  []createTestParams `json:"tests,omitempty"`
}

type expandEpicResult struct {
	TasksCreated int `json:"tasks_created"`
	TestsCreated int `json:"tests_created"`
}

func handleExpandEpic(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p expandEpicParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if _, err := s.store.GetEpic(ctx, call.ProjectID, p.EpicID); err != nil {
		return nil, err
	}

	result := expandEpicResult{}
	for _, tp := range p.Tasks {
		task := &models.Task{
			ProjectID:   call.ProjectID,
			EpicID:      p.EpicID,
			TaskID:      tp.TaskID,
			Description: tp.Description,
			Action:      tp.Action,
			Priority:    tp.Priority,
			Metadata:    tp.Metadata,
		}
		if err := s.store.CreateTask(ctx, task); err != nil {
			return nil, err
		}
		result.TasksCreated++
	}
	for _, tp := range p.Tests {
		test := &models.Test{
			ProjectID:    call.ProjectID,
			OwnerKind:    tp.OwnerKind,
			EpicID:       p.EpicID,
			TaskID:       tp.TaskID,
			Category:     tp.Category,
			Description:  tp.Description,
			Requirements: tp.Requirements,
		}
		if _, err := s.store.CreateTest(ctx, test); err != nil {
			return nil, err
		}
		result.TestsCreated++
	}
	return result, nil
}

type logSessionParams struct {
	Message string `json:"message"`
}

type logSessionResult struct {
	OK bool `json:"ok"`
}

// handleLogSession records a free-text initializer note on the session's
// event stream (spec §4.3's log_session); there is no dedicated store
// table for these — they live in the event stream itself, exactly the
// way every other tool_use/tool_result pair does: the note is the input of
// the tool_use event Dispatch publishes. get_session_history, which
// returns session rows, does not include them.
func handleLogSession(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p logSessionParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	return logSessionResult{OK: true}, nil
}

type createCompletionReviewParams struct {
	OverallScore       int                           `json:"overall_score"`
	CoveragePercentage float64                       `json:"coverage_percentage"`
	Recommendation     models.CompletionRecommendation `json:"recommendation"`
	Requirements       []models.RequirementCoverage  `json:"requirements"`
}

// handleCreateCompletionReview implements the client-facing
// TriggerCompletionReview operation's write path: a review-type session's
// agent scores the finished project against its spec and files the
// verdict here, restricted to review sessions the same way creationMethods
// restricts create_epic/create_task/create_test to initializer sessions.
func handleCreateCompletionReview(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p createCompletionReviewParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Recommendation == "" {
		return nil, apperrors.New(apperrors.Validation, "create_completion_review requires a recommendation")
	}
	review, err := s.store.CreateCompletionReview(ctx, &models.CompletionReview{
		ProjectID:          call.ProjectID,
		OverallScore:       p.OverallScore,
		CoveragePercentage: p.CoveragePercentage,
		Recommendation:     p.Recommendation,
		Requirements:       p.Requirements,
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}
