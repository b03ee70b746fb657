package models

import "time"

// RetestTrigger is why an EpicRetest was scheduled (spec §3/§4.6).
type RetestTrigger string

const (
	RetestTriggerInterval       RetestTrigger = "epic_interval"
	RetestTriggerFoundationStale RetestTrigger = "foundation_stale"
	RetestTriggerManual         RetestTrigger = "manual"
)

// EpicTestFailure is a historical, append-only record of an epic-test
// failure (spec §3).
type EpicTestFailure struct {
	ID                   int            `db:"id" json:"id"`
	EpicID               int            `db:"epic_id" json:"epic_id"`
	ProjectID            string         `db:"project_id" json:"project_id"`
	EpicTestID           int            `db:"epic_test_id" json:"epic_test_id"`
	SessionID            string         `db:"session_id" json:"session_id"`
	FailedAt             time.Time      `db:"failed_at" json:"failed_at"`
	ErrorMessage         string         `db:"error_message" json:"error_message"`
	ErrorCategory        ErrorCategory  `db:"error_category" json:"error_category"`
	WasPassingBefore     bool           `db:"was_passing_before" json:"was_passing_before"`
	RetryCountAtFailure  int            `db:"retry_count_at_failure" json:"retry_count_at_failure"`
}

// ErrorCategory classifies an epic-test failure (spec §3/§4.3).
type ErrorCategory string

const (
	ErrorCategoryTestQuality     ErrorCategory = "test_quality"
	ErrorCategoryImplementationGap ErrorCategory = "implementation_gap"
	ErrorCategoryFlaky          ErrorCategory = "flaky"
)

// EpicRetest is a scheduled or completed re-test of a previously completed
// epic (spec §3).
type EpicRetest struct {
	ID                int           `db:"id" json:"id"`
	EpicID            int           `db:"epic_id" json:"epic_id"`
	ProjectID         string        `db:"project_id" json:"project_id"`
	TriggerReason     RetestTrigger `db:"trigger_reason" json:"trigger_reason"`
	Tier              EpicTier      `db:"tier" json:"tier"`
	SelectedAt        time.Time     `db:"selected_at" json:"selected_at"`
	TestedAt          *time.Time    `db:"tested_at" json:"tested_at,omitempty"`
	Passed            *bool         `db:"passed" json:"passed,omitempty"`
	FailedTestCount   int           `db:"failed_test_count" json:"failed_test_count"`
	TotalTestCount    int           `db:"total_test_count" json:"total_test_count"`
	RegressionDetected bool         `db:"regression_detected" json:"regression_detected"`
	StabilityScore    *float64      `db:"stability_score" json:"stability_score,omitempty"`
}

// Completed reports whether this retest has recorded an outcome.
func (r *EpicRetest) Completed() bool {
	return r.TestedAt != nil
}

// CompletionRecommendation is the verdict of a CompletionReview (spec §3).
type CompletionRecommendation string

const (
	RecommendationComplete  CompletionRecommendation = "complete"
	RecommendationNeedsWork CompletionRecommendation = "needs_work"
	RecommendationFailed    CompletionRecommendation = "failed"
)

// RequirementCoverage is one row of a CompletionReview's requirement
// breakdown (spec §3).
type RequirementCoverage struct {
	Text           string   `json:"text"`
	Priority       int      `json:"priority"`
	Status         string   `json:"status"`
	MatchedEpics   []int    `json:"matched_epics"`
	MatchedTasks   []int    `json:"matched_tasks"`
	CoverageScore  float64  `json:"coverage_score"`
}

// CompletionReview is a scoring of a finished project against its spec
// (spec §3).
type CompletionReview struct {
	ID                 int                      `db:"id" json:"id"`
	ProjectID          string                   `db:"project_id" json:"project_id"`
	OverallScore       int                      `db:"overall_score" json:"overall_score"`
	CoveragePercentage float64                  `db:"coverage_percentage" json:"coverage_percentage"`
	Recommendation     CompletionRecommendation `db:"recommendation" json:"recommendation"`
	Requirements       []RequirementCoverage    `db:"requirements" json:"requirements"`
	CreatedAt          time.Time                `db:"created_at" json:"created_at"`
}
