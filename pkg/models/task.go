package models

import "time"

// RiskLevel is a hint carried in Task.Metadata describing how risky a
// change is; used only for display/prioritization, not enforced here.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Task is a concrete work item (spec §3).
type Task struct {
	EpicID      int            `db:"epic_id" json:"epic_id"`
	ProjectID   string         `db:"project_id" json:"project_id"`
	TaskID      int            `db:"task_id" json:"task_id"`
	Description string         `db:"description" json:"description"`
	Action      string         `db:"action" json:"action"`
	Priority    int            `db:"priority" json:"priority"`
	Done        bool           `db:"done" json:"done"`
	StartedAt   *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	Metadata    map[string]any `db:"metadata" json:"metadata,omitempty"`
	// StartedBySessionID tracks which running session called start_task, so
	// a second session cannot start the same task concurrently (spec §4.3).
	StartedBySessionID string `db:"started_by_session_id" json:"started_by_session_id,omitempty"`
}

// FilesToModify extracts the files_to_modify hint from Metadata, if present.
func (t *Task) FilesToModify() []string {
	raw, ok := t.Metadata["files_to_modify"]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, v := range items {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// InferredType derives the task's verification category from its
// description/action keywords, used by Metrics' verification-mismatch
// detection (spec §4.4): ui->browser, api->api, config->build,
// database->database, integration->e2e.
func (t *Task) InferredType() TaskKind {
	text := t.Description + " " + t.Action
	return inferTaskKind(text)
}

// TaskKind is the inferred functional category of a task, used to check
// that the right kind of test verified it.
type TaskKind string

const (
	TaskKindUI          TaskKind = "ui"
	TaskKindAPI         TaskKind = "api"
	TaskKindConfig      TaskKind = "config"
	TaskKindDatabase    TaskKind = "database"
	TaskKindIntegration TaskKind = "integration"
	TaskKindGeneral     TaskKind = "general"
)

// ExpectedTestCategory returns the TestCategory that Metrics expects for
// this task kind, per spec §4.4's mapping. TaskKindGeneral has no
// specific expectation (any category is acceptable).
func (k TaskKind) ExpectedTestCategory() (TestCategory, bool) {
	switch k {
	case TaskKindUI:
		return TestCategoryBrowser, true
	case TaskKindAPI:
		return TestCategoryAPI, true
	case TaskKindConfig:
		return TestCategoryBuild, true
	case TaskKindDatabase:
		return TestCategoryDatabase, true
	case TaskKindIntegration:
		return TestCategoryE2E, true
	default:
		return "", false
	}
}
