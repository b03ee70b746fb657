package models

// TestCategory is the kind of verification a Test performs (spec §3).
type TestCategory string

const (
	TestCategoryUnit        TestCategory = "unit"
	TestCategoryAPI         TestCategory = "api"
	TestCategoryBrowser     TestCategory = "browser"
	TestCategoryBuild       TestCategory = "build"
	TestCategoryDatabase    TestCategory = "database"
	TestCategoryIntegration TestCategory = "integration"
	TestCategoryE2E         TestCategory = "e2e"
)

// OwnerKind distinguishes a Test owned by a Task from one owned by an Epic
// (an epic-level integration requirement, spec §3/§4.3).
type OwnerKind string

const (
	OwnerTask OwnerKind = "task"
	OwnerEpic OwnerKind = "epic"
)

// Test is a verifiable requirement attached to a task or epic (spec §3).
type Test struct {
	ID                int          `db:"id" json:"id"`
	ProjectID         string       `db:"project_id" json:"project_id"`
	OwnerKind         OwnerKind    `db:"owner_kind" json:"owner_kind"`
	EpicID            int          `db:"epic_id" json:"epic_id"`
	TaskID            *int         `db:"task_id" json:"task_id,omitempty"` // nil for epic-owned tests
	Category          TestCategory `db:"category" json:"category"`
	Description       string       `db:"description" json:"description"`
	Requirements      string       `db:"requirements" json:"requirements"`
	Passed            *bool        `db:"passed" json:"passed"`
	LastError         string       `db:"last_error" json:"last_error,omitempty"`
	ExecutionTimeMs    int         `db:"execution_time_ms" json:"execution_time_ms,omitempty"`
	RetryCount        int          `db:"retry_count" json:"retry_count"`
	VerificationNotes string       `db:"verification_notes" json:"verification_notes,omitempty"`
}

// Resolved reports whether the test has a non-null result, as required for
// a task to be marked done (spec §4.4 invariant #3).
func (t *Test) Resolved() bool {
	return t.Passed != nil
}
