package store

import (
	"context"

	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

// RecordEpicTestFailure appends an immutable failure record for an
// epic-level test, used by the deep-review trigger and retest error
// classification (spec §4.6).
func (s *Store) RecordEpicTestFailure(ctx context.Context, f *models.EpicTestFailure) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO epic_test_failures
			(epic_id, project_id, epic_test_id, session_id, error_message, error_category, was_passing_before, retry_count_at_failure)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.EpicID, f.ProjectID, f.EpicTestID, f.SessionID, f.ErrorMessage, f.ErrorCategory,
		f.WasPassingBefore, f.RetryCountAtFailure)
	if err != nil {
		return classify(err, "record epic test failure")
	}
	return nil
}

// ListEpicTestFailures returns the failure history for an epic, most
// recent first.
func (s *Store) ListEpicTestFailures(ctx context.Context, projectID string, epicID int) ([]*models.EpicTestFailure, error) {
	var failures []*models.EpicTestFailure
	err := s.db.SelectContext(ctx, &failures, `
		SELECT * FROM epic_test_failures
		WHERE project_id = $1 AND epic_id = $2
		ORDER BY failed_at DESC`, projectID, epicID)
	if err != nil {
		return nil, classify(err, "list epic test failures")
	}
	return failures, nil
}
