package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

// CreateTest inserts a test owned by a task or an epic.
func (s *Store) CreateTest(ctx context.Context, t *models.Test) (*models.Test, error) {
	err := s.db.GetContext(ctx, &t.ID, `
		INSERT INTO tests (project_id, owner_kind, epic_id, task_id, category, description, requirements)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		t.ProjectID, t.OwnerKind, t.EpicID, t.TaskID, t.Category, t.Description, t.Requirements)
	if err != nil {
		return nil, classify(err, "create test")
	}
	return t, nil
}

// GetTest fetches a test by ID.
func (s *Store) GetTest(ctx context.Context, id int) (*models.Test, error) {
	var t models.Test
	err := s.db.GetContext(ctx, &t, `SELECT * FROM tests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("test", id)
	}
	if err != nil {
		return nil, classify(err, "get test")
	}
	return &t, nil
}

// ListTestsForTask returns every test owned by a task.
func (s *Store) ListTestsForTask(ctx context.Context, projectID string, taskID int) ([]*models.Test, error) {
	var tests []*models.Test
	err := s.db.SelectContext(ctx, &tests, `
		SELECT * FROM tests WHERE project_id = $1 AND owner_kind = 'task' AND task_id = $2`, projectID, taskID)
	if err != nil {
		return nil, classify(err, "list tests for task")
	}
	return tests, nil
}

// ListTestsForEpic returns every epic-owned test (integration requirements).
func (s *Store) ListTestsForEpic(ctx context.Context, projectID string, epicID int) ([]*models.Test, error) {
	var tests []*models.Test
	err := s.db.SelectContext(ctx, &tests, `
		SELECT * FROM tests WHERE project_id = $1 AND owner_kind = 'epic' AND epic_id = $2`, projectID, epicID)
	if err != nil {
		return nil, classify(err, "list tests for epic")
	}
	return tests, nil
}

// TestResult carries the fields update_test mutates (spec §4.1).
type TestResult struct {
	Passed            bool
	LastError         string
	ExecutionTimeMs   int
	VerificationNotes string
}

// UpdateTest records a verification result, atomically incrementing
// retry_count whenever the result is a failure (spec §4.1's update_test).
func (s *Store) UpdateTest(ctx context.Context, id int, result TestResult) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tests
		SET passed = $1,
		    last_error = $2,
		    execution_time_ms = $3,
		    verification_notes = $4,
		    retry_count = retry_count + CASE WHEN $1 THEN 0 ELSE 1 END
		WHERE id = $5`,
		result.Passed, result.LastError, result.ExecutionTimeMs, result.VerificationNotes, id)
	if err != nil {
		return classify(err, "update test")
	}
	return requireRowsAffected(res, "test", id)
}

// AllResolvedForTask reports whether every test owned by a task has a
// non-null result, the invariant update_task_status(done=true) enforces
// (spec §4.4 invariant #3).
func (s *Store) AllResolvedForTask(ctx context.Context, projectID string, taskID int) (bool, int, error) {
	var total, unresolved int
	if err := s.db.GetContext(ctx, &total, `
		SELECT count(*) FROM tests WHERE project_id = $1 AND owner_kind = 'task' AND task_id = $2`,
		projectID, taskID); err != nil {
		return false, 0, classify(err, "count tests for task")
	}
	if err := s.db.GetContext(ctx, &unresolved, `
		SELECT count(*) FROM tests
		WHERE project_id = $1 AND owner_kind = 'task' AND task_id = $2 AND passed IS NULL`,
		projectID, taskID); err != nil {
		return false, 0, classify(err, "count unresolved tests for task")
	}
	return unresolved == 0, total, nil
}

// AllEpicTestsPassing reports whether every integration test owned
// directly by an epic currently has passed = true, the second half of
// spec §3's Epic completion invariant (the first half, every child task
// done, is CountUnresolvedTasksForEpic).
func (s *Store) AllEpicTestsPassing(ctx context.Context, projectID string, epicID int) (bool, error) {
	var notPassing int
	if err := s.db.GetContext(ctx, &notPassing, `
		SELECT count(*) FROM tests
		WHERE project_id = $1 AND owner_kind = 'epic' AND epic_id = $2
		  AND (passed IS NULL OR passed = FALSE)`,
		projectID, epicID); err != nil {
		return false, classify(err, "count non-passing epic tests")
	}
	return notPassing == 0, nil
}

// AnyBrowserVerificationSince reports whether any browser-category test
// owned by this task has a recorded result (passed is non-null), used by
// the quality violation check for UI tasks (spec §4.5). It takes no time
// bound: a result recorded before the task's start_task counts as well.
func (s *Store) AnyBrowserVerificationSince(ctx context.Context, projectID string, taskID int) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT count(*) FROM tests
		WHERE project_id = $1 AND owner_kind = 'task' AND task_id = $2
		  AND category = $3 AND passed IS NOT NULL`,
		projectID, taskID, models.TestCategoryBrowser)
	if err != nil {
		return false, apperrors.Wrap(apperrors.StorageError, err, "check browser verification")
	}
	return count > 0, nil
}
