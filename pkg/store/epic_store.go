package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

// CreateEpic inserts an epic under a project. Epic IDs are assigned by the
// initializer session and are unique only within the owning project.
func (s *Store) CreateEpic(ctx context.Context, e *models.Epic) error {
	return s.namedExec(ctx, `
		INSERT INTO epics (project_id, epic_id, name, description, priority, status, tier)
		VALUES (:project_id, :epic_id, :name, :description, :priority, :status, :tier)`, e)
}

func (s *Store) namedExec(ctx context.Context, query string, arg any) error {
	_, err := s.db.NamedExecContext(ctx, query, arg)
	if err != nil {
		return classify(err, "exec")
	}
	return nil
}

// GetEpic fetches one epic by its per-project ID.
func (s *Store) GetEpic(ctx context.Context, projectID string, epicID int) (*models.Epic, error) {
	var e models.Epic
	err := s.db.GetContext(ctx, &e, `SELECT * FROM epics WHERE project_id = $1 AND epic_id = $2`, projectID, epicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("epic", epicID)
	}
	if err != nil {
		return nil, classify(err, "get epic")
	}
	return &e, nil
}

// ListEpics returns every epic for a project, ordered by priority.
func (s *Store) ListEpics(ctx context.Context, projectID string) ([]*models.Epic, error) {
	var epics []*models.Epic
	err := s.db.SelectContext(ctx, &epics, `SELECT * FROM epics WHERE project_id = $1 ORDER BY priority`, projectID)
	if err != nil {
		return nil, classify(err, "list epics")
	}
	return epics, nil
}

// UpdateEpicStatus transitions an epic's lifecycle status.
func (s *Store) UpdateEpicStatus(ctx context.Context, projectID string, epicID int, status models.EpicStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE epics SET status = $1 WHERE project_id = $2 AND epic_id = $3`, status, projectID, epicID)
	if err != nil {
		return classify(err, "update epic status")
	}
	return requireRowsAffected(res, "epic", epicID)
}

// MarkEpicInProgress transitions an epic from pending to in_progress. A
// no-op (not an error) if the epic is already past pending, since multiple
// tasks in the same epic race to be the first one started.
func (s *Store) MarkEpicInProgress(ctx context.Context, projectID string, epicID int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE epics SET status = $1 WHERE project_id = $2 AND epic_id = $3 AND status = $4`,
		models.EpicStatusInProgress, projectID, epicID, models.EpicStatusPending)
	if err != nil {
		return classify(err, "mark epic in progress")
	}
	return nil
}

// NextEligibleEpics returns epics that are pending or in_progress, in
// priority order, used by next_task to find a task to hand out.
func (s *Store) NextEligibleEpics(ctx context.Context, projectID string) ([]*models.Epic, error) {
	var epics []*models.Epic
	err := s.db.SelectContext(ctx, &epics, `
		SELECT * FROM epics
		WHERE project_id = $1 AND status IN ('pending', 'in_progress')
		ORDER BY priority`, projectID)
	if err != nil {
		return nil, classify(err, "list eligible epics")
	}
	return epics, nil
}

// DependentCount counts how many other epics in the project reference this
// one as a prerequisite in their description, used by the retest selection
// ranking (spec §4.6) to prioritize foundational epics. It is computed on
// demand rather than stored, since the dependency graph only exists as free
// text in epic descriptions.
func (s *Store) DependentCount(ctx context.Context, projectID string, epicID int, epicName string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT count(*) FROM epics
		WHERE project_id = $1 AND epic_id != $2 AND description ILIKE '%' || $3 || '%'`,
		projectID, epicID, epicName)
	if err != nil {
		return 0, classify(err, "count dependents")
	}
	return count, nil
}
