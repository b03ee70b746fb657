package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

// projectRow mirrors models.Project for scanning, with Settings carried as
// raw JSON since database/sql cannot unmarshal a JSONB column directly
// into map[string]any.
type projectRow struct {
	ID             string          `db:"id"`
	Name           string          `db:"name"`
	SourceSpec     string          `db:"source_spec"`
	Status         string          `db:"status"`
	ProjectType    string          `db:"project_type"`
	Settings       json.RawMessage `db:"settings"`
	SourceRevision string          `db:"source_revision"`
	CreatedAt      time.Time       `db:"created_at"`
	EpicsCompletedAtLastRetestTrigger int `db:"epics_completed_at_last_retest_trigger"`
}

func (r projectRow) toModel() (*models.Project, error) {
	settings := map[string]any{}
	if len(r.Settings) > 0 {
		if err := json.Unmarshal(r.Settings, &settings); err != nil {
			return nil, apperrors.Wrap(apperrors.StorageError, err, "decode project settings")
		}
	}
	return &models.Project{
		ID:             r.ID,
		Name:           r.Name,
		SourceSpec:     r.SourceSpec,
		Status:         models.ProjectStatus(r.Status),
		ProjectType:    models.ProjectType(r.ProjectType),
		Settings:       settings,
		SourceRevision: r.SourceRevision,
		CreatedAt:      r.CreatedAt,
		EpicsCompletedAtLastRetestTrigger: r.EpicsCompletedAtLastRetestTrigger,
	}, nil
}

// CreateProject inserts a new project, spec §4.1's create_project.
// Duplicate names fail with apperrors.Conflict.
func (s *Store) CreateProject(ctx context.Context, name, spec string, projectType models.ProjectType, settings map[string]any) (*models.Project, error) {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Validation, err, "encode settings")
	}

	p := &models.Project{
		ID:          uuid.New().String(),
		Name:        name,
		SourceSpec:  spec,
		Status:      models.ProjectStatusActive,
		ProjectType: projectType,
		Settings:    settings,
		CreatedAt:   time.Now(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, source_spec, status, project_type, settings, source_revision, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Name, p.SourceSpec, p.Status, p.ProjectType, settingsJSON, p.SourceRevision, p.CreatedAt)
	if err != nil {
		return nil, classify(err, "create project")
	}

	return p, nil
}

// GetProject fetches a project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var row projectRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM projects WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("project", id)
	}
	if err != nil {
		return nil, classify(err, "get project")
	}
	return row.toModel()
}

// GetProjectByName fetches a project by its unique name.
func (s *Store) GetProjectByName(ctx context.Context, name string) (*models.Project, error) {
	var row projectRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM projects WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("project", name)
	}
	if err != nil {
		return nil, classify(err, "get project by name")
	}
	return row.toModel()
}

// UpdateProjectStatus transitions a project's lifecycle status.
func (s *Store) UpdateProjectStatus(ctx context.Context, id string, status models.ProjectStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return classify(err, "update project status")
	}
	return requireRowsAffected(res, "project", id)
}

// UpdateProjectSourceRevision records the imported codebase's revision for
// a brownfield project (spec §6's create_project note).
func (s *Store) UpdateProjectSourceRevision(ctx context.Context, id, revision string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET source_revision = $1 WHERE id = $2`, revision, id)
	if err != nil {
		return classify(err, "update project source revision")
	}
	return requireRowsAffected(res, "project", id)
}

// DeleteProject removes a project and every row that cascades from it
// (epics, tasks, tests, sessions, ...).
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return classify(err, "delete project")
	}
	return requireRowsAffected(res, "project", id)
}

// ListProjects returns every project, most recently created first.
func (s *Store) ListProjects(ctx context.Context) ([]*models.Project, error) {
	var rows []projectRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM projects ORDER BY created_at DESC`); err != nil {
		return nil, classify(err, "list projects")
	}
	out := make([]*models.Project, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// GetProgress aggregates epic/task/test counters for a project, spec
// §4.1's get_progress.
func (s *Store) GetProgress(ctx context.Context, projectID string) (*models.Progress, error) {
	var progress models.Progress

	err := s.db.GetContext(ctx, &progress, `
		SELECT
			(SELECT count(*) FROM epics WHERE project_id = $1) AS total_epics,
			(SELECT count(*) FROM epics WHERE project_id = $1 AND status = 'completed') AS completed_epics,
			(SELECT count(*) FROM tasks WHERE project_id = $1) AS total_tasks,
			(SELECT count(*) FROM tasks WHERE project_id = $1 AND done) AS completed_tasks,
			(SELECT count(*) FROM tests WHERE project_id = $1) AS total_tests,
			(SELECT count(*) FROM tests WHERE project_id = $1 AND passed) AS passing_tests
	`, projectID)
	if err != nil {
		return nil, classify(err, "get progress")
	}
	return &progress, nil
}

// CountCompletedEpics returns the number of epics currently in
// status=completed for a project, the running counter the Quality
// Pipeline's epic-retest gating compares against its stored baseline.
func (s *Store) CountCompletedEpics(ctx context.Context, projectID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT count(*) FROM epics WHERE project_id = $1 AND status = 'completed'`, projectID)
	if err != nil {
		return 0, classify(err, "count completed epics")
	}
	return count, nil
}

// CheckAndAdvanceEpicRetestTrigger reports whether at least frequency more
// epics have completed since the last automatic epic-retest trigger
// (spec §4.6: "after every N completed epics"), and if so advances the
// stored baseline to the current completed count so the next check starts
// counting fresh. The count, the read of the baseline and the update are
// separate statements, not one transaction.
func (s *Store) CheckAndAdvanceEpicRetestTrigger(ctx context.Context, projectID string, frequency int) (bool, error) {
	completed, err := s.CountCompletedEpics(ctx, projectID)
	if err != nil {
		return false, err
	}

	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return false, err
	}

	if completed-project.EpicsCompletedAtLastRetestTrigger < frequency {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET epics_completed_at_last_retest_trigger = $1 WHERE id = $2`, completed, projectID)
	if err != nil {
		return false, classify(err, "advance epic retest trigger baseline")
	}
	if err := requireRowsAffected(res, "project", projectID); err != nil {
		return false, err
	}
	return true, nil
}

func requireRowsAffected(res sql.Result, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.StorageError, err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}
