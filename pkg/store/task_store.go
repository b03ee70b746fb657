package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

type taskRow struct {
	EpicID             int             `db:"epic_id"`
	ProjectID          string          `db:"project_id"`
	TaskID             int             `db:"task_id"`
	Description        string          `db:"description"`
	Action             string          `db:"action"`
	Priority           int             `db:"priority"`
	Done               bool            `db:"done"`
	StartedAt          *time.Time      `db:"started_at"`
	CompletedAt        *time.Time      `db:"completed_at"`
	Metadata           json.RawMessage `db:"metadata"`
	StartedBySessionID string          `db:"started_by_session_id"`
}

func (r taskRow) toModel() (*models.Task, error) {
	meta := map[string]any{}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &meta); err != nil {
			return nil, apperrors.Wrap(apperrors.StorageError, err, "decode task metadata")
		}
	}
	return &models.Task{
		EpicID:             r.EpicID,
		ProjectID:          r.ProjectID,
		TaskID:             r.TaskID,
		Description:        r.Description,
		Action:             r.Action,
		Priority:           r.Priority,
		Done:               r.Done,
		StartedAt:          r.StartedAt,
		CompletedAt:        r.CompletedAt,
		Metadata:           meta,
		StartedBySessionID: r.StartedBySessionID,
	}, nil
}

// CreateTask inserts a task under an epic.
func (s *Store) CreateTask(ctx context.Context, t *models.Task) error {
	metaJSON, err := json.Marshal(t.Metadata)
	if err != nil {
		return apperrors.Wrap(apperrors.Validation, err, "encode task metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (project_id, epic_id, task_id, description, action, priority, done, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ProjectID, t.EpicID, t.TaskID, t.Description, t.Action, t.Priority, t.Done, metaJSON)
	if err != nil {
		return classify(err, "create task")
	}
	return nil
}

// GetTask fetches a task by its per-project ID.
func (s *Store) GetTask(ctx context.Context, projectID string, taskID int) (*models.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM tasks WHERE project_id = $1 AND task_id = $2`, projectID, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("task", taskID)
	}
	if err != nil {
		return nil, classify(err, "get task")
	}
	return row.toModel()
}

// ListTasksForEpic returns every task under an epic, in priority order.
func (s *Store) ListTasksForEpic(ctx context.Context, projectID string, epicID int) ([]*models.Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM tasks WHERE project_id = $1 AND epic_id = $2 ORDER BY priority`, projectID, epicID)
	if err != nil {
		return nil, classify(err, "list tasks for epic")
	}
	return taskRowsToModels(rows)
}

func taskRowsToModels(rows []taskRow) ([]*models.Task, error) {
	out := make([]*models.Task, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// NextTask returns the lowest (epic.priority, task.priority) task with
// done=false among epics that are pending or in_progress, spec §4.1's
// next_task. It returns nil, nil when no task is eligible.
func (s *Store) NextTask(ctx context.Context, projectID string) (*models.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `
		SELECT t.* FROM tasks t
		JOIN epics e ON e.project_id = t.project_id AND e.epic_id = t.epic_id
		WHERE t.project_id = $1 AND t.done = FALSE AND e.status IN ('pending', 'in_progress')
		ORDER BY e.priority, t.priority
		LIMIT 1`, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "next task")
	}
	return row.toModel()
}

// StartTask marks a task as claimed by a session, recording the start
// timestamp and the claiming session so a second session cannot start the
// same task concurrently (spec §4.3).
func (s *Store) StartTask(ctx context.Context, projectID string, taskID int, sessionID string) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET started_at = $1, started_by_session_id = $2
		WHERE project_id = $3 AND task_id = $4 AND started_at IS NULL`,
		now, sessionID, projectID, taskID)
	if err != nil {
		return classify(err, "start task")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.StorageError, err, "rows affected")
	}
	if n == 0 {
		return apperrors.New(apperrors.Conflict, "task %d already started", taskID)
	}
	return nil
}

// TaskUpdate carries the mutable fields of update_task (spec §4.1).
type TaskUpdate struct {
	Done        *bool
	CompletedAt *time.Time
	Metadata    map[string]any
}

// UpdateTask applies a partial update to a task's mutable fields.
func (s *Store) UpdateTask(ctx context.Context, projectID string, taskID int, upd TaskUpdate) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if upd.Done != nil {
			completedAt := upd.CompletedAt
			if *upd.Done && completedAt == nil {
				now := time.Now()
				completedAt = &now
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE tasks SET done = $1, completed_at = $2
				WHERE project_id = $3 AND task_id = $4`, *upd.Done, completedAt, projectID, taskID); err != nil {
				return classify(err, "update task done")
			}
		}
		if upd.Metadata != nil {
			metaJSON, err := json.Marshal(upd.Metadata)
			if err != nil {
				return apperrors.Wrap(apperrors.Validation, err, "encode task metadata")
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE tasks SET metadata = $1 WHERE project_id = $2 AND task_id = $3`,
				metaJSON, projectID, taskID); err != nil {
				return classify(err, "update task metadata")
			}
		}
		return nil
	})
}

// CountUnresolvedTasksForEpic reports how many tasks in an epic are not
// yet done, used to decide whether an epic can transition to completed.
func (s *Store) CountUnresolvedTasksForEpic(ctx context.Context, projectID string, epicID int) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT count(*) FROM tasks WHERE project_id = $1 AND epic_id = $2 AND NOT done`, projectID, epicID)
	if err != nil {
		return 0, classify(err, "count unresolved tasks")
	}
	return count, nil
}
