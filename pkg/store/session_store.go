package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

type sessionRow struct {
	ID              string          `db:"id"`
	ProjectID       string          `db:"project_id"`
	SessionNumber   int             `db:"session_number"`
	Type            string          `db:"type"`
	Status          string          `db:"status"`
	Model           string          `db:"model"`
	StartedAt       time.Time       `db:"started_at"`
	EndedAt         *time.Time      `db:"ended_at"`
	Metrics         json.RawMessage `db:"metrics"`
	Checkpoint      []byte          `db:"checkpoint"`
	ParentSessionID sql.NullString  `db:"parent_session_id"`
	PodID           string          `db:"pod_id"`
}

func (r sessionRow) toModel() (*models.Session, error) {
	metrics := map[string]any{}
	if len(r.Metrics) > 0 {
		if err := json.Unmarshal(r.Metrics, &metrics); err != nil {
			return nil, apperrors.Wrap(apperrors.StorageError, err, "decode session metrics")
		}
	}
	return &models.Session{
		ID:              r.ID,
		ProjectID:       r.ProjectID,
		SessionNumber:   r.SessionNumber,
		Type:            models.SessionType(r.Type),
		Status:          models.SessionStatus(r.Status),
		Model:           r.Model,
		StartedAt:       r.StartedAt,
		EndedAt:         r.EndedAt,
		Metrics:         metrics,
		Checkpoint:      r.Checkpoint,
		ParentSessionID: r.ParentSessionID.String,
		PodID:           r.PodID,
	}, nil
}

// CreateSession inserts a new session, assigning the next session_number
// for the project. The caller must hold the project lock (acquire_project_lock,
// spec §4.1) so two sessions for the same project are never created
// concurrently.
func (s *Store) CreateSession(ctx context.Context, projectID string, sessionType models.SessionType, model string, parentSessionID string) (*models.Session, error) {
	var session *models.Session
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var nextNumber int
		if err := tx.GetContext(ctx, &nextNumber, `
			SELECT COALESCE(max(session_number), 0) + 1 FROM sessions WHERE project_id = $1`, projectID); err != nil {
			return classify(err, "next session number")
		}

		var parent sql.NullString
		if parentSessionID != "" {
			parent = sql.NullString{String: parentSessionID, Valid: true}
		}

		session = &models.Session{
			ID:              uuid.New().String(),
			ProjectID:       projectID,
			SessionNumber:   nextNumber,
			Type:            sessionType,
			Status:          models.SessionStatusRunning,
			Model:           model,
			StartedAt:       time.Now(),
			ParentSessionID: parentSessionID,
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, project_id, session_number, type, status, model, started_at, parent_session_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			session.ID, session.ProjectID, session.SessionNumber, session.Type, session.Status,
			session.Model, session.StartedAt, parent)
		if err != nil {
			return classify(err, "create session")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession fetches a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("session", id)
	}
	if err != nil {
		return nil, classify(err, "get session")
	}
	return row.toModel()
}

// ActiveSessionForProject returns the currently running/paused session for
// a project, if any. Used to enforce that only one session is ever active
// per project.
func (s *Store) ActiveSessionForProject(ctx context.Context, projectID string) (*models.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM sessions
		WHERE project_id = $1 AND status IN ('running', 'paused', 'blocked')
		ORDER BY session_number DESC LIMIT 1`, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "active session for project")
	}
	return row.toModel()
}

// UpdateSessionStatus transitions a session's status, stamping ended_at
// when the new status is terminal.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) error {
	var endedAt *time.Time
	if status.IsTerminal() {
		now := time.Now()
		endedAt = &now
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = $1, ended_at = COALESCE($2, ended_at) WHERE id = $3`,
		status, endedAt, id)
	if err != nil {
		return classify(err, "update session status")
	}
	return requireRowsAffected(res, "session", id)
}

// UpdateSessionMetrics persists the Metrics Collector's latest Summary for
// a session (spec §4.4).
func (s *Store) UpdateSessionMetrics(ctx context.Context, id string, metrics map[string]any) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return apperrors.Wrap(apperrors.Validation, err, "encode session metrics")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET metrics = $1 WHERE id = $2`, metricsJSON, id)
	if err != nil {
		return classify(err, "update session metrics")
	}
	return requireRowsAffected(res, "session", id)
}

// SaveSessionCheckpoint persists the session's latest checkpoint blob
// inline on the session row, for fast resume without a join, in addition
// to the append-only Checkpoint history (checkpoint_store.go).
func (s *Store) SaveSessionCheckpoint(ctx context.Context, id string, checkpoint []byte) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET checkpoint = $1 WHERE id = $2`, checkpoint, id)
	if err != nil {
		return classify(err, "save session checkpoint")
	}
	return requireRowsAffected(res, "session", id)
}

// SetSessionPodID records the sandbox identifier a session is bound to.
func (s *Store) SetSessionPodID(ctx context.Context, id, podID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET pod_id = $1 WHERE id = $2`, podID, id)
	if err != nil {
		return classify(err, "set session pod id")
	}
	return requireRowsAffected(res, "session", id)
}

// HasCompletedSessionOfType reports whether a project already has a
// session of the given type that finished with status completed. Used to
// enforce spec's single-initializer-per-project rule.
func (s *Store) HasCompletedSessionOfType(ctx context.Context, projectID string, sessionType models.SessionType) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT count(*) FROM sessions
		WHERE project_id = $1 AND type = $2 AND status = $3`,
		projectID, sessionType, models.SessionStatusCompleted)
	if err != nil {
		return false, classify(err, "has completed session of type")
	}
	return count > 0, nil
}

// ListSessionsForProject returns every session for a project, most recent first.
func (s *Store) ListSessionsForProject(ctx context.Context, projectID string) ([]*models.Session, error) {
	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM sessions WHERE project_id = $1 ORDER BY session_number DESC`, projectID)
	if err != nil {
		return nil, classify(err, "list sessions for project")
	}
	out := make([]*models.Session, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
