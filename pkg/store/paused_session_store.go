package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

type pausedSessionRow struct {
	SessionID       string          `db:"session_id"`
	PauseReason     string          `db:"pause_reason"`
	PauseType       string          `db:"pause_type"`
	BlockerInfo     json.RawMessage `db:"blocker_info"`
	RetryStats      json.RawMessage `db:"retry_stats"`
	Resolved        bool            `db:"resolved"`
	ResolvedAt      *time.Time      `db:"resolved_at"`
	ResolutionNotes string          `db:"resolution_notes"`
	ResolvedBy      string          `db:"resolved_by"`
	CanAutoResume   bool            `db:"can_auto_resume"`
}

func (r pausedSessionRow) toModel() (*models.PausedSession, error) {
	blocker := map[string]any{}
	if len(r.BlockerInfo) > 0 {
		if err := json.Unmarshal(r.BlockerInfo, &blocker); err != nil {
			return nil, apperrors.Wrap(apperrors.StorageError, err, "decode blocker info")
		}
	}
	retry := map[string]any{}
	if len(r.RetryStats) > 0 {
		if err := json.Unmarshal(r.RetryStats, &retry); err != nil {
			return nil, apperrors.Wrap(apperrors.StorageError, err, "decode retry stats")
		}
	}
	return &models.PausedSession{
		SessionID:       r.SessionID,
		PauseReason:     r.PauseReason,
		PauseType:       models.PauseType(r.PauseType),
		BlockerInfo:     blocker,
		RetryStats:      retry,
		Resolved:        r.Resolved,
		ResolvedAt:      r.ResolvedAt,
		ResolutionNotes: r.ResolutionNotes,
		ResolvedBy:      r.ResolvedBy,
		CanAutoResume:   r.CanAutoResume,
	}, nil
}

// CreatePausedSession records why a session was paused (spec §4.5).
func (s *Store) CreatePausedSession(ctx context.Context, p *models.PausedSession) error {
	blockerJSON, err := json.Marshal(p.BlockerInfo)
	if err != nil {
		return apperrors.Wrap(apperrors.Validation, err, "encode blocker info")
	}
	retryJSON, err := json.Marshal(p.RetryStats)
	if err != nil {
		return apperrors.Wrap(apperrors.Validation, err, "encode retry stats")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO paused_sessions (session_id, pause_reason, pause_type, blocker_info, retry_stats, can_auto_resume)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.SessionID, p.PauseReason, p.PauseType, blockerJSON, retryJSON, p.CanAutoResume)
	if err != nil {
		return classify(err, "create paused session")
	}
	return nil
}

// GetPausedSession fetches the pause record for a session.
func (s *Store) GetPausedSession(ctx context.Context, sessionID string) (*models.PausedSession, error) {
	var row pausedSessionRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM paused_sessions WHERE session_id = $1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("paused session", sessionID)
	}
	if err != nil {
		return nil, classify(err, "get paused session")
	}
	return row.toModel()
}

// ListUnresolvedPausedSessions returns every pause record awaiting
// operator resolution, across all projects (spec §6's ListInterventions).
func (s *Store) ListUnresolvedPausedSessions(ctx context.Context) ([]*models.PausedSession, error) {
	var rows []pausedSessionRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM paused_sessions WHERE NOT resolved`)
	if err != nil {
		return nil, classify(err, "list unresolved paused sessions")
	}
	out := make([]*models.PausedSession, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// SetPausedSessionAutoResumable records that a privileged auto-recovery
// action fixed the underlying blocker (spec §4.5's "Auto-recovery"),
// without marking the pause resolved — resolution still happens when the
// session is actually resumed.
func (s *Store) SetPausedSessionAutoResumable(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE paused_sessions SET can_auto_resume = TRUE WHERE session_id = $1`, sessionID)
	if err != nil {
		return classify(err, "set paused session auto-resumable")
	}
	return requireRowsAffected(res, "paused session", sessionID)
}

// ResolvePausedSession marks a pause as resolved, recording who resolved
// it and any operator notes. Auto-recovery does not call it (see
// SetPausedSessionAutoResumable).
func (s *Store) ResolvePausedSession(ctx context.Context, sessionID, resolvedBy, notes string) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE paused_sessions
		SET resolved = TRUE, resolved_at = $1, resolved_by = $2, resolution_notes = $3
		WHERE session_id = $4`, now, resolvedBy, notes, sessionID)
	if err != nil {
		return classify(err, "resolve paused session")
	}
	return requireRowsAffected(res, "paused session", sessionID)
}
