package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

type progressNoteRow struct {
	ID        int            `db:"id"`
	ProjectID string         `db:"project_id"`
	SessionID sql.NullString `db:"session_id"`
	EntryType string         `db:"entry_type"`
	Content   string         `db:"content"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r progressNoteRow) toModel() *models.ProgressNote {
	return &models.ProgressNote{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		SessionID: r.SessionID.String,
		EntryType: models.NoteEntryType(r.EntryType),
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}
}

// AppendProgressNote records one entry in a project's running log (spec
// §4.5's "Append a structured BLOCKER entry to the project's progress
// note"). sessionID may be empty when the entry isn't tied to a session.
func (s *Store) AppendProgressNote(ctx context.Context, projectID string, entryType models.NoteEntryType, content, sessionID string) error {
	var sid any
	if sessionID != "" {
		sid = sessionID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress_notes (project_id, session_id, entry_type, content)
		VALUES ($1, $2, $3, $4)`,
		projectID, sid, entryType, content)
	if err != nil {
		return classify(err, "append progress note")
	}
	return nil
}

// ListProgressNotes returns every entry for a project, oldest first, so a
// resuming session can read what prior sessions hit.
func (s *Store) ListProgressNotes(ctx context.Context, projectID string) ([]*models.ProgressNote, error) {
	var rows []progressNoteRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM progress_notes WHERE project_id = $1 ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, classify(err, "list progress notes")
	}
	out := make([]*models.ProgressNote, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}
