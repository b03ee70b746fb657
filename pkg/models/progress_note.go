package models

import "time"

// NoteEntryType classifies a ProgressNote entry (spec §4.5's "structured
// BLOCKER entry").
type NoteEntryType string

const (
	NoteEntryBlocker NoteEntryType = "BLOCKER"
	NoteEntryInfo    NoteEntryType = "INFO"
)

// ProgressNote is one append-only entry in a project's running log, read
// back by a resuming session so it knows what a prior session hit (spec
// §4.5, §4.7 resume semantics).
type ProgressNote struct {
	ID        int           `db:"id" json:"id"`
	ProjectID string        `db:"project_id" json:"project_id"`
	SessionID string        `db:"session_id" json:"session_id,omitempty"`
	EntryType NoteEntryType `db:"entry_type" json:"entry_type"`
	Content   string        `db:"content" json:"content"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}
