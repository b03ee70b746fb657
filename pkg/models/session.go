package models

import "time"

// SessionType is the kind of agent run a Session represents (spec §3).
type SessionType string

const (
	SessionTypeInitializer SessionType = "initializer"
	SessionTypeCoding      SessionType = "coding"
	SessionTypeReview      SessionType = "review"
	SessionTypeRetest      SessionType = "retest"
)

// SessionStatus is the lifecycle state of a Session (spec §3).
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusError     SessionStatus = "error"
	SessionStatusBlocked   SessionStatus = "blocked"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether the status represents a session that will
// never run again (used by Store.UpdateSessionStatus to decide when to
// stamp ended_at).
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusError, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// Session is one execution of an agent against a project (spec §3).
type Session struct {
	ID              string         `db:"id" json:"id"`
	ProjectID       string         `db:"project_id" json:"project_id"`
	SessionNumber   int            `db:"session_number" json:"session_number"`
	Type            SessionType    `db:"type" json:"type"`
	Status          SessionStatus  `db:"status" json:"status"`
	Model           string         `db:"model" json:"model"`
	StartedAt       time.Time      `db:"started_at" json:"started_at"`
	EndedAt         *time.Time     `db:"ended_at" json:"ended_at,omitempty"`
	Metrics         map[string]any `db:"metrics" json:"metrics,omitempty"`
	Checkpoint      []byte         `db:"checkpoint" json:"-"`
	ParentSessionID string         `db:"parent_session_id" json:"parent_session_id,omitempty"`
	PodID           string         `db:"pod_id" json:"pod_id"`
}

// Resumable reports whether this session has a checkpoint it can be
// resumed from (spec §3 invariant: checkpoint non-null => resumable).
func (s *Session) Resumable() bool {
	return len(s.Checkpoint) > 0
}

// PausedSession is an intervention record keyed to a session (spec §3).
type PausedSession struct {
	SessionID       string         `db:"session_id" json:"session_id"`
	PauseReason     string         `db:"pause_reason" json:"pause_reason"`
	PauseType       PauseType      `db:"pause_type" json:"pause_type"`
	BlockerInfo     map[string]any `db:"blocker_info" json:"blocker_info,omitempty"`
	RetryStats      map[string]any `db:"retry_stats" json:"retry_stats,omitempty"`
	Resolved        bool           `db:"resolved" json:"resolved"`
	ResolvedAt      *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolutionNotes string         `db:"resolution_notes" json:"resolution_notes,omitempty"`
	ResolvedBy      string         `db:"resolved_by" json:"resolved_by,omitempty"`
	CanAutoResume   bool           `db:"can_auto_resume" json:"can_auto_resume"`
}

// PauseType classifies why a session was paused (spec §3/§4.5).
type PauseType string

const (
	PauseTypeRetryLimit       PauseType = "retry_limit"
	PauseTypeCriticalError    PauseType = "critical_error"
	PauseTypeQualityViolation PauseType = "quality_violation"
	PauseTypeManual           PauseType = "manual"
)

// CheckpointType classifies why a Checkpoint was captured (spec §3).
type CheckpointType string

const (
	CheckpointTaskCompletion CheckpointType = "task_completion"
	CheckpointPeriodic       CheckpointType = "periodic"
	CheckpointPreBlocker     CheckpointType = "pre_blocker"
)

// Checkpoint is serialized state captured periodically during a session to
// allow resume (spec §3).
type Checkpoint struct {
	ID                  int            `db:"id" json:"id"`
	SessionID           string         `db:"session_id" json:"session_id"`
	CheckpointType      CheckpointType `db:"checkpoint_type" json:"checkpoint_type"`
	ConversationHistory []byte         `db:"conversation_history" json:"-"`
	LastTaskID          *int           `db:"last_task_id" json:"last_task_id,omitempty"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
}
