package models

import "time"

// QualityRating is the coarse rating RunQuickCheck stores alongside the
// full Metrics summary (spec §4.6's "zero cost" quick check).
type QualityRating string

const (
	RatingGood    QualityRating = "good"
	RatingFair    QualityRating = "fair"
	RatingPoor    QualityRating = "poor"
)

// SessionQualityCheck is the per-session, zero-cost quality record the
// Quality Pipeline writes at the end of every session (spec §4.6).
type SessionQualityCheck struct {
	ID            int            `db:"id" json:"id"`
	SessionID     string         `db:"session_id" json:"session_id"`
	ProjectID     string         `db:"project_id" json:"project_id"`
	QualityScore  int            `db:"quality_score" json:"quality_score"`
	Rating        QualityRating  `db:"rating" json:"rating"`
	Summary       map[string]any `db:"summary" json:"summary"`
	DeepReviewDue bool           `db:"deep_review_due" json:"deep_review_due"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// RecommendationPriority ranks a DeepReview recommendation's urgency.
type RecommendationPriority string

const (
	PriorityLow      RecommendationPriority = "low"
	PriorityMedium   RecommendationPriority = "medium"
	PriorityHigh     RecommendationPriority = "high"
	PriorityCritical RecommendationPriority = "critical"
)

// Recommendation is one structured, actionable item extracted from a deep
// review's narrative report (spec §4.6).
type Recommendation struct {
	Title          string                  `json:"title"`
	Priority       RecommendationPriority  `json:"priority"`
	Theme          string                  `json:"theme"`
	Problem        string                  `json:"problem"`
	ProposedChange string                  `json:"proposed_change"`
	Confidence     float64                 `json:"confidence"`
}

// DeepReview is an out-of-band reviewing-agent assessment of one finished
// session, triggered by any of spec §4.6's eight conditions (stored as
// TriggerReasons for auditability).
type DeepReview struct {
	ID              int              `db:"id" json:"id"`
	SessionID       string           `db:"session_id" json:"session_id"`
	ProjectID       string           `db:"project_id" json:"project_id"`
	TriggerReasons  []string         `db:"trigger_reasons" json:"trigger_reasons"`
	ReportMarkdown  string           `db:"report_markdown" json:"report_markdown"`
	Recommendations []Recommendation `db:"recommendations" json:"recommendations"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
}
