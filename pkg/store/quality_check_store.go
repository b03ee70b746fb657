package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

type sessionQualityCheckRow struct {
	ID            int             `db:"id"`
	SessionID     string          `db:"session_id"`
	ProjectID     string          `db:"project_id"`
	QualityScore  int             `db:"quality_score"`
	Rating        string          `db:"rating"`
	Summary       json.RawMessage `db:"summary"`
	DeepReviewDue bool            `db:"deep_review_due"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (r sessionQualityCheckRow) toModel() (*models.SessionQualityCheck, error) {
	summary := map[string]any{}
	if len(r.Summary) > 0 {
		if err := json.Unmarshal(r.Summary, &summary); err != nil {
			return nil, apperrors.Wrap(apperrors.StorageError, err, "decode quality check summary")
		}
	}
	return &models.SessionQualityCheck{
		ID:            r.ID,
		SessionID:     r.SessionID,
		ProjectID:     r.ProjectID,
		QualityScore:  r.QualityScore,
		Rating:        models.QualityRating(r.Rating),
		Summary:       summary,
		DeepReviewDue: r.DeepReviewDue,
		CreatedAt:     r.CreatedAt,
	}, nil
}

// CreateSessionQualityCheck records spec §4.6's zero-cost quick check for
// a just-finished session.
func (s *Store) CreateSessionQualityCheck(ctx context.Context, c *models.SessionQualityCheck) (*models.SessionQualityCheck, error) {
	summaryJSON, err := json.Marshal(c.Summary)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Validation, err, "encode quality check summary")
	}
	err = s.db.GetContext(ctx, &c.ID, `
		INSERT INTO session_quality_checks (session_id, project_id, quality_score, rating, summary, deep_review_due)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		c.SessionID, c.ProjectID, c.QualityScore, c.Rating, summaryJSON, c.DeepReviewDue)
	if err != nil {
		return nil, classify(err, "create session quality check")
	}
	return c, nil
}

// RecentSessionQualityChecks returns a project's most recent quick checks,
// newest first, bounded by limit.
func (s *Store) RecentSessionQualityChecks(ctx context.Context, projectID string, limit int) ([]*models.SessionQualityCheck, error) {
	var rows []sessionQualityCheckRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM session_quality_checks WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`,
		projectID, limit)
	if err != nil {
		return nil, classify(err, "recent session quality checks")
	}
	out := make([]*models.SessionQualityCheck, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
