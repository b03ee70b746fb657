package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

type deepReviewRow struct {
	ID              int             `db:"id"`
	SessionID       string          `db:"session_id"`
	ProjectID       string          `db:"project_id"`
	TriggerReasons  json.RawMessage `db:"trigger_reasons"`
	ReportMarkdown  string          `db:"report_markdown"`
	Recommendations json.RawMessage `db:"recommendations"`
	CreatedAt       time.Time       `db:"created_at"`
}

func (r deepReviewRow) toModel() (*models.DeepReview, error) {
	var reasons []string
	if len(r.TriggerReasons) > 0 {
		if err := json.Unmarshal(r.TriggerReasons, &reasons); err != nil {
			return nil, apperrors.Wrap(apperrors.StorageError, err, "decode deep review trigger reasons")
		}
	}
	var recs []models.Recommendation
	if len(r.Recommendations) > 0 {
		if err := json.Unmarshal(r.Recommendations, &recs); err != nil {
			return nil, apperrors.Wrap(apperrors.StorageError, err, "decode deep review recommendations")
		}
	}
	return &models.DeepReview{
		ID:              r.ID,
		SessionID:       r.SessionID,
		ProjectID:       r.ProjectID,
		TriggerReasons:  reasons,
		ReportMarkdown:  r.ReportMarkdown,
		Recommendations: recs,
		CreatedAt:       r.CreatedAt,
	}, nil
}

// CreateDeepReview records a completed out-of-band deep review (spec §4.6).
func (s *Store) CreateDeepReview(ctx context.Context, d *models.DeepReview) (*models.DeepReview, error) {
	reasonsJSON, err := json.Marshal(d.TriggerReasons)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Validation, err, "encode deep review trigger reasons")
	}
	recsJSON, err := json.Marshal(d.Recommendations)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Validation, err, "encode deep review recommendations")
	}
	err = s.db.GetContext(ctx, &d.ID, `
		INSERT INTO deep_reviews (session_id, project_id, trigger_reasons, report_markdown, recommendations)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		d.SessionID, d.ProjectID, reasonsJSON, d.ReportMarkdown, recsJSON)
	if err != nil {
		return nil, classify(err, "create deep review")
	}
	return d, nil
}

// ListDeepReviews returns a project's deep reviews, newest first.
func (s *Store) ListDeepReviews(ctx context.Context, projectID string) ([]*models.DeepReview, error) {
	var rows []deepReviewRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM deep_reviews WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, classify(err, "list deep reviews")
	}
	out := make([]*models.DeepReview, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
