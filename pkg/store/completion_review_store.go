package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

type completionReviewRow struct {
	ID                 int             `db:"id"`
	ProjectID          string          `db:"project_id"`
	OverallScore       int             `db:"overall_score"`
	CoveragePercentage float64         `db:"coverage_percentage"`
	Recommendation     string          `db:"recommendation"`
	Requirements       json.RawMessage `db:"requirements"`
	CreatedAt          sql.NullTime    `db:"created_at"`
}

func (r completionReviewRow) toModel() (*models.CompletionReview, error) {
	var reqs []models.RequirementCoverage
	if len(r.Requirements) > 0 {
		if err := json.Unmarshal(r.Requirements, &reqs); err != nil {
			return nil, apperrors.Wrap(apperrors.StorageError, err, "decode requirement coverage")
		}
	}
	return &models.CompletionReview{
		ID:                 r.ID,
		ProjectID:          r.ProjectID,
		OverallScore:       r.OverallScore,
		CoveragePercentage: r.CoveragePercentage,
		Recommendation:     models.CompletionRecommendation(r.Recommendation),
		Requirements:       reqs,
		CreatedAt:          r.CreatedAt.Time,
	}, nil
}

// CreateCompletionReview records a completion review for a project (spec §4.6).
func (s *Store) CreateCompletionReview(ctx context.Context, rev *models.CompletionReview) (*models.CompletionReview, error) {
	reqsJSON, err := json.Marshal(rev.Requirements)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Validation, err, "encode requirement coverage")
	}
	err = s.db.GetContext(ctx, &rev.ID, `
		INSERT INTO completion_reviews (project_id, overall_score, coverage_percentage, recommendation, requirements)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		rev.ProjectID, rev.OverallScore, rev.CoveragePercentage, rev.Recommendation, reqsJSON)
	if err != nil {
		return nil, classify(err, "create completion review")
	}
	return rev, nil
}

// LatestCompletionReview returns the most recent review for a project.
func (s *Store) LatestCompletionReview(ctx context.Context, projectID string) (*models.CompletionReview, error) {
	var row completionReviewRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM completion_reviews WHERE project_id = $1 ORDER BY created_at DESC LIMIT 1`, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("completion review for project", projectID)
	}
	if err != nil {
		return nil, classify(err, "latest completion review")
	}
	return row.toModel()
}
