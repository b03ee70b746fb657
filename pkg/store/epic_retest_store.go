package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

// CreateEpicRetest schedules a retest for a previously completed epic
// (spec §4.6).
func (s *Store) CreateEpicRetest(ctx context.Context, r *models.EpicRetest) (*models.EpicRetest, error) {
	err := s.db.GetContext(ctx, &r.ID, `
		INSERT INTO epic_retests (epic_id, project_id, trigger_reason, tier)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		r.EpicID, r.ProjectID, r.TriggerReason, r.Tier)
	if err != nil {
		return nil, classify(err, "create epic retest")
	}
	return r, nil
}

// RecordEpicRetestOutcome stores the result of a completed retest.
func (s *Store) RecordEpicRetestOutcome(ctx context.Context, id int, passed bool, failedCount, totalCount int, regression bool, stability *float64) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE epic_retests
		SET tested_at = $1, passed = $2, failed_test_count = $3, total_test_count = $4,
		    regression_detected = $5, stability_score = $6
		WHERE id = $7`, now, passed, failedCount, totalCount, regression, stability, id)
	if err != nil {
		return classify(err, "record epic retest outcome")
	}
	return requireRowsAffected(res, "epic retest", id)
}

// RecentEpicRetests returns the most recent retests for an epic, newest
// first, bounded by limit — the window EMA stability scoring (spec §4.6)
// is computed over.
func (s *Store) RecentEpicRetests(ctx context.Context, projectID string, epicID, limit int) ([]*models.EpicRetest, error) {
	var retests []*models.EpicRetest
	err := s.db.SelectContext(ctx, &retests, `
		SELECT * FROM epic_retests
		WHERE project_id = $1 AND epic_id = $2 AND tested_at IS NOT NULL
		ORDER BY selected_at DESC LIMIT $3`, projectID, epicID, limit)
	if err != nil {
		return nil, classify(err, "recent epic retests")
	}
	return retests, nil
}

// LatestPendingRetest returns the most recently scheduled, not-yet-tested
// retest for an epic, the row record_epic_retest_result resolves against
// when the Agent Runner reports back with only an epic_id (spec §4.3).
func (s *Store) LatestPendingRetest(ctx context.Context, projectID string, epicID int) (*models.EpicRetest, error) {
	var r models.EpicRetest
	err := s.db.GetContext(ctx, &r, `
		SELECT * FROM epic_retests
		WHERE project_id = $1 AND epic_id = $2 AND tested_at IS NULL
		ORDER BY selected_at DESC LIMIT 1`, projectID, epicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("pending epic retest", epicID)
	}
	if err != nil {
		return nil, classify(err, "latest pending epic retest")
	}
	return &r, nil
}

// LastRetestTime returns the selected_at of the most recent retest for an
// epic, used by foundation_stale scheduling (spec §4.6).
func (s *Store) LastRetestTime(ctx context.Context, projectID string, epicID int) (*time.Time, error) {
	var t time.Time
	err := s.db.GetContext(ctx, &t, `
		SELECT selected_at FROM epic_retests
		WHERE project_id = $1 AND epic_id = $2
		ORDER BY selected_at DESC LIMIT 1`, projectID, epicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "last retest time")
	}
	return &t, nil
}
