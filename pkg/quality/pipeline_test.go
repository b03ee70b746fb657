package quality

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/innerline/yokeflow2-sub000/pkg/metrics"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
	"github.com/innerline/yokeflow2-sub000/pkg/store"
)

func newMockQualityStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.NewFromSQLX(sqlx.NewDb(db, "pgx")), mock
}

func TestEvaluateDeepReviewTriggers_LowScoreFires(t *testing.T) {
	p := New(nil, nil)
	reasons := p.EvaluateDeepReviewTriggers(&metrics.Summary{QualityScore: 6, TotalToolCalls: 10}, false)
	if !contains(reasons, "quality_score_below_7") {
		t.Fatalf("expected quality_score_below_7 in %v", reasons)
	}
}

func TestEvaluateDeepReviewTriggers_HighErrorRateFires(t *testing.T) {
	p := New(nil, nil)
	reasons := p.EvaluateDeepReviewTriggers(&metrics.Summary{QualityScore: 10, ErrorRate: 0.15}, false)
	if !contains(reasons, "error_rate_above_10pct") {
		t.Fatalf("expected error_rate_above_10pct in %v", reasons)
	}
}

func TestEvaluateDeepReviewTriggers_ScoreErrorCountInconsistency(t *testing.T) {
	p := New(nil, nil)
	reasons := p.EvaluateDeepReviewTriggers(&metrics.Summary{QualityScore: 9, TotalErrors: 25}, false)
	if !contains(reasons, "score_error_count_inconsistency") {
		t.Fatalf("expected score_error_count_inconsistency in %v", reasons)
	}
}

func TestEvaluateDeepReviewTriggers_FinalSessionAlwaysFires(t *testing.T) {
	p := New(nil, nil)
	reasons := p.EvaluateDeepReviewTriggers(&metrics.Summary{QualityScore: 10}, true)
	if !contains(reasons, "final_session_of_project") {
		t.Fatalf("expected final_session_of_project in %v", reasons)
	}
}

func TestEvaluateDeepReviewTriggers_CleanSessionFiresNothing(t *testing.T) {
	p := New(nil, nil)
	reasons := p.EvaluateDeepReviewTriggers(&metrics.Summary{QualityScore: 10, ErrorRate: 0}, false)
	if len(reasons) != 0 {
		t.Fatalf("expected no triggers, got %v", reasons)
	}
}

func TestEvaluateDeepReviewTriggers_VerificationRateBelowThreshold(t *testing.T) {
	p := New(nil, nil)
	s := &metrics.Summary{
		QualityScore:      10,
		VerifiedTaskCount: 4,
		VerificationMismatches: []metrics.VerificationMismatch{
			{TaskID: 1}, {TaskID: 2}, {TaskID: 3},
		},
	}
	reasons := p.EvaluateDeepReviewTriggers(s, false)
	if !contains(reasons, "verification_rate_below_50pct") {
		t.Fatalf("expected verification_rate_below_50pct in %v", reasons)
	}
}

func TestRunQuickCheck_StoresRecordAndReportsTriggers(t *testing.T) {
	db, mock := newMockQualityStore(t)
	p := New(db, nil)

	mock.ExpectQuery("INSERT INTO session_quality_checks").
		WithArgs("sess-1", "proj-1", 5, string(models.RatingFair), sqlmock.AnyArg(), true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	summary := &metrics.Summary{QualityScore: 5, ErrorRate: 0.01}
	check, reasons, err := p.RunQuickCheck(context.Background(), "proj-1", "sess-1", summary, false)
	if err != nil {
		t.Fatalf("RunQuickCheck: %v", err)
	}
	if check.ID != 1 || check.Rating != models.RatingFair {
		t.Fatalf("unexpected check: %+v", check)
	}
	if !contains(reasons, "quality_score_below_7") {
		t.Fatalf("expected quality_score_below_7 in %v", reasons)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type fakeReviewer struct {
	report string
	recs   []models.Recommendation
}

func (f fakeReviewer) RequestReview(ctx context.Context, projectID, sessionID string, summary *metrics.Summary, reasons []string) (string, []models.Recommendation, error) {
	return f.report, f.recs, nil
}

func TestRequestDeepReview_StoresReviewerOutput(t *testing.T) {
	db, mock := newMockQualityStore(t)
	reviewer := fakeReviewer{
		report: "## findings\nsomething went wrong",
		recs: []models.Recommendation{
			{Title: "tighten retry budget", Priority: models.PriorityHigh, Theme: "reliability", Confidence: 0.8},
		},
	}
	p := New(db, reviewer)

	mock.ExpectQuery("INSERT INTO deep_reviews").
		WithArgs("sess-1", "proj-1", sqlmock.AnyArg(), reviewer.report, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	review, err := p.RequestDeepReview(context.Background(), "proj-1", "sess-1", &metrics.Summary{}, []string{"quality_score_below_7"})
	if err != nil {
		t.Fatalf("RequestDeepReview: %v", err)
	}
	if review.ID != 7 || len(review.Recommendations) != 1 {
		t.Fatalf("unexpected review: %+v", review)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func contains(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}
