// Package quality implements the Quality Pipeline (spec §4.6, component
// C6): a zero-cost quick check written at the end of every session, an
// eight-condition trigger for an out-of-band deep review, and periodic
// epic re-test scheduling between sessions. Grounded on TARSy's
// scoring/synthesis agent pattern (pkg/agent/controller/scoring.go,
// synthesis.go) for the out-of-band reviewing-agent request, and on
// pkg/cleanup/service.go for the ticker-driven periodic-task shape.
package quality

import (
	"context"
	"encoding/json"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/metrics"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
	"github.com/innerline/yokeflow2-sub000/pkg/store"
)

// ReviewRequester abstracts the out-of-band call to a reviewing agent, the
// same inversion TARSy's synthesis agent pattern uses for a turn that goes
// outside the normal session flow. The real implementation (wired by the
// Orchestrator) spawns a one-shot Agent Runner invocation with a review
// prompt; tests supply a stub.
type ReviewRequester interface {
	RequestReview(ctx context.Context, projectID, sessionID string, summary *metrics.Summary, reasons []string) (reportMarkdown string, recommendations []models.Recommendation, err error)
}

// Pipeline runs spec §4.6's quick check, deep-review trigger evaluation,
// and epic-retest scheduling. One Pipeline serves every project/session —
// unlike Metrics' Collector or Intervention's Engine, it has no per-session
// live state; every method is a short-lived, stateless operation over the
// store.
type Pipeline struct {
	store    *store.Store
	reviewer ReviewRequester
}

// New constructs a Pipeline. reviewer may be nil if the caller never
// invokes RequestDeepReview (e.g. tests that only exercise the quick check
// or the trigger evaluation).
func New(st *store.Store, reviewer ReviewRequester) *Pipeline {
	return &Pipeline{store: st, reviewer: reviewer}
}

// RunQuickCheck implements spec §4.6's "quick check (every session, zero
// cost)": stores a SessionQualityCheck record with the Metrics summary and
// a coarse rating, and records whether a deep review is due so the caller
// can decide whether to invoke RequestDeepReview.
func (p *Pipeline) RunQuickCheck(ctx context.Context, projectID, sessionID string, summary *metrics.Summary, isFinalSessionOfProject bool) (*models.SessionQualityCheck, []string, error) {
	reasons := p.EvaluateDeepReviewTriggers(summary, isFinalSessionOfProject)

	summaryMap, err := summaryToMap(summary)
	if err != nil {
		return nil, nil, err
	}

	check := &models.SessionQualityCheck{
		SessionID:     sessionID,
		ProjectID:     projectID,
		QualityScore:  summary.QualityScore,
		Rating:        ratingFor(summary.QualityScore),
		Summary:       summaryMap,
		DeepReviewDue: len(reasons) > 0,
	}
	created, err := p.store.CreateSessionQualityCheck(ctx, check)
	if err != nil {
		return nil, nil, err
	}
	return created, reasons, nil
}

// ratingFor buckets a quality_score into the coarse rating the quick
// check record carries alongside the full numeric score.
func ratingFor(score int) models.QualityRating {
	switch {
	case score >= 8:
		return models.RatingGood
	case score >= 5:
		return models.RatingFair
	default:
		return models.RatingPoor
	}
}

// EvaluateDeepReviewTriggers implements spec §4.6's eight deep-review
// trigger conditions and returns the subset that fired (empty if none
// did). Periodic 5-session-interval triggers are explicitly not one of
// them, per spec's own callout that they are NOT used.
func (p *Pipeline) EvaluateDeepReviewTriggers(s *metrics.Summary, isFinalSessionOfProject bool) []string {
	var reasons []string

	if s.QualityScore < 7 {
		reasons = append(reasons, "quality_score_below_7")
	}
	if s.ErrorRate > 0.10 {
		reasons = append(reasons, "error_rate_above_10pct")
	}
	if s.TotalErrors >= 30 {
		reasons = append(reasons, "error_count_at_least_30")
	}
	if s.QualityScore >= 8 && s.TotalErrors >= 20 {
		reasons = append(reasons, "score_error_count_inconsistency")
	}
	if totalAdherenceViolations(s) >= 5 {
		reasons = append(reasons, "adherence_violations_at_least_5")
	}
	if s.VerificationRate() < 0.50 {
		reasons = append(reasons, "verification_rate_below_50pct")
	}
	if hasRepeatedErrorFingerprint(s) {
		reasons = append(reasons, "repeated_error_fingerprint")
	}
	if isFinalSessionOfProject {
		reasons = append(reasons, "final_session_of_project")
	}

	return reasons
}

func totalAdherenceViolations(s *metrics.Summary) int {
	total := 0
	for _, n := range s.AdherenceViolations {
		total += n
	}
	return total
}

func hasRepeatedErrorFingerprint(s *metrics.Summary) bool {
	for _, stats := range s.ErrorFingerprints {
		if stats.Count >= 3 {
			return true
		}
	}
	return false
}

// RequestDeepReview implements spec §4.6's out-of-band reviewing-agent
// request: dispatches through the injected ReviewRequester and stores the
// returned markdown report plus structured recommendations.
func (p *Pipeline) RequestDeepReview(ctx context.Context, projectID, sessionID string, summary *metrics.Summary, reasons []string) (*models.DeepReview, error) {
	if p.reviewer == nil {
		return nil, apperrors.New(apperrors.Internal, "deep review triggered but no ReviewRequester is configured")
	}
	report, recs, err := p.reviewer.RequestReview(ctx, projectID, sessionID, summary, reasons)
	if err != nil {
		return nil, err
	}
	return p.store.CreateDeepReview(ctx, &models.DeepReview{
		SessionID:       sessionID,
		ProjectID:       projectID,
		TriggerReasons:  reasons,
		ReportMarkdown:  report,
		Recommendations: recs,
	})
}

// summaryToMap round-trips a Summary through JSON so it can be stored in
// SessionQualityCheck.Summary (map[string]any, matching how the store
// layer marshals JSONB columns elsewhere in this package).
func summaryToMap(s *metrics.Summary) (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Validation, err, "encode metrics summary")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, apperrors.Wrap(apperrors.Validation, err, "decode metrics summary")
	}
	return m, nil
}
