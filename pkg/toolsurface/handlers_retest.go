package toolsurface

import (
	"context"
	"encoding/json"

	"github.com/innerline/yokeflow2-sub000/pkg/models"
	"github.com/innerline/yokeflow2-sub000/pkg/quality"
)

// handleTriggerEpicRetest implements spec §4.3/§4.6's trigger_epic_retest:
// an explicit, agent-invoked request for up to N (config
// epic_retesting.max_retests_per_trigger, default 2) completed epics to
// re-test now, ranked by quality.RankEpicsForRetest (tier, staleness,
// dependent count) — the same ranking the Quality Pipeline's automatic
// every-N-completed-epics trigger uses between sessions.
func handleTriggerEpicRetest(ctx context.Context, s *Surface, call Call, _ json.RawMessage, _ func(PartialPayload)) (any, error) {
	maxRetests := 2
	if s.cfg != nil && s.cfg.EpicRetesting.MaxRetestsPerTrigger > 0 {
		maxRetests = s.cfg.EpicRetesting.MaxRetestsPerTrigger
	}

	candidates, err := quality.RankEpicsForRetest(ctx, s.store, call.ProjectID)
	if err != nil {
		return nil, err
	}
	if len(candidates) > maxRetests {
		candidates = candidates[:maxRetests]
	}

	scheduled := make([]*models.EpicRetest, 0, len(candidates))
	for _, c := range candidates {
		retest, err := s.store.CreateEpicRetest(ctx, &models.EpicRetest{
			EpicID:        c.Epic.EpicID,
			ProjectID:     call.ProjectID,
			TriggerReason: models.RetestTriggerManual,
			Tier:          c.Epic.Tier,
		})
		if err != nil {
			return nil, err
		}
		scheduled = append(scheduled, retest)
	}
	return scheduled, nil
}

type recordEpicRetestResultParams struct {
	EpicID          int  `json:"epic_id"`
	Passed          bool `json:"passed"`
	FailedTestCount int  `json:"failed_test_count"`
	TotalTestCount  int  `json:"total_test_count"`
}

type recordEpicRetestResultResult struct {
	StabilityScore     float64 `json:"stability_score"`
	RegressionDetected bool    `json:"regression_detected"`
}

// handleRecordEpicRetestResult implements spec §4.3/§4.6's
// record_epic_retest_result: resolves against the epic's most recently
// scheduled, not-yet-tested retest row; stability_score is an EMA over the
// last K retests (K = config epic_retesting.stability_window, default 10);
// regression_detected is true iff the prior retest passed and this one
// failed.
func handleRecordEpicRetestResult(ctx context.Context, s *Surface, call Call, raw json.RawMessage, _ func(PartialPayload)) (any, error) {
	var p recordEpicRetestResultParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}

	pending, err := s.store.LatestPendingRetest(ctx, call.ProjectID, p.EpicID)
	if err != nil {
		return nil, err
	}

	window := 10
	if s.cfg != nil && s.cfg.EpicRetesting.StabilityWindow > 0 {
		window = s.cfg.EpicRetesting.StabilityWindow
	}

	history, err := s.store.RecentEpicRetests(ctx, call.ProjectID, p.EpicID, window)
	if err != nil {
		return nil, err
	}

	regression := false
	if len(history) > 0 && history[0].Passed != nil && *history[0].Passed && !p.Passed {
		regression = true
	}

	stability := emaStability(history, p.Passed)

	if err := s.store.RecordEpicRetestOutcome(ctx, pending.ID, p.Passed, p.FailedTestCount, p.TotalTestCount, regression, &stability); err != nil {
		return nil, err
	}

	return recordEpicRetestResultResult{StabilityScore: stability, RegressionDetected: regression}, nil
}

// emaStability computes an exponential moving average of pass/fail
// outcomes (1.0 pass, 0.0 fail) over history (newest first, already-tested
// retests only) plus the just-recorded outcome, smoothing factor
// alpha=2/(K+1) in the usual EMA convention, where K is the number of
// outcomes folded in (len(history)+1), not the configured window size.
func emaStability(history []*models.EpicRetest, latestPassed bool) float64 {
	outcome := func(passed bool) float64 {
		if passed {
			return 1.0
		}
		return 0.0
	}

	if len(history) == 0 {
		return outcome(latestPassed)
	}

	k := len(history) + 1
	alpha := 2.0 / float64(k+1)

	// Seed with the oldest known outcome, then fold forward through
	// progressively more recent ones, ending with the new result.
	ema := outcome(boolValue(history[len(history)-1].Passed))
	for i := len(history) - 2; i >= 0; i-- {
		ema = alpha*outcome(boolValue(history[i].Passed)) + (1-alpha)*ema
	}
	return alpha*outcome(latestPassed) + (1-alpha)*ema
}

func boolValue(b *bool) bool {
	return b != nil && *b
}
