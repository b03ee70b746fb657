package quality

import (
	"context"
	"sort"
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/config"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
	"github.com/innerline/yokeflow2-sub000/pkg/store"
)

// EpicCandidate is one completed epic ranked for re-testing, along with
// the factors that ordered it (spec §4.6).
type EpicCandidate struct {
	Epic          *models.Epic
	Dependents    int
	LastRetest    *time.Time
	StaleDuration time.Duration
}

// tierRank orders epics foundation-first, the same priority
// toolsurface.handleTriggerEpicRetest uses for its agent-invoked
// trigger_epic_retest call — this is the single definition both that
// handler and MaybeTriggerEpicRetests rank against, so the ranking
// algorithm exists in exactly one place.
func tierRank(t models.EpicTier) int {
	switch t {
	case models.EpicTierFoundation:
		return 0
	case models.EpicTierHighDependency:
		return 1
	default:
		return 2
	}
}

// RankEpicsForRetest returns every completed epic in a project ordered by
// spec §4.6's priority: tier (foundation first), staleness (longest since
// last retest first, never-retested treated as maximally stale), then
// dependent count (most depended-on first).
func RankEpicsForRetest(ctx context.Context, st *store.Store, projectID string) ([]EpicCandidate, error) {
	epics, err := st.ListEpics(ctx, projectID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	candidates := make([]EpicCandidate, 0, len(epics))
	for _, e := range epics {
		if e.Status != models.EpicStatusCompleted {
			continue
		}
		deps, err := st.DependentCount(ctx, projectID, e.EpicID, e.Name)
		if err != nil {
			return nil, err
		}
		last, err := st.LastRetestTime(ctx, projectID, e.EpicID)
		if err != nil {
			return nil, err
		}
		stale := 365 * 24 * time.Hour // never retested: maximally stale
		if last != nil {
			stale = now.Sub(*last)
		}
		candidates = append(candidates, EpicCandidate{
			Epic:          e,
			Dependents:    deps,
			LastRetest:    last,
			StaleDuration: stale,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := tierRank(candidates[i].Epic.Tier), tierRank(candidates[j].Epic.Tier)
		if ri != rj {
			return ri < rj
		}
		if candidates[i].StaleDuration != candidates[j].StaleDuration {
			return candidates[i].StaleDuration > candidates[j].StaleDuration
		}
		return candidates[i].Dependents > candidates[j].Dependents
	})

	return candidates, nil
}

// MaybeTriggerEpicRetests implements spec §4.6's periodic half of epic
// re-testing: "after every N completed epics (default 2), select up to K
// epics (default 2) to re-test". Unlike trigger_epic_retest (the
// agent-invoked Tool Surface operation for an explicit, on-demand
// request), this runs automatically between sessions — the Orchestrator
// calls it once a coding session finishes. Returns the newly scheduled
// EpicRetest rows, or a nil slice if fewer than trigger_frequency epics
// have completed since the last automatic trigger.
func (p *Pipeline) MaybeTriggerEpicRetests(ctx context.Context, projectID string, cfg config.EpicRetestingConfig) ([]*models.EpicRetest, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	frequency := cfg.TriggerFrequency
	if frequency <= 0 {
		frequency = 2
	}
	due, err := p.store.CheckAndAdvanceEpicRetestTrigger(ctx, projectID, frequency)
	if err != nil {
		return nil, err
	}
	if !due {
		return nil, nil
	}

	maxRetests := cfg.MaxRetestsPerTrigger
	if maxRetests <= 0 {
		maxRetests = 2
	}

	candidates, err := RankEpicsForRetest(ctx, p.store, projectID)
	if err != nil {
		return nil, err
	}
	if len(candidates) > maxRetests {
		candidates = candidates[:maxRetests]
	}

	scheduled := make([]*models.EpicRetest, 0, len(candidates))
	for _, c := range candidates {
		reason := models.RetestTriggerInterval
		if c.Epic.Tier == models.EpicTierFoundation && cfg.FoundationRetestDays > 0 &&
			c.StaleDuration > time.Duration(cfg.FoundationRetestDays)*24*time.Hour {
			reason = models.RetestTriggerFoundationStale
		}
		retest, err := p.store.CreateEpicRetest(ctx, &models.EpicRetest{
			EpicID:        c.Epic.EpicID,
			ProjectID:     projectID,
			TriggerReason: reason,
			Tier:          c.Epic.Tier,
		})
		if err != nil {
			return nil, err
		}
		scheduled = append(scheduled, retest)
	}
	return scheduled, nil
}
