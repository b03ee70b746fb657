package metrics

import "testing"

func TestQualityScore_NoIssuesScoresTen(t *testing.T) {
	s := &Summary{ErrorRate: 0, TotalToolCalls: 10}
	if got := qualityScore(s); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
}

func TestQualityScore_HighErrorRateFloorsAtOne(t *testing.T) {
	s := &Summary{
		ErrorRate:              0.5,
		VerificationMismatches: make([]VerificationMismatch, 5),
		UITasksSeen:            4,
		UITasksWithBrowser:     0,
		AdherenceViolations:    map[AdherenceViolation]int{ViolationWrongBashCommand: 6},
	}
	if got := qualityScore(s); got != 1 {
		t.Fatalf("expected floor of 1, got %d", got)
	}
}

func TestQualityScore_ErrorRateTiers(t *testing.T) {
	cases := []struct {
		rate     float64
		expected int
	}{
		{0.01, 10},
		{0.03, 9},
		{0.07, 7},
		{0.2, 5},
	}
	for _, c := range cases {
		got := qualityScore(&Summary{ErrorRate: c.rate})
		if got != c.expected {
			t.Errorf("rate %.2f: expected %d, got %d", c.rate, c.expected, got)
		}
	}
}

func TestQualityScore_LowBrowserVerificationRateDeducts(t *testing.T) {
	full := qualityScore(&Summary{UITasksSeen: 4, UITasksWithBrowser: 4})
	low := qualityScore(&Summary{UITasksSeen: 4, UITasksWithBrowser: 1})
	if low >= full {
		t.Fatalf("expected low browser-verification rate to score lower: full=%d low=%d", full, low)
	}
}
