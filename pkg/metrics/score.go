package metrics

import "sort"

// summary assembles the current counters into a Summary and computes the
// quality score (spec §4.4). Safe to call mid-session (e.g. for a
// summary-in-progress the Intervention Engine consults) or once at
// session end.
func (c *Collector) summary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		MetricsVersion:           metricsVersion,
		ToolUseCount:             copyIntMap(c.toolUseCount),
		TotalToolCalls:           c.totalToolCalls,
		TotalErrors:              c.totalErrors,
		CumulativeToolDurationMs: c.cumulativeMs,
		VerificationMismatches:   append([]VerificationMismatch(nil), c.verificationMismatches...),
		VerifiedTaskCount:        c.verifiedTaskCount,
		UITasksSeen:              len(c.uiTasksSeen),
		UITasksWithBrowser:       len(c.uiTasksWithBrowser),
		ErrorFingerprints:        c.fingerprints,
		AdherenceViolations:      copyViolationMap(c.adherence),
	}
	if c.totalToolCalls > 0 {
		s.ErrorRate = float64(c.totalErrors) / float64(c.totalToolCalls)
	}
	for fp, stats := range c.fingerprints {
		if stats.Count >= 3 {
			s.RepeatedErrors = append(s.RepeatedErrors, fp)
		}
	}
	sort.Strings(s.RepeatedErrors)

	hours := make([]int, 0, len(c.hourly))
	for h := range c.hourly {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	for _, h := range hours {
		s.HourlyProgression = append(s.HourlyProgression, *c.hourly[h])
	}

	s.QualityScore = qualityScore(s)
	return s
}

// qualityScore implements spec §4.4's formula: start at 10, subtract
// deductions for error rate, inappropriate verifications, missing browser
// verification on UI tasks, and adherence violations; clamp to [1, 10].
func qualityScore(s *Summary) int {
	score := 10

	switch {
	case s.ErrorRate > 0.10:
		score -= 5
	case s.ErrorRate > 0.05:
		score -= 3
	case s.ErrorRate > 0.02:
		score -= 1
	}

	switch mismatches := len(s.VerificationMismatches); {
	case mismatches > 4:
		score -= 3
	case mismatches > 2:
		score -= 2
	case mismatches > 0:
		score -= 1
	}

	if s.UITasksSeen > 0 {
		browserRate := float64(s.UITasksWithBrowser) / float64(s.UITasksSeen)
		if browserRate < 0.5 {
			score -= 2
		}
	}

	totalViolations := 0
	for _, n := range s.AdherenceViolations {
		totalViolations += n
	}
	switch {
	case totalViolations >= 5:
		score -= 2
	case totalViolations >= 2:
		score -= 1
	}

	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score
}

func copyIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyViolationMap(m map[AdherenceViolation]int) map[AdherenceViolation]int {
	out := make(map[AdherenceViolation]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
