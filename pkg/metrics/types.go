// Package metrics implements the Metrics Collector (spec §4.4): one
// instance per session, consuming that session's ordered event stream and
// producing a quality-scored summary persisted to session.metrics.
package metrics

// AdherenceViolation enumerates the behavior patterns Metrics flags as
// deviations from expected agent conduct (spec §4.4).
type AdherenceViolation string

const (
	ViolationWrongBashCommand        AdherenceViolation = "wrong_bash_command"
	ViolationWorkspacePrefixMissing  AdherenceViolation = "workspace_prefix_missing"
	ViolationUsedBashForFilesystem   AdherenceViolation = "used_bash_for_filesystem"
	ViolationUITaskWithoutBrowser    AdherenceViolation = "ui_task_without_browser"
	ViolationSkippedVerification     AdherenceViolation = "skipped_verification"
)

// ErrorFingerprintStats tracks one normalized error signature's occurrences
// within a session (spec §4.4: "error_fingerprint -> {count, distinct
// sessions, last_seen, avg recovery attempts}"). distinct sessions is
// always 1 here since a Collector is scoped to a single session; cross-
// session aggregation is a job for whatever reads the persisted summaries,
// not the live collector.
type ErrorFingerprintStats struct {
	Fingerprint          string  `json:"fingerprint"`
	Count                int     `json:"count"`
	DistinctSessions      int     `json:"distinct_sessions"`
	LastSeenUnixMillis    int64   `json:"last_seen_unix_millis"`
	AvgRecoveryAttempts   float64 `json:"avg_recovery_attempts"`
	recoveryAttemptsSum  int
}

// HourBucket is one hour-since-session-start slot of the session
// progression counters (spec §4.4).
type HourBucket struct {
	Hour            int `json:"hour"`
	TasksCompleted  int `json:"tasks_completed"`
	ErrorsObserved  int `json:"errors_observed"`
}

// VerificationMismatch records one instance of a task's inferred type not
// matching the test category used to verify it (spec §4.4).
type VerificationMismatch struct {
	TaskID           int                  `json:"task_id"`
	InferredType     string               `json:"inferred_type"`
	ExpectedCategory string               `json:"expected_category,omitempty"`
	UsedCategory     string               `json:"used_category"`
}

// Summary is the structure stored verbatim (as JSON) in session.metrics at
// session end (spec §4.4).
type Summary struct {
	MetricsVersion string `json:"metrics_version"`

	ToolUseCount    map[string]int `json:"tool_use_count"`
	TotalToolCalls  int            `json:"total_tool_calls"`
	TotalErrors     int            `json:"total_errors"`
	ErrorRate       float64        `json:"error_rate"`
	CumulativeToolDurationMs int64 `json:"cumulative_tool_duration_ms"`

	VerificationMismatches []VerificationMismatch `json:"verification_mismatches,omitempty"`
	VerifiedTaskCount      int                     `json:"verified_task_count"`
	UITasksSeen            int                     `json:"ui_tasks_seen"`
	UITasksWithBrowser     int                     `json:"ui_tasks_with_browser"`

	ErrorFingerprints map[string]*ErrorFingerprintStats `json:"error_fingerprints,omitempty"`
	RepeatedErrors    []string                          `json:"repeated_errors,omitempty"`

	AdherenceViolations map[AdherenceViolation]int `json:"adherence_violations,omitempty"`

	HourlyProgression []HourBucket `json:"hourly_progression,omitempty"`

	QualityScore int `json:"quality_score"`
}

// metricsVersion is bumped whenever the summary shape or scoring formula
// changes, so stored summaries can be told apart by readers.
const metricsVersion = "1"

// VerificationRate is the fraction of type-checked task verifications that
// matched the task's inferred type, used by the Quality Pipeline's deep
// review trigger #6 (spec §4.6). Undefined (reported as 1.0) when no task
// in the session had an inferred verification expectation to check.
func (s *Summary) VerificationRate() float64 {
	if s.VerifiedTaskCount == 0 {
		return 1.0
	}
	return 1 - float64(len(s.VerificationMismatches))/float64(s.VerifiedTaskCount)
}
