// Package config loads and validates the engine's YAML configuration
// (spec §6 Configuration), merging it over typed defaults the way
// TARSy's pkg/config does for its own (very different) agent/chain
// configuration.
package config

import (
	"strings"
	"time"
)

// ModelsConfig carries the opaque model identifier to use for each
// session type (spec §6: models.{initializer,coding,review,prompt_improvement}).
type ModelsConfig struct {
	Initializer        string `yaml:"initializer"`
	Coding              string `yaml:"coding"`
	Review              string `yaml:"review"`
	PromptImprovement   string `yaml:"prompt_improvement"`
}

// TimingConfig carries scheduling delays (spec §6).
type TimingConfig struct {
	AutoContinueDelaySeconds int `yaml:"auto_continue_delay_seconds"`
}

// Delay returns AutoContinueDelaySeconds as a time.Duration.
func (t TimingConfig) Delay() time.Duration {
	return time.Duration(t.AutoContinueDelaySeconds) * time.Second
}

// ReviewConfig controls the Quality Pipeline's deep-review behavior
// (spec §4.6/§6).
type ReviewConfig struct {
	MinReviewsForAnalysis int `yaml:"min_reviews_for_analysis"`
}

// EpicTestingMode controls how strictly epic-level tests gate completion
// (spec §6).
type EpicTestingMode string

const (
	EpicTestingStrict     EpicTestingMode = "strict"
	EpicTestingAutonomous EpicTestingMode = "autonomous"
)

// EpicTestingConfig controls epic test gating (spec §6).
type EpicTestingConfig struct {
	Mode                 EpicTestingMode `yaml:"mode"`
	CriticalEpics        []string        `yaml:"critical_epics"`
	AutoFailureTolerance int             `yaml:"auto_failure_tolerance"`
}

// IsCritical reports whether epicName contains any of the configured
// critical-epic name substrings.
func (c EpicTestingConfig) IsCritical(epicName string) bool {
	for _, substr := range c.CriticalEpics {
		if substr != "" && strings.Contains(epicName, substr) {
			return true
		}
	}
	return false
}

// EpicRetestingConfig controls epic re-test scheduling (spec §4.6/§6).
type EpicRetestingConfig struct {
	Enabled               bool `yaml:"enabled"`
	TriggerFrequency      int  `yaml:"trigger_frequency"`
	FoundationRetestDays  int  `yaml:"foundation_retest_days"`
	MaxRetestsPerTrigger  int  `yaml:"max_retests_per_trigger"`
	// StabilityWindow is K, the number of recent retests averaged into the
	// EMA stability score (spec §4.6 default K=10).
	StabilityWindow int `yaml:"stability_window"`
}

// SandboxType selects the sandbox backend (spec §4.2/§6).
type SandboxType string

const (
	SandboxTypeNone      SandboxType = "none"
	SandboxTypeContainer SandboxType = "container"
)

// SandboxConfig controls the Sandbox Manager (spec §6).
type SandboxConfig struct {
	Type        SandboxType `yaml:"type"`
	MemoryLimit string      `yaml:"memory_limit"`
	CPULimit    string      `yaml:"cpu_limit"`
	Image       string      `yaml:"image"`
	// ExecTimeoutSeconds is the default per-call sandbox exec timeout
	// (spec §5, default 120s).
	ExecTimeoutSeconds int `yaml:"exec_timeout_seconds"`
}

// ExecTimeout returns ExecTimeoutSeconds as a time.Duration.
func (s SandboxConfig) ExecTimeout() time.Duration {
	return time.Duration(s.ExecTimeoutSeconds) * time.Second
}

// SecurityConfig controls command-blocklist extension (spec §6).
type SecurityConfig struct {
	AdditionalBlockedCommands []string `yaml:"additional_blocked_commands"`
}

// InterventionConfig controls the Intervention Engine's thresholds
// (spec §4.5; not an explicit top-level §6 key but required by its
// operations, grouped here the way TARSy groups queue/retention knobs).
type InterventionConfig struct {
	RetryLimit                     int      `yaml:"retry_limit"`
	QualityViolationPauseThreshold int      `yaml:"quality_violation_pause_threshold"`
	// AdditionalCriticalErrorPatterns extends the built-in critical-error
	// regex table (database unreachable, schema validation failure, missing
	// core dependency, port in use, module not found) the same way
	// Security.AdditionalBlockedCommands extends the sandbox blocklist.
	AdditionalCriticalErrorPatterns []string `yaml:"additional_critical_error_patterns"`
}

