package config

import "fmt"

// Validate checks cross-field invariants that a YAML schema alone cannot
// express, mirroring the shape of TARSy's pkg/config/validator.go (a
// single entry point called once after load/merge).
func (c *Config) Validate() error {
	if c.Timing.AutoContinueDelaySeconds < 0 {
		return NewValidationError("timing.auto_continue_delay_seconds",
			fmt.Errorf("must be >= 0, got %d", c.Timing.AutoContinueDelaySeconds))
	}
	if c.Review.MinReviewsForAnalysis < 1 {
		return NewValidationError("review.min_reviews_for_analysis",
			fmt.Errorf("must be >= 1, got %d", c.Review.MinReviewsForAnalysis))
	}
	switch c.EpicTesting.Mode {
	case EpicTestingStrict, EpicTestingAutonomous:
	default:
		return NewValidationError("epic_testing.mode",
			fmt.Errorf("must be %q or %q, got %q", EpicTestingStrict, EpicTestingAutonomous, c.EpicTesting.Mode))
	}
	if c.EpicTesting.AutoFailureTolerance < 0 {
		return NewValidationError("epic_testing.auto_failure_tolerance",
			fmt.Errorf("must be >= 0, got %d", c.EpicTesting.AutoFailureTolerance))
	}
	if c.EpicRetesting.TriggerFrequency < 1 {
		return NewValidationError("epic_retesting.trigger_frequency",
			fmt.Errorf("must be >= 1, got %d", c.EpicRetesting.TriggerFrequency))
	}
	if c.EpicRetesting.MaxRetestsPerTrigger < 1 {
		return NewValidationError("epic_retesting.max_retests_per_trigger",
			fmt.Errorf("must be >= 1, got %d", c.EpicRetesting.MaxRetestsPerTrigger))
	}
	if c.EpicRetesting.StabilityWindow < 1 {
		return NewValidationError("epic_retesting.stability_window",
			fmt.Errorf("must be >= 1, got %d", c.EpicRetesting.StabilityWindow))
	}
	switch c.Sandbox.Type {
	case SandboxTypeNone, SandboxTypeContainer:
	default:
		return NewValidationError("sandbox.type",
			fmt.Errorf("must be %q or %q, got %q", SandboxTypeNone, SandboxTypeContainer, c.Sandbox.Type))
	}
	if c.Sandbox.ExecTimeoutSeconds < 1 {
		return NewValidationError("sandbox.exec_timeout_seconds",
			fmt.Errorf("must be >= 1, got %d", c.Sandbox.ExecTimeoutSeconds))
	}
	if c.Intervention.RetryLimit < 1 {
		return NewValidationError("intervention.retry_limit",
			fmt.Errorf("must be >= 1, got %d", c.Intervention.RetryLimit))
	}
	return nil
}
