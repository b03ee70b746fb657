package config

// Default returns the built-in configuration, used as the base that a
// user's YAML file is merged over (spec §6 defaults).
func Default() *Config {
	return &Config{
		Models: ModelsConfig{
			Initializer:       "initializer-default",
			Coding:            "coding-default",
			Review:            "review-default",
			PromptImprovement: "prompt-improvement-default",
		},
		Timing: TimingConfig{
			AutoContinueDelaySeconds: 3,
		},
		Review: ReviewConfig{
			MinReviewsForAnalysis: 5,
		},
		EpicTesting: EpicTestingConfig{
			Mode:                 EpicTestingAutonomous,
			CriticalEpics:        nil,
			AutoFailureTolerance: 3,
		},
		EpicRetesting: EpicRetestingConfig{
			Enabled:              true,
			TriggerFrequency:     2,
			FoundationRetestDays: 7,
			MaxRetestsPerTrigger: 2,
			StabilityWindow:      10,
		},
		Sandbox: SandboxConfig{
			Type:               SandboxTypeContainer,
			MemoryLimit:        "3g",
			CPULimit:           "2",
			Image:              "yokeflow/agent-sandbox:latest",
			ExecTimeoutSeconds: 120,
		},
		Security: SecurityConfig{
			AdditionalBlockedCommands: nil,
		},
		Intervention: InterventionConfig{
			RetryLimit:                       3,
			QualityViolationPauseThreshold:   3,
			AdditionalCriticalErrorPatterns: nil,
		},
	}
}
