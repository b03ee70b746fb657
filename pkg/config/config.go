package config

// Config is the umbrella configuration object returned by Initialize and
// used throughout the engine, mirroring the role of TARSy's pkg/config.Config.
type Config struct {
	configDir string

	Models        ModelsConfig        `yaml:"models"`
	Timing        TimingConfig        `yaml:"timing"`
	Review        ReviewConfig        `yaml:"review"`
	EpicTesting   EpicTestingConfig   `yaml:"epic_testing"`
	EpicRetesting EpicRetestingConfig `yaml:"epic_retesting"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Security      SecurityConfig      `yaml:"security"`
	Intervention  InterventionConfig  `yaml:"intervention"`
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// ModelFor returns the configured model identifier for a session type.
func (c *Config) ModelFor(sessionType string) string {
	switch sessionType {
	case "initializer":
		return c.Models.Initializer
	case "coding":
		return c.Models.Coding
	case "review", "retest":
		return c.Models.Review
	default:
		return c.Models.Coding
	}
}
