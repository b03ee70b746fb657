package config

import "dario.cat/mergo"

// mergeOverDefaults merges a user-supplied partial Config over the
// built-in defaults, letting any field the user sets override the
// default and leaving the rest untouched — the same use of
// dario.cat/mergo that TARSy's loader uses to merge built-in and
// user-defined registries.
func mergeOverDefaults(base *Config, override *Config) (*Config, error) {
	merged := *base
	if err := mergo.Merge(&merged, override, mergo.WithOverride); err != nil {
		return nil, err
	}
	return &merged, nil
}
