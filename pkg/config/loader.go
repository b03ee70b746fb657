package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// fileName is the configuration file name looked for under configDir,
// mirroring TARSy's single tarsy.yaml convention.
const fileName = "yokeflow.yaml"

// Initialize loads, merges, and validates configuration. This is the
// primary entry point, mirroring TARSy's config.Initialize(ctx, configDir).
//
// It loads `<configDir>/.env` (if present) into the process environment,
// reads `<configDir>/yokeflow.yaml` (if present), expands ${VAR} references,
// merges it over the built-in defaults, and validates the result. A
// missing yokeflow.yaml is not an error — the defaults are used as-is.
func Initialize(_ context.Context, configDir string) (*Config, error) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("Could not load .env file", "path", envPath, "error", err)
	}

	cfg := Default()
	cfg.configDir = configDir

	path := filepath.Join(configDir, fileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		data = ExpandEnv(data)
		var override Config
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
		merged, err := mergeOverDefaults(cfg, &override)
		if err != nil {
			return nil, NewLoadError(path, err)
		}
		merged.configDir = configDir
		cfg = merged
	case errors.Is(err, os.ErrNotExist):
		slog.Info("No configuration file found, using defaults", "path", path)
	default:
		return nil, NewLoadError(path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	return cfg, nil
}
