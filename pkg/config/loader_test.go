package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeDefaultsWhenNoFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Timing.AutoContinueDelaySeconds)
	assert.Equal(t, 5, cfg.Review.MinReviewsForAnalysis)
	assert.Equal(t, EpicTestingAutonomous, cfg.EpicTesting.Mode)
	assert.Equal(t, 2, cfg.EpicRetesting.TriggerFrequency)
}

func TestInitializeMergesUserOverrides(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
timing:
  auto_continue_delay_seconds: 9
epic_testing:
  mode: strict
  critical_epics:
    - auth
sandbox:
  type: none
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte(yamlContent), 0o644))

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Timing.AutoContinueDelaySeconds)
	assert.Equal(t, EpicTestingStrict, cfg.EpicTesting.Mode)
	assert.Equal(t, []string{"auth"}, cfg.EpicTesting.CriticalEpics)
	assert.Equal(t, SandboxTypeNone, cfg.Sandbox.Type)
	// Untouched defaults survive the merge.
	assert.Equal(t, 5, cfg.Review.MinReviewsForAnalysis)
}

func TestInitializeRejectsInvalidMode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte("epic_testing:\n  mode: bogus\n"), 0o644))

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
}

func TestEpicTestingIsCritical(t *testing.T) {
	c := EpicTestingConfig{CriticalEpics: []string{"Auth", "Billing"}}
	assert.True(t, c.IsCritical("User Auth Flow"))
	assert.False(t, c.IsCritical("Reporting"))
}
