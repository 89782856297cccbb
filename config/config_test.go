package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsMatchesSpec(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultAutosaveDebounceMs, cfg.Autosave.DebounceMs)
	assert.Equal(t, DefaultMaxRetries, cfg.Autosave.MaxRetries)
	assert.False(t, cfg.Autosave.Backup)
	assert.True(t, cfg.Autosave.FlagInternalWrites)

	assert.Equal(t, DefaultDebounceMs, cfg.Debounce.DebounceMs)

	assert.Equal(t, DefaultMaxSize, cfg.FileOps.MaxSize)
	assert.Equal(t, DefaultEncoding, cfg.FileOps.Encoding)

	assert.Equal(t, DefaultEditingIdleMs, cfg.Session.EditingIdleMs)
	assert.Equal(t, DefaultAutosaveDebounceMsS, cfg.Session.AutosaveDebounceMs)
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Logging.Level = "verbose"

	err := Validate(cfg)
	assert.Error(t, err)
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	assert.NoError(t, Validate(cfg))
}

func TestLoadWithNoFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultAutosaveDebounceMs, cfg.Autosave.DebounceMs)
}

func TestLoadPreservesExplicitZeroMaxRetries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Autosave.MaxRetries = 0
	require.NoError(t, Save(cfg, path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Autosave.MaxRetries, "an explicit max_retries: 0 in the file must not be promoted to the default")
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	want := &Config{}
	ApplyDefaults(want)
	want.Autosave.Backup = true
	want.FileOps.MaxSize = 2048

	require.NoError(t, Save(want, path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.True(t, got.Autosave.Backup)
	assert.Equal(t, 2048, got.FileOps.MaxSize)
}

func TestDurationHelpersConvertMillisecondFields(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, int64(400)*1_000_000, cfg.Autosave.Debounce().Nanoseconds())
	assert.Equal(t, int64(100)*1_000_000, cfg.Debounce.Window().Nanoseconds())
	assert.Equal(t, int64(1000)*1_000_000, cfg.Session.EditingIdle().Nanoseconds())
}
