// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/rigchat/internal/settings"
	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigchat configuration.
type Config struct {
	Backend   BackendConfig      `toml:"backend"`
	Chat      ChatConfig         `toml:"chat"`
	Overrides settings.Overrides `toml:"overrides"`
	Storage   StorageConfig      `toml:"storage"`
	Logging   LoggingConfig      `toml:"logging"`
	DevServer DevServerConfig    `toml:"devserver"`
}

// BackendConfig describes how to reach the chat backend.
type BackendConfig struct {
	// BaseURL is the root of the backend API, e.g. http://localhost:8000
	BaseURL string `toml:"base_url"`
	// Token is sent as a bearer token when set
	Token string `toml:"token"`
	// RequestTimeout bounds history and model registry calls, in seconds.
	// Chat turns use the per-turn timeout from the resolved settings instead.
	RequestTimeout int `toml:"request_timeout"`
	// RateLimit is the maximum number of requests per second (0 = unlimited)
	RateLimit float64 `toml:"rate_limit"`
	// StreamGraceMs is how long to wait for a terminal frame after the
	// connection closes early
	StreamGraceMs int `toml:"stream_grace_ms"`
}

// ChatConfig holds chat preferences.
type ChatConfig struct {
	// DefaultModel is the model id selected on startup (empty = first active)
	DefaultModel string `toml:"default_model"`
	// Streaming is the user's streaming preference. The model capability
	// still has the final say.
	Streaming *bool `toml:"streaming,omitempty"`
	// Mouse enables wheel scrolling in the TUI. Terminal text selection
	// then needs a modifier key.
	Mouse bool `toml:"mouse"`
}

// StorageConfig configures the development backend's database.
type StorageConfig struct {
	// Path is the SQLite database file (empty = ~/.rigchat/rigchat.db)
	Path string `toml:"path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `toml:"level"`
	// File receives log output (empty = stderr)
	File string `toml:"file"`
}

// DevServerConfig configures `rigchat serve`.
type DevServerConfig struct {
	// Listen is the address the development backend binds to
	Listen string `toml:"listen"`
	// Upstream is an OpenAI-compatible endpoint. Without an API key the
	// server answers with an echo responder.
	Upstream UpstreamConfig `toml:"upstream"`
}

// UpstreamConfig points the development backend at a real model.
type UpstreamConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

// Default returns a configuration with built-in defaults.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8000",
			RequestTimeout: 30,
			RateLimit:      5,
		},
		Storage: StorageConfig{},
		Logging: LoggingConfig{
			Level: "info",
		},
		DevServer: DevServerConfig{
			Listen: "127.0.0.1:8000",
			Upstream: UpstreamConfig{
				BaseURL: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			},
		},
	}
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// ChatOverrides returns the standing setting overrides, including the
// streaming preference from [chat].
func (c *Config) ChatOverrides() settings.Overrides {
	o := c.Overrides.Clone()
	if c.Chat.Streaming != nil {
		v := *c.Chat.Streaming
		o.Streaming = &v
	}
	return o
}

// RequestTimeoutDuration returns Backend.RequestTimeout as a duration.
func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.Backend.RequestTimeout) * time.Second
}

// StreamGrace returns Backend.StreamGraceMs as a duration.
func (c *Config) StreamGrace() time.Duration {
	return time.Duration(c.Backend.StreamGraceMs) * time.Millisecond
}

// DatabasePath returns the SQLite path, resolving the default location.
func (c *Config) DatabasePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "rigchat.db"), nil
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigchat configuration directory path.
// RIGCHAT_HOME replaces the default ~/.rigchat.
func ConfigDir() (string, error) {
	if dir := os.Getenv("RIGCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigchat"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file, falling back to
// defaults when it does not exist. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ReadFile decodes path over the defaults without applying environment
// overrides or validation. A missing file yields the defaults. Use it when
// the result will be written back.
func ReadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return cfg, nil
}

// SetDefaults fills zero values that have a sensible default.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = d.Backend.BaseURL
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.RequestTimeout == 0 {
		c.Backend.RequestTimeout = d.Backend.RequestTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.DevServer.Listen == "" {
		c.DevServer.Listen = d.DevServer.Listen
	}
	if c.DevServer.Upstream.BaseURL == "" {
		c.DevServer.Upstream.BaseURL = d.DevServer.Upstream.BaseURL
	}
	if c.DevServer.Upstream.Model == "" {
		c.DevServer.Upstream.Model = d.DevServer.Upstream.Model
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the configuration to path with 0600 permissions.
func SaveTo(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# rigchat configuration file")
	fmt.Fprintln(&buf, "# Generated by rigchat - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if err := validateHTTPURL(c.Backend.BaseURL); err != nil {
		errs = append(errs, ValidationError{Field: "backend.base_url", Message: err.Error()})
	}
	if c.Backend.RequestTimeout < 1 || c.Backend.RequestTimeout > 600 {
		errs = append(errs, ValidationError{
			Field:   "backend.request_timeout",
			Message: fmt.Sprintf("must be between 1 and 600 seconds, got %d", c.Backend.RequestTimeout),
		})
	}
	if c.Backend.RateLimit < 0 || math.IsNaN(c.Backend.RateLimit) {
		errs = append(errs, ValidationError{Field: "backend.rate_limit", Message: "must not be negative"})
	}
	if c.Backend.StreamGraceMs < 0 || c.Backend.StreamGraceMs > 10000 {
		errs = append(errs, ValidationError{
			Field:   "backend.stream_grace_ms",
			Message: fmt.Sprintf("must be between 0 and 10000, got %d", c.Backend.StreamGraceMs),
		})
	}

	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	for _, p := range c.Overrides.Problems() {
		errs = append(errs, ValidationError{Field: "overrides." + p.Key, Message: p.Message})
	}

	if c.DevServer.Listen == "" {
		errs = append(errs, ValidationError{Field: "devserver.listen", Message: "must not be empty"})
	}
	if c.DevServer.Upstream.APIKey != "" {
		if err := validateHTTPURL(c.DevServer.Upstream.BaseURL); err != nil {
			errs = append(errs, ValidationError{Field: "devserver.upstream.base_url", Message: err.Error()})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: %q", raw)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - RIGCHAT_BASE_URL: overrides backend.base_url
//   - RIGCHAT_TOKEN: overrides backend.token
//   - RIGCHAT_MODEL: overrides chat.default_model
//   - RIGCHAT_STREAMING: "1"/"true" or "0"/"false"
//   - RIGCHAT_DB: overrides storage.path
//   - RIGCHAT_LOG_LEVEL: overrides logging.level
//   - RIGCHAT_LISTEN: overrides devserver.listen
//   - RIGCHAT_UPSTREAM_URL: overrides devserver.upstream.base_url
//   - RIGCHAT_UPSTREAM_KEY: overrides devserver.upstream.api_key
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RIGCHAT_BASE_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("RIGCHAT_TOKEN"); v != "" {
		c.Backend.Token = v
	}
	if v := os.Getenv("RIGCHAT_MODEL"); v != "" {
		c.Chat.DefaultModel = v
	}
	if v := os.Getenv("RIGCHAT_STREAMING"); v != "" {
		on := v == "1" || strings.EqualFold(v, "true")
		c.Chat.Streaming = &on
	}
	if v := os.Getenv("RIGCHAT_DB"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("RIGCHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RIGCHAT_LISTEN"); v != "" {
		c.DevServer.Listen = v
	}
	if v := os.Getenv("RIGCHAT_UPSTREAM_URL"); v != "" {
		c.DevServer.Upstream.BaseURL = v
	}
	if v := os.Getenv("RIGCHAT_UPSTREAM_KEY"); v != "" {
		c.DevServer.Upstream.APIKey = v
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value by its dotted TOML key,
// e.g. "backend.base_url" or "overrides.temperature".
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	if field.Kind() == reflect.Pointer {
		if field.IsNil() {
			return nil, nil
		}
		return field.Elem().Interface(), nil
	}
	return field.Interface(), nil
}

// Set parses value and stores it under the dotted TOML key.
func (c *Config) Set(key, value string) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if field.Kind() == reflect.Pointer {
		if value == "" {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		ptr := reflect.New(field.Type().Elem())
		if err := setFieldValue(ptr.Elem(), value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		field.Set(ptr)
		return nil
	}
	if err := setFieldValue(field, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown key: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("key %s is a section", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("key %s is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value: %v", err)
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value: %v", err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("invalid float value: %s is not finite", value)
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %v", err)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// Keys returns every settable dotted key.
func Keys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
			if tag == "" {
				continue
			}
			if t.Field(i).Type.Kind() == reflect.Struct {
				walk(t.Field(i).Type, prefix+tag+".")
				continue
			}
			keys = append(keys, prefix+tag)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Overrides = c.Overrides.Clone()
	if c.Chat.Streaming != nil {
		v := *c.Chat.Streaming
		clone.Chat.Streaming = &v
	}
	return &clone
}

// String renders the config as TOML with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Backend.Token != "" {
		safe.Backend.Token = "[REDACTED]"
	}
	if safe.DevServer.Upstream.APIKey != "" {
		safe.DevServer.Upstream.APIKey = "[REDACTED]"
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(safe); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return buf.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
