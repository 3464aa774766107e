// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/VINKAS7/ragchat/internal/backend"
	"github.com/VINKAS7/ragchat/internal/util"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete ragchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Backend   BackendConfig   `toml:"backend" json:"backend"`
	Defaults  DefaultsConfig  `toml:"defaults" json:"defaults"`
	Logging   LoggingConfig   `toml:"logging" json:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry" json:"telemetry"`
	Storage   StorageConfig   `toml:"storage" json:"storage"`
	UI        UIConfig        `toml:"ui" json:"ui"`
}

// BackendConfig locates the RAG backend.
type BackendConfig struct {
	URL               string `toml:"url" json:"url" env:"RAGCHAT_BACKEND_URL"`
	TimeoutSecs       int    `toml:"timeout_secs" json:"timeout_secs" env:"RAGCHAT_BACKEND_TIMEOUT"`
	StreamTimeoutSecs int    `toml:"stream_timeout_secs" json:"stream_timeout_secs" env:"RAGCHAT_STREAM_TIMEOUT"`
	MaxRetries        int    `toml:"max_retries" json:"max_retries" env:"RAGCHAT_MAX_RETRIES"`
	RetryDelayMs      int    `toml:"retry_delay_ms" json:"retry_delay_ms"`
}

// ClientConfig converts the section into backend client settings.
func (b BackendConfig) ClientConfig() *backend.ClientConfig {
	return &backend.ClientConfig{
		BaseURL:       b.URL,
		Timeout:       time.Duration(b.TimeoutSecs) * time.Second,
		StreamTimeout: time.Duration(b.StreamTimeoutSecs) * time.Second,
		MaxRetries:    b.MaxRetries,
		RetryDelay:    time.Duration(b.RetryDelayMs) * time.Millisecond,
	}
}

// DefaultsConfig preselects a model and collection for new conversations.
type DefaultsConfig struct {
	Model      string `toml:"model" json:"model" env:"RAGCHAT_MODEL"`
	Collection string `toml:"collection" json:"collection" env:"RAGCHAT_COLLECTION"`
}

// LoggingConfig controls the rotating log file.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" env:"RAGCHAT_LOG_LEVEL"`
	File       string `toml:"file" json:"file" env:"RAGCHAT_LOG_FILE"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress"`
}

// TelemetryConfig controls OpenTelemetry export to local files.
type TelemetryConfig struct {
	Enabled      bool   `toml:"enabled" json:"enabled" env:"RAGCHAT_TELEMETRY"`
	Dir          string `toml:"dir" json:"dir"`
	IntervalSecs int    `toml:"interval_secs" json:"interval_secs"`
}

// StorageConfig controls the local transcript archive.
type StorageConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" env:"RAGCHAT_ARCHIVE"`
	Path    string `toml:"path" json:"path" env:"RAGCHAT_ARCHIVE_PATH"`
}

// UIConfig controls the terminal interface.
type UIConfig struct {
	Theme      string `toml:"theme" json:"theme" env:"RAGCHAT_THEME"`
	Markdown   bool   `toml:"markdown" json:"markdown"`
	RenderFPS  int    `toml:"render_fps" json:"render_fps"`
	ShowHelp   bool   `toml:"show_help" json:"show_help"`
	WordWrap   int    `toml:"word_wrap" json:"word_wrap"`
	CompactLog bool   `toml:"compact_log" json:"compact_log"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Backend: BackendConfig{
			URL:               backend.DefaultBaseURL,
			TimeoutSecs:       30,
			StreamTimeoutSecs: 60,
			MaxRetries:        2,
			RetryDelayMs:      500,
		},
		Defaults: DefaultsConfig{},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			IntervalSecs: 30,
		},
		Storage: StorageConfig{
			Enabled: true,
		},
		UI: UIConfig{
			Theme:     "dark",
			Markdown:  true,
			RenderFPS: 30,
			ShowHelp:  true,
			WordWrap:  100,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the ragchat configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv("RAGCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".ragchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	return inConfigDir("config.toml")
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	return inConfigDir("config.json")
}

// LogPath returns the configured log file, or the default under ConfigDir.
func (c *Config) LogPath() (string, error) {
	if c.Logging.File != "" {
		return c.Logging.File, nil
	}
	return inConfigDir(filepath.Join("logs", "ragchat.log"))
}

// TelemetryDir returns the directory for trace and metric files.
func (c *Config) TelemetryDir() (string, error) {
	if c.Telemetry.Dir != "" {
		return c.Telemetry.Dir, nil
	}
	return inConfigDir("telemetry")
}

// ArchivePath returns the SQLite archive location.
func (c *Config) ArchivePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	return inConfigDir("archive.db")
}

func inConfigDir(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
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

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults. A .env file is
// read before environment overrides are applied.
func Load() (*Config, error) {
	cfg := Default()

	path := ""
	if p, err := ConfigPathTOML(); err == nil && fileExists(p) {
		path = p
	} else if p, err := ConfigPathJSON(); err == nil && fileExists(p) {
		path = p
	}

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	return finish(cfg)
}

// LoadFromPath loads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := loadFile(cfg, path); err != nil {
		return nil, err
	}
	return finish(cfg)
}

func loadFile(cfg *Config, path string) error {
	var err error
	if strings.HasSuffix(path, ".json") {
		err = LoadJSON(cfg, path)
	} else {
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return nil
}

func finish(cfg *Config) (*Config, error) {
	LoadDotEnv()
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}
	if err := cfg.Migrate(); err != nil {
		return nil, fmt.Errorf("config migration failed: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// LoadDotEnv loads .env from the working directory and the config
// directory. Variables already set in the environment win. Missing files are
// ignored.
func LoadDotEnv() {
	var files []string
	if fileExists(".env") {
		files = append(files, ".env")
	}
	if p, err := inConfigDir(".env"); err == nil && fileExists(p) {
		files = append(files, p)
	}
	if len(files) > 0 {
		_ = godotenv.Load(files...)
	}
}

// ApplyEnvOverrides applies RAGCHAT_* environment variables to the config.
// Only variables that are set change the config.
//
// Supported environment variables:
//   - RAGCHAT_BACKEND_URL: overrides backend.url
//   - RAGCHAT_BACKEND_TIMEOUT, RAGCHAT_STREAM_TIMEOUT: seconds
//   - RAGCHAT_MAX_RETRIES: overrides backend.max_retries
//   - RAGCHAT_MODEL, RAGCHAT_COLLECTION: default selection
//   - RAGCHAT_LOG_LEVEL, RAGCHAT_LOG_FILE: logging
//   - RAGCHAT_TELEMETRY: "true" enables telemetry export
//   - RAGCHAT_ARCHIVE, RAGCHAT_ARCHIVE_PATH: local archive
//   - RAGCHAT_THEME: overrides ui.theme
func (c *Config) ApplyEnvOverrides() error {
	return env.Parse(c)
}

// EnvKeys lists the environment variables ApplyEnvOverrides reads.
func EnvKeys() []string {
	var keys []string
	walkFields(reflect.TypeOf(Config{}), "", func(_ string, f reflect.StructField) {
		if name := f.Tag.Get("env"); name != "" {
			keys = append(keys, name)
		}
	})
	sort.Strings(keys)
	return keys
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# ragchat configuration file\n")
	buf.WriteString("# Environment variables (RAGCHAT_*) override these values.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration as JSON atomically with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
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
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var (
	validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validThemes = map[string]bool{"dark": true, "light": true, "auto": true}
)

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if u, err := url.Parse(c.Backend.URL); err != nil || u.Host == "" {
		add("backend.url", fmt.Sprintf("invalid URL %q", c.Backend.URL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("backend.url", fmt.Sprintf("scheme must be http or https, got %q", u.Scheme))
	}
	if c.Backend.TimeoutSecs < 0 || c.Backend.TimeoutSecs > 600 {
		add("backend.timeout_secs", "must be between 0 and 600")
	}
	if c.Backend.StreamTimeoutSecs < 0 || c.Backend.StreamTimeoutSecs > 3600 {
		add("backend.stream_timeout_secs", "must be between 0 and 3600")
	}
	if c.Backend.MaxRetries > 10 {
		add("backend.max_retries", "must be at most 10")
	}
	if c.Backend.RetryDelayMs < 0 {
		add("backend.retry_delay_ms", "must not be negative")
	}

	if !validLevels[strings.ToLower(c.Logging.Level)] {
		add("logging.level", fmt.Sprintf("unknown level %q (want debug, info, warn or error)", c.Logging.Level))
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		add("logging", "rotation limits must not be negative")
	}

	if c.Telemetry.IntervalSecs < 0 {
		add("telemetry.interval_secs", "must not be negative")
	}

	if !validThemes[strings.ToLower(c.UI.Theme)] {
		add("ui.theme", fmt.Sprintf("unknown theme %q (want dark, light or auto)", c.UI.Theme))
	}
	if c.UI.RenderFPS < 0 || c.UI.RenderFPS > 120 {
		add("ui.render_fps", "must be between 0 and 120")
	}
	if c.UI.WordWrap < 0 {
		add("ui.word_wrap", "must not be negative")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values that would otherwise disable a feature by
// accident.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Backend.URL == "" {
		c.Backend.URL = d.Backend.URL
	}
	c.Backend.URL = strings.TrimRight(c.Backend.URL, "/")
	if c.Backend.TimeoutSecs == 0 {
		c.Backend.TimeoutSecs = d.Backend.TimeoutSecs
	}
	if c.Backend.StreamTimeoutSecs == 0 {
		c.Backend.StreamTimeoutSecs = d.Backend.StreamTimeoutSecs
	}
	if c.Backend.RetryDelayMs == 0 {
		c.Backend.RetryDelayMs = d.Backend.RetryDelayMs
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = d.Logging.MaxSizeMB
	}
	if c.Telemetry.IntervalSecs == 0 {
		c.Telemetry.IntervalSecs = d.Telemetry.IntervalSecs
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.RenderFPS == 0 {
		c.UI.RenderFPS = d.UI.RenderFPS
	}
}

// Migrate upgrades configs written by older versions.
func (c *Config) Migrate() error {
	switch c.Version {
	case "", "0":
		c.Version = CurrentVersion
	case CurrentVersion:
	default:
		return fmt.Errorf("unsupported config version %q", c.Version)
	}
	return nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g. "backend.url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup resolves a dotted key against toml tag names.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	name = strings.ReplaceAll(strings.ToLower(name), "-", "_")
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tagName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tagName(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
	if tag == "" {
		return strings.ToLower(f.Name)
	}
	return tag
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %v", err)
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	walkFields(reflect.TypeOf(Config{}), "", func(key string, _ reflect.StructField) {
		keys = append(keys, key)
	})
	return keys
}

func walkFields(t reflect.Type, prefix string, fn func(key string, f reflect.StructField)) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := tagName(f)
		if prefix != "" {
			key = prefix + "." + key
		}
		if f.Type.Kind() == reflect.Struct {
			walkFields(f.Type, key, fn)
			continue
		}
		fn(key, f)
	}
}

// Clone returns a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the configuration as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
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
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
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
