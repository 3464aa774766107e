// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the config directory at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RAGCHAT_HOME", dir)
	for _, key := range EnvKeys() {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	// Keep a stray .env in the working directory out of the test.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:3000", cfg.Backend.URL)
	assert.Equal(t, 2, cfg.Backend.MaxRetries)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Storage.Enabled)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_LoadWithoutFiles(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestConfig_LoadTOML(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
version = "1"

[backend]
url = "http://rag.internal:8080/"
max_retries = 5

[defaults]
model = "llama3"
collection = "papers"

[logging]
level = "debug"
`), 0600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://rag.internal:8080", cfg.Backend.URL, "trailing slash trimmed")
	assert.Equal(t, 5, cfg.Backend.MaxRetries)
	assert.Equal(t, 30, cfg.Backend.TimeoutSecs, "unset keys keep defaults")
	assert.Equal(t, "llama3", cfg.Defaults.Model)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestConfig_LoadJSONFallback(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"backend":{"url":"https://rag.example.com"},"ui":{"theme":"light"}}`), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://rag.example.com", cfg.Backend.URL)
	assert.Equal(t, "light", cfg.UI.Theme)
}

func TestConfig_LoadInvalid(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, os.WriteFile(path, []byte("[backend\nurl = "), 0600))
	_, err := Load()
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"loud\"\n"), 0600))
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestConfig_EnvOverrides(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"),
		[]byte("[backend]\nurl = \"http://from-file:3000\"\n"), 0600))

	t.Setenv("RAGCHAT_BACKEND_URL", "http://from-env:9000")
	t.Setenv("RAGCHAT_MODEL", "mistral")
	t.Setenv("RAGCHAT_TELEMETRY", "true")
	t.Setenv("RAGCHAT_MAX_RETRIES", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://from-env:9000", cfg.Backend.URL)
	assert.Equal(t, "mistral", cfg.Defaults.Model)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 0, cfg.Backend.MaxRetries)
}

func TestConfig_EnvOverrideInvalid(t *testing.T) {
	isolate(t)
	t.Setenv("RAGCHAT_MAX_RETRIES", "several")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment")
}

func TestConfig_DotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("RAGCHAT_COLLECTION=notes\nRAGCHAT_THEME=light\n"), 0600))
	t.Setenv("RAGCHAT_THEME", "auto")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "notes", cfg.Defaults.Collection)
	assert.Equal(t, "auto", cfg.UI.Theme, "process environment wins over .env")
	os.Unsetenv("RAGCHAT_COLLECTION")
}

// =============================================================================
// SAVE
// =============================================================================

func TestConfig_SaveRoundTrip(t *testing.T) {
	isolate(t)

	cfg := Default()
	cfg.Defaults.Model = "llama3"
	cfg.Backend.URL = "http://rag:3000"
	require.NoError(t, Save(cfg))

	path, err := ConfigPathTOML()
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestConfig_SaveJSON(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "out.json")

	cfg := Default()
	cfg.UI.Theme = "light"
	require.NoError(t, SaveJSON(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "light", loaded.UI.Theme)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad url", func(c *Config) { c.Backend.URL = "not a url" }, "backend.url"},
		{"bad scheme", func(c *Config) { c.Backend.URL = "ftp://host" }, "backend.url"},
		{"timeout", func(c *Config) { c.Backend.TimeoutSecs = 9999 }, "backend.timeout_secs"},
		{"retries", func(c *Config) { c.Backend.MaxRetries = 50 }, "backend.max_retries"},
		{"level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
		{"fps", func(c *Config) { c.UI.RenderFPS = 500 }, "ui.render_fps"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidateErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			assert.Equal(t, tc.field, verrs[0].Field)
		})
	}
}

func TestConfig_ValidateCollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Backend.URL = ""
	cfg.Logging.Level = "x"
	cfg.UI.Theme = "x"

	var verrs ValidateErrors
	require.ErrorAs(t, cfg.Validate(), &verrs)
	assert.Len(t, verrs, 3)
}

func TestConfig_Migrate(t *testing.T) {
	cfg := Default()
	cfg.Version = ""
	require.NoError(t, cfg.Migrate())
	assert.Equal(t, CurrentVersion, cfg.Version)

	cfg.Version = "99"
	assert.Error(t, cfg.Migrate())
}

// =============================================================================
// GET / SET
// =============================================================================

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("backend.url")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", v)

	require.NoError(t, cfg.Set("backend.max_retries", "4"))
	assert.Equal(t, 4, cfg.Backend.MaxRetries)

	require.NoError(t, cfg.Set("telemetry.enabled", "true"))
	assert.True(t, cfg.Telemetry.Enabled)

	require.NoError(t, cfg.Set("defaults.model", "llama3"))
	assert.Equal(t, "llama3", cfg.Defaults.Model)

	require.NoError(t, cfg.Set("ui.render_fps", 60))
	assert.Equal(t, 60, cfg.UI.RenderFPS)

	assert.Error(t, cfg.Set("backend.max_retries", "many"))
	assert.Error(t, cfg.Set("backend.nope", "x"))
	assert.Error(t, cfg.Set("backend", "x"))
	_, err = cfg.Get("")
	assert.Error(t, err)
}

func TestConfig_Keys(t *testing.T) {
	keys := GetAllKeys()
	assert.Contains(t, keys, "backend.url")
	assert.Contains(t, keys, "storage.path")
	assert.Contains(t, keys, "ui.render_fps")

	cfg := Default()
	for _, key := range keys {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}

	assert.Contains(t, EnvKeys(), "RAGCHAT_BACKEND_URL")
}

func TestConfig_ClientConfig(t *testing.T) {
	cc := Default().Backend.ClientConfig()
	assert.Equal(t, 30*time.Second, cc.Timeout)
	assert.Equal(t, 60*time.Second, cc.StreamTimeout)
	assert.Equal(t, 500*time.Millisecond, cc.RetryDelay)
}

func TestConfig_Paths(t *testing.T) {
	dir := isolate(t)
	cfg := Default()

	p, err := cfg.LogPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "logs", "ragchat.log"), p)

	cfg.Storage.Path = "/tmp/x.db"
	p, err = cfg.ArchivePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", p)
}

func TestConfig_Clone(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Backend.URL = "http://other:1"
	assert.Equal(t, "http://localhost:3000", cfg.Backend.URL)
	assert.Contains(t, cfg.String(), "[backend]")
}

// =============================================================================
// GLOBAL
// =============================================================================

// Run with: go test -race ./internal/config/
func TestConfig_ConcurrentAccess(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := Default()
			c.Defaults.Model = "test-model"
			SetGlobal(c)
		}()
		go func() {
			defer wg.Done()
			assert.NotNil(t, Global())
		}()
	}
	wg.Wait()
}
