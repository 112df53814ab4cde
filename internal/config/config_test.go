package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"htmlinc/internal/alias"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "[data-include]", cfg.Selector)
	assert.Equal(t, 1, cfg.MaxDepth)
	assert.Zero(t, cfg.Concurrency, "hosts are unbounded unless a cap is configured")
	assert.Equal(t, 30*time.Second, cfg.GetFetchTimeout())
	assert.Equal(t, int64(2<<20), cfg.Fetch.MaxBodyBytes)
	assert.True(t, cfg.Browser.Headless)
	require.NoError(t, cfg.Validate())

	if diff := cmp.Diff(alias.DefaultTable().Entries(), cfg.AliasTable().Entries()); diff != "" {
		t.Errorf("alias table mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Selector, cfg.Selector)
	assert.Equal(t, 7, cfg.AliasTable().Len())
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	data := `
base: https://cdn.example.com/site/
selector: ".inc"
aliases:
  "@shared/": shared/
  "@ui/": widgets/ui/
concurrency: 2
max_depth: 3
fetch:
  timeout: 5s
  retries: 2
logging:
  level: debug
  format: json
  categories:
    params: false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://cdn.example.com/site/", cfg.Base)
	assert.Equal(t, ".inc", cfg.Selector)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 3, cfg.MaxDepth)
	assert.Equal(t, 5*time.Second, cfg.GetFetchTimeout())
	assert.Equal(t, 2, cfg.Fetch.Retries)
	// untouched nested fields keep their defaults
	assert.Equal(t, "htmlinc/1.0", cfg.Fetch.UserAgent)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, map[string]bool{"params": false}, cfg.Logging.Categories)

	want := []alias.Entry{
		{Prefix: "@shared/", Dir: "shared/"},
		{Prefix: "@ui/", Dir: "widgets/ui/"},
	}
	if diff := cmp.Diff(want, cfg.AliasTable().Entries()); diff != "" {
		t.Errorf("aliases mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_RejectsBadAliases(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"list.yaml": "aliases:\n  - a\n  - b\n",
		"dup.yaml":  "aliases:\n  \"@a/\": x/\n  \"@a/\": y/\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultFile)

	cfg := DefaultConfig()
	cfg.Base = "/srv/site"
	cfg.Aliases = Aliases{{Prefix: "@z/", Dir: "z/"}, {Prefix: "@a/", Dir: "a/"}}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/site", loaded.Base)
	assert.Equal(t, cfg.Aliases, loaded.Aliases)
	assert.Equal(t, cfg.Fetch, loaded.Fetch)
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HTMLINC_BASE", "https://env.example.com/")
	t.Setenv("HTMLINC_LOG_LEVEL", "warn")
	t.Setenv("HTMLINC_FETCH_MAX_BODY_BYTES", "1024")
	t.Setenv("HTMLINC_MAX_DEPTH", "4")
	t.Setenv("HTMLINC_BROWSER_HEADLESS", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com/", cfg.Base)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, int64(1024), cfg.Fetch.MaxBodyBytes)
	assert.Equal(t, 4, cfg.MaxDepth)
	assert.False(t, cfg.Browser.Headless)
	// unset variables leave values alone
	assert.Equal(t, "[data-include]", cfg.Selector)
}

func TestConfig_EnvOverrideInvalid(t *testing.T) {
	t.Setenv("HTMLINC_CONCURRENCY", "many")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty selector", func(c *Config) { c.Selector = "" }},
		{"zero depth", func(c *Config) { c.MaxDepth = 0 }},
		{"negative concurrency", func(c *Config) { c.Concurrency = -1 }},
		{"negative retries", func(c *Config) { c.Fetch.Retries = -1 }},
		{"bad timeout", func(c *Config) { c.Fetch.Timeout = "soon" }},
		{"bad nav timeout", func(c *Config) { c.Browser.NavigationTimeout = "1 minute" }},
		{"bad base", func(c *Config) { c.Base = "ftp://example.com/" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_TimeoutFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fetch.Timeout = "bogus"
	cfg.Browser.NavigationTimeout = ""
	assert.Equal(t, 30*time.Second, cfg.GetFetchTimeout())
	assert.Equal(t, 30*time.Second, cfg.GetNavigationTimeout())
}
