// Package config loads htmlinc.yaml and applies HTMLINC_* environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"htmlinc/internal/alias"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file name looked up in the working directory.
const DefaultFile = "htmlinc.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "htmlinc"

// Config holds all htmlinc configuration.
type Config struct {
	// Base is the URL or directory relative sources resolve against. Empty
	// means the page's directory for render and watch, and the served root
	// for serve.
	Base string `yaml:"base"`
	// Selector picks host elements.
	Selector string `yaml:"selector"`
	// Aliases maps @-prefixes to directories, in match order.
	Aliases Aliases `yaml:"aliases" ignored:"true"`

	// Concurrency caps in-flight hosts per pass; zero, the default, starts
	// every fetch at once.
	Concurrency int `yaml:"concurrency"`
	// MaxDepth bounds nested include passes.
	MaxDepth int `yaml:"max_depth" split_words:"true"`

	Fetch   FetchConfig   `yaml:"fetch"`
	Logging LoggingConfig `yaml:"logging" envconfig:"log"`
	Serve   ServeConfig   `yaml:"serve"`
	Browser BrowserConfig `yaml:"browser"`
}

// FetchConfig configures fragment retrieval.
type FetchConfig struct {
	Timeout      string `yaml:"timeout"`
	Retries      int    `yaml:"retries"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" split_words:"true"`
	UserAgent    string `yaml:"user_agent" split_words:"true"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // console, json
	Dir        string          `yaml:"dir,omitempty"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// ServeConfig configures the dev server.
type ServeConfig struct {
	Addr string `yaml:"addr"`
	Root string `yaml:"root"`
}

// BrowserConfig configures the live backend.
type BrowserConfig struct {
	Headless          bool   `yaml:"headless"`
	Bin               string `yaml:"bin,omitempty"`
	DebuggerURL       string `yaml:"debugger_url,omitempty" split_words:"true"`
	NavigationTimeout string `yaml:"navigation_timeout" split_words:"true"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Selector: "[data-include]",
		Aliases:  Aliases(alias.DefaultTable().Entries()),
		MaxDepth: 1,

		Fetch: FetchConfig{
			Timeout:      "30s",
			Retries:      0,
			MaxBodyBytes: 2 << 20,
			UserAgent:    "htmlinc/1.0",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},

		Serve: ServeConfig{
			Addr: "127.0.0.1:8080",
			Root: ".",
		},

		Browser: BrowserConfig{
			Headless:          true,
			NavigationTimeout: "30s",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies HTMLINC_* variables, e.g. HTMLINC_BASE,
// HTMLINC_LOG_LEVEL, HTMLINC_FETCH_MAX_BODY_BYTES.
func (c *Config) applyEnvOverrides() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("failed to apply environment: %w", err)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Selector == "" {
		return fmt.Errorf("selector must not be empty")
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be at least 1, got %d", c.MaxDepth)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries must not be negative, got %d", c.Fetch.Retries)
	}
	for _, d := range []struct{ name, v string }{
		{"fetch.timeout", c.Fetch.Timeout},
		{"browser.navigation_timeout", c.Browser.NavigationTimeout},
	} {
		if d.v == "" {
			continue
		}
		if _, err := time.ParseDuration(d.v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.v, err)
		}
	}
	if c.Base != "" {
		if _, err := alias.ParseBase(c.Base); err != nil {
			return fmt.Errorf("invalid base %q: %w", c.Base, err)
		}
	}
	return nil
}

// GetFetchTimeout returns the per-request fetch timeout as a duration.
func (c *Config) GetFetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Fetch.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetNavigationTimeout returns the browser navigation timeout as a duration.
func (c *Config) GetNavigationTimeout() time.Duration {
	d, err := time.ParseDuration(c.Browser.NavigationTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// AliasTable returns the configured aliases as a match table.
func (c *Config) AliasTable() alias.Table {
	return alias.NewTable(c.Aliases...)
}
