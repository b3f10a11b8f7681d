// Package config loads domheal configuration from YAML.
//
//	strictness: allow_non_matching_query_strings
//	log_level: debug
//	browser:
//	  remote: ws://127.0.0.1:9222/devtools/browser/...
//	  stealth: headless
//	  resource_blocking: [images, fonts]
//	retry:
//	  timeout: 15s
//	  interval: 100ms
//	journal:
//	  path: data/domheal.db
//	  retention: 168h
//	watch:
//	  url: https://example.com/
//	  selectors: ["#price", "h1"]
//	pilot:
//	  allow_private_hosts: true
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/domheal/browser"
	"github.com/hazyhaar/domheal/fixture"
	"github.com/hazyhaar/domheal/heal"
	"github.com/hazyhaar/domheal/retrier"
)

// Config is the top-level configuration.
type Config struct {
	Strictness heal.Strictness `yaml:"strictness"`
	LogLevel   string          `yaml:"log_level"`
	Browser    BrowserConfig   `yaml:"browser"`
	Retry      RetryConfig     `yaml:"retry"`
	Journal    JournalConfig   `yaml:"journal"`
	Fixture    FixtureConfig   `yaml:"fixture"`
	Watch      WatchConfig     `yaml:"watch"`
	Pilot      PilotConfig     `yaml:"pilot"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote            string        `yaml:"remote"`
	Bin               string        `yaml:"bin"`
	Stealth           string        `yaml:"stealth"` // plain | headless | headful
	MemoryLimit       int64         `yaml:"memory_limit"`
	RecycleInterval   time.Duration `yaml:"recycle_interval"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	ResourceBlocking  []string      `yaml:"resource_blocking"`
}

// RetryConfig controls polling.
type RetryConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
}

// JournalConfig controls the SQLite event journal. An empty path disables it.
type JournalConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// FixtureConfig controls the fixture server.
type FixtureConfig struct {
	Addr     string        `yaml:"addr"`
	Interval time.Duration `yaml:"interval"`
}

// WatchConfig lists elements to follow on a page.
type WatchConfig struct {
	URL       string        `yaml:"url"`
	Selectors []string      `yaml:"selectors"`
	Interval  time.Duration `yaml:"interval"`
}

// PilotConfig controls the MCP handle registry.
type PilotConfig struct {
	MaxHandles        int           `yaml:"max_handles"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
	AllowPrivateHosts bool          `yaml:"allow_private_hosts"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Strictness == 0 {
		c.Strictness = heal.DefaultStrictness
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.NavigationTimeout <= 0 {
		c.Browser.NavigationTimeout = 30 * time.Second
	}
	if c.Retry.Timeout <= 0 {
		c.Retry.Timeout = retrier.DefaultTimeout
	}
	if c.Retry.Interval <= 0 {
		c.Retry.Interval = retrier.DefaultInterval
	}
	if c.Fixture.Addr == "" {
		c.Fixture.Addr = "127.0.0.1:1963"
	}
	if c.Fixture.Interval <= 0 {
		c.Fixture.Interval = time.Second
	}
	if c.Watch.Interval <= 0 {
		c.Watch.Interval = time.Second
	}
	if c.Pilot.MaxHandles <= 0 {
		c.Pilot.MaxHandles = 1000
	}
	if c.Pilot.CallTimeout <= 0 {
		c.Pilot.CallTimeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if _, err := browser.ParseStealthLevel(c.Browser.Stealth); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return l, nil
}

// BrowserManager returns the browser.Config this configuration describes.
func (c *Config) BrowserManager(logger *slog.Logger) browser.Config {
	level, _ := browser.ParseStealthLevel(c.Browser.Stealth)
	return browser.Config{
		RemoteURL:         c.Browser.Remote,
		Bin:               c.Browser.Bin,
		Stealth:           level,
		MemoryLimit:       c.Browser.MemoryLimit,
		RecycleInterval:   c.Browser.RecycleInterval,
		NavigationTimeout: c.Browser.NavigationTimeout,
		ResourceBlocking:  c.Browser.ResourceBlocking,
		Logger:            logger,
	}
}

// Retrier returns the retrier.Options this configuration describes.
func (c *Config) Retrier(logger *slog.Logger) retrier.Options {
	return retrier.Options{Timeout: c.Retry.Timeout, Interval: c.Retry.Interval, Logger: logger}
}

// FixtureRouter returns the fixture.Config this configuration describes.
func (c *Config) FixtureRouter(logger *slog.Logger) fixture.Config {
	return fixture.Config{Interval: c.Fixture.Interval, Logger: logger}
}
