package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all domscout configuration.
type Config struct {
	// Selector synthesis
	Selector SelectorConfig `yaml:"selector"`

	// Discovery paging
	Discovery DiscoveryConfig `yaml:"discovery"`

	// Live browser host
	Browser BrowserConfig `yaml:"browser"`

	// Scan-run persistence
	Store StoreConfig `yaml:"store"`

	// Remote-evaluation surface
	Surface SurfaceConfig `yaml:"surface"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// SelectorConfig configures the selector synthesizer.
type SelectorConfig struct {
	Strategies         []string `yaml:"strategies"` // id, class, attribute, tag, nthchild
	PrefixTag          bool     `yaml:"prefix_tag"`
	IDBlacklist        []string `yaml:"id_blacklist"`
	ClassBlacklist     []string `yaml:"class_blacklist"`
	AttributeBlacklist []string `yaml:"attribute_blacklist"`
	AttributeWhitelist []string `yaml:"attribute_whitelist"`
}

// DiscoveryConfig configures query pagination.
type DiscoveryConfig struct {
	PageSize int `yaml:"page_size"`
}

// BrowserConfig configures the rod-driven live host.
type BrowserConfig struct {
	DebuggerURL       string   `yaml:"debugger_url"`
	Launch            []string `yaml:"launch"`
	Headless          bool     `yaml:"headless"`
	ViewportWidth     int      `yaml:"viewport_width"`
	ViewportHeight    int      `yaml:"viewport_height"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
	SettleTime        string   `yaml:"settle_time"` // wait after load before the first query
}

// StoreConfig configures the SQLite run store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// SurfaceConfig configures the HTTP surface.
type SurfaceConfig struct {
	Listen string `yaml:"listen"`
}

// KnownStrategies lists the selector strategies the synthesizer understands.
var KnownStrategies = []string{"id", "class", "attribute", "tag", "nthchild"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Selector: SelectorConfig{
			Strategies: []string{"id", "class", "tag", "nthchild"},
		},
		Discovery: DiscoveryConfig{
			PageSize: 20,
		},
		Browser: BrowserConfig{
			Headless:          true,
			ViewportWidth:     1920,
			ViewportHeight:    1080,
			NavigationTimeout: "30s",
			SettleTime:        "500ms",
		},
		Store: StoreConfig{
			Path: filepath.Join(".domscout", "runs.db"),
		},
		Surface: SurfaceConfig{
			Listen: "127.0.0.1:8765",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		data = nil
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("DOMSCOUT_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if v := os.Getenv("DOMSCOUT_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if addr := os.Getenv("DOMSCOUT_LISTEN"); addr != "" {
		c.Surface.Listen = addr
	}
	if path := os.Getenv("DOMSCOUT_DB"); path != "" {
		c.Store.Path = path
	}
}

// GetNavigationTimeout returns the navigation timeout as a duration.
func (c *Config) GetNavigationTimeout() time.Duration {
	d, err := time.ParseDuration(c.Browser.NavigationTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetSettleTime returns how long to wait after load before querying.
func (c *Config) GetSettleTime() time.Duration {
	d, err := time.ParseDuration(c.Browser.SettleTime)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Selector.Strategies) == 0 {
		return fmt.Errorf("selector.strategies must not be empty (valid: %v)", KnownStrategies)
	}
	for _, s := range c.Selector.Strategies {
		if !isKnownStrategy(s) {
			return fmt.Errorf("invalid selector strategy: %s (valid: %v)", s, KnownStrategies)
		}
	}
	if c.Discovery.PageSize <= 0 {
		return fmt.Errorf("discovery.page_size must be positive, got %d", c.Discovery.PageSize)
	}
	if c.Browser.NavigationTimeout != "" {
		if _, err := time.ParseDuration(c.Browser.NavigationTimeout); err != nil {
			return fmt.Errorf("invalid browser.navigation_timeout: %w", err)
		}
	}
	if c.Browser.SettleTime != "" {
		if _, err := time.ParseDuration(c.Browser.SettleTime); err != nil {
			return fmt.Errorf("invalid browser.settle_time: %w", err)
		}
	}
	return nil
}

func isKnownStrategy(s string) bool {
	for _, k := range KnownStrategies {
		if s == k {
			return true
		}
	}
	return false
}
