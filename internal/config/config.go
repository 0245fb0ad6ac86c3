// Package config provides configuration management for the trade copier:
// the YAML engine configuration plus the CSV credential and symbol-mapping
// tables shared with the terminal-side tooling.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Legacy execution knobs carried over from the first deployment. They are
// configurable but the defaults are load-bearing: several brokers in
// production were tuned against exactly these values.
const (
	// defaultOpenDeviation is the slippage allowance (points) on opens.
	defaultOpenDeviation = 120
	// defaultCloseDeviation is the relaxed slippage allowance on closes.
	defaultCloseDeviation = 35
	// defaultMagic tags orders as copier-originated.
	defaultMagic = 123456
	// defaultPollInterval paces the replication loop.
	defaultPollInterval = 300 * time.Millisecond
	// defaultFeedPollInterval paces the master state publisher.
	defaultFeedPollInterval = 200 * time.Millisecond
)

// Config represents the complete application configuration.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Files     FilesConfig     `yaml:"files"`
	Engine    EngineConfig    `yaml:"engine"`
	Publisher PublisherConfig `yaml:"publisher"`
}

// BridgeConfig locates the terminal bridge sidecar.
type BridgeConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// FilesConfig points at the two CSV tables and the audit log.
type FilesConfig struct {
	Credentials string `yaml:"credentials"`
	SymbolMap   string `yaml:"symbol_map"`
	AuditLog    string `yaml:"audit_log"`
}

// EngineConfig tunes the replication engine.
type EngineConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	OpenDeviation  int           `yaml:"open_deviation"`
	CloseDeviation int           `yaml:"close_deviation"`
	Magic          int           `yaml:"magic"`
	OpenComment    string        `yaml:"open_comment"`
	CloseComment   string        `yaml:"close_comment"`
}

// PublisherConfig tunes the master state publisher. An HTTPPort of 0
// disables the HTTP endpoint; the file output is always on.
type PublisherConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	OutputDir    string        `yaml:"output_dir"`
	HTTPPort     int           `yaml:"http_port"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Files.Credentials == "" {
		c.Files.Credentials = "credentials.csv"
	}
	if c.Files.SymbolMap == "" {
		c.Files.SymbolMap = "symbol_mapping.csv"
	}
	if c.Files.AuditLog == "" {
		c.Files.AuditLog = "orderlog.txt"
	}
	if c.Engine.PollInterval == 0 {
		c.Engine.PollInterval = defaultPollInterval
	}
	if c.Engine.OpenDeviation == 0 {
		c.Engine.OpenDeviation = defaultOpenDeviation
	}
	if c.Engine.CloseDeviation == 0 {
		c.Engine.CloseDeviation = defaultCloseDeviation
	}
	if c.Engine.Magic == 0 {
		c.Engine.Magic = defaultMagic
	}
	if c.Engine.OpenComment == "" {
		c.Engine.OpenComment = "Copied Trade"
	}
	if c.Engine.CloseComment == "" {
		c.Engine.CloseComment = "Closed by Copier"
	}
	if c.Publisher.PollInterval == 0 {
		c.Publisher.PollInterval = defaultFeedPollInterval
	}
	if c.Publisher.OutputDir == "" {
		c.Publisher.OutputDir = "."
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Bridge.URL == "" {
		return fmt.Errorf("bridge.url is required")
	}
	if c.Engine.PollInterval < 50*time.Millisecond {
		return fmt.Errorf("engine.poll_interval must be at least 50ms")
	}
	if c.Engine.OpenDeviation < 0 {
		return fmt.Errorf("engine.open_deviation must not be negative")
	}
	if c.Engine.CloseDeviation < 0 {
		return fmt.Errorf("engine.close_deviation must not be negative")
	}
	if c.Publisher.PollInterval < 50*time.Millisecond {
		return fmt.Errorf("publisher.poll_interval must be at least 50ms")
	}
	if c.Publisher.HTTPPort < 0 || c.Publisher.HTTPPort > 65535 {
		return fmt.Errorf("publisher.http_port must be in [0, 65535]")
	}
	return nil
}
