// ABOUTME: Configuration loading and parsing for turtle-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete turtle-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Agents    AgentsConfig    `yaml:"agents" toml:"agents"`
	Dashboard DashboardConfig `yaml:"dashboard" toml:"dashboard"`
	Recorder  RecorderConfig  `yaml:"recorder" toml:"recorder"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// DatabaseConfig holds ledger database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds operator API authentication configuration.
// An empty secret leaves the API open.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// AgentsConfig holds turtle control configuration
type AgentsConfig struct {
	CommandTimeout   time.Duration `yaml:"-" toml:"-"`
	IdlePollInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	CommandTimeoutRaw   string `yaml:"command_timeout" toml:"command_timeout"`
	IdlePollIntervalRaw string `yaml:"idle_poll_interval" toml:"idle_poll_interval"`

	HistoryCapacity    int      `yaml:"history_capacity" toml:"history_capacity"`
	MaxMoveAttempts    int      `yaml:"max_move_attempts" toml:"max_move_attempts"`
	CalibrateOnConnect bool     `yaml:"calibrate_on_connect" toml:"calibrate_on_connect"`
	FuelItems          []string `yaml:"fuel_items" toml:"fuel_items"`
}

// DashboardConfig holds dashboard broadcast configuration
type DashboardConfig struct {
	BroadcastInterval    time.Duration `yaml:"-" toml:"-"`
	BroadcastIntervalRaw string        `yaml:"broadcast_interval" toml:"broadcast_interval"`
}

// RecorderConfig holds dashboard frame recording configuration
type RecorderConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Dir     string `yaml:"dir" toml:"dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Defaults applied to unset fields
const (
	DefaultHTTPAddr          = "0.0.0.0:8080"
	DefaultCommandTimeout    = 30 * time.Second
	DefaultIdlePollInterval  = time.Second
	DefaultHistoryCapacity   = 100
	DefaultBroadcastInterval = 100 * time.Millisecond
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// DefaultFuelItems are burned by the Refuel goal when none are configured
var DefaultFuelItems = []string{"minecraft:coal", "minecraft:charcoal"}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// envVarPattern matches ${VAR_NAME}
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// applyDefaults fills unset optional fields
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Agents.CommandTimeout == 0 {
		c.Agents.CommandTimeout = DefaultCommandTimeout
	}
	if c.Agents.IdlePollInterval == 0 {
		c.Agents.IdlePollInterval = DefaultIdlePollInterval
	}
	if c.Agents.HistoryCapacity == 0 {
		c.Agents.HistoryCapacity = DefaultHistoryCapacity
	}
	if len(c.Agents.FuelItems) == 0 {
		c.Agents.FuelItems = append([]string(nil), DefaultFuelItems...)
	}
	if c.Dashboard.BroadcastInterval == 0 {
		c.Dashboard.BroadcastInterval = DefaultBroadcastInterval
	}
	if c.Recorder.Enabled && c.Recorder.Dir == "" && c.Database.Path != "" {
		c.Recorder.Dir = filepath.Join(filepath.Dir(c.Database.Path), "recordings")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The HTTP address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	if c.Agents.HistoryCapacity < 0 {
		return fmt.Errorf("agents.history_capacity must not be negative")
	}
	if c.Agents.MaxMoveAttempts < 0 {
		return fmt.Errorf("agents.max_move_attempts must not be negative")
	}
	if c.Agents.CommandTimeout < 0 {
		return fmt.Errorf("agents.command_timeout must not be negative")
	}

	if c.Recorder.Enabled && c.Recorder.Dir == "" {
		return fmt.Errorf("recorder.dir is required when the recorder is enabled")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"command_timeout", cfg.Agents.CommandTimeoutRaw, &cfg.Agents.CommandTimeout},
		{"idle_poll_interval", cfg.Agents.IdlePollIntervalRaw, &cfg.Agents.IdlePollInterval},
		{"broadcast_interval", cfg.Dashboard.BroadcastIntervalRaw, &cfg.Dashboard.BroadcastInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}

// DefaultPath returns the config path from TURTLE_CONFIG, falling back to
// $XDG_CONFIG_HOME/turtle-gateway/gateway.yaml.
func DefaultPath() string {
	if p := os.Getenv("TURTLE_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "turtle-gateway", "gateway.yaml")
}

// Sample is a commented starting configuration written by `turtle-gateway init`
const Sample = `# turtle-gateway configuration
server:
  http_addr: "0.0.0.0:8080"     # turtles connect to /ws, dashboards to /turtle_updates

tailscale:
  enabled: false
  hostname: "turtle-gateway"
  auth_key: "${TS_AUTHKEY}"
  state_dir: ""
  ephemeral: false

database:
  path: "${HOME}/.local/share/turtle-gateway/ledger.db"

auth:
  jwt_secret: "${TURTLE_JWT_SECRET}"   # empty leaves the operator API open

agents:
  command_timeout: "30s"
  idle_poll_interval: "1s"
  history_capacity: 100
  max_move_attempts: 0          # 0 retries blocked moves forever
  calibrate_on_connect: false
  fuel_items:
    - "minecraft:coal"
    - "minecraft:charcoal"

dashboard:
  broadcast_interval: "100ms"

recorder:
  enabled: false
  dir: ""

logging:
  level: "info"   # debug, info, warn, error
  format: "text"  # text, json
`
