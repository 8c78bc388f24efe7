// ABOUTME: Configuration loading and parsing for mcp-router
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete mcp-router configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tokens    TokensConfig    `yaml:"tokens"`
	Approvals ApprovalsConfig `yaml:"approvals"`
	Backends  BackendsConfig  `yaml:"backends"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds listener address configuration
type ServerConfig struct {
	// HTTPAddr serves the MCP facade and the admin API
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds admin API authentication configuration
type AuthConfig struct {
	// JWTSecret signs admin session tokens (HS256)
	JWTSecret string `yaml:"jwt_secret"`
	// AdminPasswordHash is the bcrypt hash of the admin password
	AdminPasswordHash string `yaml:"admin_password_hash"`
}

// TokensConfig holds bearer token TTL policy
type TokensConfig struct {
	DefaultTTL time.Duration `yaml:"-"`
	MaxTTL     time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	DefaultTTLRaw string `yaml:"default_ttl"`
	MaxTTLRaw     string `yaml:"max_ttl"`
}

// ApprovalsConfig holds approval queue timing configuration
type ApprovalsConfig struct {
	TTL           time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`

	TTLRaw           string `yaml:"ttl"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

// BackendsConfig holds backend server supervision timing configuration
type BackendsConfig struct {
	StartTimeout   time.Duration `yaml:"-"`
	StopGrace      time.Duration `yaml:"-"`
	CallTimeout    time.Duration `yaml:"-"`
	HealthInterval time.Duration `yaml:"-"`

	StartTimeoutRaw   string `yaml:"start_timeout"`
	StopGraceRaw      string `yaml:"stop_grace"`
	CallTimeoutRaw    string `yaml:"call_timeout"`
	HealthIntervalRaw string `yaml:"health_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the corresponding config fields are absent.
const (
	DefaultTokenTTL      = 24 * time.Hour
	MaxTokenTTL          = 30 * 24 * time.Hour
	DefaultApprovalTTL   = 5 * time.Minute
	DefaultSweepInterval = 60 * time.Second
	DefaultStartTimeout  = 30 * time.Second
	DefaultStopGrace     = 5 * time.Second
	DefaultCallTimeout   = 60 * time.Second
	DefaultHealthPeriod  = 30 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
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

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Tokens.MaxTTL < c.Tokens.DefaultTTL {
		return fmt.Errorf("tokens.max_ttl must not be smaller than tokens.default_ttl")
	}
	return nil
}

// applyDefaults fills in zero-valued timing fields.
func (c *Config) applyDefaults() {
	if c.Tokens.DefaultTTL == 0 {
		c.Tokens.DefaultTTL = DefaultTokenTTL
	}
	if c.Tokens.MaxTTL == 0 {
		c.Tokens.MaxTTL = MaxTokenTTL
	}
	if c.Approvals.TTL == 0 {
		c.Approvals.TTL = DefaultApprovalTTL
	}
	if c.Approvals.SweepInterval == 0 {
		c.Approvals.SweepInterval = DefaultSweepInterval
	}
	if c.Backends.StartTimeout == 0 {
		c.Backends.StartTimeout = DefaultStartTimeout
	}
	if c.Backends.StopGrace == 0 {
		c.Backends.StopGrace = DefaultStopGrace
	}
	if c.Backends.CallTimeout == 0 {
		c.Backends.CallTimeout = DefaultCallTimeout
	}
	if c.Backends.HealthInterval == 0 {
		c.Backends.HealthInterval = DefaultHealthPeriod
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw string
		dst *time.Duration
		key string
	}{
		{cfg.Tokens.DefaultTTLRaw, &cfg.Tokens.DefaultTTL, "tokens.default_ttl"},
		{cfg.Tokens.MaxTTLRaw, &cfg.Tokens.MaxTTL, "tokens.max_ttl"},
		{cfg.Approvals.TTLRaw, &cfg.Approvals.TTL, "approvals.ttl"},
		{cfg.Approvals.SweepIntervalRaw, &cfg.Approvals.SweepInterval, "approvals.sweep_interval"},
		{cfg.Backends.StartTimeoutRaw, &cfg.Backends.StartTimeout, "backends.start_timeout"},
		{cfg.Backends.StopGraceRaw, &cfg.Backends.StopGrace, "backends.stop_grace"},
		{cfg.Backends.CallTimeoutRaw, &cfg.Backends.CallTimeout, "backends.call_timeout"},
		{cfg.Backends.HealthIntervalRaw, &cfg.Backends.HealthInterval, "backends.health_interval"},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.key, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
