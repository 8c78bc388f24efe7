// ABOUTME: Configuration loading for the admin CLI
// ABOUTME: Loads TOML config from XDG path with environment variable expansion

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Router RouterConfig `toml:"router"`
}

type RouterConfig struct {
	URL     string `toml:"url"`
	Session string `toml:"session"`
}

// configPath returns the admin CLI config location.
// Priority: MCP_ROUTER_ADMIN_CONFIG env var > XDG_CONFIG_HOME/mcp-router/admin.toml > ~/.config/mcp-router/admin.toml
func configPath() string {
	if envPath := os.Getenv("MCP_ROUTER_ADMIN_CONFIG"); envPath != "" {
		return envPath
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "admin.toml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "mcp-router", "admin.toml")
}

// loadConfig reads the CLI config, expanding environment variables. A
// missing file yields defaults so commands can run against localhost.
func loadConfig() (*Config, error) {
	cfg := &Config{Router: RouterConfig{URL: "http://127.0.0.1:8400"}}

	data, err := os.ReadFile(configPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))
	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Router.URL = strings.TrimRight(cfg.Router.URL, "/")
	return cfg, nil
}

// saveConfig writes the CLI config, creating the directory if needed.
func saveConfig(cfg *Config) error {
	path := configPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} references with environment values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
