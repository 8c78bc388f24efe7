// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:9450"

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret"

tokens:
  default_ttl: "24h"
  max_ttl: "720h"

approvals:
  ttl: "5m"
  sweep_interval: "60s"

backends:
  start_timeout: "30s"
  stop_grace: "5s"
  call_timeout: "90s"
  health_interval: "15s"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9450" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:9450")
	}
	if cfg.Tokens.DefaultTTL != 24*time.Hour {
		t.Errorf("DefaultTTL = %v, want 24h", cfg.Tokens.DefaultTTL)
	}
	if cfg.Tokens.MaxTTL != 720*time.Hour {
		t.Errorf("MaxTTL = %v, want 720h", cfg.Tokens.MaxTTL)
	}
	if cfg.Approvals.TTL != 5*time.Minute {
		t.Errorf("Approvals.TTL = %v, want 5m", cfg.Approvals.TTL)
	}
	if cfg.Backends.CallTimeout != 90*time.Second {
		t.Errorf("CallTimeout = %v, want 90s", cfg.Backends.CallTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:9450"
database:
  path: "./test.db"
auth:
  jwt_secret: "test-secret"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Tokens.DefaultTTL != DefaultTokenTTL {
		t.Errorf("DefaultTTL = %v, want %v", cfg.Tokens.DefaultTTL, DefaultTokenTTL)
	}
	if cfg.Tokens.MaxTTL != MaxTokenTTL {
		t.Errorf("MaxTTL = %v, want %v", cfg.Tokens.MaxTTL, MaxTokenTTL)
	}
	if cfg.Approvals.SweepInterval != DefaultSweepInterval {
		t.Errorf("SweepInterval = %v, want %v", cfg.Approvals.SweepInterval, DefaultSweepInterval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("MCP_ROUTER_TEST_SECRET", "expanded-secret")

	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:9450"
database:
  path: "./test.db"
auth:
  jwt_secret: "${MCP_ROUTER_TEST_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Auth.JWTSecret != "expanded-secret" {
		t.Errorf("JWTSecret = %q, want expanded-secret", cfg.Auth.JWTSecret)
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing http_addr",
			content: `
database:
  path: "./test.db"
auth:
  jwt_secret: "s"
`,
			wantErr: "http_addr",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: "127.0.0.1:9450"
auth:
  jwt_secret: "s"
`,
			wantErr: "database.path",
		},
		{
			name: "missing jwt secret",
			content: `
server:
  http_addr: "127.0.0.1:9450"
database:
  path: "./test.db"
`,
			wantErr: "jwt_secret",
		},
		{
			name: "max ttl below default ttl",
			content: `
server:
  http_addr: "127.0.0.1:9450"
database:
  path: "./test.db"
auth:
  jwt_secret: "s"
tokens:
  default_ttl: "48h"
  max_ttl: "24h"
`,
			wantErr: "max_ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.content)
			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:9450"
database:
  path: "./test.db"
auth:
  jwt_secret: "s"
approvals:
  ttl: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load succeeded, want error")
	}
	if !strings.Contains(err.Error(), "approvals.ttl") {
		t.Errorf("error %q does not mention approvals.ttl", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load succeeded, want error")
	}
}
