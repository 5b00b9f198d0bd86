// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "0.0.0.0:9000"
  read_timeout: "45s"
  allowed_origins:
    - "https://dash.example.com"

database:
  path: "./test.db"

auth:
  token: "shared"
  jwt_secret: "`+testSecret+`"

agents:
  default_id: "Ops Team"
  runtime: "echo"

http:
  max_body_bytes: 2048

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:9000")
	}
	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 45s", cfg.Server.ReadTimeout)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://dash.example.com" {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Auth.Token != "shared" {
		t.Errorf("Auth.Token = %q", cfg.Auth.Token)
	}
	if cfg.Agents.DefaultID != "ops-team" {
		t.Errorf("Agents.DefaultID = %q, want normalized %q", cfg.Agents.DefaultID, "ops-team")
	}
	if cfg.HTTP.MaxBodyBytes != 2048 {
		t.Errorf("HTTP.MaxBodyBytes = %d, want 2048", cfg.HTTP.MaxBodyBytes)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeConfig(t, "gateway.toml", `
[server]
http_addr = "127.0.0.1:7000"

[database]
path = "gw.db"

[auth]
token = "tok"

[tailscale]
enabled = true
hostname = "moltbot"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:7000" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if !cfg.Tailscale.Enabled || cfg.Tailscale.Hostname != "moltbot" {
		t.Errorf("Tailscale = %+v", cfg.Tailscale)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
database:
  path: "gw.db"
auth:
  token: "tok"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.Server.ReadTimeout != DefaultReadTimeout {
		t.Errorf("Server.ReadTimeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Agents.DefaultID != "main" || cfg.Agents.Runtime != DefaultRuntime {
		t.Errorf("Agents = %+v", cfg.Agents)
	}
	if cfg.HTTP.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Errorf("HTTP.MaxBodyBytes = %d", cfg.HTTP.MaxBodyBytes)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("MOLTBOT_TEST_TOKEN", "from-env")
	t.Setenv("MOLTBOT_TEST_DB", "/tmp/env.db")

	path := writeConfig(t, "gateway.yaml", `
database:
  path: "${MOLTBOT_TEST_DB}"
auth:
  token: "${MOLTBOT_TEST_TOKEN}"
  password_hash: "${MOLTBOT_TEST_UNSET_VAR}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.Token != "from-env" {
		t.Errorf("Auth.Token = %q, want from-env", cfg.Auth.Token)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Auth.PasswordHash != "" {
		t.Errorf("unset var should expand to empty, got %q", cfg.Auth.PasswordHash)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing database",
			content: "auth:\n  token: tok\n",
			wantErr: "database.path is required",
		},
		{
			name:    "no auth",
			content: "database:\n  path: gw.db\n",
			wantErr: "at least one of token",
		},
		{
			name:    "weak jwt secret",
			content: "database:\n  path: gw.db\nauth:\n  jwt_secret: short\n",
			wantErr: "jwt_secret must be at least",
		},
		{
			name:    "tailscale without hostname",
			content: "database:\n  path: gw.db\nauth:\n  token: tok\ntailscale:\n  enabled: true\n",
			wantErr: "tailscale.hostname is required",
		},
		{
			name:    "bad duration",
			content: "server:\n  read_timeout: soon\ndatabase:\n  path: gw.db\nauth:\n  token: tok\n",
			wantErr: "parsing read_timeout",
		},
		{
			name:    "bad log level",
			content: "database:\n  path: gw.db\nauth:\n  token: tok\nlogging:\n  level: loud\n",
			wantErr: "logging.level",
		},
		{
			name:    "negative body limit",
			content: "database:\n  path: gw.db\nauth:\n  token: tok\nhttp:\n  max_body_bytes: -1\n",
			wantErr: "max_body_bytes",
		},
		{
			name:    "invalid yaml",
			content: "server: [unclosed\n",
			wantErr: "parsing config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "gateway.yaml", tt.content))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("Load() error = %v, want reading config file", err)
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/moltbot/env.yaml")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	got, err := ResolvePath("/explicit.yaml")
	if err != nil || got != "/explicit.yaml" {
		t.Errorf("ResolvePath(flag) = %q, %v", got, err)
	}

	got, _ = ResolvePath("")
	if got != "/etc/moltbot/env.yaml" {
		t.Errorf("ResolvePath(env) = %q", got)
	}

	t.Setenv(EnvConfigPath, "")
	got, _ = ResolvePath("")
	if got != filepath.Join("/xdg", "moltbot", "gateway.yaml") {
		t.Errorf("ResolvePath(xdg) = %q", got)
	}
}
