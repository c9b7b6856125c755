package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default port should be 8080, got %d", cfg.Server.Port)
	}
	if !cfg.Server.Metrics {
		t.Error("metrics should default to enabled")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.WorkUnit.Command != "" {
		t.Errorf("work unit command should default to empty, got %q", cfg.WorkUnit.Command)
	}
	if cfg.Client.ReconnectDelay != time.Second {
		t.Errorf("reconnect delay should default to 1s, got %v", cfg.Client.ReconnectDelay)
	}
	if cfg.Client.PingInterval != 30*time.Second {
		t.Errorf("ping interval should default to 30s, got %v", cfg.Client.PingInterval)
	}
	if cfg.Client.MaxReconnectAttempts != 0 {
		t.Errorf("reconnect attempts should default to unbounded, got %d", cfg.Client.MaxReconnectAttempts)
	}
}

func TestLoad_FromFile(t *testing.T) {
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
  metrics: false
log:
  level: debug
  format: console
workunit:
  command: my-agent
  args: ["--fast"]
client:
  reconnect_delay: 2s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port should come from the file, got %d", cfg.Server.Port)
	}
	if cfg.Server.Metrics {
		t.Error("metrics should be disabled by the file")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level should come from the file, got %q", cfg.Log.Level)
	}
	if cfg.WorkUnit.Command != "my-agent" || len(cfg.WorkUnit.Args) != 1 {
		t.Errorf("work unit should come from the file: %+v", cfg.WorkUnit)
	}
	if cfg.Client.ReconnectDelay != 2*time.Second {
		t.Errorf("reconnect delay should come from the file, got %v", cfg.Client.ReconnectDelay)
	}

	// Untouched keys keep their defaults.
	if cfg.Server.MaxSessions != 100 {
		t.Errorf("max sessions should keep its default, got %d", cfg.Server.MaxSessions)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("RELAY_SERVER_PORT", "7070")
	t.Setenv("RELAY_LOG_LEVEL", "warn")
	t.Setenv("RELAY_CLIENT_URL", "ws://example.test/api/ws")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("env should override the port, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("env should override the log level, got %q", cfg.Log.Level)
	}
	if cfg.Client.URL != "ws://example.test/api/ws" {
		t.Errorf("env should override the client url, got %q", cfg.Client.URL)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RELAY_SERVER_PORT", "6060")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 6060 {
		t.Errorf("env should win over the file, got %d", cfg.Server.Port)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := Load("does-not-exist.yaml"); err == nil {
		t.Fatal("an explicitly named missing file should be an error")
	}
}
