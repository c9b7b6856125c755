// Package config loads broker configuration from defaults, an optional
// YAML file, and RELAY_-prefixed environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "RELAY_CONFIG"

// DefaultConfigPaths lists where config files are searched, first hit
// wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/agent-relay/config.yaml",
}

// Config is the root configuration for both the server and the bundled
// terminal client.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	WorkUnit WorkUnitConfig `koanf:"workunit"`
	Client   ClientConfig   `koanf:"client"`
}

// ServerConfig holds the HTTP/WebSocket server settings.
type ServerConfig struct {
	Port        int  `koanf:"port"`
	Metrics     bool `koanf:"metrics"`
	MaxSessions int  `koanf:"max_sessions"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// WorkUnitConfig selects the work unit the server wraps. When Command
// is empty the built-in echo work unit is used.
type WorkUnitConfig struct {
	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`
}

// ClientConfig holds the resilient-connection settings of the terminal
// client.
type ClientConfig struct {
	URL                  string        `koanf:"url"`
	ReconnectDelay       time.Duration `koanf:"reconnect_delay"`
	MaxReconnectAttempts int           `koanf:"max_reconnect_attempts"`
	PingInterval         time.Duration `koanf:"ping_interval"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Metrics:     true,
			MaxSessions: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		WorkUnit: WorkUnitConfig{},
		Client: ClientConfig{
			URL:                  "ws://127.0.0.1:8080/api/ws",
			ReconnectDelay:       time.Second,
			MaxReconnectAttempts: 0, // unbounded
			PingInterval:         30 * time.Second,
		},
	}
}

// Load builds the configuration. path may be empty, in which case the
// RELAY_CONFIG env var and then DefaultConfigPaths are consulted; a
// missing file is not an error, env vars still apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path == "" {
		for _, p := range DefaultConfigPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// RELAY_SERVER_PORT → server.port
	err := k.Load(env.Provider("RELAY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "RELAY_")), "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
