// ABOUTME: Configuration loading and parsing for debug-agent
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete debug-agent configuration
type Config struct {
	Agent    AgentConfig    `yaml:"agent" toml:"agent"`
	Engine   EngineConfig   `yaml:"engine" toml:"engine"`
	HTTP     HTTPConfig     `yaml:"http" toml:"http"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// AgentConfig holds the debugger port configuration
type AgentConfig struct {
	Name          string `yaml:"name" toml:"name"`
	Host          string `yaml:"host" toml:"host"`
	Port          int    `yaml:"port" toml:"port"`
	EmbeddingHost string `yaml:"embedding_host" toml:"embedding_host"`

	BindRetryInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string value for YAML/TOML unmarshaling
	BindRetryIntervalRaw string `yaml:"bind_retry_interval" toml:"bind_retry_interval"`
}

// Addr returns the host:port the agent listens on.
func (a AgentConfig) Addr() string {
	return net.JoinHostPort(a.Host, fmt.Sprint(a.Port))
}

// EngineConfig holds settings for the built-in engine
type EngineConfig struct {
	Version string `yaml:"version" toml:"version"`
}

// HTTPConfig holds the status endpoint configuration. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// DatabaseConfig holds the session ledger configuration. An empty Path disables it.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Name:                 "debug-agent",
			Host:                 "127.0.0.1",
			Port:                 5858,
			BindRetryInterval:    time.Second,
			BindRetryIntervalRaw: "1s",
		},
		Engine: EngineConfig{
			Version: "dev",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Keys missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.Database.Path = expandHome(cfg.Database.Path)

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Agent.Name) == "" {
		return fmt.Errorf("agent.name is required")
	}

	if c.Agent.Port < 0 || c.Agent.Port > 65535 {
		return fmt.Errorf("agent.port %d out of range 0-65535", c.Agent.Port)
	}

	if c.Agent.BindRetryInterval <= 0 {
		return fmt.Errorf("agent.bind_retry_interval must be positive")
	}

	if c.Engine.Version == "" {
		return fmt.Errorf("engine.version is required")
	}

	if c.HTTP.Addr != "" {
		if _, _, err := net.SplitHostPort(c.HTTP.Addr); err != nil {
			return fmt.Errorf("http.addr %q: %w", c.HTTP.Addr, err)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Agent.BindRetryIntervalRaw != "" {
		d, err := time.ParseDuration(cfg.Agent.BindRetryIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing bind_retry_interval %q: %w", cfg.Agent.BindRetryIntervalRaw, err)
		}
		cfg.Agent.BindRetryInterval = d
	}

	return nil
}
