// Package config provides unified configuration loading for the simulator.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/mobility/internal/agents"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Population and round limits accepted from control requests.
const (
	MinAgents = 1
	MaxAgents = 500
	MinRounds = 1
	MaxRounds = 200
)

// Config contains all simulator configuration settings.
type Config struct {
	Simulation  SimulationConfig  `json:"simulation" yaml:"simulation"`
	Server      ServerConfig      `json:"server" yaml:"server"`
	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`
	LLM         LLMConfig         `json:"llm" yaml:"llm"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
}

// SimulationConfig configures the population and the round loop.
type SimulationConfig struct {
	Agents int   `json:"agents" yaml:"agents"`
	Rounds int   `json:"rounds" yaml:"rounds"`
	Seed   int64 `json:"seed" yaml:"seed"`

	// HistoryWindow is the number of rounds of history kept per agent.
	HistoryWindow int `json:"history_window" yaml:"history_window"`

	// DropoutPolicy is "pressure" (default) or "threshold".
	DropoutPolicy string `json:"dropout_policy" yaml:"dropout_policy"`

	// RoundInterval paces the served simulation. The CLI run command ignores it.
	RoundInterval time.Duration `json:"round_interval" yaml:"round_interval"`

	// CatalogPath points to a YAML task catalog. Empty uses the built-in catalog.
	CatalogPath string `json:"catalog_path,omitempty" yaml:"catalog_path,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `json:"port" yaml:"port"`

	// AdminKey is the bearer token for POST endpoints. Empty disables them.
	// Supports ${VAR} syntax for env vars.
	AdminKey string `json:"-" yaml:"admin_key,omitempty"`

	// CORSOrigins lists extra allowed browser origins.
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
}

// PersistenceConfig configures the SQLite report archive.
type PersistenceConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"db_path" yaml:"db_path"`
}

// LLMConfig configures narrative generation.
type LLMConfig struct {
	// APIKey is the Anthropic API key. Supports ${VAR} syntax for env vars.
	APIKey string `json:"-" yaml:"api_key,omitempty"`
	Model  string `json:"model" yaml:"model"`

	// MaxPerHour bounds narrative requests per client.
	MaxPerHour int `json:"max_per_hour" yaml:"max_per_hour"`
}

// Enabled reports whether an API key is configured.
func (c LLMConfig) Enabled() bool {
	return c.APIKey != ""
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Agents:        100,
			Rounds:        50,
			Seed:          42,
			HistoryWindow: agents.DefaultHistoryWindow,
			DropoutPolicy: "pressure",
			RoundInterval: 500 * time.Millisecond,
		},
		Server: ServerConfig{
			Port: 5000,
		},
		Persistence: PersistenceConfig{
			Enabled: false,
			DBPath:  "data/mobility.db",
		},
		LLM: LLMConfig{
			Model:      "claude-haiku-4-5-20251001",
			MaxPerHour: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from path (if non-empty) and environment variables.
// Order: defaults -> file -> environment variables.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Expand environment variables in secrets
	config.LLM.APIKey = expandEnvVars(config.LLM.APIKey)
	config.Server.AdminKey = expandEnvVars(config.Server.AdminKey)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	s := c.Simulation
	if s.Agents < MinAgents || s.Agents > MaxAgents {
		return fmt.Errorf("%w: agents must be between %d and %d, got %d", ErrInvalidConfig, MinAgents, MaxAgents, s.Agents)
	}
	if s.Rounds < MinRounds || s.Rounds > MaxRounds {
		return fmt.Errorf("%w: rounds must be between %d and %d, got %d", ErrInvalidConfig, MinRounds, MaxRounds, s.Rounds)
	}
	if s.HistoryWindow < 1 {
		return fmt.Errorf("%w: history_window must be positive, got %d", ErrInvalidConfig, s.HistoryWindow)
	}
	if s.RoundInterval < 0 {
		return fmt.Errorf("%w: round_interval must be non-negative, got %v", ErrInvalidConfig, s.RoundInterval)
	}
	if _, err := agents.ParseDropoutPolicy(s.DropoutPolicy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Persistence.Enabled && c.Persistence.DBPath == "" {
		return fmt.Errorf("%w: persistence enabled without db_path", ErrInvalidConfig)
	}
	if c.LLM.MaxPerHour < 0 {
		return fmt.Errorf("%w: llm max_per_hour must be non-negative, got %d", ErrInvalidConfig, c.LLM.MaxPerHour)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("%w: invalid log level: %s (valid: info, debug, trace, or empty for default)", ErrInvalidConfig, c.Logging.Level)
	}

	return nil
}

// Policy returns the parsed dropout policy. Call after Validate.
func (s SimulationConfig) Policy() agents.DropoutPolicy {
	p, _ := agents.ParseDropoutPolicy(s.DropoutPolicy)
	return p
}

// ClampAgents limits a requested population size to the accepted range.
func ClampAgents(n int) int {
	return agents.Clamp(n, MinAgents, MaxAgents)
}

// ClampRounds limits a requested round count to the accepted range.
func ClampRounds(n int) int {
	return agents.Clamp(n, MinRounds, MaxRounds)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("MOBILITY_AGENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Agents = n
		}
	}
	if v := os.Getenv("MOBILITY_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Rounds = n
		}
	}
	if v := os.Getenv("MOBILITY_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Simulation.Seed = n
		}
	}
	if v := os.Getenv("MOBILITY_POLICY"); v != "" {
		config.Simulation.DropoutPolicy = v
	}

	if v := os.Getenv("MOBILITY_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Server.Port = n
		}
	}
	if v := os.Getenv("MOBILITY_ADMIN_KEY"); v != "" {
		config.Server.AdminKey = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				config.Server.CORSOrigins = append(config.Server.CORSOrigins, origin)
			}
		}
	}

	if v := os.Getenv("MOBILITY_DB_PATH"); v != "" {
		config.Persistence.DBPath = v
		config.Persistence.Enabled = true
	}

	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		config.LLM.APIKey = v
	}

	if v := os.Getenv("MOBILITY_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
