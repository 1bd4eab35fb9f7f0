// Package config provides docuflow's configuration: defaults, YAML file
// loading, and environment overrides, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
	// Database configures the execution state store.
	Database DatabaseConfig `yaml:"database"`
	// LLM configures the completion provider.
	LLM LLMConfig `yaml:"llm"`
	// Plans configures plan definition loading.
	Plans PlansConfig `yaml:"plans"`
	// Engine configures execution behavior.
	Engine EngineConfig `yaml:"engine"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "json" or "console".
	Format string `yaml:"format"`
}

// DatabaseConfig configures the state store backend.
type DatabaseConfig struct {
	// Driver is "memory", "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is the connection string. For sqlite this is the database file
	// path (":memory:" for an in-memory database).
	DSN string `yaml:"dsn"`
	// MaxOpenConns caps the connection pool.
	MaxOpenConns int `yaml:"max_open_conns"`
	// MaxIdleConns caps idle connections.
	MaxIdleConns int `yaml:"max_idle_conns"`
	// ConnMaxLifetime bounds a connection's lifetime.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	// Provider names the provider implementation ("openai").
	Provider string `yaml:"provider"`
	// BaseURL is the API root for OpenAI-compatible endpoints.
	BaseURL string `yaml:"base_url"`
	// APIKey authenticates requests. Prefer the env override.
	APIKey string `yaml:"api_key"`
	// Model is the default model.
	Model string `yaml:"model"`
	// RequestsPerMinute caps the request rate; 0 disables limiting.
	RequestsPerMinute int `yaml:"requests_per_minute"`
	// Timeout bounds one completion round trip.
	Timeout time.Duration `yaml:"timeout"`
}

// PlansConfig configures plan loading.
type PlansConfig struct {
	// Dir holds the *.yaml plan definitions and optional index.yaml.
	Dir string `yaml:"dir"`
	// PromptDir holds task prompts, one file per task ref.
	PromptDir string `yaml:"prompt_dir"`
}

// EngineConfig configures execution behavior.
type EngineConfig struct {
	// MaxSteps bounds one run-to-completion call.
	MaxSteps int `yaml:"max_steps"`
	// PollInterval paces AwaitResolution polling.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "docuflow.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		LLM: LLMConfig{
			Provider:          "openai",
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o-mini",
			RequestsPerMinute: 60,
			Timeout:           120 * time.Second,
		},
		Plans: PlansConfig{Dir: "./plans", PromptDir: "./prompts"},
		Engine: EngineConfig{
			MaxSteps:     100,
			PollInterval: 2 * time.Second,
		},
	}
}

// Load builds configuration from defaults, then the YAML file at path (if
// any), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides select fields from DOCUFLOW_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("DOCUFLOW_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("DOCUFLOW_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DOCUFLOW_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("DOCUFLOW_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("DOCUFLOW_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("DOCUFLOW_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("DOCUFLOW_PLANS_DIR"); v != "" {
		c.Plans.Dir = v
	}
	if v := os.Getenv("DOCUFLOW_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.MaxSteps = n
		}
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Engine.MaxSteps <= 0 {
		return fmt.Errorf("engine.max_steps must be positive, got %d", c.Engine.MaxSteps)
	}
	return nil
}
