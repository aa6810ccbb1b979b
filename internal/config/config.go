package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no explicit path is given.
const DefaultPath = ".finsight/config.yaml"

// Config holds all finsight configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	LLM       LLMConfig       `yaml:"llm"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Retry     RetryConfig     `yaml:"retry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Usage     UsageConfig     `yaml:"usage"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// SchedulerConfig configures admission control.
type SchedulerConfig struct {
	MaxConcurrent int    `yaml:"max_concurrent"`
	WaitTimeout   string `yaml:"wait_timeout"`
	TickInterval  string `yaml:"tick_interval"`
}

// RetryConfig configures the retry executor.
type RetryConfig struct {
	MaxRetries   int     `yaml:"max_retries"`
	BaseDelay    string  `yaml:"base_delay"`
	MaxDelay     string  `yaml:"max_delay"`
	JitterFactor float64 `yaml:"jitter_factor"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
}

// LoggingConfig configures category logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"` // false = no logging (production)
	Categories map[string]bool `yaml:"categories"`
	Directory  string          `yaml:"directory"`
}

// UsageConfig configures usage accounting.
type UsageConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Workspace string `yaml:"workspace"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "finsight",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  "120s",
		},

		Scheduler: SchedulerConfig{
			MaxConcurrent: 3,
			WaitTimeout:   "5m",
			TickInterval:  "1s",
		},

		Retry: RetryConfig{
			MaxRetries:   5,
			BaseDelay:    "1s",
			MaxDelay:     "60s",
			JitterFactor: 0.1,
			MaxTokens:    4096,
			Temperature:  0.3,
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Directory: ".finsight/logs",
		},

		Usage: UsageConfig{
			Enabled:   true,
			Workspace: ".",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if model := os.Getenv("FINSIGHT_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("FINSIGHT_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if ws := os.Getenv("FINSIGHT_WORKSPACE"); ws != "" {
		c.Usage.Workspace = ws
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetWaitTimeout returns the scheduler wait timeout as a duration.
func (c *Config) GetWaitTimeout() time.Duration {
	return parseDuration(c.Scheduler.WaitTimeout, 5*time.Minute)
}

// GetTickInterval returns the scheduler tick interval as a duration.
func (c *Config) GetTickInterval() time.Duration {
	return parseDuration(c.Scheduler.TickInterval, time.Second)
}

// GetBaseDelay returns the retry base delay as a duration.
func (c *Config) GetBaseDelay() time.Duration {
	return parseDuration(c.Retry.BaseDelay, time.Second)
}

// GetMaxDelay returns the retry delay cap as a duration.
func (c *Config) GetMaxDelay() time.Duration {
	return parseDuration(c.Retry.MaxDelay, 60*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
