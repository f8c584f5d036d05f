// Package config provides configuration loading and management for the
// agent: layered YAML files, environment overrides, and hot reload.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete agent configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Agent     AgentConfig     `yaml:"agent"`
	Model     ModelConfig     `yaml:"model"`
	Providers ProvidersConfig `yaml:"providers"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP listener and authentication.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr"`
	// DevSecret is the shared secret accepted in X-A2A-Dev-Secret.
	// Empty disables the scheme.
	DevSecret string `yaml:"dev_secret"`
	// OIDC configures bearer-token validation. Empty issuer disables it.
	OIDC OIDCConfig `yaml:"oidc"`
}

// OIDCConfig configures bearer-token validation against an issuer.
type OIDCConfig struct {
	Issuer  string `yaml:"issuer"`
	JWKSURL string `yaml:"jwks_url"`
	// Audience defaults to the agent ID when empty.
	Audience string `yaml:"audience"`
}

// AgentConfig is the public identity served in the agent card.
type AgentConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	// PublicURL is the externally reachable base URL in the card.
	PublicURL string `yaml:"public_url"`
}

// ModelConfig configures the interpreter's LLM endpoint.
type ModelConfig struct {
	// Provider selects the API dialect ("openai" or "anthropic").
	Provider string `yaml:"provider"`
	// Endpoint is the API base URL.
	Endpoint string `yaml:"endpoint"`
	// Name is the model to request.
	Name string `yaml:"name"`
	// APIKeyEnv names the environment variable holding the key. The key
	// itself never lives in config files.
	APIKeyEnv string `yaml:"api_key_env"`
	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `yaml:"temperature"`
	// Timeout is the maximum time to wait for model responses.
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`
}

// APIKey reads the configured environment variable.
func (m ModelConfig) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}

// ProvidersConfig configures the upstream task and calendar APIs.
type ProvidersConfig struct {
	// ReclaimBaseURL overrides the task API root, for tests.
	ReclaimBaseURL string `yaml:"reclaim_base_url"`
	// NylasBaseURL overrides the calendar API root, for tests.
	NylasBaseURL string `yaml:"nylas_base_url"`
	// Timeout is the per-call deadline for provider requests.
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Agent: AgentConfig{
			ID:          "chronoplan",
			Name:        "ChronoPlan",
			Version:     "0.1.0",
			Description: "Calendar and task orchestration agent",
			PublicURL:   "http://localhost:8080",
		},
		Model: ModelConfig{
			Provider:    "openai",
			Endpoint:    "https://api.openai.com/v1",
			Name:        "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0,
			Timeout:     60 * time.Second,
			MaxTokens:   1024,
		},
		Providers: ProvidersConfig{
			Timeout: 60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Agent.ID == "" {
		return fmt.Errorf("agent.id is required")
	}
	if c.Model.Provider == "" {
		return fmt.Errorf("model.provider is required")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be between 0 and 1")
	}
	if c.Server.OIDC.Issuer != "" && c.Server.OIDC.JWKSURL == "" {
		return fmt.Errorf("server.oidc.jwks_url is required when an issuer is set")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Merge overlays another config onto this one; non-zero fields in other
// take precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.DevSecret != "" {
		c.Server.DevSecret = other.Server.DevSecret
	}
	if other.Server.OIDC.Issuer != "" {
		c.Server.OIDC = other.Server.OIDC
	}

	if other.Agent.ID != "" {
		c.Agent.ID = other.Agent.ID
	}
	if other.Agent.Name != "" {
		c.Agent.Name = other.Agent.Name
	}
	if other.Agent.Version != "" {
		c.Agent.Version = other.Agent.Version
	}
	if other.Agent.Description != "" {
		c.Agent.Description = other.Agent.Description
	}
	if other.Agent.PublicURL != "" {
		c.Agent.PublicURL = other.Agent.PublicURL
	}

	if other.Model.Provider != "" {
		c.Model.Provider = other.Model.Provider
	}
	if other.Model.Endpoint != "" {
		c.Model.Endpoint = other.Model.Endpoint
	}
	if other.Model.Name != "" {
		c.Model.Name = other.Model.Name
	}
	if other.Model.APIKeyEnv != "" {
		c.Model.APIKeyEnv = other.Model.APIKeyEnv
	}
	if other.Model.Temperature != 0 {
		c.Model.Temperature = other.Model.Temperature
	}
	if other.Model.Timeout != 0 {
		c.Model.Timeout = other.Model.Timeout
	}
	if other.Model.MaxTokens != 0 {
		c.Model.MaxTokens = other.Model.MaxTokens
	}

	if other.Providers.ReclaimBaseURL != "" {
		c.Providers.ReclaimBaseURL = other.Providers.ReclaimBaseURL
	}
	if other.Providers.NylasBaseURL != "" {
		c.Providers.NylasBaseURL = other.Providers.NylasBaseURL
	}
	if other.Providers.Timeout != 0 {
		c.Providers.Timeout = other.Providers.Timeout
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}
