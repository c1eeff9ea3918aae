// Package config loads the YAML service configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr  string      `yaml:"listen_addr"`
	Provider    Provider    `yaml:"provider"`
	ToolService ToolService `yaml:"tool_service"`
	Agent       Agent       `yaml:"agent"`
}

// Provider selects the OpenAI-compatible backend. The API key is read from
// the named environment variable, never from the file itself.
type Provider struct {
	Name            string `yaml:"name"`
	BaseURL         string `yaml:"base_url"`
	APIKeyEnv       string `yaml:"api_key_env"`
	Model           string `yaml:"model"`
	ClassifierModel string `yaml:"classifier_model"`
	ContextWindow   int    `yaml:"context_window"`
}

type ToolService struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type Agent struct {
	MaxToolIterations int      `yaml:"max_tool_iterations"`
	CacheSize         int      `yaml:"cache_size"`
	CacheTTLMinutes   int      `yaml:"cache_ttl_minutes"`
	WriteTools        []string `yaml:"write_tools"`
}

func Default() Config {
	return Config{
		ListenAddr: "127.0.0.1:8700",
		Provider: Provider{
			Name:      "openai",
			BaseURL:   "https://api.openai.com",
			APIKeyEnv: "OPENAI_API_KEY",
			Model:     "gpt-4o",
		},
		Agent: Agent{
			MaxToolIterations: 8,
			CacheSize:         128,
			CacheTTLMinutes:   30,
		},
	}
}

// Load reads path and overlays it on the defaults. Unknown keys are errors.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if strings.TrimSpace(c.Provider.Model) == "" {
		return fmt.Errorf("provider.model is required")
	}
	if strings.TrimSpace(c.Provider.BaseURL) == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Agent.MaxToolIterations < 0 {
		return fmt.Errorf("agent.max_tool_iterations must not be negative")
	}
	return nil
}

// APIKey resolves the provider key from the configured environment variable.
func (c Config) APIKey() string {
	if c.Provider.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Provider.APIKeyEnv)
}

func (c Config) ToolServiceTimeout() time.Duration {
	if c.ToolService.TimeoutMS <= 0 {
		return 0
	}
	return time.Duration(c.ToolService.TimeoutMS) * time.Millisecond
}

func (c Config) CacheTTL() time.Duration {
	if c.Agent.CacheTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Agent.CacheTTLMinutes) * time.Minute
}
