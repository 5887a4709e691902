package assistant

import (
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the OpenAI API root; any compatible server works.
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-3.5-turbo"
	// DefaultHistory is how many exchanges are replayed per chat.
	DefaultHistory = 10
)

// Config selects the chat completion backend.
type Config struct {
	BaseURL     string        `yaml:"base_url" envconfig:"ASSISTANT_BASE_URL"`
	APIKey      string        `yaml:"api_key" envconfig:"ASSISTANT_API_KEY"`
	Model       string        `yaml:"model" envconfig:"ASSISTANT_MODEL"`
	History     int           `yaml:"history" envconfig:"ASSISTANT_HISTORY"`
	MaxTokens   int           `yaml:"max_tokens" envconfig:"ASSISTANT_MAX_TOKENS"`
	Temperature float64       `yaml:"temperature" envconfig:"ASSISTANT_TEMPERATURE"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"ASSISTANT_TIMEOUT"`
}

// Enabled reports whether an API key is configured.
func (c Config) Enabled() bool { return strings.TrimSpace(c.APIKey) != "" }

// Normalize fills defaults.
func (c *Config) Normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.History <= 0 {
		c.History = DefaultHistory
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 500
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.7
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}
