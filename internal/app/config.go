// Package app assembles Penny from its configuration: storage, gateway,
// conversations, the Telegram runtime and the HTTP server.
package app

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/penny/core/config"
	coredatabase "github.com/m3rciful/penny/core/database"
	"github.com/m3rciful/penny/core/state"
	"github.com/m3rciful/penny/internal/assistant"
	"github.com/m3rciful/penny/internal/correlator"
	"github.com/m3rciful/penny/internal/oneshot"
	"github.com/m3rciful/penny/migrations"
)

// Session store backends.
const (
	SessionsMemory = "memory"
	SessionsPebble = "pebble"

	defaultSessionsPath = "data/sessions"
	// CallbackPath receives gateway execution callbacks.
	CallbackPath = "/1shot"
)

// SessionsConfig selects where conversation state lives.
type SessionsConfig struct {
	Backend       string        `yaml:"backend" envconfig:"SESSIONS_BACKEND"`
	Path          string        `yaml:"path" envconfig:"SESSIONS_PATH"`
	TTL           time.Duration `yaml:"ttl" envconfig:"SESSIONS_TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"SESSIONS_SWEEP_INTERVAL"`
}

// AnnounceConfig names the public chat that hears about new tokens.
type AnnounceConfig struct {
	ChatID int64 `yaml:"chat_id" envconfig:"ANNOUNCE_CHAT_ID"`
}

// ExplorerConfig points transaction links at a block explorer.
type ExplorerConfig struct {
	URL string `yaml:"url" envconfig:"EXPLORER_URL"`
}

// Config is the full application configuration. The core sections are
// inlined so the YAML stays flat.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database  coredatabase.Config `yaml:"database"`
	OneShot   oneshot.Config      `yaml:"oneshot"`
	Sessions  SessionsConfig      `yaml:"sessions"`
	Assistant assistant.Config    `yaml:"assistant"`
	Announce  AnnounceConfig      `yaml:"announce"`
	Explorer  ExplorerConfig      `yaml:"explorer"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// LoadConfig reads path, overlays the environment and normalizes every
// section.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the configuration and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	c.Database.Normalize()
	c.Database.Migrations = migrations.Files
	if err := c.OneShot.Normalize(c.Webhook.URL); err != nil {
		return err
	}
	if err := c.Sessions.Normalize(); err != nil {
		return err
	}
	c.Assistant.Normalize()
	c.Explorer.URL = strings.TrimRight(strings.TrimSpace(c.Explorer.URL), "/")
	if c.Explorer.URL == "" {
		c.Explorer.URL = correlator.DefaultExplorerURL
	}
	return nil
}

// Normalize fills session defaults and checks the backend name.
func (s *SessionsConfig) Normalize() error {
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	switch s.Backend {
	case "":
		s.Backend = SessionsMemory
	case SessionsMemory:
	case SessionsPebble:
		if strings.TrimSpace(s.Path) == "" {
			s.Path = defaultSessionsPath
		}
	default:
		return fmt.Errorf("invalid sessions.backend %q; allowed: memory, pebble", s.Backend)
	}
	if s.TTL <= 0 {
		s.TTL = state.DefaultTTL
	}
	if s.SweepInterval <= 0 {
		s.SweepInterval = state.DefaultSweepInterval
	}
	return nil
}
