// Package config loads the client configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath of the optional YAML file
const DefaultPath = "medlab-client.yaml"

// Config is the root client configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds API server settings.
type ServerConfig struct {
	// BaseURL includes the API prefix, e.g. http://localhost:5000/api
	BaseURL string `yaml:"base_url" env:"MEDLAB_SERVER_URL" env-default:"http://localhost:5000/api"`
	// Candidates are probed via /health when set; the first healthy wins
	Candidates       []string      `yaml:"candidates"        env:"MEDLAB_SERVER_CANDIDATES" env-separator:","`
	Timeout          time.Duration `yaml:"timeout"           env:"MEDLAB_SERVER_TIMEOUT"           env-default:"120s"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout" env:"MEDLAB_SERVER_DISCOVERY_TIMEOUT" env-default:"5s"`
}

// StorageConfig holds credential store settings.
type StorageConfig struct {
	Path string `yaml:"path" env:"MEDLAB_DB" env-default:"medlab-client.db"`
	// Passphrase включает шифрование значений в хранилище
	Passphrase string `yaml:"passphrase" env:"MEDLAB_STORAGE_PASSPHRASE"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	// ForceLogoutOnLaunch discards any stored session at startup
	ForceLogoutOnLaunch bool `yaml:"force_logout_on_launch" env:"MEDLAB_FORCE_LOGOUT_ON_LAUNCH" env-default:"false"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" env:"MEDLAB_LOG_LEVEL" env-default:"warn"`
}

// Load reads configuration from a YAML file and environment variables.
// Priority: ENV > YAML > defaults. A missing file is an error only when
// path was given explicitly.
func Load(path string) (*Config, error) {
	var cfg Config

	explicitPath := path != ""
	if !explicitPath {
		path = DefaultPath
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	c.Server.BaseURL = strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	if err := validateURL(c.Server.BaseURL); err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}

	candidates := c.Server.Candidates[:0]
	for _, cand := range c.Server.Candidates {
		cand = strings.TrimRight(strings.TrimSpace(cand), "/")
		if cand == "" {
			continue
		}
		if err := validateURL(cand); err != nil {
			return fmt.Errorf("server.candidates: %w", err)
		}
		candidates = append(candidates, cand)
	}
	c.Server.Candidates = candidates

	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be > 0 (got %s)", c.Server.Timeout)
	}
	if c.Server.DiscoveryTimeout <= 0 {
		return fmt.Errorf("server.discovery_timeout must be > 0 (got %s)", c.Server.DiscoveryTimeout)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// SlogLevel parses Log.Level
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, err
	}
	return level, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme in %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
