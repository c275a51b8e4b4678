package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// MinSecretLen минимальная длина секрета для HS256
const MinSecretLen = 32

// Config is the reference backend configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"             env:"MEDLAB_SERVER_ADDR"             env-default:"localhost:5000"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"MEDLAB_SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"MEDLAB_SERVER_WRITE_TIMEOUT"    env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"MEDLAB_SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `yaml:"path" env:"MEDLAB_SERVER_DB" env-default:"medlab-server.db"`
	// CleanupInterval - период удаления просроченных refresh токенов
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"MEDLAB_SERVER_CLEANUP_INTERVAL" env-default:"1h"`
}

// JWTConfig holds token settings.
type JWTConfig struct {
	Secret          string        `yaml:"secret"            env:"MEDLAB_SERVER_JWT_SECRET"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"  env:"MEDLAB_SERVER_ACCESS_TTL"  env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"MEDLAB_SERVER_REFRESH_TTL" env-default:"720h"`
}

// RateLimitConfig ограничивает login/register с одного IP.
type RateLimitConfig struct {
	Requests int           `yaml:"requests" env:"MEDLAB_SERVER_RATE_LIMIT"        env-default:"10"`
	Window   time.Duration `yaml:"window"   env:"MEDLAB_SERVER_RATE_LIMIT_WINDOW" env-default:"1m"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" env:"MEDLAB_SERVER_LOG_LEVEL" env-default:"info"`
}

// Load reads configuration from an optional YAML file and environment variables.
// Priority: ENV > YAML > defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config: file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
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
	var errs []error

	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if len(c.JWT.Secret) < MinSecretLen {
		errs = append(errs, fmt.Errorf("jwt.secret must be at least %d characters (MEDLAB_SERVER_JWT_SECRET)", MinSecretLen))
	}
	if c.JWT.AccessTokenTTL <= 0 || c.JWT.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("jwt token TTLs must be positive"))
	}
	if c.JWT.RefreshTokenTTL < c.JWT.AccessTokenTTL {
		errs = append(errs, errors.New("jwt.refresh_token_ttl must not be shorter than access_token_ttl"))
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit requests and window must be positive"))
	}
	if c.Database.CleanupInterval <= 0 {
		errs = append(errs, errors.New("database.cleanup_interval must be positive"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
