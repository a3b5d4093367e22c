package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/service"
)

type Config struct {
	Env         string       `yaml:"env" env:"ENV" env-default:"local"`
	ServiceName string       `yaml:"service_name" env:"SERVICE_NAME" env-required:"true"`
	HTTP        HTTPConfig   `yaml:"http"`
	Store       StoreConfig  `yaml:"store"`
	Auth        AuthConfig   `yaml:"auth"`
	Events      EventsConfig `yaml:"events"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:"0.0.0.0:8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" env:"STORE_DRIVER" env-default:"postgres"`
	URL    string `yaml:"url" env:"DB_CONN_URL"`
	Path   string `yaml:"path" env:"STORE_PATH"`
}

type AuthConfig struct {
	SessionTTLDays     int           `yaml:"session_ttl_days" env:"SESSION_TTL_DAYS" env-default:"1"`
	ChallengeTTL       time.Duration `yaml:"challenge_ttl" env:"CHALLENGE_TTL" env-default:"0s"`
	ConflictPolicy     string        `yaml:"conflict_policy" env:"CHALLENGE_CONFLICT_POLICY" env-default:"replace"`
	AccessTokenTTL     time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"5m"`
	AccessTokenKeyFile string        `yaml:"access_token_key_file" env:"ACCESS_TOKEN_KEY_FILE"`
}

type EventsConfig struct {
	RedisURL string `yaml:"redis_url" env:"EVENTS_REDIS_URL"`
	Topic    string `yaml:"topic" env:"EVENTS_TOPIC" env-default:"walletauth.login"`
}

// Load reads the configuration. A .env file in the working directory is
// applied first if present. When CONFIG_PATH names a YAML file it is read
// too, with environment variables taking precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad is Load that panics on error
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic("config: " + err.Error())
	}
	return cfg
}

// Validate checks the combinations cleanenv can't express
func (c *Config) Validate() error {
	if err := c.StoreConfig().Valid(); err != nil {
		return err
	}
	if err := c.ServiceConfig().Validate(); err != nil {
		return err
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("access token ttl must be positive, got %s", c.Auth.AccessTokenTTL)
	}
	if c.HTTP.ShutdownTimeout < 0 {
		return fmt.Errorf("negative shutdown timeout %s", c.HTTP.ShutdownTimeout)
	}
	return nil
}

func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Driver: c.Store.Driver,
		URL:    c.Store.URL,
		Path:   c.Store.Path,
	}
}

func (c *Config) ServiceConfig() service.Config {
	return service.Config{
		ServiceName:    c.ServiceName,
		SessionTTLDays: c.Auth.SessionTTLDays,
		ChallengeTTL:   c.Auth.ChallengeTTL,
		ConflictPolicy: service.ConflictPolicy(c.Auth.ConflictPolicy),
	}
}
