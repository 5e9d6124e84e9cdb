// Package config loads service configuration from the environment, with
// optional overrides from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	JWT       JWTConfig       `yaml:"jwt"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Hub       HubConfig       `yaml:"hub"`
	Retention RetentionConfig `yaml:"retention"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr           string   `env:"CHATHUB_ADDR,default=:8080" yaml:"addr"`
	Name           string   `env:"CHATHUB_SERVER_NAME,default=chathub" yaml:"name"`
	AllowedOrigins []string `env:"CHATHUB_ALLOWED_ORIGINS,default=http://localhost:3000;http://localhost:5173" yaml:"allowed_origins"`
}

// JWTConfig configures token validation and issuance.
type JWTConfig struct {
	SigningKey string        `env:"CHATHUB_JWT_KEY" yaml:"signing_key"`
	Issuer     string        `env:"CHATHUB_JWT_ISSUER,default=chathub" yaml:"issuer"`
	Audience   string        `env:"CHATHUB_JWT_AUDIENCE,default=chathub-clients" yaml:"audience"`
	TTL        time.Duration `env:"CHATHUB_JWT_TTL,default=24h" yaml:"ttl"`
}

// DatabaseConfig selects the persistence backend. When DSN is set the direct
// Postgres store is used; otherwise, when DataAPIURL is set, the REST
// data-access store is used; otherwise everything stays in memory.
type DatabaseConfig struct {
	DSN        string `env:"CHATHUB_DATABASE_DSN" yaml:"dsn"`
	DataAPIURL string `env:"CHATHUB_DATA_API_URL" yaml:"data_api_url"`
	DataAPIKey string `env:"CHATHUB_DATA_API_KEY" yaml:"data_api_key"`
}

// RedisConfig configures the optional cross-instance broadcast bridge.
type RedisConfig struct {
	Addr    string `env:"CHATHUB_REDIS_ADDR" yaml:"addr"`
	Channel string `env:"CHATHUB_REDIS_CHANNEL,default=chathub.broadcast" yaml:"channel"`
}

// HubConfig tunes the realtime hub.
type HubConfig struct {
	SendRate     float64       `env:"CHATHUB_HUB_SEND_RATE,default=20" yaml:"send_rate"`
	SendBurst    int           `env:"CHATHUB_HUB_SEND_BURST,default=40" yaml:"send_burst"`
	SendBuffer   int           `env:"CHATHUB_HUB_SEND_BUFFER,default=64" yaml:"send_buffer"`
	WriteTimeout time.Duration `env:"CHATHUB_HUB_WRITE_TIMEOUT,default=10s" yaml:"write_timeout"`
	PingInterval time.Duration `env:"CHATHUB_HUB_PING_INTERVAL,default=30s" yaml:"ping_interval"`
	ReadLimit    int64         `env:"CHATHUB_HUB_READ_LIMIT,default=65536" yaml:"read_limit"`
}

// RetentionConfig schedules the message retention sweep.
type RetentionConfig struct {
	Schedule string        `env:"CHATHUB_RETENTION_SCHEDULE,default=0 3 * * *" yaml:"schedule"`
	MaxAge   time.Duration `env:"CHATHUB_RETENTION_MAX_AGE,default=2160h" yaml:"max_age"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// ApplyFile overlays values from a YAML file onto cfg. Missing file is an
// error; callers decide whether a file is expected.
func ApplyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// Validate checks settings that have no usable defaults.
func (c *Config) Validate() error {
	if c.JWT.SigningKey == "" {
		return fmt.Errorf("jwt signing key is required")
	}
	if c.Hub.SendBuffer <= 0 {
		return fmt.Errorf("hub send buffer must be positive")
	}
	return nil
}
