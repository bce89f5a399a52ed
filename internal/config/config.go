// Package config loads the server configuration from a YAML file with
// ${ENV} expansion, applies defaults, and lets a few well-known environment
// variables override file values.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the listing engine server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the PostgreSQL connection. Empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the optional read-through cache settings. Empty URL
// disables caching.
type RedisConfig struct {
	URL      string        `yaml:"url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = 30 * time.Second
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port must be set")
	}
	if c.Redis.URL != "" && c.Redis.CacheTTL <= 0 {
		return fmt.Errorf("redis.cache_ttl must be positive when redis.url is set")
	}
	if c.Redis.URL != "" && c.Database.URL == "" {
		return fmt.Errorf("redis cache requires database.url")
	}
	return nil
}
