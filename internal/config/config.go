package config

import (
	"errors"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	MaxMessageBytes        int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimitPerMinute     int   `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	RequireGroupMembership bool  `mapstructure:"require_group_membership" yaml:"require_group_membership"`

	// RedisURL enables presence notifications when set.
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url"`

	// AllowedOrigins enables CORS on the REST API for the listed origins.
	// A single "*" allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                   ":3000",
		ReadHeaderTimeout:      5 * time.Second,
		ShutdownTimeout:        5 * time.Second,
		LogLevel:               "info",
		DatabasePath:           "socialchat.db",
		JWTTTL:                 24 * time.Hour,
		MaxMessageBytes:        1 << 20,
		RateLimitPerMinute:     600,
		RequireGroupMembership: true,
	}
}

// Validate reports configuration that the server cannot start with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	if c.DatabasePath == "" {
		return errors.New("database_path is required")
	}
	return nil
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
}
