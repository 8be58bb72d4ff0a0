// Package config loads the server configuration from YAML with environment
// fallbacks.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Server identity
	ServerName    string `yaml:"server_name"`
	ServerVersion string `yaml:"server_version"`

	// HTTP port for health and metrics endpoints
	HTTPPort int `yaml:"http_port"`

	// Sessions holds session manager configuration
	Sessions SessionConfig `yaml:"sessions"`

	// Tools holds tool-surface configuration
	Tools ToolConfig `yaml:"tools"`
}

// SessionConfig holds session manager configuration
type SessionConfig struct {
	// MaxConcurrent is the live-session concurrency ceiling.
	MaxConcurrent int `yaml:"max_concurrent"`
	// CleanupIntervalMinutes is how often the expiry sweep runs.
	CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes"`
	// MonitorIntervalSeconds is how often the metrics monitor runs.
	MonitorIntervalSeconds int `yaml:"monitor_interval_seconds"`
	// Store selects the snapshot backend: "file", "redis", or "none".
	Store string `yaml:"store"`
	// SnapshotDir is the base directory for file-based snapshots.
	SnapshotDir string `yaml:"snapshot_dir"`
	// Redis holds connection settings for the redis store.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ToolConfig holds tool-surface configuration
type ToolConfig struct {
	// RateLimit is the sustained tool calls per second (0 disables limiting).
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the burst size for the rate limiter.
	RateBurst int `yaml:"rate_burst"`
}

// LoadConfig loads configuration from a YAML file. A missing file is not an
// error; defaults and environment variables apply either way.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Apply defaults
	if cfg.ServerName == "" {
		cfg.ServerName = "sessiond"
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.Sessions.MaxConcurrent == 0 {
		cfg.Sessions.MaxConcurrent = 100
	}
	if cfg.Sessions.CleanupIntervalMinutes == 0 {
		cfg.Sessions.CleanupIntervalMinutes = 10
	}
	if cfg.Sessions.MonitorIntervalSeconds == 0 {
		cfg.Sessions.MonitorIntervalSeconds = 60
	}
	if cfg.Sessions.Store == "" {
		cfg.Sessions.Store = "file"
	}
	if cfg.Tools.RateBurst == 0 {
		cfg.Tools.RateBurst = 10
	}

	// Environment fallbacks
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.HTTPPort = p
		}
	}
	if cfg.Sessions.Redis.Addr == "" {
		cfg.Sessions.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
	if cfg.Sessions.Redis.Password == "" {
		cfg.Sessions.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
	if cfg.Sessions.SnapshotDir == "" {
		cfg.Sessions.SnapshotDir = os.Getenv("SNAPSHOT_DIR")
	}

	return &cfg, nil
}
