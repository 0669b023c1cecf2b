package config

import (
	"time"

	"github.com/llm-shield/shield/internal/scanners"
)

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// PipelineConfig contains scanning pipeline configuration. The preset
// picks the scanner sets; the policy fields apply on top of it.
type PipelineConfig struct {
	Preset                string  `yaml:"preset" mapstructure:"preset"`
	ShortCircuitThreshold float64 `yaml:"short_circuit_threshold" mapstructure:"short_circuit_threshold"`
	Parallel              bool    `yaml:"parallel" mapstructure:"parallel"`
	MaxConcurrent         int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MaxLength             int     `yaml:"max_length" mapstructure:"max_length"`

	Redact                bool                  `yaml:"redact" mapstructure:"redact"`
	PIIDetectors          []string              `yaml:"pii_detectors" mapstructure:"pii_detectors"`
	CustomSecretRules     []scanners.CustomRule `yaml:"custom_secret_rules" mapstructure:"custom_secret_rules"`
	ToxicityAllowList     []string              `yaml:"toxicity_allow_list" mapstructure:"toxicity_allow_list"`
	DisableJailbreakRules bool                  `yaml:"disable_jailbreak_rules" mapstructure:"disable_jailbreak_rules"`
	DisableRolePlayRules  bool                  `yaml:"disable_role_play_rules" mapstructure:"disable_role_play_rules"`
}

// CacheConfig contains Redis result cache configuration. A zero
// DefaultTTL derives the TTL from the pipeline preset's caching policy.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

// StoreConfig contains security event store configuration
type StoreConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// RateLimitConfig contains per-client rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// WebSocketConfig contains event streaming configuration
type WebSocketConfig struct {
	Enabled               bool `yaml:"enabled" mapstructure:"enabled"`
	BroadcastDetections   bool `yaml:"broadcast_detections" mapstructure:"broadcast_detections"`
	BroadcastSystemStatus bool `yaml:"broadcast_system_status" mapstructure:"broadcast_system_status"`
	BroadcastConnections  bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"` // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// GetDefaults returns the default configuration
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Pipeline: PipelineConfig{
			Preset:                "standard",
			ShortCircuitThreshold: 0.9,
			Parallel:              true,
			MaxConcurrent:         4,
			Redact:                true,
			PIIDetectors:          []string{"all"},
		},
		Cache: CacheConfig{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			KeyPrefix:      "llmshield",
			DefaultTTL:     0,
			MaxConnections: 10,
			MinIdleConns:   2,
		},
		Store: StoreConfig{
			Enabled:         false,
			DatabaseURL:     "postgres://localhost:5432/llmshield?sslmode=disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 300,
			Burst:             50,
			CleanupInterval:   5 * time.Minute,
		},
		WebSocket: WebSocketConfig{
			Enabled:               true,
			BroadcastDetections:   true,
			BroadcastSystemStatus: true,
			BroadcastConnections:  false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
