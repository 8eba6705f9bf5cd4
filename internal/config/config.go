// Package config provides configuration management for payhook.
package config

import (
	"strconv"
	"time"
)

// Config is the root configuration structure for payhook.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Gateways   GatewaysConfig   `mapstructure:"gateways" yaml:"gateways"`
	Settlement SettlementConfig `mapstructure:"settlement" yaml:"settlement"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Audit      AuditConfig      `mapstructure:"audit" yaml:"audit"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host" yaml:"host"`

	// Port to listen on
	Port int `mapstructure:"port" yaml:"port"`

	// Request timeouts
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// Maximum request body size in bytes
	MaxBodySize int64 `mapstructure:"max_body_size" yaml:"max_body_size"`

	// Path of the inbound webhook endpoint
	WebhookPath string `mapstructure:"webhook_path" yaml:"webhook_path"`

	// Path of the outbound hash generation endpoint
	HashPath string `mapstructure:"hash_path" yaml:"hash_path"`

	RateLimit ServerRateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// ServerRateLimitConfig holds per-IP rate limits for client-facing endpoints.
type ServerRateLimitConfig struct {
	HashGeneration RateLimitRule `mapstructure:"hash_generation" yaml:"hash_generation"`
}

// RateLimitRule defines a rate limit rule.
type RateLimitRule struct {
	// Maximum requests
	Max int `mapstructure:"max" yaml:"max"`

	// Time window
	Window time.Duration `mapstructure:"window" yaml:"window"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string `mapstructure:"path" yaml:"path"`

	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode" yaml:"wal_mode"`

	// Cache size in KB (negative for KB, positive for pages)
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`

	// Busy timeout
	BusyTimeout time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`

	// Enable foreign keys
	ForeignKeys bool `mapstructure:"foreign_keys" yaml:"foreign_keys"`

	// Connection pool
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `mapstructure:"level" yaml:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format" yaml:"format"`

	// Include caller info
	Caller bool `mapstructure:"caller" yaml:"caller"`
}

// GatewaysConfig holds per-provider authenticity settings.
type GatewaysConfig struct {
	Bank   BankGatewayConfig   `mapstructure:"bank" yaml:"bank"`
	PayPal PayPalGatewayConfig `mapstructure:"paypal" yaml:"paypal"`
	Query  QueryGatewayConfig  `mapstructure:"query" yaml:"query"`
}

// BankGatewayConfig holds Nestpay (ALLSECURE) settings.
type BankGatewayConfig struct {
	// Shared store key used for hash generation and verification (required)
	StoreKey string `mapstructure:"store_key" yaml:"store_key"`
}

// PayPalGatewayConfig holds PayPal webhook verification settings.
type PayPalGatewayConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Base URL of the PayPal REST API
	APIBase string `mapstructure:"api_base" yaml:"api_base"`

	// Webhook ID assigned by PayPal to this listener
	WebhookID string `mapstructure:"webhook_id" yaml:"webhook_id"`

	// REST app credentials for the verify-webhook-signature call
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`

	// Timeout for the verification call
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// Policy for event types outside the actionable set: "ignore" or "fail"
	UnknownEvents string `mapstructure:"unknown_events" yaml:"unknown_events"`
}

// QueryGatewayConfig controls unauthenticated GET callbacks.
type QueryGatewayConfig struct {
	// Accept and record GET callbacks; they are never settled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// SettlementConfig holds settlement applier settings.
type SettlementConfig struct {
	// Upper bound for one call into the purchase store
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// StoreConfig selects the purchase store implementation.
type StoreConfig struct {
	// Driver is "sqlite" (local reference store) or "rpc" (PostgREST functions)
	Driver string `mapstructure:"driver" yaml:"driver"`

	RPC RPCStoreConfig `mapstructure:"rpc" yaml:"rpc"`
}

// RPCStoreConfig holds credentials for the remote transactional store.
type RPCStoreConfig struct {
	URL        string `mapstructure:"url" yaml:"url"`
	ServiceKey string `mapstructure:"service_key" yaml:"service_key"`

	ConfirmFunction string `mapstructure:"confirm_function" yaml:"confirm_function"`
	FailFunction    string `mapstructure:"fail_function" yaml:"fail_function"`
}

// AuditConfig holds delivery audit log settings.
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// How long delivery records are kept
	Retention time.Duration `mapstructure:"retention" yaml:"retention"`

	// Cron expression for the retention prune job
	PruneSchedule string `mapstructure:"prune_schedule" yaml:"prune_schedule"`
}

// MetricsConfig holds prometheus exporter settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}
