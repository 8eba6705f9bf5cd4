package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost         = "localhost"
	DefaultPort         = 8090
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 15 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodySize  = 1024 * 1024 // 1MB
	DefaultWebhookPath  = "/payment-webhook"
	DefaultHashPath     = "/generate-payment-hash"

	// Database defaults.
	DefaultDBPath       = "payhook.db"
	DefaultCacheSize    = -16000 // 16MB
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer
	DefaultMaxIdleConns = 1

	// Gateway defaults.
	DefaultPayPalAPIBase = "https://api-m.paypal.com"
	DefaultPayPalTimeout = 10 * time.Second

	// Settlement defaults.
	DefaultSettlementTimeout = 5 * time.Second

	// RPC store procedure names.
	DefaultConfirmFunction = "confirm_purchase_webhook"
	DefaultFailFunction    = "fail_purchase_webhook"

	// Audit defaults.
	DefaultAuditRetention = 90 * 24 * time.Hour
	DefaultPruneSchedule  = "@daily"

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Store drivers.
const (
	StoreDriverSQLite = "sqlite"
	StoreDriverRPC    = "rpc"
)

// PayPal unknown event policies.
const (
	UnknownEventsIgnore = "ignore"
	UnknownEventsFail   = "fail"
)

// Default returns a Config with sensible defaults.
// The bank store key has no default and must be supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
			WebhookPath:  DefaultWebhookPath,
			HashPath:     DefaultHashPath,
			RateLimit: ServerRateLimitConfig{
				HashGeneration: RateLimitRule{
					Max:    30,
					Window: time.Minute,
				},
			},
		},
		Database: DatabaseConfig{
			Path:         DefaultDBPath,
			WALMode:      true,
			CacheSize:    DefaultCacheSize,
			BusyTimeout:  DefaultBusyTimeout,
			ForeignKeys:  true,
			MaxOpenConns: DefaultMaxOpenConns,
			MaxIdleConns: DefaultMaxIdleConns,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Gateways: GatewaysConfig{
			PayPal: PayPalGatewayConfig{
				Enabled:       false,
				APIBase:       DefaultPayPalAPIBase,
				Timeout:       DefaultPayPalTimeout,
				UnknownEvents: UnknownEventsIgnore,
			},
			Query: QueryGatewayConfig{
				Enabled: false,
			},
		},
		Settlement: SettlementConfig{
			Timeout: DefaultSettlementTimeout,
		},
		Store: StoreConfig{
			Driver: StoreDriverSQLite,
			RPC: RPCStoreConfig{
				ConfirmFunction: DefaultConfirmFunction,
				FailFunction:    DefaultFailFunction,
			},
		},
		Audit: AuditConfig{
			Enabled:       true,
			Retention:     DefaultAuditRetention,
			PruneSchedule: DefaultPruneSchedule,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
