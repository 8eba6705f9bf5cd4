package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}

	lines := make([]string, 0, len(e)+1)
	lines = append(lines, "configuration validation failed:")
	for _, err := range e {
		lines = append(lines, "  - "+err.Error())
	}
	return strings.Join(lines, "\n") + "\n"
}

// report adds a ValidationError for field when failed is true.
func (e *ValidationErrors) report(failed bool, field, message string) {
	if failed {
		*e = append(*e, ValidationError{Field: field, Message: message})
	}
}

// Validate checks cfg and returns ValidationErrors listing every problem.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	validateServer(&errs, &cfg.Server)
	validateDatabase(&errs, &cfg.Database)
	validateLogging(&errs, &cfg.Logging)
	validateGateways(&errs, &cfg.Gateways)
	validateSettlement(&errs, &cfg.Settlement)
	validateStore(&errs, &cfg.Store)
	validateAudit(&errs, &cfg.Audit)

	errs.report(cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/"),
		"metrics.path", "must start with /")

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(errs *ValidationErrors, cfg *ServerConfig) {
	errs.report(cfg.Port < 1 || cfg.Port > 65535, "server.port", "must be between 1 and 65535")
	errs.report(cfg.ReadTimeout < 0, "server.read_timeout", "must be non-negative")
	errs.report(cfg.WriteTimeout < 0, "server.write_timeout", "must be non-negative")
	errs.report(cfg.MaxBodySize < 0, "server.max_body_size", "must be non-negative")

	errs.report(!strings.HasPrefix(cfg.WebhookPath, "/"), "server.webhook_path", "must start with /")
	errs.report(!strings.HasPrefix(cfg.HashPath, "/"), "server.hash_path", "must start with /")
	errs.report(cfg.WebhookPath != "" && cfg.WebhookPath == cfg.HashPath,
		"server.hash_path", "must differ from server.webhook_path")

	rule := cfg.RateLimit.HashGeneration
	errs.report(rule.Max < 1, "server.rate_limit.hash_generation.max", "must be at least 1")
	errs.report(rule.Window < time.Second, "server.rate_limit.hash_generation.window", "must be at least 1 second")
}

func validateDatabase(errs *ValidationErrors, cfg *DatabaseConfig) {
	errs.report(cfg.Path == "", "database.path", "required")
	errs.report(cfg.MaxOpenConns < 0, "database.max_open_conns", "must be non-negative")
}

func validateLogging(errs *ValidationErrors, cfg *LoggingConfig) {
	errs.report(!slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.Level),
		"logging.level", "must be one of: debug, info, warn, error")
	errs.report(cfg.Format != "json" && cfg.Format != "console",
		"logging.format", "must be 'json' or 'console'")
}

func validateGateways(errs *ValidationErrors, cfg *GatewaysConfig) {
	errs.report(cfg.Bank.StoreKey == "", "gateways.bank.store_key", "required")

	pp := cfg.PayPal
	errs.report(pp.UnknownEvents != UnknownEventsIgnore && pp.UnknownEvents != UnknownEventsFail,
		"gateways.paypal.unknown_events", "must be 'ignore' or 'fail'")

	if !pp.Enabled {
		return
	}

	errs.report(!isAbsoluteURL(pp.APIBase), "gateways.paypal.api_base", "must be an absolute URL")
	errs.report(pp.WebhookID == "", "gateways.paypal.webhook_id", "required when PayPal is enabled")
	errs.report(pp.ClientID == "", "gateways.paypal.client_id", "required when PayPal is enabled")
	errs.report(pp.ClientSecret == "", "gateways.paypal.client_secret", "required when PayPal is enabled")
	errs.report(pp.Timeout < time.Second, "gateways.paypal.timeout", "must be at least 1 second")
}

func validateSettlement(errs *ValidationErrors, cfg *SettlementConfig) {
	errs.report(cfg.Timeout <= 0, "settlement.timeout", "must be positive")
	errs.report(cfg.Timeout > time.Minute, "settlement.timeout",
		"must not exceed 1 minute; gateways abandon slow deliveries")
}

func validateStore(errs *ValidationErrors, cfg *StoreConfig) {
	switch cfg.Driver {
	case StoreDriverSQLite:
	case StoreDriverRPC:
		errs.report(!isAbsoluteURL(cfg.RPC.URL), "store.rpc.url", "must be an absolute URL when driver is 'rpc'")
		errs.report(cfg.RPC.ServiceKey == "", "store.rpc.service_key", "required when driver is 'rpc'")
		errs.report(cfg.RPC.ConfirmFunction == "" || cfg.RPC.FailFunction == "",
			"store.rpc", "confirm_function and fail_function are required")
	default:
		errs.report(true, "store.driver", "must be 'sqlite' or 'rpc'")
	}
}

func validateAudit(errs *ValidationErrors, cfg *AuditConfig) {
	if !cfg.Enabled {
		return
	}

	errs.report(cfg.Retention < time.Hour, "audit.retention", "must be at least 1 hour")

	if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
		errs.report(true, "audit.prune_schedule", fmt.Sprintf("invalid cron expression: %v", err))
	}
}

func isAbsoluteURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
