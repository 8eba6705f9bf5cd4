package config

const redactedValue = "[redacted]"

// Redacted returns a copy of cfg with every secret replaced by a marker.
// Use it for anything that leaves the process (CLI output, admin surfaces).
func Redacted(cfg *Config) *Config {
	out := *cfg

	out.Gateways.Bank.StoreKey = redact(cfg.Gateways.Bank.StoreKey)
	out.Gateways.PayPal.ClientSecret = redact(cfg.Gateways.PayPal.ClientSecret)
	out.Store.RPC.ServiceKey = redact(cfg.Store.RPC.ServiceKey)

	return &out
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return redactedValue
}
