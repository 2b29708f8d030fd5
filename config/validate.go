package config

import (
	"fmt"
	"net"
	"strings"

	"datamarket/native/fees"
	"datamarket/native/market"
)

// Validate checks that the configuration can start a daemon.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.PlatformFeePct > fees.MaxPercent {
		return fmt.Errorf("PlatformFeePct must be between 0 and %d, got %d", fees.MaxPercent, cfg.PlatformFeePct)
	}
	if cfg.AdminAddress != "" {
		if _, err := market.ParseAddress(cfg.AdminAddress); err != nil {
			return fmt.Errorf("AdminAddress: %w", err)
		}
	}
	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		return fmt.Errorf("ListenAddress %q: %w", cfg.ListenAddress, err)
	}
	switch cfg.StorageBackend {
	case BackendLevelDB:
		if strings.TrimSpace(cfg.DataDir) == "" {
			return fmt.Errorf("DataDir required for the %s backend", BackendLevelDB)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("StorageBackend must be %s or %s, got %q", BackendLevelDB, BackendMemory, cfg.StorageBackend)
	}
	if cfg.Auth.Enabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth: HMACSecret required when auth is enabled")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.SampleRatio must be between 0 and 1, got %g", cfg.Telemetry.SampleRatio)
	}
	if cfg.Telemetry.MetricInterval.Duration < 0 {
		return fmt.Errorf("telemetry.MetricInterval must not be negative")
	}
	for id, limit := range cfg.RateLimits {
		if limit.Rate() <= 0 {
			return fmt.Errorf("ratelimits.%s: rate must be positive", id)
		}
		if limit.Burst <= 0 {
			return fmt.Errorf("ratelimits.%s: burst must be positive", id)
		}
	}
	return nil
}

// Admin returns the parsed admin address. An empty address is reported as an
// error since the marketplace cannot bootstrap without one.
func (cfg *Config) Admin() ([20]byte, error) {
	if cfg.AdminAddress == "" {
		return [20]byte{}, fmt.Errorf("AdminAddress not configured")
	}
	return market.ParseAddress(cfg.AdminAddress)
}
