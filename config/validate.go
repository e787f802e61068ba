package config

import (
	"fmt"
	"strings"
)

// Validate rejects configurations the daemon cannot start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: missing")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must be set")
	}
	if strings.TrimSpace(cfg.ChainID) == "" {
		return fmt.Errorf("config: ChainID must be set")
	}
	switch cfg.Backend {
	case BackendLevelDB, BackendBolt:
		if strings.TrimSpace(cfg.DataDir) == "" {
			return fmt.Errorf("config: DataDir must be set for the %s backend", cfg.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown Backend %q", cfg.Backend)
	}
	if cfg.RateLimitPerMinute < 0 {
		return fmt.Errorf("config: RateLimitPerMinute must not be negative")
	}
	params, err := cfg.Protocol.Params()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("config: Auth.HMACSecret required when auth is enabled")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("config: Telemetry.SampleRatio must be within [0, 1]")
	}
	return nil
}
