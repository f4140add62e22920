package ingest

import (
	"errors"
	"fmt"
)

// Config holds the ingestion settings provided by configuration.
type Config struct {
	// MinClientVersion is the oldest accepted client version (semver).
	MinClientVersion string
	// ClientNames is the allow-list of client identities.
	ClientNames []string
	// OperatorPattern matches a valid operator code.
	OperatorPattern string
	// Limits are the accepted speed and ping ranges.
	Limits Limits
	// IPv4Prefix and IPv6Prefix are the bits kept when anonymizing.
	IPv4Prefix int
	IPv6Prefix int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		MinClientVersion: "0.3.0",
		ClientNames:      []string{"RMBT", "RTR-Netztest", "HW-PROBE"},
		OperatorPattern:  DefaultOperatorPattern,
		Limits:           DefaultLimits(),
		IPv4Prefix:       DefaultIPv4Prefix,
		IPv6Prefix:       DefaultIPv6Prefix,
	}
}

// Validate checks cfg for consistency.
func (cfg *Config) Validate() error {
	if cfg.MinClientVersion == "" {
		return errors.New("minimum client version cannot be empty")
	}
	if len(cfg.ClientNames) == 0 {
		return errors.New("client names cannot be empty")
	}
	if cfg.OperatorPattern == "" {
		return errors.New("operator pattern cannot be empty")
	}
	if err := cfg.Limits.Validate(); err != nil {
		return fmt.Errorf("invalid limits: %w", err)
	}
	return nil
}
