package config

import (
	"fmt"
	"strings"
)

// Validate rejects configurations the node cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.DBBackend)) {
	case BackendMemory:
	case BackendLevelDB, BackendBolt:
		if strings.TrimSpace(c.DataDir) == "" {
			return fmt.Errorf("config: DataDir required for the %s backend", c.DBBackend)
		}
	default:
		return fmt.Errorf("config: unsupported DBBackend %q", c.DBBackend)
	}
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must be set")
	}
	if c.Rent.LamportsPerByteYear == 0 || c.Rent.ExemptionThresholdYears == 0 {
		return fmt.Errorf("config: rent parameters must be positive")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("config: rate limit must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("config: rate limit burst must be positive when a rate is set")
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("config: telemetry sample ratio %v outside [0,1]", r)
	}
	if c.EscrowProgramID != "" && c.EscrowProgramID == c.TokenProgramID {
		return fmt.Errorf("config: escrow and token programs must have distinct ids")
	}
	return nil
}
