package config

import (
	"fmt"
	"strings"

	"cashflow/crypto"
	"cashflow/native/common"
	"cashflow/storage"
)

var knownModules = map[string]struct{}{
	"receivable": {},
	"amm":        {},
}

// MaxDecimals bounds the display precision so 10^decimals fits in 64 bits.
const MaxDecimals = 18

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case storage.BackendMemory, storage.BackendLevelDB, storage.BackendBolt:
	default:
		return fmt.Errorf("backend: unsupported value %q", c.Backend)
	}
	if c.Backend != storage.BackendMemory && strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir: required for %s backend", c.Backend)
	}
	if c.Decimals > MaxDecimals {
		return fmt.Errorf("decimals: must be <= %d", MaxDecimals)
	}
	for _, module := range c.PausedModules {
		if _, ok := knownModules[strings.ToLower(strings.TrimSpace(module))]; !ok {
			return fmt.Errorf("paused_modules: unknown module %q", module)
		}
	}
	if _, err := c.OperatorAddresses(); err != nil {
		return err
	}
	return nil
}

// OperatorAddresses parses the configured operator identities.
func (c *Config) OperatorAddresses() ([]crypto.Address, error) {
	out := make([]crypto.Address, 0, len(c.Operators))
	for _, raw := range c.Operators {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("operators: %w", err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// Pauses returns the pause view for the configured modules.
func (c *Config) Pauses() common.StaticPauses {
	return common.NewStaticPauses(c.PausedModules)
}
