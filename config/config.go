package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"cashflow/storage"
)

// DefaultDecimals is the display precision of amounts (six fractional digits).
const DefaultDecimals uint8 = 6

// Config describes the ledger: where its state lives and which operator
// controls are active.
type Config struct {
	DataDir       string   `toml:"DataDir"`
	Backend       string   `toml:"Backend"`
	Decimals      uint8    `toml:"Decimals"`
	PausedModules []string `toml:"PausedModules"`
	Operators     []string `toml:"Operators"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = storage.BackendLevelDB
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = DefaultDecimals
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}
	if cfg.Operators == nil {
		cfg.Operators = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir:       "./cashflow-data",
		Backend:       storage.BackendLevelDB,
		Decimals:      DefaultDecimals,
		PausedModules: []string{},
		Operators:     []string{},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
