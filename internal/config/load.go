package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ErrNotAuthenticated is returned by Load when no config file exists yet —
// the caller has not run `auth` on this machine (spec.md §7.4).
var ErrNotAuthenticated = errors.New("config: not authenticated — run 'auth' first")

// Load reads and parses the config file at path. Returns ErrNotAuthenticated
// if the file does not exist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotAuthenticated
		}

		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}
