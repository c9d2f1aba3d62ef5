// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for the agent's state directory.
package config

import "time"

// Config is the agent's process-wide configuration: the shared secret used
// to authenticate to the server, plus operational tuning. It is never held
// as a package-level global — callers resolve it once via Load and thread
// it explicitly into constructors (store.Store, transport.Client).
type Config struct {
	// Address is the base URL of the desired-state server, e.g.
	// "https://cfg.example.internal".
	Address string `toml:"address"`

	// Password is the shared secret sent with every server request.
	Password string `toml:"password"`

	// PollInterval controls how often the periodic sync service re-enters
	// a sync pass. Parsed with time.ParseDuration; defaults to 10m.
	PollInterval string `toml:"poll_interval"`

	// LogLevel is one of "debug", "info", "warn", "error". CLI flags
	// (--verbose, --debug, --quiet) override this.
	LogLevel string `toml:"log_level"`

	// HTTPTimeout bounds every server request. Parsed with
	// time.ParseDuration; defaults to 30s.
	HTTPTimeout string `toml:"http_timeout"`

	// BuildUser is the unprivileged account used for the AUR-style
	// unprivileged package build fallback (spec.md §4.4). Defaults to
	// "nobody" when unset.
	BuildUser string `toml:"build_user"`
}

// ResolvedBuildUser returns BuildUser, falling back to "nobody".
func (c *Config) ResolvedBuildUser() string {
	if c.BuildUser == "" {
		return "nobody"
	}

	return c.BuildUser
}

// ResolvedPollInterval parses PollInterval, falling back to the default.
func (c *Config) ResolvedPollInterval() time.Duration {
	return parseDurationOr(c.PollInterval, DefaultPollInterval)
}

// ResolvedHTTPTimeout parses HTTPTimeout, falling back to the default.
func (c *Config) ResolvedHTTPTimeout() time.Duration {
	return parseDurationOr(c.HTTPTimeout, DefaultHTTPTimeout)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}

	return d
}
