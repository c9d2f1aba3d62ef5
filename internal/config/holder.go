package config

import "sync"

// Holder provides thread-safe access to a mutable *Config for the long-lived
// service-mode process. A SIGHUP reload (reloadOnSIGHUP in signal.go) calls
// Reload, which calls Update once. The watch loop reads its poll interval
// through the Holder; the transport.Client keeps the address and password
// it was built with, so a reload does not change them.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string // immutable after construction
}

// NewHolder creates a Holder wrapping the initial config and its file path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Config returns the current config snapshot.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file path.
func (h *Holder) Path() string {
	return h.path
}

// Update replaces the held config.
func (h *Holder) Update(cfg *Config) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = cfg
}

// Reload re-reads the config file from disk and installs the result.
func (h *Holder) Reload() error {
	cfg, err := Load(h.Path())
	if err != nil {
		return err
	}

	h.Update(cfg)

	return nil
}
