package config

import "path/filepath"

// DefaultStateDir is the well-known state-store root referenced by
// spec.md §4.2 (e.g. "/var/lib/<agent>"). Overridable via the
// FLEETBASE_STATE_DIR environment variable or the --state-dir flag.
const DefaultStateDir = "/var/lib/fleetbase-agent"

// ConfigPath returns the path to the config file under the given state dir.
func ConfigPath(stateDir string) string {
	return filepath.Join(stateDir, "config")
}

// StatePath returns the path to the human-readable last-sync status file.
func StatePath(stateDir string) string {
	return filepath.Join(stateDir, "state")
}

// ObjectsDir returns the root of the per-kind object record tree.
func ObjectsDir(stateDir string) string {
	return filepath.Join(stateDir, "objects")
}

// BackupsDir returns the root of the per-kind backup artifact tree.
func BackupsDir(stateDir string) string {
	return filepath.Join(stateDir, "backups")
}

// CreatedDirsPath returns the path to the created-directory ledger file.
func CreatedDirsPath(stateDir string) string {
	return filepath.Join(ObjectsDir(stateDir), "created_dirs")
}

// HistoryDBPath returns the path to the SQLite-backed sync-pass history
// ledger (SPEC_FULL.md §5.2) — a supplemental component, not part of the
// object state tree proper, so it lives alongside rather than under objects/.
func HistoryDBPath(stateDir string) string {
	return filepath.Join(stateDir, "history.db")
}
