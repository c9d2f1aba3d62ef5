package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// BackupPackageMarker writes the empty marker that records "this package
// was already installed before we took it over" (spec.md §4.4). Packages
// have no content to snapshot — the marker's mere presence is the signal
// consulted by the Package materialiser's Restore.
func (s *Store) BackupPackageMarker(kindDir, id string) error {
	dest := filepath.Join(s.backupsDir(), kindDir, id)
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return fmt.Errorf("store: creating backup directory for %s: %w", id, err)
	}

	if err := os.WriteFile(dest, nil, 0o600); err != nil {
		return fmt.Errorf("store: writing package marker for %s: %w", id, err)
	}

	return nil
}

// HasPackageBackup reports whether id was already installed before being
// taken under management — if true, the Package materialiser's Restore
// does not uninstall it.
func (s *Store) HasPackageBackup(kindDir, id string) bool {
	_, err := os.Stat(filepath.Join(s.backupsDir(), kindDir, id))
	return err == nil
}

// ClearPackageBackup removes the marker after a successful restore.
func (s *Store) ClearPackageBackup(kindDir, id string) error {
	err := os.Remove(filepath.Join(s.backupsDir(), kindDir, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: clearing package marker for %s: %w", id, err)
	}

	return nil
}
