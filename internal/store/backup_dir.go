package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// BackupDirectory recursively snapshots artifactPath into the backup tree,
// reapplying owner/group/mode from the live tree onto the copy for every
// entry (spec.md §4.4: "the shallow copy utility may not preserve metadata
// on every platform — the design MANDATES that the backup is
// indistinguishable from the original").
func (s *Store) BackupDirectory(kindDir, id, artifactPath string) error {
	if _, err := os.Lstat(artifactPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	dest := filepath.Join(s.backupsDir(), kindDir, id)
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("store: clearing old directory backup for %s: %w", id, err)
	}

	return copyTree(artifactPath, dest)
}

// RestoreDirectory removes the live directory (if present), moves the
// backup back into place with its original metadata preserved, then
// removes the backup tree.
func (s *Store) RestoreDirectory(kindDir, id, artifactPath string) error {
	src := filepath.Join(s.backupsDir(), kindDir, id)

	if err := os.RemoveAll(artifactPath); err != nil {
		return fmt.Errorf("store: removing live directory for %s: %w", id, err)
	}

	if err := os.MkdirAll(filepath.Dir(artifactPath), 0o755); err != nil {
		return fmt.Errorf("store: creating parent of %s: %w", artifactPath, err)
	}

	if err := copyTree(src, artifactPath); err != nil {
		return err
	}

	return os.RemoveAll(src)
}

// copyTree recursively copies src to dest, preserving owner/group/mode of
// every directory and file; BackupDirectory and RestoreDirectory both
// depend on this faithful recursive meta preservation.
func copyTree(src, dest string) error {
	meta, err := CaptureMeta(src)
	if err != nil {
		return fmt.Errorf("store: reading meta for %s: %w", src, err)
	}

	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("store: stat %s: %w", src, err)
	}

	if info.IsDir() {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return fmt.Errorf("store: creating %s: %w", dest, err)
		}

		entries, err := os.ReadDir(src)
		if err != nil {
			return fmt.Errorf("store: reading %s: %w", src, err)
		}

		for _, e := range entries {
			if err := copyTree(filepath.Join(src, e.Name()), filepath.Join(dest, e.Name())); err != nil {
				return err
			}
		}
	} else {
		if err := copyFileBytes(src, dest); err != nil {
			return err
		}
	}

	return ApplyMeta(dest, meta)
}
