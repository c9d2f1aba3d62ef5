package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BackupFile snapshots the file at artifactPath into the backup tree under
// (kindDir, id), preserving owner/group/mode. A no-op if artifactPath does
// not exist (spec.md §4.4: "If the artifact does not exist, backup is a
// no-op"). Shared by File, Partial, and Additional kinds — all three back
// up a whole target file before editing it.
func (s *Store) BackupFile(kindDir, id, artifactPath string) error {
	meta, err := CaptureMeta(artifactPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	dest := filepath.Join(s.backupsDir(), kindDir, id)
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return fmt.Errorf("store: creating backup directory: %w", err)
	}

	if err := copyFileBytes(artifactPath, dest); err != nil {
		return err
	}

	return ApplyMeta(dest, meta)
}

// HasFileBackup reports whether a file backup exists for id under kindDir.
func (s *Store) HasFileBackup(kindDir, id string) bool {
	_, err := os.Stat(filepath.Join(s.backupsDir(), kindDir, id))
	return err == nil
}

// RestoreFile moves the backed-up file for id back to artifactPath,
// restoring its original owner/group/mode, then removes the backup.
func (s *Store) RestoreFile(kindDir, id, artifactPath string) error {
	src := filepath.Join(s.backupsDir(), kindDir, id)

	meta, err := CaptureMeta(src)
	if err != nil {
		return fmt.Errorf("store: reading backup meta for %s: %w", id, err)
	}

	if err := os.RemoveAll(artifactPath); err != nil {
		return fmt.Errorf("store: removing live artifact for %s: %w", id, err)
	}

	if err := os.MkdirAll(filepath.Dir(artifactPath), 0o755); err != nil {
		return fmt.Errorf("store: creating parent of %s: %w", artifactPath, err)
	}

	if err := copyFileBytes(src, artifactPath); err != nil {
		return err
	}

	if err := ApplyMeta(artifactPath, meta); err != nil {
		return err
	}

	if err := os.Remove(src); err != nil {
		return fmt.Errorf("store: removing backup for %s: %w", id, err)
	}

	return nil
}

func copyFileBytes(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("store: opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("store: creating %s: %w", dest, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("store: copying %s to %s: %w", src, dest, err)
	}

	return out.Close()
}
