package store

import (
	"fmt"
	"os"
	"syscall"
)

// Meta is the owner/group/mode triple the design mandates be preserved
// byte-for-byte across backup/restore and download/upload (spec.md §4.4:
// "the backup is indistinguishable from the original").
type Meta struct {
	UID  int
	GID  int
	Mode os.FileMode
}

// CaptureMeta reads the owner/group/mode of the file at path.
func CaptureMeta(path string) (Meta, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Meta{}, fmt.Errorf("store: stat %s: %w", path, err)
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return Meta{Mode: info.Mode()}, nil
	}

	return Meta{
		UID:  int(stat.Uid),
		GID:  int(stat.Gid),
		Mode: info.Mode(),
	}, nil
}

// ApplyMeta chowns and chmods path to match m. Ownership changes are
// skipped (not failed) when the process lacks privilege — the agent
// normally runs as root (spec.md §5 "Shared resources"), but tests run
// unprivileged and must still be able to exercise the mode half of this.
func ApplyMeta(path string, m Meta) error {
	if err := os.Chmod(path, m.Mode); err != nil {
		return fmt.Errorf("store: chmod %s: %w", path, err)
	}

	if err := os.Chown(path, m.UID, m.GID); err != nil && !os.IsPermission(err) {
		return fmt.Errorf("store: chown %s: %w", path, err)
	}

	return nil
}
