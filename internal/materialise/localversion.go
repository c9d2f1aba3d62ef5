// Package materialise implements the five per-kind materialisers — File,
// Directory, Package, Partial, Additional — each exposing the
// localVersion/backup/restore/download/upload contract the reconciliation
// engine dispatches to via internal/kindreg (spec.md §4.4).
package materialise

import (
	"os"
	"path/filepath"
	"syscall"
)

// fileLocalVersion returns floor(max(mtime, ctime)) of path, or 0 if
// absent (spec.md §4.4: "Local version... For single-artifact kinds it is
// ⌊max(mtime, ctime)⌋ of the artifact (0 if absent)").
func fileLocalVersion(path string) (int64, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return maxMtimeCtime(info), nil
}

// directoryLocalVersion returns the max of fileLocalVersion over the
// directory itself and every entry under it, recursively (spec.md §4.4).
func directoryLocalVersion(path string) (int64, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	best := maxMtimeCtime(info)

	err = filepath.Walk(path, func(_ string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if v := maxMtimeCtime(fi); v > best {
			best = v
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return best, nil
}

func maxMtimeCtime(info os.FileInfo) int64 {
	mtime := info.ModTime().Unix()

	ctime := mtime
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		ctime = stat.Ctim.Sec
	}

	if ctime > mtime {
		return ctime
	}

	return mtime
}
