package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/fleetbase/agent/internal/identifier"
	"github.com/fleetbase/agent/internal/kindreg"
)

// createdDirsPath returns objects/created_dirs (spec.md §4.2).
func (s *Store) createdDirsPath() string {
	return filepath.Join(s.objectsDir(), "created_dirs")
}

// CreatedDirs loads the ledger of parent directories the agent has had to
// create in order to materialise some object (spec.md §3, §9: "a plain set
// of absolute paths").
func (s *Store) CreatedDirs() (map[string]bool, error) {
	raw, err := os.ReadFile(s.createdDirsPath())
	if errors.Is(err, os.ErrNotExist) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: reading created-dirs ledger: %w", err)
	}

	set := make(map[string]bool)
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			set[line] = true
		}
	}

	return set, nil
}

func (s *Store) saveCreatedDirs(set map[string]bool) error {
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if err := os.MkdirAll(s.objectsDir(), 0o700); err != nil {
		return fmt.Errorf("store: creating objects directory: %w", err)
	}

	return os.WriteFile(s.createdDirsPath(), []byte(strings.Join(paths, "\n")), 0o600)
}

// RecordCreatedDir adds dir to the ledger if not already present.
func (s *Store) RecordCreatedDir(dir string) error {
	set, err := s.CreatedDirs()
	if err != nil {
		return err
	}

	if set[dir] {
		return nil
	}

	set[dir] = true

	return s.saveCreatedDirs(set)
}

// ForgetCreatedDir removes dir from the ledger.
func (s *Store) ForgetCreatedDir(dir string) error {
	set, err := s.CreatedDirs()
	if err != nil {
		return err
	}

	if !set[dir] {
		return nil
	}

	delete(set, dir)

	return s.saveCreatedDirs(set)
}

// CreatedDirsDeepestFirst returns the ledger's paths ordered by decreasing
// depth (most path separators first), the order uninstall must rmdir them
// in so that children are removed before their parents (spec.md §9:
// "iterate in decreasing depth (deepest first) and rmdir each, ignoring
// not-empty errors").
func (s *Store) CreatedDirsDeepestFirst() ([]string, error) {
	set, err := s.CreatedDirs()
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}

	sort.Slice(paths, func(i, j int) bool {
		di, dj := strings.Count(paths[i], string(filepath.Separator)), strings.Count(paths[j], string(filepath.Separator))
		if di != dj {
			return di > dj
		}
		return paths[i] < paths[j]
	})

	return paths, nil
}

// PruneUnusedCreatedDirs removes every directory in the created-dirs ledger
// that no remaining tracked object still lives under, deepest first, so
// that an unmanage (spec.md §4.6 Remove) or a full uninstall cleans up
// exactly the directories the agent introduced and nothing else (spec.md
// §3, §9). A directory still containing an unrelated file fails rmdir with
// ENOTEMPTY; that is not an error here — the ledger entry is kept so the
// directory is reconsidered the next time something is removed.
func (s *Store) PruneUnusedCreatedDirs() error {
	tracked, err := s.allTrackedPaths()
	if err != nil {
		return err
	}

	dirs, err := s.CreatedDirsDeepestFirst()
	if err != nil {
		return err
	}

	for _, dir := range dirs {
		if pathOrAncestorTracked(dir, tracked) {
			continue
		}

		if err := os.Remove(dir); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// already gone; fall through to forget it
			} else if errors.Is(err, syscall.ENOTEMPTY) {
				continue
			} else {
				return fmt.Errorf("store: removing created dir %s: %w", dir, err)
			}
		}

		if err := s.ForgetCreatedDir(dir); err != nil {
			return err
		}
	}

	return nil
}

// allTrackedPaths decodes every currently-tracked id, across every kind,
// back into its original path or package name.
func (s *Store) allTrackedPaths() ([]string, error) {
	var paths []string

	for _, k := range kindreg.All {
		ids, err := s.TrackedIDs(k)
		if err != nil {
			return nil, err
		}

		for _, id := range ids {
			path, err := identifier.Decode(identifier.ID(id))
			if err != nil {
				continue
			}
			paths = append(paths, path)
		}
	}

	return paths, nil
}

// pathOrAncestorTracked reports whether dir is, or is an ancestor of, any
// still-tracked path — i.e. whether some managed object still needs dir to
// exist.
func pathOrAncestorTracked(dir string, tracked []string) bool {
	prefix := strings.TrimSuffix(dir, string(filepath.Separator)) + string(filepath.Separator)

	for _, p := range tracked {
		if p == dir || strings.HasPrefix(p, prefix) {
			return true
		}
	}

	return false
}

// EnsureDir creates dir (and any missing parents) and records in the
// ledger only the directories that did not already exist, so that
// uninstall removes exactly what install introduced.
func (s *Store) EnsureDir(dir string) error {
	_, err := s.ensureDir(dir)
	return err
}

// EnsureDirOwned is EnsureDir followed by chowning every directory that
// was newly created (not pre-existing ones) to uid/gid — spec.md §4.4:
// "Create parent directories (record each newly created one in the
// created-dir ledger, chowned to the metadata owner/group)".
func (s *Store) EnsureDirOwned(dir string, uid, gid int) error {
	created, err := s.ensureDir(dir)
	if err != nil {
		return err
	}

	for _, d := range created {
		if err := os.Chown(d, uid, gid); err != nil && !os.IsPermission(err) {
			return fmt.Errorf("store: chowning %s: %w", d, err)
		}
	}

	return nil
}

// ensureDir creates dir and any missing parents, records the newly
// created ones in the ledger, and returns exactly those newly created
// paths (not ones that already existed).
func (s *Store) ensureDir(dir string) ([]string, error) {
	toCreate := []string{}
	cur := dir

	for {
		if _, err := os.Stat(cur); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("store: stat %s: %w", cur, err)
		}

		toCreate = append(toCreate, cur)

		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating %s: %w", dir, err)
	}

	for _, d := range toCreate {
		if err := s.RecordCreatedDir(d); err != nil {
			return nil, err
		}
	}

	return toCreate, nil
}
