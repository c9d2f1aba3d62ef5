// Package store implements the on-disk state store: per-object JSON
// records, the parallel backup tree, and the created-directory ledger
// (spec.md §4.2). Object records are plain writes with no atomic-replace
// wrapping — spec.md §4.2 explicitly waives that guarantee because the
// agent tolerates partial writes by re-running a full sync on the next
// tick; only the config file (internal/config) is written atomically.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fleetbase/agent/internal/kindreg"
)

// ErrNotTracked is returned by GetRecord when the id has no record.
var ErrNotTracked = errors.New("store: not tracked")

// Store is rooted at a state directory (spec.md §4.2's "well-known path").
type Store struct {
	root string
}

// New returns a Store rooted at dir. The directory need not exist yet;
// it is created on first write.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the state directory this Store is rooted at.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) objectsDir() string {
	return filepath.Join(s.root, "objects")
}

func (s *Store) backupsDir() string {
	return filepath.Join(s.root, "backups")
}

func (s *Store) recordPath(kind kindreg.Kind, id string) string {
	return filepath.Join(s.objectsDir(), kind.DirName(), id)
}

func (s *Store) backupPath(kind kindreg.Kind, id string) string {
	return filepath.Join(s.backupsDir(), kind.DirName(), id)
}

// GetRecord reads the persisted {local_version, remote_version} for id.
// Returns ErrNotTracked if no record exists.
func (s *Store) GetRecord(kind kindreg.Kind, id string) (kindreg.Record, error) {
	raw, err := os.ReadFile(s.recordPath(kind, id))
	if errors.Is(err, os.ErrNotExist) {
		return kindreg.Record{}, ErrNotTracked
	}
	if err != nil {
		return kindreg.Record{}, fmt.Errorf("store: reading record %s/%s: %w", kind, id, err)
	}

	var rec kindreg.Record
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rec); err != nil {
			return kindreg.Record{}, fmt.Errorf("store: decoding record %s/%s: %w", kind, id, err)
		}
	}

	return rec, nil
}

// HasRecord reports whether id is currently tracked under kind.
func (s *Store) HasRecord(kind kindreg.Kind, id string) bool {
	_, err := os.Stat(s.recordPath(kind, id))
	return err == nil
}

// PutRecord writes the per-object record for id, creating parent
// directories as needed. Packages use the zero-value record (spec.md §3:
// "presence-only marker (empty record)").
func (s *Store) PutRecord(kind kindreg.Kind, id string, rec kindreg.Record) error {
	path := s.recordPath(kind, id)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("store: creating directory for %s/%s: %w", kind, id, err)
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encoding record %s/%s: %w", kind, id, err)
	}

	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("store: writing record %s/%s: %w", kind, id, err)
	}

	return nil
}

// DeleteRecord removes the per-object record for id, if any.
func (s *Store) DeleteRecord(kind kindreg.Kind, id string) error {
	err := os.Remove(s.recordPath(kind, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: deleting record %s/%s: %w", kind, id, err)
	}

	return nil
}

// TrackedIDs lists every id currently tracked under kind.
func (s *Store) TrackedIDs(kind kindreg.Kind) ([]string, error) {
	dir := filepath.Join(s.objectsDir(), kind.DirName())

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: listing %s: %w", kind, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			ids = append(ids, e.Name())
		}
	}

	return ids, nil
}

// ClaimedKind reports which kind, if any, already claims id, enforcing
// invariant I1 from spec.md §3 ("at most one kind claims it at any time").
func (s *Store) ClaimedKind(id string) (kindreg.Kind, bool) {
	for _, k := range kindreg.All {
		if s.HasRecord(k, id) {
			return k, true
		}
	}

	return "", false
}
