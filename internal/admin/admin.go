// Package admin implements the add/remove precondition checks and
// orchestration described in spec.md §4.6: existence, kind-claim
// uniqueness, and path containment/overlap rules.
package admin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fleetbase/agent/internal/identifier"
	"github.com/fleetbase/agent/internal/kindreg"
	"github.com/fleetbase/agent/internal/store"
	"github.com/fleetbase/agent/internal/transport"
)

// Errors returned by precondition checks — each maps to a one-line
// message and non-zero exit at the CLI layer (spec.md §4.6, §7.2).
var (
	ErrArtifactMissing = errors.New("admin: artifact does not exist")
	ErrAlreadyClaimed  = errors.New("admin: id is already claimed by another kind")
	ErrOverlap         = errors.New("admin: path overlaps an already-managed directory")
	ErrNotTracked      = errors.New("admin: object is not tracked")
)

// Admin wires the store and server client needed to validate and perform
// add/remove operations.
type Admin struct {
	store  *store.Store
	client *transport.Client
}

// New builds an Admin.
func New(s *store.Store, c *transport.Client) *Admin {
	return &Admin{store: s, client: c}
}

// hasTrailingSeparatorPrefix reports whether candidate is prefix or a path
// strictly inside prefix, guarded against `/etc/host` spuriously matching
// `/etc/hosts` (spec.md §9 "Path containment checks at admin time").
func hasTrailingSeparatorPrefix(candidate, prefix string) bool {
	if candidate == prefix {
		return true
	}

	return strings.HasPrefix(candidate, strings.TrimSuffix(prefix, "/")+"/")
}

// checkContainment enforces spec.md §4.6: a directory add must not be
// inside an already-managed directory, and no already-managed object's
// path may start with the new directory's path.
func (a *Admin) checkContainment(path string) error {
	ids, err := a.store.TrackedIDs(kindreg.Directory)
	if err != nil {
		return err
	}

	for _, id := range ids {
		trackedPath, err := identifier.Decode(identifier.ID(id))
		if err != nil {
			continue
		}

		if hasTrailingSeparatorPrefix(path, trackedPath) {
			return fmt.Errorf("%w: %s is inside managed directory %s", ErrOverlap, path, trackedPath)
		}

		if hasTrailingSeparatorPrefix(trackedPath, path) {
			return fmt.Errorf("%w: managed directory %s is inside %s", ErrOverlap, trackedPath, path)
		}
	}

	return nil
}

// precheck runs the two checks every add shares: the id is not already
// claimed by another kind, and (for artifact-backed kinds) the artifact
// exists on disk.
func (a *Admin) precheck(key string, requireArtifact bool) (string, error) {
	if requireArtifact {
		if _, err := os.Lstat(key); err != nil {
			return "", fmt.Errorf("%w: %s", ErrArtifactMissing, key)
		}
	}

	id := identifier.Encode(key).String()

	if claimedKind, claimed := a.store.ClaimedKind(id); claimed {
		return "", fmt.Errorf("%w: %s is already a %s", ErrAlreadyClaimed, key, claimedKind)
	}

	return id, nil
}

// AddFile registers path as a managed File: creates it server-side,
// snapshots the current artifact to backup, and pushes the initial
// upload (spec.md §3 lifecycle, §4.6).
func (a *Admin) AddFile(ctx context.Context, path string, m kindreg.Materialiser) error {
	if err := a.checkContainment(path); err != nil {
		return err
	}

	id, err := a.precheck(path, true)
	if err != nil {
		return err
	}

	return a.createBackupUpload(ctx, kindreg.File, id, "", m)
}

// AddDirectory registers path as a managed Directory, additionally
// checking that no already-managed file, partial or additional lives
// inside it.
func (a *Admin) AddDirectory(ctx context.Context, path string, m kindreg.Materialiser) error {
	if err := a.checkContainment(path); err != nil {
		return err
	}

	id, err := a.precheck(path, true)
	if err != nil {
		return err
	}

	for _, kind := range []kindreg.Kind{kindreg.File, kindreg.Partial, kindreg.Additional} {
		ids, err := a.store.TrackedIDs(kind)
		if err != nil {
			return err
		}

		for _, tid := range ids {
			trackedPath, err := identifier.Decode(identifier.ID(tid))
			if err == nil && hasTrailingSeparatorPrefix(trackedPath, path) {
				return fmt.Errorf("%w: managed %s %s is inside %s", ErrOverlap, kind, trackedPath, path)
			}
		}
	}

	return a.createBackupUpload(ctx, kindreg.Directory, id, "", m)
}

// AddPackage registers name as a managed Package. Packages have no
// filesystem artifact to check for existence.
func (a *Admin) AddPackage(ctx context.Context, name string, m kindreg.Materialiser) error {
	id, err := a.precheck(name, false)
	if err != nil {
		return err
	}

	return a.createBackupUpload(ctx, kindreg.Package, id, "", m)
}

// AddPartial registers path as a managed Partial, then appends one new
// edit rule to the server's rule list and uploads, harvesting the rule's
// current value from the file (spec.md §4.6).
func (a *Admin) AddPartial(ctx context.Context, path string, rule transport.EditRule, m kindreg.Materialiser) error {
	if err := a.checkContainment(path); err != nil {
		return err
	}

	id, err := a.precheck(path, true)
	if err != nil {
		return err
	}

	if err := a.client.Create(ctx, string(kindreg.Partial), id, ""); err != nil {
		return fmt.Errorf("admin: registering %s: %w", path, err)
	}

	existing, err := a.client.GetPartialContent(ctx, id)
	if err != nil {
		return fmt.Errorf("admin: reading existing rules for %s: %w", path, err)
	}

	if _, err := a.client.SetPartialContent(ctx, id, append(existing, rule), 0); err != nil {
		return fmt.Errorf("admin: appending rule for %s: %w", path, err)
	}

	if err := m.Backup(ctx, id); err != nil {
		return fmt.Errorf("admin: backing up %s: %w", path, err)
	}

	return m.Upload(ctx, id)
}

// AddAdditional registers path as a managed Additional, ensuring the
// fence markers exist in the target file before the initial upload
// (spec.md §4.6: "Additional-adds ensure the fence markers exist before
// uploading").
func (a *Admin) AddAdditional(ctx context.Context, path, commentPrefix string, m kindreg.Materialiser) error {
	if err := a.checkContainment(path); err != nil {
		return err
	}

	id, err := a.precheck(path, true)
	if err != nil {
		return err
	}

	if err := a.client.Create(ctx, string(kindreg.Additional), id, commentPrefix); err != nil {
		return fmt.Errorf("admin: registering %s: %w", path, err)
	}

	if err := m.Backup(ctx, id); err != nil {
		return fmt.Errorf("admin: backing up %s: %w", path, err)
	}

	// Download first to materialise an empty fenced block if one isn't
	// already present, then upload harvests whatever lines end up inside
	// it (empty, on a fresh add).
	if err := m.Download(ctx, id, 0); err != nil {
		return fmt.Errorf("admin: seeding fence markers in %s: %w", path, err)
	}

	return m.Upload(ctx, id)
}

func (a *Admin) createBackupUpload(ctx context.Context, kind kindreg.Kind, id, prefix string, m kindreg.Materialiser) error {
	if err := a.client.Create(ctx, string(kind), id, prefix); err != nil {
		return fmt.Errorf("admin: registering %s/%s: %w", kind, id, err)
	}

	if err := m.Backup(ctx, id); err != nil {
		return fmt.Errorf("admin: backing up %s/%s: %w", kind, id, err)
	}

	if err := m.Upload(ctx, id); err != nil {
		return fmt.Errorf("admin: uploading %s/%s: %w", kind, id, err)
	}

	return nil
}

// Remove restores key's backup, deletes it server-side, and drops its
// record. Kind must be the kind it was added under — callers look this up
// via Admin.ClaimedKind.
func (a *Admin) Remove(ctx context.Context, kind kindreg.Kind, key string, m kindreg.Materialiser) error {
	id := identifier.Encode(key).String()

	if !a.store.HasRecord(kind, id) {
		return fmt.Errorf("%w: %s", ErrNotTracked, key)
	}

	if err := m.Restore(ctx, id); err != nil {
		return fmt.Errorf("admin: restoring %s: %w", key, err)
	}

	if err := a.client.Delete(ctx, string(kind), id); err != nil {
		return fmt.Errorf("admin: unregistering %s: %w", key, err)
	}

	if err := a.store.DeleteRecord(kind, id); err != nil {
		return err
	}

	return a.store.PruneUnusedCreatedDirs()
}

// ClaimedKind reports which kind, if any, claims key.
func (a *Admin) ClaimedKind(key string) (kindreg.Kind, bool) {
	id := identifier.Encode(key).String()
	return a.store.ClaimedKind(id)
}
