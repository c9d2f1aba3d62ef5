package materialise

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fleetbase/agent/internal/identifier"
	"github.com/fleetbase/agent/internal/kindreg"
	"github.com/fleetbase/agent/internal/store"
	"github.com/fleetbase/agent/internal/transport"
)

// File materialises single-file managed objects (spec.md §4.4 "Download —
// File" / "Upload — File").
type File struct {
	store  *store.Store
	client *transport.Client
	logger *slog.Logger
}

// NewFile builds a File materialiser.
func NewFile(s *store.Store, c *transport.Client, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.Default()
	}

	return &File{store: s, client: c, logger: logger}
}

func (f *File) path(id string) (string, error) {
	p, err := identifier.Decode(identifier.ID(id))
	if err != nil {
		return "", fmt.Errorf("materialise: decoding file id %s: %w", id, err)
	}

	return p, nil
}

// LocalVersion implements kindreg.Materialiser.
func (f *File) LocalVersion(_ context.Context, id string) (int64, error) {
	path, err := f.path(id)
	if err != nil {
		return 0, err
	}

	return fileLocalVersion(path)
}

// Backup implements kindreg.Materialiser.
func (f *File) Backup(_ context.Context, id string) error {
	path, err := f.path(id)
	if err != nil {
		return err
	}

	return f.store.BackupFile(kindreg.File.DirName(), id, path)
}

// Restore implements kindreg.Materialiser.
func (f *File) Restore(_ context.Context, id string) error {
	path, err := f.path(id)
	if err != nil {
		return err
	}

	if !f.store.HasFileBackup(kindreg.File.DirName(), id) {
		return os.RemoveAll(path)
	}

	return f.store.RestoreFile(kindreg.File.DirName(), id, path)
}

// Download implements kindreg.Materialiser: pull server content and write
// it locally, preserving the server's declared ownership/mode.
func (f *File) Download(ctx context.Context, id string, remoteVersion int64) error {
	path, err := f.path(id)
	if err != nil {
		return err
	}

	meta, err := f.client.GetMeta(ctx, "file", id)
	if err != nil {
		return fmt.Errorf("materialise: fetching meta for %s: %w", id, err)
	}

	encoded, err := f.client.GetFileContent(ctx, id)
	if err != nil {
		return fmt.Errorf("materialise: fetching content for %s: %w", id, err)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("materialise: decoding content for %s: %w", id, err)
	}

	localOwnership, err := localMeta(meta)
	if err != nil {
		return err
	}

	if err := f.store.EnsureDirOwned(filepath.Dir(path), localOwnership.UID, localOwnership.GID); err != nil {
		return fmt.Errorf("materialise: preparing parent of %s: %w", path, err)
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("materialise: writing %s: %w", path, err)
	}

	if err := store.ApplyMeta(path, localOwnership); err != nil {
		return err
	}

	localVersion, err := fileLocalVersion(path)
	if err != nil {
		return err
	}

	return f.store.PutRecord(kindreg.File, id, kindreg.Record{LocalVersion: localVersion, RemoteVersion: remoteVersion})
}

// Upload implements kindreg.Materialiser: push current local content.
func (f *File) Upload(ctx context.Context, id string) error {
	path, err := f.path(id)
	if err != nil {
		return err
	}

	version, err := fileLocalVersion(path)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("materialise: reading %s: %w", path, err)
	}

	meta, err := store.CaptureMeta(path)
	if err != nil {
		return err
	}

	wire, err := wireMeta(meta)
	if err != nil {
		return err
	}

	if err := f.client.SetMeta(ctx, "file", id, wire); err != nil {
		return fmt.Errorf("materialise: pushing meta for %s: %w", id, err)
	}

	if err := f.client.SetFileContent(ctx, id, base64.StdEncoding.EncodeToString(raw), version); err != nil {
		return fmt.Errorf("materialise: pushing content for %s: %w", id, err)
	}

	return f.store.PutRecord(kindreg.File, id, kindreg.Record{LocalVersion: version, RemoteVersion: version})
}
