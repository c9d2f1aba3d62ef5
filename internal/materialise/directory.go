package materialise

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fleetbase/agent/internal/identifier"
	"github.com/fleetbase/agent/internal/kindreg"
	"github.com/fleetbase/agent/internal/store"
	"github.com/fleetbase/agent/internal/transport"
)

// maxParallelTransfers bounds concurrent per-file I/O within one directory
// download/upload — sequential per-object dispatch (spec.md §5) still
// applies at the reconciliation-engine level; this only parallelises work
// inside a single directory's own materialisation.
const maxParallelTransfers = 8

// Directory materialises whole managed directory trees (spec.md §4.4
// "Download — Directory" / "Upload — Directory").
type Directory struct {
	store  *store.Store
	client *transport.Client
	logger *slog.Logger
}

// NewDirectory builds a Directory materialiser.
func NewDirectory(s *store.Store, c *transport.Client, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}

	return &Directory{store: s, client: c, logger: logger}
}

func (d *Directory) path(id string) (string, error) {
	p, err := identifier.Decode(identifier.ID(id))
	if err != nil {
		return "", fmt.Errorf("materialise: decoding directory id %s: %w", id, err)
	}

	return p, nil
}

// LocalVersion implements kindreg.Materialiser.
func (d *Directory) LocalVersion(_ context.Context, id string) (int64, error) {
	path, err := d.path(id)
	if err != nil {
		return 0, err
	}

	return directoryLocalVersion(path)
}

// Backup implements kindreg.Materialiser.
func (d *Directory) Backup(_ context.Context, id string) error {
	path, err := d.path(id)
	if err != nil {
		return err
	}

	return d.store.BackupDirectory(kindreg.Directory.DirName(), id, path)
}

// Restore implements kindreg.Materialiser.
func (d *Directory) Restore(_ context.Context, id string) error {
	path, err := d.path(id)
	if err != nil {
		return err
	}

	return d.store.RestoreDirectory(kindreg.Directory.DirName(), id, path)
}

// Download implements kindreg.Materialiser: recreate the directory root,
// then mkdir every server-listed subdirectory ordered by increasing
// depth, then write every file (spec.md §4.4).
func (d *Directory) Download(ctx context.Context, id string, remoteVersion int64) error {
	path, err := d.path(id)
	if err != nil {
		return err
	}

	rootMeta, err := d.client.GetMeta(ctx, "directory", id)
	if err != nil {
		return fmt.Errorf("materialise: fetching root meta for %s: %w", id, err)
	}

	content, err := d.client.GetDirContent(ctx, id)
	if err != nil {
		return fmt.Errorf("materialise: fetching content for %s: %w", id, err)
	}

	rootOwnership, err := localMeta(rootMeta)
	if err != nil {
		return err
	}

	if err := d.store.EnsureDirOwned(filepath.Dir(path), rootOwnership.UID, rootOwnership.GID); err != nil {
		return fmt.Errorf("materialise: preparing parent of %s: %w", path, err)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("materialise: clearing %s: %w", path, err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("materialise: creating %s: %w", path, err)
	}

	if err := store.ApplyMeta(path, rootOwnership); err != nil {
		return err
	}

	subdirs := make([]string, 0, len(content.Dirs))
	for rel := range content.Dirs {
		subdirs = append(subdirs, rel)
	}

	sort.Slice(subdirs, func(i, j int) bool {
		return strings.Count(subdirs[i], "/") < strings.Count(subdirs[j], "/")
	})

	for _, rel := range subdirs {
		meta := content.Dirs[rel]

		ownership, err := localMeta(meta)
		if err != nil {
			return err
		}

		full := filepath.Join(path, rel)
		if err := os.MkdirAll(full, 0o755); err != nil {
			return fmt.Errorf("materialise: creating %s: %w", full, err)
		}

		if err := store.ApplyMeta(full, ownership); err != nil {
			return err
		}
	}

	if err := d.downloadFiles(path, content); err != nil {
		return err
	}

	local, err := directoryLocalVersion(path)
	if err != nil {
		return err
	}

	return d.store.PutRecord(kindreg.Directory, id, kindreg.Record{LocalVersion: local, RemoteVersion: remoteVersion})
}

func (d *Directory) downloadFiles(root string, content *transport.DirContent) error {
	g := new(errgroup.Group)
	g.SetLimit(maxParallelTransfers)

	for rel, entry := range content.Files {
		rel, entry := rel, entry

		g.Go(func() error {
			ownership, err := localMeta(entry.Meta)
			if err != nil {
				return err
			}

			raw, err := base64.StdEncoding.DecodeString(entry.Content)
			if err != nil {
				return fmt.Errorf("materialise: decoding content for %s: %w", rel, err)
			}

			full := filepath.Join(root, rel)
			if err := os.WriteFile(full, raw, 0o644); err != nil {
				return fmt.Errorf("materialise: writing %s: %w", full, err)
			}

			return store.ApplyMeta(full, ownership)
		})
	}

	return g.Wait()
}

// Upload implements kindreg.Materialiser: walk the tree and send every
// subdirectory and file as one atomic payload (spec.md §4.4: "Send
// atomically as one content payload").
func (d *Directory) Upload(ctx context.Context, id string) error {
	path, err := d.path(id)
	if err != nil {
		return err
	}

	version, err := directoryLocalVersion(path)
	if err != nil {
		return err
	}

	content := &transport.DirContent{
		Dirs:  make(map[string]transport.Meta),
		Files: make(map[string]transport.DirEntry),
	}

	var (
		mu      sync.Mutex
		g       errgroup.Group
		relDirs []string
	)
	g.SetLimit(maxParallelTransfers)

	err = filepath.Walk(path, func(full string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if full == path {
			return nil
		}

		rel, err := filepath.Rel(path, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			relDirs = append(relDirs, rel)
			return nil
		}

		full, rel := full, rel

		g.Go(func() error {
			meta, err := store.CaptureMeta(full)
			if err != nil {
				return err
			}

			wire, err := wireMeta(meta)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(full)
			if err != nil {
				return fmt.Errorf("materialise: reading %s: %w", full, err)
			}

			entry := transport.DirEntry{Meta: wire, Content: base64.StdEncoding.EncodeToString(raw)}

			mu.Lock()
			content.Files[rel] = entry
			mu.Unlock()

			return nil
		})

		return nil
	})
	if err != nil {
		return fmt.Errorf("materialise: walking %s: %w", path, err)
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for _, rel := range relDirs {
		meta, err := store.CaptureMeta(filepath.Join(path, rel))
		if err != nil {
			return err
		}

		wire, err := wireMeta(meta)
		if err != nil {
			return err
		}

		content.Dirs[rel] = wire
	}

	rootMeta, err := store.CaptureMeta(path)
	if err != nil {
		return err
	}

	rootWire, err := wireMeta(rootMeta)
	if err != nil {
		return err
	}

	if err := d.client.SetMeta(ctx, "directory", id, rootWire); err != nil {
		return fmt.Errorf("materialise: pushing root meta for %s: %w", id, err)
	}

	if err := d.client.SetDirContent(ctx, id, content, version); err != nil {
		return fmt.Errorf("materialise: pushing content for %s: %w", id, err)
	}

	return d.store.PutRecord(kindreg.Directory, id, kindreg.Record{LocalVersion: version, RemoteVersion: version})
}
