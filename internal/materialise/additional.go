package materialise

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fleetbase/agent/internal/identifier"
	"github.com/fleetbase/agent/internal/kindreg"
	"github.com/fleetbase/agent/internal/store"
	"github.com/fleetbase/agent/internal/transport"
)

const (
	beginMarkerSuffix = " BEGIN MAM ADDITIONAL"
	endMarkerSuffix   = " END MAM ADDITIONAL"
)

// Additional materialises a fenced block of lines appended inside an
// otherwise unmanaged file (spec.md §4.4 "Additional — fenced-block
// algorithm").
type Additional struct {
	store  *store.Store
	client *transport.Client
	logger *slog.Logger
}

// NewAdditional builds an Additional materialiser.
func NewAdditional(s *store.Store, c *transport.Client, logger *slog.Logger) *Additional {
	if logger == nil {
		logger = slog.Default()
	}

	return &Additional{store: s, client: c, logger: logger}
}

func (a *Additional) path(id string) (string, error) {
	path, err := identifier.Decode(identifier.ID(id))
	if err != nil {
		return "", fmt.Errorf("materialise: decoding additional id %s: %w", id, err)
	}

	return path, nil
}

// LocalVersion implements kindreg.Materialiser.
func (a *Additional) LocalVersion(_ context.Context, id string) (int64, error) {
	path, err := a.path(id)
	if err != nil {
		return 0, err
	}

	return fileLocalVersion(path)
}

// Backup implements kindreg.Materialiser.
func (a *Additional) Backup(_ context.Context, id string) error {
	path, err := a.path(id)
	if err != nil {
		return err
	}

	return a.store.BackupFile(kindreg.Additional.DirName(), id, path)
}

// Restore implements kindreg.Materialiser.
func (a *Additional) Restore(_ context.Context, id string) error {
	path, err := a.path(id)
	if err != nil {
		return err
	}

	return a.store.RestoreFile(kindreg.Additional.DirName(), id, path)
}

// fenceIndices locates the first BEGIN marker and the first END marker
// that follows it. Returns ok=false if either marker is absent.
func fenceIndices(lines []string, prefix string) (begin, end int, ok bool) {
	begin, end = -1, -1
	beginLine := prefix + beginMarkerSuffix
	endLine := prefix + endMarkerSuffix

	for i, line := range lines {
		if begin == -1 && line == beginLine {
			begin = i
			continue
		}

		if begin != -1 && end == -1 && line == endLine {
			end = i
			break
		}
	}

	return begin, end, begin != -1 && end != -1
}

// Download implements kindreg.Materialiser: replace the content between
// the fence markers with the server-provided lines, or append a new
// fenced block if the markers are not present (spec.md §4.4).
func (a *Additional) Download(ctx context.Context, id string, remoteVersion int64) error {
	path, err := a.path(id)
	if err != nil {
		return err
	}

	meta, err := a.client.GetMeta(ctx, "additional", id)
	if err != nil {
		return fmt.Errorf("materialise: fetching meta for %s: %w", id, err)
	}

	prefix, err := a.client.GetAdditionalPrefix(ctx, id)
	if err != nil {
		return fmt.Errorf("materialise: fetching prefix for %s: %w", id, err)
	}

	content, err := a.client.GetAdditionalContent(ctx, id)
	if err != nil {
		return fmt.Errorf("materialise: fetching content for %s: %w", id, err)
	}

	lines, err := readLinesStrippingBOM(path)
	if err != nil {
		return fmt.Errorf("materialise: reading %s: %w", path, err)
	}

	lines = replaceFence(lines, prefix, content)

	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("materialise: writing %s: %w", path, err)
	}

	ownership, err := localMeta(meta)
	if err != nil {
		return err
	}

	if err := store.ApplyMeta(path, ownership); err != nil {
		return err
	}

	local, err := fileLocalVersion(path)
	if err != nil {
		return err
	}

	return a.store.PutRecord(kindreg.Additional, id, kindreg.Record{LocalVersion: local, RemoteVersion: remoteVersion})
}

// replaceFence deletes any existing fenced block and inserts a fresh one
// at the same position (or appends one if no fence existed).
func replaceFence(lines []string, prefix string, content []string) []string {
	begin, end, ok := fenceIndices(lines, prefix)

	block := make([]string, 0, len(content)+2)
	block = append(block, prefix+beginMarkerSuffix)
	block = append(block, content...)
	block = append(block, prefix+endMarkerSuffix)

	if !ok {
		return append(lines, block...)
	}

	out := make([]string, 0, len(lines)-(end-begin+1)+len(block))
	out = append(out, lines[:begin]...)
	out = append(out, block...)
	out = append(out, lines[end+1:]...)

	return out
}

// Upload implements kindreg.Materialiser: harvest the lines currently
// between the fence markers, or send an empty list if the fence is
// absent (spec.md §4.4).
func (a *Additional) Upload(ctx context.Context, id string) error {
	path, err := a.path(id)
	if err != nil {
		return err
	}

	prefix, err := a.client.GetAdditionalPrefix(ctx, id)
	if err != nil {
		return fmt.Errorf("materialise: fetching prefix for %s: %w", id, err)
	}

	lines, err := readLinesStrippingBOM(path)
	if err != nil {
		return fmt.Errorf("materialise: reading %s: %w", path, err)
	}

	begin, end, ok := fenceIndices(lines, prefix)

	var harvested []string
	if ok {
		harvested = append(harvested, lines[begin+1:end]...)
	}

	version, err := fileLocalVersion(path)
	if err != nil {
		return err
	}

	if _, err := a.client.SetAdditionalContent(ctx, id, harvested, version); err != nil {
		return fmt.Errorf("materialise: pushing content for %s: %w", id, err)
	}

	return a.store.PutRecord(kindreg.Additional, id, kindreg.Record{LocalVersion: version, RemoteVersion: version})
}
