package materialise

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/fleetbase/agent/internal/identifier"
	"github.com/fleetbase/agent/internal/kindreg"
	"github.com/fleetbase/agent/internal/store"
	"github.com/fleetbase/agent/internal/transport"
)

// Partial materialises line-pattern edits inside an otherwise unmanaged
// file (spec.md §4.4 "Partial — edit-in-place algorithm").
type Partial struct {
	store  *store.Store
	client *transport.Client
	logger *slog.Logger
}

// NewPartial builds a Partial materialiser.
func NewPartial(s *store.Store, c *transport.Client, logger *slog.Logger) *Partial {
	if logger == nil {
		logger = slog.Default()
	}

	return &Partial{store: s, client: c, logger: logger}
}

func (p *Partial) path(id string) (string, error) {
	path, err := identifier.Decode(identifier.ID(id))
	if err != nil {
		return "", fmt.Errorf("materialise: decoding partial id %s: %w", id, err)
	}

	return path, nil
}

// LocalVersion implements kindreg.Materialiser: the version of the whole
// target file, not just the managed lines (the file is shared with
// content the agent does not own).
func (p *Partial) LocalVersion(_ context.Context, id string) (int64, error) {
	path, err := p.path(id)
	if err != nil {
		return 0, err
	}

	return fileLocalVersion(path)
}

// Backup implements kindreg.Materialiser: snapshot the whole target file.
func (p *Partial) Backup(_ context.Context, id string) error {
	path, err := p.path(id)
	if err != nil {
		return err
	}

	return p.store.BackupFile(kindreg.Partial.DirName(), id, path)
}

// Restore implements kindreg.Materialiser.
func (p *Partial) Restore(_ context.Context, id string) error {
	path, err := p.path(id)
	if err != nil {
		return err
	}

	return p.store.RestoreFile(kindreg.Partial.DirName(), id, path)
}

// ruleState is one compiled edit rule plus its transient active flag
// (spec.md §4.4 "Active-state tracking").
type ruleState struct {
	pattern *regexp.Regexp
	value   string
	section *regexp.Regexp
	active  bool
}

func compileRules(edits []transport.EditRule) ([]*ruleState, error) {
	states := make([]*ruleState, 0, len(edits))

	for _, e := range edits {
		pat, err := regexp.Compile(e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("materialise: compiling pattern %q: %w", e.Pattern, err)
		}

		var section *regexp.Regexp
		if e.Section != nil {
			section, err = regexp.Compile(*e.Section)
			if err != nil {
				return nil, fmt.Errorf("materialise: compiling section %q: %w", *e.Section, err)
			}
		}

		states = append(states, &ruleState{
			pattern: pat,
			value:   e.Value,
			section: section,
			active:  section == nil,
		})
	}

	return states, nil
}

// applyDownload rewrites lines in place per spec.md §4.4's download
// direction: an active rule whose pattern matches replaces the line and
// re-arms only for section-less rules; an inactive rule whose section
// matches the line becomes active starting the next line.
func applyDownload(lines []string, rules []*ruleState) {
	for i, line := range lines {
		for _, r := range rules {
			if r.active && r.pattern.MatchString(line) {
				lines[i] = r.value
				r.active = r.section == nil
			} else if !r.active && r.section != nil && r.section.MatchString(line) {
				r.active = true
			}
		}
	}
}

// applyUpload harvests the current value of every active-matching line
// back into its rule, using the same traversal and active-state rules as
// applyDownload (spec.md §4.4's upload direction).
func applyUpload(lines []string, rules []*ruleState) {
	for _, line := range lines {
		for _, r := range rules {
			if r.active && r.pattern.MatchString(line) {
				r.value = line
				r.active = r.section == nil
			} else if !r.active && r.section != nil && r.section.MatchString(line) {
				r.active = true
			}
		}
	}
}

func readLinesStrippingBOM(path string) ([]string, error) {
	raw, err := readFileStripBOM(path)
	if err != nil {
		return nil, err
	}

	text := string(raw)
	text = strings.TrimSuffix(text, "\n")

	if text == "" {
		return nil, nil
	}

	return strings.Split(text, "\n"), nil
}

// readFileStripBOM reads path and strips a leading UTF-8 BOM using
// golang.org/x/text's BOM-aware transformer, so line-splitting never
// treats the BOM as part of the first line.
func readFileStripBOM(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), raw)
	if err != nil {
		return nil, fmt.Errorf("materialise: stripping BOM from %s: %w", path, err)
	}

	return out, nil
}

// Download implements kindreg.Materialiser.
func (p *Partial) Download(ctx context.Context, id string, remoteVersion int64) error {
	path, err := p.path(id)
	if err != nil {
		return err
	}

	meta, err := p.client.GetMeta(ctx, "partial", id)
	if err != nil {
		return fmt.Errorf("materialise: fetching meta for %s: %w", id, err)
	}

	edits, err := p.client.GetPartialContent(ctx, id)
	if err != nil {
		return fmt.Errorf("materialise: fetching edit rules for %s: %w", id, err)
	}

	rules, err := compileRules(edits)
	if err != nil {
		return err
	}

	lines, err := readLinesStrippingBOM(path)
	if err != nil {
		return fmt.Errorf("materialise: reading %s: %w", path, err)
	}

	applyDownload(lines, rules)

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

	return p.store.PutRecord(kindreg.Partial, id, kindreg.Record{LocalVersion: local, RemoteVersion: remoteVersion})
}

// Upload implements kindreg.Materialiser: harvest the current value of
// every managed line back into its rule and push the updated rule list.
func (p *Partial) Upload(ctx context.Context, id string) error {
	path, err := p.path(id)
	if err != nil {
		return err
	}

	edits, err := p.client.GetPartialContent(ctx, id)
	if err != nil {
		return fmt.Errorf("materialise: fetching edit rules for %s: %w", id, err)
	}

	rules, err := compileRules(edits)
	if err != nil {
		return err
	}

	lines, err := readLinesStrippingBOM(path)
	if err != nil {
		return fmt.Errorf("materialise: reading %s: %w", path, err)
	}

	applyUpload(lines, rules)

	harvested := make([]transport.EditRule, len(edits))
	for i, e := range edits {
		harvested[i] = transport.EditRule{Pattern: e.Pattern, Value: rules[i].value, Section: e.Section}
	}

	version, err := fileLocalVersion(path)
	if err != nil {
		return err
	}

	if _, err := p.client.SetPartialContent(ctx, id, harvested, version); err != nil {
		return fmt.Errorf("materialise: pushing edit rules for %s: %w", id, err)
	}

	return p.store.PutRecord(kindreg.Partial, id, kindreg.Record{LocalVersion: version, RemoteVersion: version})
}
