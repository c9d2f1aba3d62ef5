package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fleetbase/agent/internal/identifier"
	"github.com/fleetbase/agent/internal/kindreg"
	"github.com/fleetbase/agent/internal/reconcile"
	"github.com/fleetbase/agent/internal/transport"
)

var flagListFormat string

// listEntry is the structured form of one row, used for the `--format=yaml`
// dump (SPEC_FULL.md's DOMAIN STACK: a `list --format=yaml` output mode is
// the one place yaml.v3 is exercised — the table printer stays the default,
// text-first presentation otherwise).
type listEntry struct {
	Kind   string `yaml:"kind"`
	Path   string `yaml:"path"`
	Status string `yaml:"status"`
}

// newListCmd builds the `list` command: per-kind report of every tracked
// id's human path and status (spec.md §6).
func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every managed object and its sync status",
		RunE:  runList,
	}

	cmd.Flags().StringVar(&flagListFormat, "format", "table", `output format: "table" or "yaml"`)

	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	if flagListFormat != "table" && flagListFormat != "yaml" {
		return fmt.Errorf("list: unrecognized --format %q (want \"table\" or \"yaml\")", flagListFormat)
	}

	var rows [][]string

	for _, kind := range kindreg.All {
		kindRows, err := listKind(ctx, cc, kind)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list: %s: %v\n", kind, err)
			continue
		}

		rows = append(rows, kindRows...)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i][0] != rows[j][0] {
			return rows[i][0] < rows[j][0]
		}

		return rows[i][1] < rows[j][1]
	})

	if flagListFormat == "yaml" {
		return printListYAML(os.Stdout, rows)
	}

	printTable(os.Stdout, []string{"KIND", "PATH", "STATUS"}, rows)

	return nil
}

// printListYAML renders rows ([]string{kind, path, status}) as a YAML
// sequence of mappings.
func printListYAML(w *os.File, rows [][]string) error {
	entries := make([]listEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, listEntry{Kind: r[0], Path: r[1], Status: r[2]})
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()

	return enc.Encode(entries)
}

func listKind(ctx context.Context, cc *CLIContext, kind kindreg.Kind) ([][]string, error) {
	m, ok := cc.Registry.Get(kind)
	if !ok {
		return nil, nil
	}

	serverIDs, err := cc.Client.List(ctx, string(kind))
	if err != nil && !errors.Is(err, transport.ErrNoResult) {
		return nil, err
	}

	tracked, err := cc.Store.TrackedIDs(kind)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(tracked)+len(serverIDs))
	for _, id := range tracked {
		seen[id] = true
	}
	for id := range serverIDs {
		seen[id] = true
	}

	rows := make([][]string, 0, len(seen))

	for id := range seen {
		path, err := identifier.Decode(identifier.ID(id))
		if err != nil {
			path = id
		}

		rows = append(rows, []string{string(kind), path, kindStatus(ctx, cc, kind, m, id, serverIDs)})
	}

	return rows, nil
}

func kindStatus(ctx context.Context, cc *CLIContext, kind kindreg.Kind, m kindreg.Materialiser, id string, serverIDs map[string]int64) string {
	remoteVersion, onServer := serverIDs[id]
	isTracked := cc.Store.HasRecord(kind, id)

	if kind == kindreg.Package {
		switch {
		case isTracked && onServer:
			return lastSyncLabel(ctx, cc)
		case isTracked && !onServer:
			return "(local only)"
		default:
			return "(remote only)"
		}
	}

	var rec kindreg.Record
	if isTracked {
		rec, _ = cc.Store.GetRecord(kind, id)
	}

	local, err := m.LocalVersion(ctx, id)
	if err != nil {
		return fmt.Sprintf("(error: %v)", err)
	}

	label := reconcile.Explain(onServer, isTracked, local, rec.LocalVersion, rec.RemoteVersion, remoteVersion)
	if label == "" {
		return lastSyncLabel(ctx, cc)
	}

	return "(" + label + ")"
}

// lastSyncLabel reports the date of the most recent finished sync pass
// (spec.md §6's "{date}" label) — no per-object timestamp is persisted, so
// every synced object shares the date of the last pass recorded in
// internal/ledger.
func lastSyncLabel(ctx context.Context, cc *CLIContext) string {
	passes, err := cc.Ledger.RecentPasses(ctx, 1)
	if err != nil || len(passes) == 0 || passes[0].FinishedAt == nil {
		return "synced"
	}

	return formatTime(*passes[0].FinishedAt)
}
