package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetbase/agent/internal/config"
	"github.com/fleetbase/agent/internal/reconcile"
)

var flagWatch bool

// newSyncCmd builds the `sync` command: run one full reconciliation pass,
// or (with --watch) run as a long-lived service on the configured poll
// interval until signalled to stop (spec.md §6, §5).
func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a reconciliation pass",
		RunE:  runSync,
	}

	cmd.Flags().BoolVar(&flagWatch, "watch", false, "run continuously on the configured poll interval until signalled")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if !flagWatch {
		return runSyncOnce(cmd.Context(), cc)
	}

	return runSyncWatch(cmd.Context(), cc)
}

// runSyncOnce executes exactly one pass, writing the `state` file before
// and after (spec.md §6: `state = "Syncing..."` then `state = "Last sync:
// <date>"`).
func runSyncOnce(ctx context.Context, cc *CLIContext) error {
	statePath := config.StatePath(cc.StateDir)

	if err := os.WriteFile(statePath, []byte("Syncing...\n"), 0o644); err != nil {
		return fmt.Errorf("sync: writing state file: %w", err)
	}

	engine := reconcile.New(cc.Registry, cc.Store, cc.Client, cc.Logger)

	passID, cycleID, err := cc.Ledger.StartPass(ctx)
	if err != nil {
		cc.Logger.Warn("sync: starting ledger pass failed, continuing without history", slog.String("error", err.Error()))
	}

	result := engine.Run(ctx)

	var lastErr string
	if len(result.Errs) > 0 {
		lastErr = result.Errs[len(result.Errs)-1].Error()
	}

	if passID != 0 {
		if err := cc.Ledger.FinishPass(ctx, passID, result.Reconciled, result.Failed, lastErr); err != nil {
			cc.Logger.Warn("sync: recording pass result failed", slog.String("error", err.Error()))
		}
	}

	cc.Logger.Info("sync: pass complete",
		slog.String("cycle_id", cycleID),
		slog.Int("reconciled", result.Reconciled),
		slog.Int("failed", result.Failed),
	)

	state := fmt.Sprintf("Last sync: %s\n", formatTime(time.Now()))
	if result.Failed > 0 {
		state = fmt.Sprintf("Last sync: %s (%d objects failed)\n", formatTime(time.Now()), result.Failed)
	}

	if err := os.WriteFile(statePath, []byte(state), 0o644); err != nil {
		return fmt.Errorf("sync: writing state file: %w", err)
	}

	return nil
}

// runSyncWatch runs passes on a fixed interval until SIGINT/SIGTERM,
// reusing the teacher's PID-file locking and signal-driven shutdown, with
// SIGHUP reloading the config in place (spec.md §5, §9).
func runSyncWatch(ctx context.Context, cc *CLIContext) error {
	pidPath := filepath.Join(cc.StateDir, "agent.pid")

	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("sync --watch: %w", err)
	}
	defer cleanup()

	ctx = shutdownContext(ctx, cc.Logger)
	reloadOnSIGHUP(ctx, cc.Holder, cc.Logger)

	cc.Logger.Info("sync: entering watch mode", slog.Duration("poll_interval", cc.Cfg.ResolvedPollInterval()))

	for {
		if err := runSyncOnce(ctx, cc); err != nil {
			cc.Logger.Warn("sync: pass failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			cc.Logger.Info("sync: watch mode stopped")
			return nil
		case <-time.After(cc.Holder.Config().ResolvedPollInterval()):
		}
	}
}
