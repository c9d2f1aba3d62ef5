package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/fleetbase/agent/internal/admin"
	"github.com/fleetbase/agent/internal/config"
	"github.com/fleetbase/agent/internal/kindreg"
	"github.com/fleetbase/agent/internal/ledger"
	"github.com/fleetbase/agent/internal/materialise"
	"github.com/fleetbase/agent/internal/store"
	"github.com/fleetbase/agent/internal/transport"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagStateDir string
	flagVerbose  bool
	flagDebug    bool
	flagQuiet    bool
)

// skipConfigAnnotation marks commands that run before a config file
// necessarily exists (install, auth, uninstall, update — spec.md §6).
// Commands annotated with this key skip the automatic CLIContext build in
// PersistentPreRunE and load only what they individually need.
const skipConfigAnnotation = "skipConfig"

// CLIContext bundles everything a command needs once the state directory's
// config has been resolved: the config, a logger, and every component the
// reconciliation/admin layers are built from. Constructed once in
// PersistentPreRunE.
type CLIContext struct {
	Cfg      *config.Config
	Holder   *config.Holder
	Logger   *slog.Logger
	StateDir string
	Store    *store.Store
	Client   *transport.Client
	Ledger   *ledger.Ledger
	Registry *kindreg.Registry
	Admin    *admin.Admin
}

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context.
// Returns nil if no config was loaded (e.g., lifecycle commands that skip
// it).
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics with an actionable
// message. Use in RunE handlers for commands that require the full stack
// (no skipConfigAnnotation).
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — ensure the command " +
			"does not skip config loading (no skipConfigAnnotation) or " +
			"explicitly loads what it needs in its RunE")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fleetbase-agent",
		Short:   "Centralized configuration-management agent",
		Long:    "Reconciles local files, directories, packages, and in-place edits against a desired-state server.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadCLIContext(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if cc := cliContextFrom(cmd.Context()); cc != nil {
				return cc.Ledger.Close()
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", config.DefaultStateDir, "agent state directory")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show informational output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging (server requests, reconciliation detail)")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress all but error output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newInstallCmd())
	cmd.AddCommand(newAuthCmd())
	cmd.AddCommand(newUninstallCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newRemoveCmd())

	return cmd
}

// resolveStateDir applies the FLEETBASE_STATE_DIR environment override
// below the --state-dir flag's priority (spec.md §4.8 env layering): an
// explicitly-set flag always wins, otherwise the environment, otherwise the
// built-in default.
func resolveStateDir(cmd *cobra.Command) string {
	if cmd.Flags().Changed("state-dir") {
		return flagStateDir
	}

	if v := config.EnvStateDir(); v != "" {
		return v
	}

	return flagStateDir
}

// loadCLIContext resolves the config file, builds the component stack
// (store, transport client, ledger, registry, admin), and stores the
// result in the command's context for use by subcommands.
func loadCLIContext(cmd *cobra.Command) error {
	stateDir := resolveStateDir(cmd)
	configPath := config.ConfigPath(stateDir)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	finalLogger := buildLogger(cfg)

	httpClient := &http.Client{Timeout: cfg.ResolvedHTTPTimeout()}
	client := transport.New(cfg.Address, cfg.Password, httpClient, finalLogger)

	st := store.New(stateDir)

	hist, err := ledger.Open(cmd.Context(), config.HistoryDBPath(stateDir), finalLogger)
	if err != nil {
		return fmt.Errorf("opening history ledger: %w", err)
	}

	registry := kindreg.NewRegistry()
	registry.Register(kindreg.File, materialise.NewFile(st, client, finalLogger))
	registry.Register(kindreg.Directory, materialise.NewDirectory(st, client, finalLogger))
	registry.Register(kindreg.Package, materialise.NewPackage(st, client, &materialise.PacmanManager{BuildUser: cfg.ResolvedBuildUser()}, finalLogger))
	registry.Register(kindreg.Partial, materialise.NewPartial(st, client, finalLogger))
	registry.Register(kindreg.Additional, materialise.NewAdditional(st, client, finalLogger))

	cc := &CLIContext{
		Cfg:      cfg,
		Holder:   config.NewHolder(cfg, configPath),
		Logger:   finalLogger,
		StateDir: stateDir,
		Store:    st,
		Client:   client,
		Ledger:   hist,
		Registry: registry,
		Admin:    admin.New(st, client),
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Pass nil for pre-config bootstrap (no config-file log level).
// Config-file log level provides the baseline; --verbose, --debug, and
// --quiet override it because CLI flags always win (mutually exclusive,
// enforced by Cobra). The handler is text when stderr is a terminal and
// JSON otherwise (spec.md §4.7), matching service-manager log capture.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits
// non-zero (spec.md §7: "print reason, exit non-zero").
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
