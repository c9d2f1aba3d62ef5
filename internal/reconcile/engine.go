package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fleetbase/agent/internal/kindreg"
	"github.com/fleetbase/agent/internal/store"
	"github.com/fleetbase/agent/internal/transport"
)

// Engine runs full reconciliation passes across every registered kind
// (spec.md §4.5: "Control flow for a sync pass").
type Engine struct {
	registry *kindreg.Registry
	store    *store.Store
	client   *transport.Client
	logger   *slog.Logger
}

// New builds an Engine.
func New(registry *kindreg.Registry, s *store.Store, c *transport.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{registry: registry, store: s, client: c, logger: logger}
}

// Result summarizes one pass's outcome.
type Result struct {
	Reconciled int
	Failed     int
	Errs       []error
}

// Run executes one full sync pass: drop-removed across all kinds first,
// then reconcile files, directories, packages, partials, additionals in
// that fixed order (spec.md §4.5 "Order within one sync pass").
func (e *Engine) Run(ctx context.Context) Result {
	var result Result

	for _, kind := range kindreg.All {
		e.dropRemoved(ctx, kind, &result)
	}

	for _, kind := range kindreg.All {
		e.reconcileKind(ctx, kind, &result)
	}

	if err := e.store.PruneUnusedCreatedDirs(); err != nil {
		e.fail(&result, err)
	}

	return result
}

// dropRemoved reverts any tracked id of kind that the server no longer
// lists.
func (e *Engine) dropRemoved(ctx context.Context, kind kindreg.Kind, result *Result) {
	m, ok := e.registry.Get(kind)
	if !ok {
		return
	}

	tracked, err := e.store.TrackedIDs(kind)
	if err != nil {
		e.fail(result, err)
		return
	}

	serverIDs, err := e.client.List(ctx, string(kind))
	if errors.Is(err, transport.ErrNoResult) {
		return
	}

	if err != nil {
		e.fail(result, err)
		return
	}

	for _, id := range tracked {
		if _, onServer := serverIDs[id]; onServer {
			continue
		}

		if err := m.Restore(ctx, id); err != nil {
			e.fail(result, err)
			continue
		}

		if err := e.store.DeleteRecord(kind, id); err != nil {
			e.fail(result, err)
			continue
		}

		result.Reconciled++
	}
}

// reconcileKind walks every id the server lists for kind and reconciles
// it against local state.
func (e *Engine) reconcileKind(ctx context.Context, kind kindreg.Kind, result *Result) {
	m, ok := e.registry.Get(kind)
	if !ok {
		return
	}

	serverIDs, err := e.client.List(ctx, string(kind))
	if err != nil {
		if errors.Is(err, transport.ErrNoResult) {
			return
		}

		e.fail(result, err)

		return
	}

	for id, remoteVersion := range serverIDs {
		if err := e.reconcileOne(ctx, kind, m, id, remoteVersion); err != nil {
			e.fail(result, err)
			continue
		}

		result.Reconciled++
	}
}

func (e *Engine) reconcileOne(ctx context.Context, kind kindreg.Kind, m kindreg.Materialiser, id string, remoteVersion int64) error {
	tracked := e.store.HasRecord(kind, id)

	if kind == kindreg.Package {
		if tracked {
			return nil
		}

		if err := m.Backup(ctx, id); err != nil {
			return err
		}

		return m.Download(ctx, id, remoteVersion)
	}

	var rec kindreg.Record
	if tracked {
		var err error
		rec, err = e.store.GetRecord(kind, id)
		if err != nil {
			return err
		}
	}

	local, err := m.LocalVersion(ctx, id)
	if err != nil {
		return err
	}

	decision := Decide(true, tracked, local, rec.LocalVersion, rec.RemoteVersion, remoteVersion)

	switch decision {
	case Download:
		if !tracked {
			if err := m.Backup(ctx, id); err != nil {
				return err
			}
		}

		return m.Download(ctx, id, remoteVersion)
	case Upload:
		return m.Upload(ctx, id)
	case Revert:
		if err := m.Restore(ctx, id); err != nil {
			return err
		}

		return e.store.DeleteRecord(kind, id)
	default:
		return nil
	}
}

func (e *Engine) fail(result *Result, err error) {
	result.Failed++
	result.Errs = append(result.Errs, err)
	e.logger.Warn("reconcile: object failed", slog.String("error", err.Error()))
}
