package materialise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/fleetbase/agent/internal/kindreg"
	"github.com/fleetbase/agent/internal/store"
	"github.com/fleetbase/agent/internal/transport"
)

// PackageManager abstracts the distribution's package tooling so Package
// can be tested without shelling out. The production implementation
// targets a pacman-family rolling-release distribution (spec.md §1
// "rolling-release Unix distribution"; §4.4 "falling back to a sandboxed
// build-as-unprivileged-user path (required for packages that the package
// manager refuses to build as root)" describes exactly the makepkg/AUR
// privilege-drop pattern).
type PackageManager interface {
	// IsInstalled reports whether name is present in the local package
	// database.
	IsInstalled(ctx context.Context, name string) (bool, error)

	// InstallPrivileged attempts installation as root (the common case:
	// binary repo packages).
	InstallPrivileged(ctx context.Context, name string) error

	// InstallUnprivileged attempts installation via a sandboxed
	// unprivileged build (AUR-style packages that refuse to build as
	// root).
	InstallUnprivileged(ctx context.Context, name string) error

	// Remove uninstalls name.
	Remove(ctx context.Context, name string) error
}

// ErrPackageManagerUnavailable is returned when neither install path
// succeeds.
var ErrPackageManagerUnavailable = errors.New("materialise: package installation failed via both privileged and unprivileged paths")

// PacmanManager is the production PackageManager for a pacman-family
// distribution. No library in the retrieval pack wraps pacman/makepkg —
// this shells out via os/exec the way the teacher shells out to nothing
// comparable, so there is no prior pattern to generalise from beyond
// plain os/exec.
type PacmanManager struct {
	// BuildUser is the unprivileged account used for the AUR-style build
	// fallback (e.g. "nobody" or a dedicated build user).
	BuildUser string
}

// IsInstalled implements PackageManager.
func (p *PacmanManager) IsInstalled(ctx context.Context, name string) (bool, error) {
	err := exec.CommandContext(ctx, "pacman", "-Q", name).Run()
	if err == nil {
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}

	return false, fmt.Errorf("materialise: querying package %s: %w", name, err)
}

// InstallPrivileged implements PackageManager.
func (p *PacmanManager) InstallPrivileged(ctx context.Context, name string) error {
	return exec.CommandContext(ctx, "pacman", "-S", "--noconfirm", name).Run()
}

// InstallUnprivileged implements PackageManager.
func (p *PacmanManager) InstallUnprivileged(ctx context.Context, name string) error {
	user := p.BuildUser
	if user == "" {
		user = "nobody"
	}

	return exec.CommandContext(ctx, "runuser", "-u", user, "--", "makepkg", "-si", "--noconfirm", name).Run()
}

// Remove implements PackageManager.
func (p *PacmanManager) Remove(ctx context.Context, name string) error {
	return exec.CommandContext(ctx, "pacman", "-R", "--noconfirm", name).Run()
}

// Package materialises OS package presence (spec.md §4.4 "Package
// download/upload"). Id is the package name itself, not an encoded
// path — packages are keyed by name (spec.md §3).
type Package struct {
	store   *store.Store
	client  *transport.Client
	manager PackageManager
	logger  *slog.Logger
}

// NewPackage builds a Package materialiser.
func NewPackage(s *store.Store, c *transport.Client, mgr PackageManager, logger *slog.Logger) *Package {
	if logger == nil {
		logger = slog.Default()
	}

	return &Package{store: s, client: c, manager: mgr, logger: logger}
}

// LocalVersion implements kindreg.Materialiser. Undefined by spec.md §4.4
// ("presence-only"); 1 means installed, 0 means absent, used only so the
// reconciliation engine's generic plumbing has something to log.
func (p *Package) LocalVersion(ctx context.Context, id string) (int64, error) {
	installed, err := p.manager.IsInstalled(ctx, id)
	if err != nil {
		return 0, err
	}

	if installed {
		return 1, nil
	}

	return 0, nil
}

// Backup implements kindreg.Materialiser: if the package was already
// installed before being taken under management, record an empty marker
// so Restore knows not to remove it (spec.md §4.4).
func (p *Package) Backup(ctx context.Context, id string) error {
	installed, err := p.manager.IsInstalled(ctx, id)
	if err != nil {
		return err
	}

	if !installed {
		return nil
	}

	return p.store.BackupPackageMarker(kindreg.Package.DirName(), id)
}

// Restore implements kindreg.Materialiser: uninstall unless a backup
// marker says the package predates management.
func (p *Package) Restore(ctx context.Context, id string) error {
	if p.store.HasPackageBackup(kindreg.Package.DirName(), id) {
		return p.store.ClearPackageBackup(kindreg.Package.DirName(), id)
	}

	return p.manager.Remove(ctx, id)
}

// Download implements kindreg.Materialiser: ensure the package is
// installed, trying the privileged path first and falling back to an
// unprivileged sandboxed build.
func (p *Package) Download(ctx context.Context, id string, _ int64) error {
	if err := p.ensureInstalled(ctx, id); err != nil {
		return err
	}

	return p.store.PutRecord(kindreg.Package, id, kindreg.Record{})
}

// Upload implements kindreg.Materialiser. Packages carry no content to
// push; presence is the only state, so Upload is Download's twin — used
// by the initial `add` flow (spec.md lifecycle: "registers it on the
// server, and performs an initial upload").
func (p *Package) Upload(ctx context.Context, id string) error {
	if err := p.ensureInstalled(ctx, id); err != nil {
		return err
	}

	if err := p.client.PackageAdd(ctx, id); err != nil {
		return err
	}

	return p.store.PutRecord(kindreg.Package, id, kindreg.Record{})
}

func (p *Package) ensureInstalled(ctx context.Context, id string) error {
	installed, err := p.manager.IsInstalled(ctx, id)
	if err != nil {
		return err
	}

	if installed {
		return nil
	}

	if err := p.manager.InstallPrivileged(ctx, id); err == nil {
		return nil
	}

	if err := p.manager.InstallUnprivileged(ctx, id); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPackageManagerUnavailable, id, err)
	}

	return nil
}
