// Package kindreg defines the closed set of managed-object kinds and the
// Materialiser contract each kind implements, plus a registry used by the
// reconciliation engine to dispatch by kind without a type switch at every
// call site (spec.md §3, §4.4, §9 "Kind polymorphism").
package kindreg

import "context"

// Kind is one of the five managed-object kinds (spec.md §3: "closed set").
type Kind string

const (
	File       Kind = "file"
	Directory  Kind = "directory"
	Package    Kind = "package"
	Partial    Kind = "partial"
	Additional Kind = "additional"
)

// All enumerates every kind in the fixed reconciliation order (spec.md
// §4.5: "files, directories, packages, partials, additionals").
var All = []Kind{File, Directory, Package, Partial, Additional}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k is one of the five recognised kinds.
func (k Kind) Valid() bool {
	switch k {
	case File, Directory, Package, Partial, Additional:
		return true
	default:
		return false
	}
}

// DirName returns the plural directory-tree name used under objects/ and
// backups/ (spec.md §4.2: "objects/{files,directories,packages,partials,additionals}/<id>").
func (k Kind) DirName() string {
	switch k {
	case File:
		return "files"
	case Directory:
		return "directories"
	case Package:
		return "packages"
	case Partial:
		return "partials"
	case Additional:
		return "additionals"
	default:
		return string(k) + "s"
	}
}

// Record is the small per-object persisted state (spec.md §3). Packages
// use the zero value — presence alone is the signal, the versions are
// meaningless for that kind (spec.md §4.4 "undefined, presence-only").
type Record struct {
	LocalVersion  int64 `json:"local_version"`
	RemoteVersion int64 `json:"remote_version"`
}

// Materialiser is the capability set every kind exposes, dispatched by
// Kind in the reconciliation engine (spec.md §4.4, §9).
type Materialiser interface {
	// LocalVersion reports the current on-disk version of id, or 0 if the
	// artifact is absent.
	LocalVersion(ctx context.Context, id string) (int64, error)

	// Backup snapshots the current artifact (if any) into the backup
	// store, preserving ownership/mode. A no-op if nothing exists, except
	// for packages where an empty marker records prior installation.
	Backup(ctx context.Context, id string) error

	// Restore reinstates the backup (or removes the package) and the
	// caller is responsible for deleting the per-object record afterward.
	Restore(ctx context.Context, id string) error

	// Download pulls server content for id, known to be at remoteVersion,
	// and materialises it locally.
	Download(ctx context.Context, id string, remoteVersion int64) error

	// Upload pushes the current local artifact to the server.
	Upload(ctx context.Context, id string) error
}

// Registry maps a Kind to its Materialiser implementation.
type Registry struct {
	byKind map[Kind]Materialiser
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[Kind]Materialiser)}
}

// Register installs the Materialiser for kind, overwriting any previous
// registration — callers register once at startup per kind.
func (r *Registry) Register(kind Kind, m Materialiser) {
	r.byKind[kind] = m
}

// Get returns the Materialiser registered for kind, or false if none was
// registered (a programmer error — every kind in All should be wired at
// startup).
func (r *Registry) Get(kind Kind) (Materialiser, bool) {
	m, ok := r.byKind[kind]
	return m, ok
}
