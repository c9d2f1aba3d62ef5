package materialise

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetbase/agent/internal/kindreg"
	"github.com/fleetbase/agent/internal/store"
)

type fakeManager struct {
	installed          map[string]bool
	privilegedFails    map[string]bool
	unprivilegedCalled []string
	removed            []string
}

func newFakeManager() *fakeManager {
	return &fakeManager{installed: map[string]bool{}, privilegedFails: map[string]bool{}}
}

func (m *fakeManager) IsInstalled(_ context.Context, name string) (bool, error) {
	return m.installed[name], nil
}

func (m *fakeManager) InstallPrivileged(_ context.Context, name string) error {
	if m.privilegedFails[name] {
		return errors.New("refused to build as root")
	}

	m.installed[name] = true

	return nil
}

func (m *fakeManager) InstallUnprivileged(_ context.Context, name string) error {
	m.unprivilegedCalled = append(m.unprivilegedCalled, name)
	m.installed[name] = true

	return nil
}

func (m *fakeManager) Remove(_ context.Context, name string) error {
	m.removed = append(m.removed, name)
	delete(m.installed, name)

	return nil
}

func TestPackageDownloadInstallsViaPrivilegedPath(t *testing.T) {
	mgr := newFakeManager()
	s := store.New(filepath.Join(t.TempDir(), "state"))
	p := NewPackage(s, nil, mgr, nil)

	require.NoError(t, p.Download(context.Background(), "vim", 0))
	assert.True(t, mgr.installed["vim"])
	assert.Empty(t, mgr.unprivilegedCalled)
	assert.True(t, s.HasRecord(kindreg.Package, "vim"))
}

func TestPackageDownloadFallsBackToUnprivileged(t *testing.T) {
	mgr := newFakeManager()
	mgr.privilegedFails["yay-built-pkg"] = true
	s := store.New(filepath.Join(t.TempDir(), "state"))
	p := NewPackage(s, nil, mgr, nil)

	require.NoError(t, p.Download(context.Background(), "yay-built-pkg", 0))
	assert.True(t, mgr.installed["yay-built-pkg"])
	assert.Equal(t, []string{"yay-built-pkg"}, mgr.unprivilegedCalled)
}

func TestPackageBackupMarksPreexistingInstall(t *testing.T) {
	mgr := newFakeManager()
	mgr.installed["bash"] = true
	s := store.New(filepath.Join(t.TempDir(), "state"))
	p := NewPackage(s, nil, mgr, nil)

	require.NoError(t, p.Backup(context.Background(), "bash"))
	assert.True(t, s.HasPackageBackup(kindreg.Package.DirName(), "bash"))

	require.NoError(t, p.Restore(context.Background(), "bash"))
	assert.True(t, mgr.installed["bash"], "restore must not remove a package that predates management")
	assert.False(t, s.HasPackageBackup(kindreg.Package.DirName(), "bash"))
}

func TestPackageRestoreRemovesWhenNoBackupMarker(t *testing.T) {
	mgr := newFakeManager()
	mgr.installed["htop"] = true
	s := store.New(filepath.Join(t.TempDir(), "state"))
	p := NewPackage(s, nil, mgr, nil)

	require.NoError(t, p.Restore(context.Background(), "htop"))
	assert.Equal(t, []string{"htop"}, mgr.removed)
}
