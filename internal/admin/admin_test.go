package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetbase/agent/internal/identifier"
	"github.com/fleetbase/agent/internal/kindreg"
	"github.com/fleetbase/agent/internal/store"
	"github.com/fleetbase/agent/internal/transport"
)

func idOf(path string) string {
	return identifier.Encode(path).String()
}

type fakeMaterialiser struct {
	backed     []string
	uploaded   []string
	downloaded []string
	restored   []string
}

func (f *fakeMaterialiser) LocalVersion(_ context.Context, _ string) (int64, error) { return 0, nil }

func (f *fakeMaterialiser) Backup(_ context.Context, id string) error {
	f.backed = append(f.backed, id)
	return nil
}

func (f *fakeMaterialiser) Restore(_ context.Context, id string) error {
	f.restored = append(f.restored, id)
	return nil
}

func (f *fakeMaterialiser) Download(_ context.Context, id string, _ int64) error {
	f.downloaded = append(f.downloaded, id)
	return nil
}

func (f *fakeMaterialiser) Upload(_ context.Context, id string) error {
	f.uploaded = append(f.uploaded, id)
	return nil
}

// actionServer dispatches by the JSON body's "action" field to a canned
// {good, data} response, recording every action seen in order.
type actionServer struct {
	t        *testing.T
	srv      *httptest.Server
	seen     []string
	handlers map[string]func(body map[string]any) any
}

func newActionServer(t *testing.T, handlers map[string]func(body map[string]any) any) *actionServer {
	t.Helper()

	as := &actionServer{t: t, handlers: handlers}
	as.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		action, _ := body["action"].(string)
		as.seen = append(as.seen, action)

		w.Header().Set("Content-Type", "application/json")

		fn, ok := handlers[action]
		if !ok {
			_, _ = w.Write([]byte(`{"good": true, "data": null}`))
			return
		}

		data, err := json.Marshal(fn(body))
		require.NoError(t, err)
		_, _ = w.Write([]byte(`{"good": true, "data": ` + string(data) + `}`))
	}))

	t.Cleanup(as.srv.Close)

	return as
}

func (as *actionServer) client() *transport.Client {
	return transport.New(as.srv.URL, "pw", as.srv.Client(), nil)
}

func TestAddFileArtifactMissing(t *testing.T) {
	s := store.New(t.TempDir())
	a := New(s, nil)

	err := a.AddFile(context.Background(), filepath.Join(t.TempDir(), "missing"), &fakeMaterialiser{})
	assert.ErrorIs(t, err, ErrArtifactMissing)
}

func TestAddFileAlreadyClaimed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	s := store.New(t.TempDir())
	id := idOf(path)
	require.NoError(t, s.PutRecord(kindreg.File, id, kindreg.Record{}))

	a := New(s, nil)
	err := a.AddFile(context.Background(), path, &fakeMaterialiser{})
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestAddFileSuccessCreatesBacksUpAndUploads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	as := newActionServer(t, map[string]func(map[string]any) any{
		"file-create": func(map[string]any) any { return nil },
	})

	s := store.New(t.TempDir())
	a := New(s, as.client())

	fm := &fakeMaterialiser{}
	require.NoError(t, a.AddFile(context.Background(), path, fm))

	assert.Equal(t, []string{"file-create"}, as.seen)
	assert.Len(t, fm.backed, 1)
	assert.Len(t, fm.uploaded, 1)
}

func TestAddFileRejectsPathInsideManagedDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf.toml")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	s := store.New(t.TempDir())
	require.NoError(t, s.PutRecord(kindreg.Directory, idOf(dir), kindreg.Record{}))

	a := New(s, nil)
	err := a.AddFile(context.Background(), path, &fakeMaterialiser{})
	assert.ErrorIs(t, err, ErrOverlap)
}

func TestAddDirectoryRejectsPathInsideManaged(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	s := store.New(t.TempDir())
	require.NoError(t, s.PutRecord(kindreg.Directory, idOf(dir), kindreg.Record{}))

	a := New(s, nil)
	err := a.AddDirectory(context.Background(), sub, &fakeMaterialiser{})
	assert.ErrorIs(t, err, ErrOverlap)
}

func TestAddDirectoryRejectsContainingManaged(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	s := store.New(t.TempDir())
	require.NoError(t, s.PutRecord(kindreg.Directory, idOf(sub), kindreg.Record{}))

	a := New(s, nil)
	err := a.AddDirectory(context.Background(), dir, &fakeMaterialiser{})
	assert.ErrorIs(t, err, ErrOverlap)
}

func TestAddDirectorySiblingDoesNotOverlap(t *testing.T) {
	dir := t.TempDir()
	a1 := filepath.Join(dir, "a")
	b1 := filepath.Join(dir, "a-other")
	require.NoError(t, os.Mkdir(a1, 0o755))
	require.NoError(t, os.Mkdir(b1, 0o755))

	s := store.New(t.TempDir())
	require.NoError(t, s.PutRecord(kindreg.Directory, idOf(a1), kindreg.Record{}))

	as := newActionServer(t, map[string]func(map[string]any) any{
		"directory-create": func(map[string]any) any { return nil },
	})

	a := New(s, as.client())
	err := a.AddDirectory(context.Background(), b1, &fakeMaterialiser{})
	assert.NoError(t, err)
}

func TestAddPartialAppendsRuleAndUploads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolv.conf")
	require.NoError(t, os.WriteFile(path, []byte("nameserver 1.1.1.1\n"), 0o644))

	existingRules := []transport.EditRule{{Pattern: "^old=", Value: "old=1"}}

	as := newActionServer(t, map[string]func(map[string]any) any{
		"partial-create": func(map[string]any) any { return nil },
		"partial-get-content": func(map[string]any) any {
			return existingRules
		},
		"partial-set-content": func(body map[string]any) any {
			return body["edits"]
		},
	})

	s := store.New(t.TempDir())
	a := New(s, as.client())

	fm := &fakeMaterialiser{}
	newRule := transport.EditRule{Pattern: "^nameserver", Value: "nameserver 8.8.8.8"}
	require.NoError(t, a.AddPartial(context.Background(), path, newRule, fm))

	assert.Contains(t, as.seen, "partial-create")
	assert.Contains(t, as.seen, "partial-get-content")
	assert.Contains(t, as.seen, "partial-set-content")
	assert.Len(t, fm.backed, 1)
	assert.Len(t, fm.uploaded, 1)
}

func TestAddAdditionalSeedsFenceBeforeUpload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bashrc")
	require.NoError(t, os.WriteFile(path, []byte("# existing\n"), 0o644))

	as := newActionServer(t, map[string]func(map[string]any) any{
		"additional-create": func(map[string]any) any { return nil },
	})

	s := store.New(t.TempDir())
	a := New(s, as.client())

	fm := &fakeMaterialiser{}
	require.NoError(t, a.AddAdditional(context.Background(), path, "#", fm))

	require.Len(t, fm.backed, 1)
	require.Len(t, fm.downloaded, 1)
	require.Len(t, fm.uploaded, 1)
}

func TestRemoveNotTracked(t *testing.T) {
	s := store.New(t.TempDir())
	a := New(s, nil)

	err := a.Remove(context.Background(), kindreg.File, "/etc/hosts", &fakeMaterialiser{})
	assert.ErrorIs(t, err, ErrNotTracked)
}

func TestRemoveRestoresUnregistersAndDeletesRecord(t *testing.T) {
	path := "/etc/hosts"
	id := idOf(path)

	s := store.New(t.TempDir())
	require.NoError(t, s.PutRecord(kindreg.File, id, kindreg.Record{LocalVersion: 1, RemoteVersion: 1}))

	as := newActionServer(t, map[string]func(map[string]any) any{
		"file-delete": func(map[string]any) any { return nil },
	})

	a := New(s, as.client())
	fm := &fakeMaterialiser{}

	require.NoError(t, a.Remove(context.Background(), kindreg.File, path, fm))

	assert.Equal(t, []string{id}, fm.restored)
	assert.Contains(t, as.seen, "file-delete")
	assert.False(t, s.HasRecord(kindreg.File, id))
}

func TestClaimedKind(t *testing.T) {
	s := store.New(t.TempDir())
	path := "/etc/hosts"
	require.NoError(t, s.PutRecord(kindreg.File, idOf(path), kindreg.Record{}))

	a := New(s, nil)
	kind, ok := a.ClaimedKind(path)
	require.True(t, ok)
	assert.Equal(t, kindreg.File, kind)

	_, ok = a.ClaimedKind("/etc/nowhere")
	assert.False(t, ok)
}
