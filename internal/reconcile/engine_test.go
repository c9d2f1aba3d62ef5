package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetbase/agent/internal/kindreg"
	"github.com/fleetbase/agent/internal/store"
	"github.com/fleetbase/agent/internal/transport"
)

type fakeMaterialiser struct {
	localVersions map[string]int64
	downloaded    []string
	uploaded      []string
	restored      []string
}

func newFakeMaterialiser() *fakeMaterialiser {
	return &fakeMaterialiser{localVersions: map[string]int64{}}
}

func (f *fakeMaterialiser) LocalVersion(_ context.Context, id string) (int64, error) {
	return f.localVersions[id], nil
}

func (f *fakeMaterialiser) Backup(_ context.Context, _ string) error { return nil }

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

func listServer(t *testing.T, byKind map[string]map[string]int64) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		action, _ := body["action"].(string)

		w.Header().Set("Content-Type", "application/json")

		for kind, ids := range byKind {
			if action == kind+"-list" {
				data, _ := json.Marshal(ids)
				_, _ = w.Write([]byte(`{"good": true, "data": ` + string(data) + `}`))
				return
			}
		}

		_, _ = w.Write([]byte(`{"good": true, "data": {}}`))
	}))
}

func TestEngineFirstTimeDownload(t *testing.T) {
	srv := listServer(t, map[string]map[string]int64{"file": {"ID1": 1000}})
	defer srv.Close()

	client := transport.New(srv.URL, "pw", srv.Client(), nil)
	s := store.New(filepath.Join(t.TempDir(), "state"))

	fm := newFakeMaterialiser()
	reg := kindreg.NewRegistry()
	reg.Register(kindreg.File, fm)

	e := New(reg, s, client, nil)
	result := e.Run(context.Background())

	assert.Equal(t, []string{"ID1"}, fm.downloaded)
	assert.Equal(t, 1, result.Reconciled)
	assert.Equal(t, 0, result.Failed)
}

func TestEngineDropsRemovedID(t *testing.T) {
	srv := listServer(t, map[string]map[string]int64{"file": {}})
	defer srv.Close()

	client := transport.New(srv.URL, "pw", srv.Client(), nil)
	s := store.New(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, s.PutRecord(kindreg.File, "GONE", kindreg.Record{LocalVersion: 1, RemoteVersion: 1}))

	fm := newFakeMaterialiser()
	reg := kindreg.NewRegistry()
	reg.Register(kindreg.File, fm)

	e := New(reg, s, client, nil)
	e.Run(context.Background())

	assert.Equal(t, []string{"GONE"}, fm.restored)
	assert.False(t, s.HasRecord(kindreg.File, "GONE"))
}

func TestEngineUploadsLocalChange(t *testing.T) {
	srv := listServer(t, map[string]map[string]int64{"file": {"ID1": 1500}})
	defer srv.Close()

	client := transport.New(srv.URL, "pw", srv.Client(), nil)
	s := store.New(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, s.PutRecord(kindreg.File, "ID1", kindreg.Record{LocalVersion: 1500, RemoteVersion: 1500}))

	fm := newFakeMaterialiser()
	fm.localVersions["ID1"] = 2000

	reg := kindreg.NewRegistry()
	reg.Register(kindreg.File, fm)

	e := New(reg, s, client, nil)
	e.Run(context.Background())

	assert.Equal(t, []string{"ID1"}, fm.uploaded)
	assert.Empty(t, fm.downloaded)
}
