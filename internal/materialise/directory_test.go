package materialise

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetbase/agent/internal/identifier"
	"github.com/fleetbase/agent/internal/store"
	"github.com/fleetbase/agent/internal/transport"
)

func TestDirectoryDownloadWritesNestedTree(t *testing.T) {
	meta := transport.Meta{Owner: "0", Group: "0", Mode: 0o755}
	fileMeta := transport.Meta{Owner: "0", Group: "0", Mode: 0o644}

	content := transport.DirContent{
		Dirs: map[string]transport.Meta{"sub": meta},
		Files: map[string]transport.DirEntry{
			"a.txt":     {Meta: fileMeta, Content: base64.StdEncoding.EncodeToString([]byte("top"))},
			"sub/b.txt": {Meta: fileMeta, Content: base64.StdEncoding.EncodeToString([]byte("nested"))},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")

		switch body["action"] {
		case "directory-get-meta":
			data, _ := json.Marshal(meta)
			_, _ = w.Write([]byte(`{"good": true, "data": ` + string(data) + `}`))
		case "directory-get-content":
			data, _ := json.Marshal(content)
			_, _ = w.Write([]byte(`{"good": true, "data": ` + string(data) + `}`))
		default:
			_, _ = w.Write([]byte(`{"good": false}`))
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "tree")

	client := transport.New(srv.URL, "pw", srv.Client(), nil)
	d := NewDirectory(store.New(filepath.Join(dir, "state")), client, nil)

	id := identifier.Encode(target).String()
	require.NoError(t, d.Download(context.Background(), id, 7))

	top, err := os.ReadFile(filepath.Join(target, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "top", string(top))

	nested, err := os.ReadFile(filepath.Join(target, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested", string(nested))

	info, err := os.Stat(filepath.Join(target, "sub"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDirectoryUploadWalksTree(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "a.txt"), []byte("top"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(target, "sub", "b.txt"), []byte("nested"), 0o644))

	var captured map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if body["action"] == "directory-set-content" {
			captured = body
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"good": true}`))
	}))
	defer srv.Close()

	client := transport.New(srv.URL, "pw", srv.Client(), nil)
	d := NewDirectory(store.New(filepath.Join(dir, "state")), client, nil)

	id := identifier.Encode(target).String()
	require.NoError(t, d.Upload(context.Background(), id))

	require.NotNil(t, captured)
	files, ok := captured["files"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, files, 2)
}
