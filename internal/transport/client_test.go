package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(srv.URL, "s3cret", srv.Client(), nil)
}

func TestCallDecodesData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "file-list", body["action"])
		assert.Equal(t, "s3cret", body["password"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"good": true, "data": {"one": 3}}`))
	})

	var out map[string]int64
	err := c.Call(context.Background(), "file-list", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"one": 3}, out)
}

func TestCallReturnsErrNoResultOnGoodFalse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"good": false}`))
	})

	err := c.Call(context.Background(), "file-exists", map[string]any{"id": "x"}, nil)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestCallReturnsErrNoResultOnNonJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	err := c.Call(context.Background(), "file-exists", nil, nil)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestCallReturnsErrNoResultOnUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:0", "pw", nil, nil)

	err := c.Call(context.Background(), "file-exists", nil, nil)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestCallWithNilOutIgnoresData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"good": true, "data": "ignored"}`))
	})

	err := c.Call(context.Background(), "file-delete", map[string]any{"id": "x"}, nil)
	require.NoError(t, err)
}

func TestCheckTrue(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"good": true, "data": true}`))
	})

	assert.True(t, c.Check(context.Background()))
}

func TestCheckFalseOnFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"good": false}`))
	})

	assert.False(t, c.Check(context.Background()))
}

func TestListPassesThroughKindAction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "package-list", body["action"])
		_, _ = w.Write([]byte(`{"good": true, "data": {"vim": 1}}`))
	})

	out, err := c.List(context.Background(), "package")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"vim": 1}, out)
}

func TestCreateIncludesPrefixOnlyForAdditional(t *testing.T) {
	var seenBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seenBody))
		_, _ = w.Write([]byte(`{"good": true}`))
	})

	require.NoError(t, c.Create(context.Background(), "additional", "ID1", "# "))
	assert.Equal(t, "# ", seenBody["prefix"])

	seenBody = nil
	require.NoError(t, c.Create(context.Background(), "file", "ID2", ""))
	_, hasPrefix := seenBody["prefix"]
	assert.False(t, hasPrefix)
}
