package materialise

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
	"github.com/fleetbase/agent/internal/store"
	"github.com/fleetbase/agent/internal/transport"
)

func sectionPtr(s string) *string { return &s }

func TestPartialSectionMatchScenario(t *testing.T) {
	// spec scenario: section-scoped rule only fires on the first dns= line
	// after a [net] header, leaving the [log] section's dns= untouched.
	lines := []string{"[net]", "dns=1.1.1.1", "[log]", "dns=debug"}

	rules, err := compileRules([]transport.EditRule{
		{Pattern: "^dns=", Value: "dns=8.8.8.8", Section: sectionPtr(`^\[net\]$`)},
	})
	require.NoError(t, err)

	applyDownload(lines, rules)

	assert.Equal(t, []string{"[net]", "dns=8.8.8.8", "[log]", "dns=debug"}, lines)
}

func TestPartialSectionFiresOncePerHeader(t *testing.T) {
	lines := []string{"[net]", "dns=1.1.1.1", "dns=2.2.2.2", "[net]", "dns=3.3.3.3"}

	rules, err := compileRules([]transport.EditRule{
		{Pattern: "^dns=", Value: "dns=9.9.9.9", Section: sectionPtr(`^\[net\]$`)},
	})
	require.NoError(t, err)

	applyDownload(lines, rules)

	// only the first dns= line after each [net] header is replaced.
	assert.Equal(t, []string{"[net]", "dns=9.9.9.9", "dns=2.2.2.2", "[net]", "dns=9.9.9.9"}, lines)
}

func TestPartialSectionlessRuleAppliesEveryLine(t *testing.T) {
	lines := []string{"x=1", "x=2", "y=3"}

	rules, err := compileRules([]transport.EditRule{{Pattern: "^x=", Value: "x=0"}})
	require.NoError(t, err)

	applyDownload(lines, rules)

	assert.Equal(t, []string{"x=0", "x=0", "y=3"}, lines)
}

// fakePartialServer implements just the two partial actions Partial needs.
func fakePartialServer(t *testing.T, meta transport.Meta, edits []transport.EditRule) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")

		switch body["action"] {
		case "partial-get-meta":
			data, _ := json.Marshal(meta)
			_, _ = w.Write([]byte(`{"good": true, "data": ` + string(data) + `}`))
		case "partial-get-content":
			data, _ := json.Marshal(edits)
			_, _ = w.Write([]byte(`{"good": true, "data": ` + string(data) + `}`))
		default:
			_, _ = w.Write([]byte(`{"good": false}`))
		}
	}))
}

func TestPartialDownloadIdempotent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "sshd_config")
	require.NoError(t, os.WriteFile(target, []byte("[net]\ndns=1.1.1.1\n[log]\ndns=debug\n"), 0o644))

	meta := transport.Meta{Owner: "0", Group: "0", Mode: 0o644}
	edits := []transport.EditRule{{Pattern: "^dns=", Value: "dns=8.8.8.8", Section: sectionPtr(`^\[net\]$`)}}

	srv := fakePartialServer(t, meta, edits)
	defer srv.Close()

	client := transport.New(srv.URL, "pw", srv.Client(), nil)
	p := NewPartial(store.New(filepath.Join(dir, "state")), client, nil)

	id := identifier.Encode(target).String()

	require.NoError(t, p.Download(context.Background(), id, 42))
	first, err := os.ReadFile(target)
	require.NoError(t, err)

	require.NoError(t, p.Download(context.Background(), id, 42))
	second, err := os.ReadFile(target)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Contains(t, string(first), "dns=8.8.8.8")
}
