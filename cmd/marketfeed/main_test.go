package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelbrown/marketfeed/internal/model"
)

const catalogBody = `{"products":[
	{"id":"1","title":"Desk Lamp","price":"12.50","condition":"good","sellingType":"sell"},
	{"id":"2","title":"Calculus Textbook","price":0,"condition":"like-new","sellingType":"sell"}
],"totalItems":2}`

// env isolates config lookup and points the client at srv.
func env(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Chdir(dir)

	cfgPath := filepath.Join(dir, "marketfeed.toml")
	body := fmt.Sprintf("data_dir = %q\n\n[api]\nbase_url = %q\nrate_per_second = 0\n", filepath.Join(dir, "data"), srv.URL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath
}

func catalogServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(catalogBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd, cleanup := newRootCmd()
	defer cleanup()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFeedCommand(t *testing.T) {
	srv := catalogServer(t, nil)
	cfg := env(t, srv)

	out, err := run(t, "--config", cfg, "--university", "MIT", "--city", "Boston", "feed")
	require.NoError(t, err)
	assert.Contains(t, out, "featured [ready] 2/2")
	assert.Contains(t, out, "Desk Lamp")
	assert.Contains(t, out, "$12.50")
	assert.Contains(t, out, "free")
}

func TestFeedCommand_CategoryCollections(t *testing.T) {
	var keyword atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if k := r.URL.Query().Get("keyword"); k != "" {
			keyword.Store(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(catalogBody))
	}))
	t.Cleanup(srv.Close)
	cfg := env(t, srv)

	f, err := os.OpenFile(cfg, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("\n[collections]\ncategories = [\"textbooks\"]\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := run(t, "--config", cfg, "--city", "Boston", "feed")
	require.NoError(t, err)
	assert.Contains(t, out, "category-textbooks [ready] 2/2")
	assert.Equal(t, "textbooks", keyword.Load())
}

func TestFeedCommand_FilterAndCache(t *testing.T) {
	var hits int32
	srv := catalogServer(t, &hits)
	cfg := env(t, srv)

	out, err := run(t, "--config", cfg, "--university", "MIT", "--city", "Boston", "feed", "--filter", "good")
	require.NoError(t, err)
	assert.Contains(t, out, "filters: good (client)")
	assert.NotContains(t, out, "Calculus Textbook")
	first := atomic.LoadInt32(&hits)
	require.Positive(t, first)

	_, err = run(t, "--config", cfg, "--university", "MIT", "--city", "Boston", "feed")
	require.NoError(t, err)
	assert.Equal(t, first, atomic.LoadInt32(&hits), "second run is served from the durable cache")

	out, err = run(t, "--config", cfg, "cache", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "cache:")

	out, err = run(t, "--config", cfg, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed")

	out, err = run(t, "--config", cfg, "cache", "list")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSearchCommand(t *testing.T) {
	srv := catalogServer(t, nil)
	cfg := env(t, srv)

	out, err := run(t, "--config", cfg, "--city", "Boston", "search", "desk", "lamp")
	require.NoError(t, err)
	assert.Contains(t, out, `"desk lamp": 2 of 2`)

	out, err = run(t, "--config", cfg, "--city", "Boston", "recent")
	require.NoError(t, err)
	assert.Contains(t, out, "desk lamp")
}

func TestSearchCommand_Validation(t *testing.T) {
	var hits int32
	srv := catalogServer(t, &hits)
	cfg := env(t, srv)

	_, err := run(t, "--config", cfg, "--city", "Boston", "search", "ab")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = run(t, "--config", cfg, "search", "desk lamp")
	assert.ErrorIs(t, err, model.ErrValidation, "location is required")
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestConfigGenerateAndShow(t *testing.T) {
	srv := catalogServer(t, nil)
	env(t, srv)
	out := filepath.Join(t.TempDir(), "config.toml")

	res, err := run(t, "config", "generate", "-o", out)
	require.NoError(t, err)
	assert.Contains(t, res, "Wrote")

	_, err = run(t, "config", "generate", "-o", out)
	assert.Error(t, err, "refuses to overwrite")

	res, err = run(t, "--config", out, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, res, "api.page_size = 20")
	assert.Contains(t, res, "routing.server_threshold = 100")
}

func TestFeedCommand_Events(t *testing.T) {
	srv := catalogServer(t, nil)
	cfg := env(t, srv)

	out, err := run(t, "--config", cfg, "--city", "Boston", "feed", "--events", "20")
	require.NoError(t, err)
	assert.Contains(t, out, "events:")
	assert.Contains(t, out, "collection.load")
	assert.Contains(t, out, "from=network")
	assert.Contains(t, out, "feed.mount")

	data, err := os.ReadFile(filepath.Join(filepath.Dir(cfg), "data", "events.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"sys.startup"`)
	assert.Contains(t, string(data), `"kind":"collection.load"`)
}
