package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, v *viper.Viper) Config {
	t.Helper()
	require.NoError(t, Load(context.Background(), v))
	c, err := Decode(v)
	require.NoError(t, err)
	return c
}

func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv("HOME", dir)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestDefaults(t *testing.T) {
	isolate(t)
	c := load(t, viper.New())

	assert.Equal(t, 20, c.API.PageSize)
	assert.Equal(t, 30*time.Second, c.API.Timeout)
	assert.Equal(t, 50, c.Routing.IndexThreshold)
	assert.Equal(t, 100, c.Routing.ServerThreshold)
	assert.InDelta(t, 0.8, c.Routing.CompletenessRatio, 1e-9)
	assert.Equal(t, 10*time.Minute, c.Cache.CollectionTTL)
	assert.Equal(t, 2, c.Refresh.Concurrency)
	assert.Equal(t, 2, c.Refresh.ForceThreshold)
	assert.Equal(t, 3, c.Search.MinQueryLength)
	assert.Equal(t, 400*time.Millisecond, c.Search.Debounce)
	assert.True(t, c.Search.RequireLocation)
	assert.Equal(t, "new", c.Vocabulary.Condition["brand-new"])
	assert.Equal(t, "createdAt", c.Vocabulary.SortField["newest"])
	assert.True(t, strings.HasSuffix(c.DataDir, "marketfeed"))
	assert.Equal(t, filepath.Join(c.DataDir, "marketfeed.db"), c.DBPath())
	assert.True(t, c.Events.Enabled)
	assert.Equal(t, "info", c.Events.Level)
	assert.Equal(t, 256, c.Events.RingSize)
	assert.Equal(t, filepath.Join(c.DataDir, "events.jsonl"), c.EventsPath())
	assert.Empty(t, c.Collections.Categories)
}

func TestFileOverridesDefaults(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[api]
base_url = "https://api.example.com"
page_size = 40

[vocabulary]
condition = { brand-new = "brand-new" }

[location]
university = "MIT"

[collections]
categories = ["textbooks", "Desk Lamps"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	c := load(t, v)

	assert.Equal(t, "https://api.example.com", c.API.BaseURL)
	assert.Equal(t, 40, c.API.PageSize)
	assert.Equal(t, "brand-new", c.Vocabulary.Condition["brand-new"])
	assert.Equal(t, "MIT", c.DefaultLocation().University)
	assert.Equal(t, []string{"textbooks", "Desk Lamps"}, c.Collections.Categories)
	assert.Equal(t, 100, c.Routing.ServerThreshold, "untouched keys keep defaults")
}

func TestEnvOverridesFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[api]\npage_size = 40\n"), 0o600))
	t.Setenv("MARKETFEED_API_PAGE_SIZE", "60")
	t.Setenv("MARKETFEED_SEARCH_DEBOUNCE", "1s")

	v := viper.New()
	v.SetConfigFile(path)
	c := load(t, v)

	assert.Equal(t, 60, c.API.PageSize)
	assert.Equal(t, time.Second, c.Search.Debounce)
}

func TestMissingExplicitFileIsIgnored(t *testing.T) {
	isolate(t)
	v := viper.New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "absent.toml"))
	c := load(t, v)
	assert.Equal(t, 20, c.API.PageSize)
}

func TestBrokenFileIsAnError(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[api\npage_size = "), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	assert.Error(t, Load(context.Background(), v))
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	c := Config{
		API:         APIConfig{BaseURL: "not a url", PageSize: 0},
		Routing:     RoutingConfig{IndexThreshold: 200, ServerThreshold: 100, CompletenessRatio: 1.5},
		Events:      EventsConfig{Level: "verbose"},
		Collections: CollectionsConfig{Categories: []string{"lamps", " ", "Lamps"}},
	}
	err := c.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		"data_dir is required",
		"api.base_url",
		"api.page_size must be greater than 0",
		"routing.index_threshold must not exceed",
		"routing.completeness_ratio",
		"refresh.concurrency",
		"search.min_query_length",
		"events.level",
		"collections.categories must not contain blank keywords",
		`collections.categories lists "Lamps" twice`,
	} {
		assert.Contains(t, msg, want)
	}
}

func TestVocabularyFallsBackPerTable(t *testing.T) {
	c := Config{Vocabulary: VocabularyConfig{Condition: map[string]string{"brand-new": "brand-new"}}}
	v := c.FetchVocabulary()
	assert.Equal(t, "brand-new", v.Condition["brand-new"])
	assert.Equal(t, "rent", v.SellingType["rent"])
	assert.Equal(t, "views", v.SortField["popularity"])
}

func TestThresholds(t *testing.T) {
	c := Config{Routing: RoutingConfig{IndexThreshold: 10, ServerThreshold: 20, CompletenessRatio: 0.5}}
	th := c.Thresholds()
	assert.Equal(t, 10, th.Index)
	assert.Equal(t, 20, th.Server)
	assert.InDelta(t, 0.5, th.Completeness, 1e-9)
}

func TestRenderDefaultTOMLRoundTrips(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(RenderDefaultTOML()), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	c := load(t, v)
	assert.Equal(t, 10*time.Minute, c.Cache.CollectionTTL)
	assert.Equal(t, "views", c.Vocabulary.SortField["popularity"])
	assert.InDelta(t, 4.0, c.API.RatePerSecond, 1e-9)
	assert.Empty(t, c.Collections.Categories)
	assert.Contains(t, RenderDefaultTOML(), "[collections]\n")
}
