package config

import (
	"os"
	"path/filepath"
	"time"
)

// ConfigOption is one configuration key with its default and meaning.
type ConfigOption struct {
	Key     string
	Default any
	Comment string
}

// GetConfigOptions returns the configuration options and their defaults.
// This is the single source of truth for defaults and generated files.
func GetConfigOptions() []ConfigOption {
	return []ConfigOption{
		{Key: "data_dir", Default: defaultDataDir(), Comment: "Directory for local state; DB is data_dir/marketfeed.db"},
		{Key: "log_level", Default: "info", Comment: "debug, info, warn or error"},

		{Key: "api.base_url", Default: "http://localhost:3000", Comment: "Catalog/search endpoint base URL"},
		{Key: "api.timeout", Default: 30 * time.Second, Comment: "Per-request timeout"},
		{Key: "api.page_size", Default: 20, Comment: "Items requested per page"},
		{Key: "api.rate_per_second", Default: 4.0, Comment: "Outgoing request rate limit; 0 disables"},
		{Key: "api.burst", Default: 2, Comment: "Requests allowed in a burst"},

		{Key: "routing.index_threshold", Default: 50, Comment: "Collection size above which client filtering uses the index"},
		{Key: "routing.server_threshold", Default: 100, Comment: "Collection size above which filtering always goes to the server"},
		{Key: "routing.completeness_ratio", Default: 0.8, Comment: "loaded/serverTotal below which a page counts as partial"},

		{Key: "cache.collection_ttl", Default: 10 * time.Minute, Comment: "TTL for collection loads"},
		{Key: "cache.featured_ttl", Default: 30 * time.Minute, Comment: "TTL for the featured collection"},
		{Key: "cache.search_ttl", Default: 5 * time.Minute, Comment: "TTL for search pages"},
		{Key: "cache.memory_entries", Default: 64, Comment: "In-memory cache entries; 0 disables the memory tier"},

		{Key: "collections.categories", Default: []string{}, Comment: "Keywords that each get their own collection, e.g. [\"textbooks\", \"furniture\"]"},

		{Key: "refresh.concurrency", Default: 2, Comment: "Collection reloads in flight during a refresh"},
		{Key: "refresh.force_threshold", Default: 2, Comment: "Consecutive refreshes that disable cache reads"},
		{Key: "refresh.force_window", Default: 2 * time.Minute, Comment: "Max gap between refreshes counted as consecutive"},

		{Key: "search.min_query_length", Default: 3, Comment: "Characters required before a search runs"},
		{Key: "search.debounce", Default: 400 * time.Millisecond, Comment: "Delay after the last keystroke"},
		{Key: "search.recent_max", Default: 10, Comment: "Recent queries remembered"},
		{Key: "search.require_location", Default: true, Comment: "Reject searches without a university or city"},

		{Key: "vocabulary.condition", Default: map[string]any{
			"brand-new": "new",
			"like-new":  "like-new",
			"good":      "good",
			"fair":      "fair",
			"poor":      "poor",
		}, Comment: "UI condition tag to backend value"},
		{Key: "vocabulary.selling_type", Default: map[string]any{
			"rent": "rent",
			"sell": "sell",
		}, Comment: "UI selling type to backend value"},
		{Key: "vocabulary.sort_field", Default: map[string]any{
			"price":      "price",
			"newest":     "createdAt",
			"popularity": "views",
		}, Comment: "Sort option to backend sortBy field"},

		{Key: "location.university", Default: "", Comment: "Preferred over city when both are set"},
		{Key: "location.city", Default: "", Comment: "Used when no university is set"},

		{Key: "events.enabled", Default: true, Comment: "Record engine events to data_dir/events.jsonl"},
		{Key: "events.level", Default: "info", Comment: "Lowest event level recorded: debug, info, warn or error"},
		{Key: "events.ring_size", Default: 256, Comment: "Recent events kept in memory for inspection"},
	}
}

// defaultDataDir resolves $XDG_DATA_HOME/marketfeed or ~/.local/share/marketfeed.
func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "marketfeed")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "marketfeed")
}

// DefaultConfigPath resolves the standard config.toml location.
func DefaultConfigPath() string {
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		home, _ := os.UserHomeDir()
		xdg = filepath.Join(home, ".config")
	}
	return filepath.Join(xdg, "marketfeed", "config.toml")
}
