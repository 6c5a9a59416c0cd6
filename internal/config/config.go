// Package config resolves configuration with precedence
// defaults < config file < MARKETFEED_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/abelbrown/marketfeed/internal/fetch"
	"github.com/abelbrown/marketfeed/internal/model"
	"github.com/abelbrown/marketfeed/internal/route"
)

// Config is the typed view of the resolved settings.
type Config struct {
	DataDir     string            `mapstructure:"data_dir"`
	LogLevel    string            `mapstructure:"log_level"`
	API         APIConfig         `mapstructure:"api"`
	Routing     RoutingConfig     `mapstructure:"routing"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Collections CollectionsConfig `mapstructure:"collections"`
	Refresh     RefreshConfig     `mapstructure:"refresh"`
	Search      SearchConfig      `mapstructure:"search"`
	Vocabulary  VocabularyConfig  `mapstructure:"vocabulary"`
	Location    LocationConfig    `mapstructure:"location"`
	Events      EventsConfig      `mapstructure:"events"`
}

type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	PageSize      int           `mapstructure:"page_size"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

type RoutingConfig struct {
	IndexThreshold    int     `mapstructure:"index_threshold"`
	ServerThreshold   int     `mapstructure:"server_threshold"`
	CompletenessRatio float64 `mapstructure:"completeness_ratio"`
}

type CacheConfig struct {
	CollectionTTL time.Duration `mapstructure:"collection_ttl"`
	FeaturedTTL   time.Duration `mapstructure:"featured_ttl"`
	SearchTTL     time.Duration `mapstructure:"search_ttl"`
	MemoryEntries int           `mapstructure:"memory_entries"`
}

// CollectionsConfig adds keyword collections after the home screen ones.
type CollectionsConfig struct {
	Categories []string `mapstructure:"categories"`
}

type RefreshConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	ForceThreshold int           `mapstructure:"force_threshold"`
	ForceWindow    time.Duration `mapstructure:"force_window"`
}

type SearchConfig struct {
	MinQueryLength  int           `mapstructure:"min_query_length"`
	Debounce        time.Duration `mapstructure:"debounce"`
	RecentMax       int           `mapstructure:"recent_max"`
	RequireLocation bool          `mapstructure:"require_location"`
}

type VocabularyConfig struct {
	Condition   map[string]string `mapstructure:"condition"`
	SellingType map[string]string `mapstructure:"selling_type"`
	SortField   map[string]string `mapstructure:"sort_field"`
}

type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Level    string `mapstructure:"level"`
	RingSize int    `mapstructure:"ring_size"`
}

type LocationConfig struct {
	University string `mapstructure:"university"`
	City       string `mapstructure:"city"`
}

// applyDefaults seeds Viper with defaults defined in GetConfigOptions.
func applyDefaults(v *viper.Viper) {
	for _, o := range GetConfigOptions() {
		v.SetDefault(o.Key, o.Default)
	}
}

// Load resolves configuration into v with precedence: defaults < file < env.
// A missing config file is not an error; an unreadable one is.
func Load(ctx context.Context, v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "marketfeed"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "marketfeed"))
		}
		v.AddConfigPath(".")
	}

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	// Environment variables: MARKETFEED_* (highest among these sources)
	v.SetEnvPrefix("marketfeed")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.GetString("data_dir") == "" {
		v.Set("data_dir", defaultDataDir())
	}
	return nil
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	c.DataDir = expandHome(c.DataDir)
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL))
	}
	if c.API.PageSize <= 0 {
		errs = append(errs, errors.New("api.page_size must be greater than 0"))
	}
	if c.API.RatePerSecond < 0 {
		errs = append(errs, errors.New("api.rate_per_second must not be negative"))
	}
	if c.Routing.IndexThreshold <= 0 || c.Routing.ServerThreshold <= 0 {
		errs = append(errs, errors.New("routing thresholds must be greater than 0"))
	}
	if c.Routing.IndexThreshold > c.Routing.ServerThreshold {
		errs = append(errs, errors.New("routing.index_threshold must not exceed routing.server_threshold"))
	}
	if c.Routing.CompletenessRatio <= 0 || c.Routing.CompletenessRatio > 1 {
		errs = append(errs, errors.New("routing.completeness_ratio must be in (0, 1]"))
	}
	if c.Refresh.Concurrency <= 0 {
		errs = append(errs, errors.New("refresh.concurrency must be greater than 0"))
	}
	if c.Refresh.ForceThreshold <= 0 {
		errs = append(errs, errors.New("refresh.force_threshold must be greater than 0"))
	}
	seen := make(map[string]bool, len(c.Collections.Categories))
	for _, kw := range c.Collections.Categories {
		norm := strings.ToLower(strings.TrimSpace(kw))
		if norm == "" {
			errs = append(errs, errors.New("collections.categories must not contain blank keywords"))
			continue
		}
		if seen[norm] {
			errs = append(errs, fmt.Errorf("collections.categories lists %q twice", kw))
		}
		seen[norm] = true
	}
	switch c.Events.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("events.level %q is not one of debug, info, warn, error", c.Events.Level))
	}
	if c.Search.MinQueryLength <= 0 {
		errs = append(errs, errors.New("search.min_query_length must be greater than 0"))
	}
	return errors.Join(errs...)
}

// EventsPath is the JSONL event log under DataDir.
func (c Config) EventsPath() string {
	return filepath.Join(c.DataDir, "events.jsonl")
}

// DBPath is the SQLite database under DataDir.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "marketfeed.db")
}

// Thresholds converts the routing settings.
func (c Config) Thresholds() route.Thresholds {
	return route.Thresholds{
		Index:        c.Routing.IndexThreshold,
		Server:       c.Routing.ServerThreshold,
		Completeness: c.Routing.CompletenessRatio,
	}
}

// FetchVocabulary converts the vocabulary tables, falling back to the shipped
// mapping for any empty table.
func (c Config) FetchVocabulary() fetch.Vocabulary {
	def := fetch.DefaultVocabulary()
	out := fetch.Vocabulary{
		Condition:   c.Vocabulary.Condition,
		SellingType: c.Vocabulary.SellingType,
		SortField:   c.Vocabulary.SortField,
	}
	if len(out.Condition) == 0 {
		out.Condition = def.Condition
	}
	if len(out.SellingType) == 0 {
		out.SellingType = def.SellingType
	}
	if len(out.SortField) == 0 {
		out.SortField = def.SortField
	}
	return out
}

// DefaultLocation is the configured location context.
func (c Config) DefaultLocation() model.Location {
	return model.Location{University: c.Location.University, City: c.Location.City}
}

// expandHome expands a leading ~ for convenience.
func expandHome(dir string) string {
	if len(dir) > 0 && dir[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, dir[1:])
		}
	}
	return dir
}
