package ytsearch

import (
	"time"

	"github.com/cristalhq/aconfig"
)

// defaultConfig holds the fallback values applied by applyDefaults for
// anything left unset after loading.
var defaultConfig = Config{
	CacheRoot:             "cache",
	ErrorLogRoot:          "errors",
	APIKey:                "",
	DelayBetweenHeatUps:   200 * time.Millisecond,
	ThrottleIntervalMS:    300,
	CaptionCacheIdle:      1 * time.Second,
	AliasMapDebounce:      5 * time.Second,
	DefaultPadding:        40,
	DefaultPlaylistCacheHours: 24,
	HighLoadMemoryPercent: 90,
}

// Config contains the runtime configuration for the search engine. It is
// loaded via aconfig from a JSON file plus environment overrides.
type Config struct {
	// CacheRoot is the directory holding one file per KV key plus
	// index shard snapshots (§6 "Persisted state layout").
	CacheRoot string `json:"cache_root"`
	// ErrorLogRoot is the directory holding per-failure text logs.
	ErrorLogRoot string `json:"error_log_root"`
	// APIKey for the YouTube public API (no OAuth2 required for the
	// default Remote).
	APIKey string `json:"api_key" required:"true"`

	// DelayBetweenHeatUps is the Cooperative Scheduler's sleep between
	// heat-up attempts (§4.D).
	DelayBetweenHeatUps time.Duration `json:"delay_between_heat_ups"`
	// ThrottleIntervalMS is the progress throttle interval (§4.E, §5).
	// It is loaded and defaulted here; no code in this module reads it
	// (NewThrottle takes its interval as an argument).
	ThrottleIntervalMS int `json:"throttle_interval_ms"`
	// CaptionCacheIdle is the Caption Full-Text cache's inactivity
	// eviction timer (§4.H, default 1s).
	CaptionCacheIdle time.Duration `json:"caption_cache_idle"`
	// AliasMapDebounce is the Channel Alias Map's persistence debounce
	// (§4.M, default 5s).
	AliasMapDebounce time.Duration `json:"alias_map_debounce"`
	// DefaultPadding is the padding applied to description/caption
	// matches when a SearchCommand does not specify one.
	DefaultPadding int `json:"default_padding"`
	// DefaultPlaylistCacheHours is a playlist refresh cache_hours value
	// (§4.F). It is loaded and defaulted here; the Engine does not read
	// it and uses each scope's own CacheHours as given.
	DefaultPlaylistCacheHours int `json:"default_playlist_cache_hours"`
	// HighLoadMemoryPercent is the runtime-provided high-load memory
	// threshold referenced by the Resource Monitor (§4.C); Medium/High
	// pressure are 70%/90% of this value.
	HighLoadMemoryPercent float64 `json:"high_load_memory_percent"`

	// MaxConcurrentDownloads is a bound for the un-indexed branch's
	// producer-consumer pipeline (§4.J step 3(b), default 10). It is
	// loaded and defaulted here; internal/search does not read it and
	// uses its own fixed bound of 10.
	MaxConcurrentDownloads int `json:"max_concurrent_downloads"`
	// ShardSize is the number of videos per playlist index shard
	// (§3 Playlist invariants, default 50).
	ShardSize int `json:"shard_size"`
}

// DefaultConfig returns the default configuration with the given API key
// filled in.
func DefaultConfig(apiKey string) Config {
	cfg := defaultConfig
	cfg.APIKey = apiKey
	cfg.MaxConcurrentDownloads = 10
	cfg.ShardSize = 50
	return cfg
}

var configSearchPaths = []string{
	"./ytsearch.json",
	"/etc/ytsearch.json",
	"/usr/share/ytsearch/ytsearch.json",
}

// LoadConfig loads configuration via aconfig with a fixed search path
// plus environment variable overrides, filling in defaults afterwards
// for anything left zero.
func LoadConfig() (Config, error) {
	cfg := Config{}
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipDefaults: true,
		FileFlag:     "config",
		Files:        configSearchPaths,
	})

	if err := loader.Load(); err != nil {
		return cfg, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := defaultConfig
	if c.CacheRoot == "" {
		c.CacheRoot = d.CacheRoot
	}
	if c.ErrorLogRoot == "" {
		c.ErrorLogRoot = d.ErrorLogRoot
	}
	if c.DelayBetweenHeatUps == 0 {
		c.DelayBetweenHeatUps = d.DelayBetweenHeatUps
	}
	if c.ThrottleIntervalMS == 0 {
		c.ThrottleIntervalMS = d.ThrottleIntervalMS
	}
	if c.CaptionCacheIdle == 0 {
		c.CaptionCacheIdle = d.CaptionCacheIdle
	}
	if c.AliasMapDebounce == 0 {
		c.AliasMapDebounce = d.AliasMapDebounce
	}
	if c.DefaultPadding == 0 {
		c.DefaultPadding = d.DefaultPadding
	}
	if c.DefaultPlaylistCacheHours == 0 {
		c.DefaultPlaylistCacheHours = d.DefaultPlaylistCacheHours
	}
	if c.HighLoadMemoryPercent == 0 {
		c.HighLoadMemoryPercent = d.HighLoadMemoryPercent
	}
	if c.MaxConcurrentDownloads == 0 {
		c.MaxConcurrentDownloads = 10
	}
	if c.ShardSize == 0 {
		c.ShardSize = 50
	}
}
