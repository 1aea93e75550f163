// Package config handles configuration loading for a fastraster engine.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mbardakoff/fastraster/internal/traversal"
)

// Options is the full set of configure() options an engine accepts,
// loadable from YAML or constructed directly with DefaultOptions as a
// starting point.
type Options struct {
	PreserveOrder    bool   `yaml:"preserve_order"`
	NumParallelViews int    `yaml:"num_parallel_views"`
	NumCachedTiles   int    `yaml:"num_cached_tiles"`
	NumTileLoaders   int    `yaml:"num_tile_loaders"`
	TraversalType    string `yaml:"traversal_type"`
	FillType         string `yaml:"fill_type"`

	// ReleaseCountPerLevel is how many times consumers must call Release
	// on a view before its buffer returns to the pool; it is exposed per
	// the engine's resource model rather than hardcoded.
	ReleaseCountPerLevel int `yaml:"release_count_per_level"`

	Log    LogConfig    `yaml:"log"`
	Export ExportConfig `yaml:"export"`
}

// LogConfig controls the ambient zerolog setup.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// ExportConfig controls the serialized-FeatureCollection export cache.
type ExportConfig struct {
	CacheSizeMB  int `yaml:"cache_size_mb"`
	CacheTTLMins int `yaml:"cache_ttl_minutes"`
}

const (
	fillTypeEdgeReplicate = "edge_replicate"
)

// Load reads configuration from a YAML file. A missing file yields
// DefaultOptions rather than an error.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultOptions(), nil
	}

	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&opts)

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &opts, nil
}

// DefaultOptions returns the configure() defaults named in spec.md §6.
func DefaultOptions() *Options {
	return &Options{
		PreserveOrder:        false,
		NumParallelViews:     1,
		NumCachedTiles:       0, // 0 => 2*num_tiles_width per level, clipped
		NumTileLoaders:       1,
		TraversalType:        traversal.Snake.String(),
		FillType:             fillTypeEdgeReplicate,
		ReleaseCountPerLevel: 1,
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
		Export: ExportConfig{
			CacheSizeMB:  64,
			CacheTTLMins: 10,
		},
	}
}

func applyDefaults(opts *Options) {
	defaults := DefaultOptions()

	if opts.NumParallelViews == 0 {
		opts.NumParallelViews = defaults.NumParallelViews
	}
	if opts.NumTileLoaders == 0 {
		opts.NumTileLoaders = defaults.NumTileLoaders
	}
	if opts.TraversalType == "" {
		opts.TraversalType = defaults.TraversalType
	}
	if opts.FillType == "" {
		opts.FillType = defaults.FillType
	}
	if opts.ReleaseCountPerLevel == 0 {
		opts.ReleaseCountPerLevel = defaults.ReleaseCountPerLevel
	}
	if opts.Log.Level == "" {
		opts.Log.Level = defaults.Log.Level
	}
	if opts.Export.CacheSizeMB == 0 {
		opts.Export.CacheSizeMB = defaults.Export.CacheSizeMB
	}
	if opts.Export.CacheTTLMins == 0 {
		opts.Export.CacheTTLMins = defaults.Export.CacheTTLMins
	}
}

// Validate reports whether opts has a coherent traversal/fill selection
// and non-negative counts.
func (o *Options) Validate() error {
	if _, ok := traversal.ParseMode(o.TraversalType); !ok {
		return fmt.Errorf("config: unknown traversal_type %q", o.TraversalType)
	}
	if o.FillType != fillTypeEdgeReplicate {
		return fmt.Errorf("config: unknown fill_type %q", o.FillType)
	}
	if o.NumParallelViews < 1 {
		return fmt.Errorf("config: num_parallel_views must be >= 1, got %d", o.NumParallelViews)
	}
	if o.NumTileLoaders < 1 {
		return fmt.Errorf("config: num_tile_loaders must be >= 1, got %d", o.NumTileLoaders)
	}
	if o.NumCachedTiles < 0 {
		return fmt.Errorf("config: num_cached_tiles must be >= 0, got %d", o.NumCachedTiles)
	}
	return nil
}
