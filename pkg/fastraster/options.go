package fastraster

import "github.com/mbardakoff/fastraster/internal/config"

// Options is the full set of configure() options an Engine accepts. See
// internal/config for field-level documentation and YAML tags.
type Options = config.Options

// DefaultOptions returns the configure() defaults: unordered output, a
// view-pool of size 1, one tile loader, snake traversal, edge-replicate
// fill, and a release count of 1.
func DefaultOptions() *Options { return config.DefaultOptions() }

// LoadOptions reads Options from a YAML file, falling back to
// DefaultOptions when the file does not exist.
func LoadOptions(path string) (*Options, error) { return config.Load(path) }
