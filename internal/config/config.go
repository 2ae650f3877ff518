// Package config decodes the adapter's on-disk TOML configuration: the
// KV store root directory, default sequence cache width, and the
// traversal pacing knobs, the way Erigon's node config is a flat,
// TOML/YAML-decodable struct rather than a bespoke flag parser.
package config

import (
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/pelletier/go-toml/v2"
)

// Config is the adapter's full runtime configuration.
type Config struct {
	// Root is the directory-layer path this adapter's data/, dataAltering/,
	// alter/, indexCount/ and indexNull/ subspaces are rooted under.
	Root []string `toml:"root"`

	// DirectoryCacheSize bounds the directory client's resolved-prefix
	// LRU cache (see internal/directory).
	DirectoryCacheSize int `toml:"directory_cache_size"`

	// DefaultSequenceCacheSize is the batch width new sequences use when
	// no per-sequence override is configured.
	DefaultSequenceCacheSize int64 `toml:"default_sequence_cache_size"`

	// ScanTimeLimit and SleepTime control periodic commit-and-reset in
	// long traversals (internal/traverse).
	ScanTimeLimit Duration `toml:"scan_time_limit"`
	SleepTime     Duration `toml:"sleep_time"`

	// MaxTransactionSize bounds how many bytes of writes an individual
	// statement accumulates before the caller should consider paging;
	// expressed with a human-readable suffix ("10MB") via datasize.
	MaxTransactionSize datasize.ByteSize `toml:"max_transaction_size"`
}

// Duration wraps time.Duration so it decodes from TOML's string form
// ("500ms", "2s") instead of raw nanoseconds, matching how the rest of
// the config favors human-readable units over opaque integers.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler, which go-toml/v2
// uses for any string-shaped TOML value assigned to a non-string field.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", string(b), err)
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration this adapter falls back to when no
// config file is supplied.
func Default() Config {
	return Config{
		Root:                     []string{"sqladapter"},
		DirectoryCacheSize:       4096,
		DefaultSequenceCacheSize: 1000,
		ScanTimeLimit:            Duration{4 * time.Second},
		SleepTime:                Duration{0},
		MaxTransactionSize:       10 * datasize.MB,
	}
}

// Parse decodes raw TOML bytes into a Config seeded from Default, so an
// input file only needs to override the fields it cares about.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}
