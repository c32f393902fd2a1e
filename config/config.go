// Package config handles morph.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the runtime tuning loaded from a morph.toml file. The zero
// value of every field is the default, so an absent file or absent keys mean
// default behavior.
type Config struct {
	Heap        HeapConfig        `toml:"heap"`
	Transitions TransitionsConfig `toml:"transitions"`
	Log         LogConfig         `toml:"log"`

	// Dir is the directory containing the morph.toml file (set at load time).
	Dir string `toml:"-"`
}

// HeapConfig tunes the collection environment.
type HeapConfig struct {
	// GCStressInterval runs a collection every N allocation points.
	// 0 disables stress collections.
	GCStressInterval int `toml:"gc-stress-interval"`

	// Verify enables the exhaustive sortedness/no-duplicate scans and the
	// misuse assertions that are skipped in normal operation.
	Verify bool `toml:"verify"`
}

// TransitionsConfig tunes the transition subsystem.
type TransitionsConfig struct {
	// DisablePrototypeCache turns the best-effort prototype transition
	// cache off. The cache is never required for correctness.
	DisablePrototypeCache bool `toml:"disable-prototype-cache"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Verbosity is the commonlog verbosity level (0 = notices and up).
	Verbosity int `toml:"verbosity"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{}
}

// PrototypeCacheEnabled reports whether prototype transitions may be cached.
func (c *Config) PrototypeCacheEnabled() bool {
	return !c.Transitions.DisablePrototypeCache
}

// Load parses a morph.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "morph.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if c.Heap.GCStressInterval < 0 {
		return nil, fmt.Errorf("%s: gc-stress-interval must be >= 0", path)
	}

	return &c, nil
}
