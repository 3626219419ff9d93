// Package config handles locobasic.toml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chazu/locobasic/compiler"
	"github.com/chazu/locobasic/vm"
)

// FileName is the name of the configuration file.
const FileName = "locobasic.toml"

// Config represents a locobasic.toml configuration.
type Config struct {
	Compiler CompilerConfig `toml:"compiler"`
	Runtime  RuntimeConfig  `toml:"runtime"`
	Log      LogConfig      `toml:"log"`
	Cache    CacheConfig    `toml:"cache"`

	// Dir is the directory containing the locobasic.toml file (set at load
	// time, empty for defaults).
	Dir string `toml:"-"`
}

// CompilerConfig selects the grammar variant.
type CompilerConfig struct {
	Strict bool `toml:"strict"`
}

// RuntimeConfig configures the VM.
type RuntimeConfig struct {
	FrameMs int `toml:"frame_ms"`
	// Terminal forces plain text output on or off; unset means detect.
	Terminal *bool `toml:"terminal"`
	Zone     int   `toml:"zone"`
	Seed     int64 `toml:"seed"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// CacheConfig configures the compile cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Runtime.FrameMs == 0 {
		c.Runtime.FrameMs = 20
	}
	if c.Runtime.Zone == 0 {
		c.Runtime.Zone = 13
	}
	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(".locobasic", "cache.db")
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Runtime.FrameMs < 0 {
		return fmt.Errorf("runtime.frame_ms must not be negative, got %d", c.Runtime.FrameMs)
	}
	if c.Runtime.Zone < 1 || c.Runtime.Zone > 255 {
		return fmt.Errorf("runtime.zone must be in 1..255, got %d", c.Runtime.Zone)
	}
	if c.Log.Verbosity < 0 {
		return fmt.Errorf("log.verbosity must not be negative, got %d", c.Log.Verbosity)
	}
	return nil
}

// Load parses a locobasic.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
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

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find a locobasic.toml file, then
// loads it. Returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// CompilerOptions returns the options for compiler.New.
func (c *Config) CompilerOptions() compiler.Options {
	return compiler.Options{Strict: c.Compiler.Strict}
}

// RuntimeOptions returns VM options. detected is used when the file does
// not force the output mode.
func (c *Config) RuntimeOptions(detected bool) vm.Options {
	opts := vm.DefaultOptions()
	opts.FrameDuration = time.Duration(c.Runtime.FrameMs) * time.Millisecond
	opts.Zone = c.Runtime.Zone
	opts.Seed = c.Runtime.Seed
	opts.Terminal = detected
	if c.Runtime.Terminal != nil {
		opts.Terminal = *c.Runtime.Terminal
	}
	return opts
}

// CachePath returns the cache database path, resolved against Dir.
func (c *Config) CachePath() string {
	if filepath.IsAbs(c.Cache.Path) || c.Dir == "" {
		return c.Cache.Path
	}
	return filepath.Join(c.Dir, c.Cache.Path)
}
