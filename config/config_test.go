package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[compiler]
strict = true

[runtime]
frame_ms = 40
terminal = true
zone = 10
seed = 7

[log]
verbosity = 2
file = "loco.log"

[cache]
enabled = true
path = "build/cache.db"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !c.Compiler.Strict {
		t.Error("compiler.strict = false, want true")
	}
	if c.Runtime.FrameMs != 40 {
		t.Errorf("runtime.frame_ms = %d, want 40", c.Runtime.FrameMs)
	}
	if c.Runtime.Terminal == nil || !*c.Runtime.Terminal {
		t.Errorf("runtime.terminal = %v, want true", c.Runtime.Terminal)
	}
	if c.Log.Verbosity != 2 || c.Log.File != "loco.log" {
		t.Errorf("log = %+v", c.Log)
	}
	if !c.Cache.Enabled {
		t.Error("cache.enabled = false, want true")
	}
	if got, want := c.CachePath(), filepath.Join(c.Dir, "build", "cache.db"); got != want {
		t.Errorf("cache path = %q, want %q", got, want)
	}

	opts := c.RuntimeOptions(false)
	if opts.FrameDuration != 40*time.Millisecond {
		t.Errorf("frame duration = %v, want 40ms", opts.FrameDuration)
	}
	if !opts.Terminal {
		t.Error("terminal forced on by the file")
	}
	if opts.Zone != 10 || opts.Seed != 7 {
		t.Errorf("zone/seed = %d/%d, want 10/7", opts.Zone, opts.Seed)
	}
	if !c.CompilerOptions().Strict {
		t.Error("compiler options not strict")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[compiler]\n")

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Runtime.FrameMs != 20 {
		t.Errorf("frame_ms = %d, want 20", c.Runtime.FrameMs)
	}
	if c.Runtime.Zone != 13 {
		t.Errorf("zone = %d, want 13", c.Runtime.Zone)
	}
	if c.Runtime.Terminal != nil {
		t.Error("terminal should be unset")
	}
	if !c.RuntimeOptions(true).Terminal {
		t.Error("detected terminal mode should be used when unset")
	}
	if c.Compiler.Strict {
		t.Error("strict should default to false")
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[runtime\n", "parse error"},
		{"zone", "[runtime]\nzone = 300\n", "runtime.zone"},
		{"frame", "[runtime]\nframe_ms = -1\n", "runtime.frame_ms"},
		{"verbosity", "[log]\nverbosity = -2\n", "log.verbosity"},
		{"type", "[runtime]\nzone = \"wide\"\n", "parse error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			_, err := Load(dir)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[compiler]\nstrict = true\n")
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if !c.Compiler.Strict {
		t.Error("config from parent directory not loaded")
	}
	abs, _ := filepath.Abs(root)
	if c.Dir != abs {
		t.Errorf("dir = %q, want %q", c.Dir, abs)
	}
}

func TestFindAndLoadMissing(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	// A locobasic.toml further up the real filesystem would be found too;
	// only check that something sane came back.
	if c == nil || c.Runtime.Zone == 0 {
		t.Errorf("got %+v, want defaults", c)
	}
}
