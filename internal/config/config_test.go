package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sponza.yml")
	data := `
window:
  width: 800
  height: 600
ssao:
  enabled: false
  kernel_size: 32
camera:
  rotation: [10, 20, 30]
log_level: debug
`
	if err := os.WriteFile(path, []byte(data), 0666); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	want.Window.Width = 800
	want.Window.Height = 600
	want.SSAO.Enabled = false
	want.SSAO.KernelSize = 32
	want.Camera.Rotation = mgl32.Vec3{10, 20, 30}
	want.LogLevel = "debug"
	if cfg != want {
		t.Errorf("Load() = %+v, want %+v", cfg, want)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(path, []byte("window: [1, 2"), 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() of malformed YAML succeeded")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"default", func(c *Config) {}, true},
		{"zero width", func(c *Config) { c.Window.Width = 0 }, false},
		{"no shaders", func(c *Config) { c.ShaderDir = "" }, false},
		{"kernel too large", func(c *Config) { c.SSAO.KernelSize = 65 }, false},
		{"kernel zero", func(c *Config) { c.SSAO.KernelSize = 0 }, false},
		{"negative radius", func(c *Config) { c.SSAO.Radius = -1 }, false},
		{"fov", func(c *Config) { c.Camera.FOV = 180 }, false},
		{"far before near", func(c *Config) { c.Camera.Far = 0.05 }, false},
		{"texture size", func(c *Config) { c.Scene.MaxTextureSize = 0 }, false},
	}
	for _, tt := range tests {
		c := Default()
		tt.mutate(&c)
		if err := c.Validate(); (err == nil) != tt.ok {
			t.Errorf("%s: Validate() error = %v", tt.name, err)
		}
	}
}

func TestFlagsOverrideOnlyWhatWasSet(t *testing.T) {
	fs := flag.NewFlagSet("sponza", flag.ContinueOnError)
	f := RegisterFlags(fs)
	if err := fs.Parse([]string{"-scene", "assets/atrium.obj", "-validation"}); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.LogLevel = "warn"
	f.Apply(fs, &cfg)

	if cfg.Scene.OBJ != "assets/atrium.obj" || cfg.Scene.MTL != "assets/atrium.mtl" || cfg.Scene.TextureDir != "assets" {
		t.Errorf("scene = %+v", cfg.Scene)
	}
	if !cfg.Validation {
		t.Error("Validation = false, want true")
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want the unset flag to leave %q", cfg.LogLevel, "warn")
	}
	if f.ConfigPath != DefaultFilename {
		t.Errorf("ConfigPath = %q, want %q", f.ConfigPath, DefaultFilename)
	}
}
