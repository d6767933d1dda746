// Package config holds the renderer settings read from a YAML file and the
// command line.
package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/sponza/internal/logging"
	"github.com/vkngwrapper/sponza/internal/ssao"
	"gopkg.in/yaml.v3"
)

const DefaultFilename = "sponza.yml"

type Window struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

type Scene struct {
	OBJ        string `yaml:"obj"`
	MTL        string `yaml:"mtl"`
	TextureDir string `yaml:"texture_dir"`
	// MaxTextureSize clamps the larger side of every texture.
	MaxTextureSize int `yaml:"max_texture_size"`
}

type SSAO struct {
	Enabled    bool    `yaml:"enabled"`
	Blur       bool    `yaml:"blur"`
	KernelSize int     `yaml:"kernel_size"`
	Radius     float32 `yaml:"radius"`
	Power      float32 `yaml:"power"`
	NoiseDim   int     `yaml:"noise_dim"`
	Seed       int64   `yaml:"seed"`
}

// Params returns the tunables baked into the SSAO program.
func (s SSAO) Params() ssao.Params {
	return ssao.Params{KernelSize: s.KernelSize, Radius: s.Radius, Power: s.Power, NoiseDim: s.NoiseDim}
}

// Camera is the orbit camera: the view translates by Zoom along z, rotates
// by Rotation degrees around x, y and z, and the model moves the scene by
// Position.
type Camera struct {
	FOV      float32    `yaml:"fov"`
	Near     float32    `yaml:"near"`
	Far      float32    `yaml:"far"`
	Zoom     float32    `yaml:"zoom"`
	Rotation mgl32.Vec3 `yaml:"rotation,flow"`
	Position mgl32.Vec3 `yaml:"position,flow"`
}

type Lights struct {
	Animate      bool    `yaml:"animate"`
	Speed        float32 `yaml:"speed"`
	FollowCamera bool    `yaml:"follow_camera"`
}

type Config struct {
	Window        Window `yaml:"window"`
	ShaderDir     string `yaml:"shader_dir"`
	Scene         Scene  `yaml:"scene"`
	PipelineCache string `yaml:"pipeline_cache"`
	SSAO          SSAO   `yaml:"ssao"`
	Camera        Camera `yaml:"camera"`
	Lights        Lights `yaml:"lights"`
	DebugView     bool   `yaml:"debug_view"`
	Validation    bool   `yaml:"validation"`
	LogLevel      string `yaml:"log_level"`
}

func Default() Config {
	params := ssao.DefaultParams()
	return Config{
		Window:    Window{Title: "Sponza", Width: 1280, Height: 720},
		ShaderDir: "shaders",
		Scene: Scene{
			OBJ:            "data/sponza/sponza.obj",
			MTL:            "data/sponza/sponza.mtl",
			TextureDir:     "data/sponza",
			MaxTextureSize: 2048,
		},
		PipelineCache: "pipeline_cache_data.bin",
		SSAO: SSAO{
			Enabled:    true,
			Blur:       true,
			KernelSize: params.KernelSize,
			Radius:     params.Radius,
			Power:      params.Power,
			NoiseDim:   params.NoiseDim,
			Seed:       1,
		},
		Camera: Camera{
			FOV:      45,
			Near:     0.1,
			Far:      256,
			Zoom:     -8,
			Rotation: mgl32.Vec3{0, 90, 0},
			Position: mgl32.Vec3{0, 10, 0},
		},
		Lights:   Lights{Animate: true, Speed: 0.25},
		LogLevel: "info",
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logging.Logger().Info("config file not found, using defaults", "path", path)
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	if c.ShaderDir == "" {
		return errors.New("shader_dir is empty")
	}
	if err := c.SSAO.Params().Validate(); err != nil {
		return err
	}
	if c.Camera.FOV <= 0 || c.Camera.FOV >= 180 {
		return errors.Newf("camera fov %v outside (0,180)", c.Camera.FOV)
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		return errors.Newf("camera planes near=%v far=%v", c.Camera.Near, c.Camera.Far)
	}
	if c.Scene.MaxTextureSize < 1 {
		return errors.Newf("max_texture_size %d must be positive", c.Scene.MaxTextureSize)
	}
	return nil
}

// Flags are the command line overrides.
type Flags struct {
	ConfigPath string
	ScenePath  string
	LogLevel   string
	Validation bool
}

// RegisterFlags defines the overrides on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.ConfigPath, "config", DefaultFilename, "path to the YAML configuration")
	fs.StringVar(&f.ScenePath, "scene", "", "path to the OBJ scene, overrides scene.obj")
	fs.StringVar(&f.LogLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&f.Validation, "validation", false, "enable the Vulkan validation layers")
	return f
}

// Apply copies every flag that was set on the command line into c. A
// scene override also points the material file and texture directory
// next to it.
func (f *Flags) Apply(fs *flag.FlagSet, c *Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "scene":
			c.Scene.OBJ = f.ScenePath
			c.Scene.MTL = strings.TrimSuffix(f.ScenePath, filepath.Ext(f.ScenePath)) + ".mtl"
			c.Scene.TextureDir = filepath.Dir(f.ScenePath)
		case "log-level":
			c.LogLevel = f.LogLevel
		case "validation":
			c.Validation = f.Validation
		}
	})
}
