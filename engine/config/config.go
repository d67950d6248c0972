package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/lumen-engine/lumen/engine/math"
)

// MaxFramesInFlight bounds how far the CPU may record ahead of the GPU.
const MaxFramesInFlight = 3

// Config is the top-level engine configuration, loaded from a TOML file.
type Config struct {
	// The application name used in windowing.
	AppName string `toml:"app_name"`
	// Window starting position, if applicable.
	StartPosX uint32 `toml:"start_pos_x"`
	StartPosY uint32 `toml:"start_pos_y"`
	// Window starting size.
	StartWidth  uint32 `toml:"start_width"`
	StartHeight uint32 `toml:"start_height"`

	Renderer Renderer `toml:"renderer"`
}

// Renderer configures the rendering core.
type Renderer struct {
	// Number of frames recorded on the CPU while earlier frames execute on
	// the GPU. Clamped to [1, MaxFramesInFlight].
	FramesInFlight int `toml:"frames_in_flight"`
	// How long BeginFrame may wait on the oldest in-flight fence before the
	// device is considered lost. Zero means wait forever.
	FenceTimeoutMS int64 `toml:"fence_timeout_ms"`
	// MSAA sample count for pipelines that do not override it.
	SampleCount uint32 `toml:"sample_count"`
	// Bytes of per-frame uniform storage owned by each frame slot.
	UniformArenaSize uint64 `toml:"uniform_arena_size"`
	VSync            bool   `toml:"vsync"`
	// Directory watched for SPIR-V shader binaries.
	ShaderDir string `toml:"shader_dir"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		AppName:     "Lumen Application",
		StartWidth:  1280,
		StartHeight: 720,
		Renderer: Renderer{
			FramesInFlight:   2,
			FenceTimeoutMS:   0,
			SampleCount:      1,
			UniformArenaSize: 64 * 1024,
			VSync:            true,
			ShaderDir:        "shaders",
		},
	}
}

// Load reads a TOML config file, filling missing fields with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Renderer.FramesInFlight = math.Clamp(c.Renderer.FramesInFlight, 1, MaxFramesInFlight)
	if c.Renderer.SampleCount == 0 {
		c.Renderer.SampleCount = 1
	}
	if c.Renderer.UniformArenaSize == 0 {
		c.Renderer.UniformArenaSize = Default().Renderer.UniformArenaSize
	}
}

// FenceTimeout converts the configured timeout to a duration. Zero means
// effectively unbounded.
func (r Renderer) FenceTimeout() time.Duration {
	if r.FenceTimeoutMS <= 0 {
		return 0
	}
	return time.Duration(r.FenceTimeoutMS) * time.Millisecond
}
