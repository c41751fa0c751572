package core

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

type ApplicationSection struct {
	Name   string `toml:"name"`
	PosX   uint32 `toml:"pos_x"`
	PosY   uint32 `toml:"pos_y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type LogSection struct {
	Level string `toml:"level"`
}

type RendererSection struct {
	// Number of frames the CPU may run ahead of the GPU.
	FramesInFlight int   `toml:"frames_in_flight"`
	// Secondary command buffer fan-out. 0 means one per hardware thread.
	MaxParallelism int   `toml:"max_parallelism"`
	PreferMailbox  bool  `toml:"prefer_mailbox"`
	Validation     bool  `toml:"validation"`
	// Fence waits longer than this are treated as device loss.
	FenceTimeoutMS int64 `toml:"fence_timeout_ms"`
}

func (r RendererSection) FenceTimeout() time.Duration {
	return time.Duration(r.FenceTimeoutMS) * time.Millisecond
}

type MemorySection struct {
	BlockSize      uint64  `toml:"block_size"`
	BudgetFraction float64 `toml:"budget_fraction"`
}

type AssetsSection struct {
	ShaderDir string `toml:"shader_dir"`
	Watch     bool   `toml:"watch"`
}

// Config is the engine configuration, read from a TOML file.
type Config struct {
	Application ApplicationSection `toml:"application"`
	Log         LogSection         `toml:"log"`
	Renderer    RendererSection    `toml:"renderer"`
	Memory      MemorySection      `toml:"memory"`
	Assets      AssetsSection      `toml:"assets"`
}

func DefaultConfig() *Config {
	return &Config{
		Application: ApplicationSection{
			Name:   "Vireo",
			PosX:   100,
			PosY:   100,
			Width:  1280,
			Height: 720,
		},
		Log: LogSection{Level: "info"},
		Renderer: RendererSection{
			FramesInFlight: 2,
			MaxParallelism: 0,
			PreferMailbox:  true,
			Validation:     false,
			FenceTimeoutMS: 10_000,
		},
		Memory: MemorySection{
			BlockSize:      64 << 20,
			BudgetFraction: 0.8,
		},
		Assets: AssetsSection{
			ShaderDir: "shaders",
			Watch:     false,
		},
	}
}

// LoadConfig reads path on top of the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			LogWarn("config file %q not found, using defaults", path)
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "reading config %q", path)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the renderer cannot honour.
func (c *Config) Validate() error {
	if c.Renderer.FramesInFlight < 2 || c.Renderer.FramesInFlight > 3 {
		return errors.Newf("renderer.frames_in_flight must be 2 or 3, got %d", c.Renderer.FramesInFlight)
	}
	if c.Renderer.MaxParallelism < 0 {
		return errors.Newf("renderer.max_parallelism must be >= 0, got %d", c.Renderer.MaxParallelism)
	}
	if c.Renderer.FenceTimeoutMS <= 0 {
		c.Renderer.FenceTimeoutMS = 10_000
	}
	if c.Memory.BlockSize == 0 {
		return errors.New("memory.block_size must be > 0")
	}
	if c.Memory.BudgetFraction <= 0 || c.Memory.BudgetFraction > 1 {
		return errors.Newf("memory.budget_fraction must be in (0, 1], got %g", c.Memory.BudgetFraction)
	}
	return nil
}
