package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

const MaxFramesInFlight = 16

// Device backends the engine can run on.
const (
	BackendRecorder = "recorder"
	BackendVulkan   = "vulkan"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Log   LogConfig   `toml:"log"`
	Graph GraphConfig `toml:"graph"`
	Run   RunConfig   `toml:"run"`
}

type LogConfig struct {
	// One of debug, info, warn, error.
	Level string `toml:"level"`
}

type GraphConfig struct {
	Name           string `toml:"name"`
	FramesInFlight int    `toml:"frames_in_flight"`
	AsyncCompute   bool   `toml:"async_compute"`
	FenceTimeoutMS int    `toml:"fence_timeout_ms"`
}

type RunConfig struct {
	// Frames is how many frames the engine loop renders. Zero runs until
	// stopped.
	Frames int `toml:"frames"`
	// Backend is recorder or vulkan.
	Backend string `toml:"backend"`
	// ShaderDir holds the SPIR-V modules the vulkan backend loads.
	ShaderDir  string `toml:"shader_dir"`
	Validation bool   `toml:"validation"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Graph: GraphConfig{
			Name:           "forward-plus",
			FramesInFlight: rendergraph.DefaultFramesInFlight,
			AsyncCompute:   true,
			FenceTimeoutMS: int(rendergraph.DefaultFenceTimeout / time.Millisecond),
		},
		Run: RunConfig{
			Frames:    3,
			Backend:   BackendRecorder,
			ShaderDir: "shaders",
		},
	}
}

// Load reads a TOML file on top of the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, strict.String())
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Encode writes cfg as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.Log.Level)
	}
	if c.Graph.FramesInFlight < 1 || c.Graph.FramesInFlight > MaxFramesInFlight {
		return fmt.Errorf("%w: frames_in_flight must be in [1, %d], got %d", ErrInvalidConfig, MaxFramesInFlight, c.Graph.FramesInFlight)
	}
	if c.Graph.FenceTimeoutMS <= 0 {
		return fmt.Errorf("%w: fence_timeout_ms must be positive, got %d", ErrInvalidConfig, c.Graph.FenceTimeoutMS)
	}
	if c.Run.Frames < 0 {
		return fmt.Errorf("%w: frames must not be negative, got %d", ErrInvalidConfig, c.Run.Frames)
	}
	if c.Run.Backend != BackendRecorder && c.Run.Backend != BackendVulkan {
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Run.Backend)
	}
	return nil
}

func (c *Config) FenceTimeout() time.Duration {
	return time.Duration(c.Graph.FenceTimeoutMS) * time.Millisecond
}

func (c *Config) GraphConfig() *rendergraph.Config {
	return &rendergraph.Config{
		Name:           c.Graph.Name,
		FramesInFlight: c.Graph.FramesInFlight,
		AsyncCompute:   c.Graph.AsyncCompute,
		FenceTimeout:   c.FenceTimeout(),
	}
}
