package engine

import (
	"github.com/spaghettifunk/framegraph/engine/config"
	"github.com/spaghettifunk/framegraph/engine/renderer"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

type Game struct {
	// Config is used as is when set. Otherwise ConfigPath is loaded, or the
	// defaults apply.
	Config *config.Config
	// ConfigPath is watched for changes while the engine runs.
	ConfigPath string
	State      interface{}
	FnBuild    Build
	FnUpdate   Update
	FnShutdown Shutdown
}

// Build declares the passes and resources of the graph once at startup.
type Build func(graph *rendergraph.RenderGraph, backend renderer.RendererBackend) error
type Update func(deltaTime float64, frame uint64) error
type Shutdown func() error
