package renderer

import (
	"github.com/spaghettifunk/framegraph/engine/config"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/recorder"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

// Renderer owns a backend and the render graph running on it.
type Renderer struct {
	backend RendererBackend
	graph   *rendergraph.RenderGraph
	applied config.GraphConfig
}

func New(cfg *config.Config) (*Renderer, error) {
	backend, err := NewBackend(cfg)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	r, err := NewWithBackend(backend, cfg)
	if err != nil {
		backend.Shutdown()
		return nil, err
	}
	return r, nil
}

func NewWithBackend(backend RendererBackend, cfg *config.Config) (*Renderer, error) {
	graph, err := rendergraph.New(backend, cfg.GraphConfig())
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.LogInfo("Renderer started: graph %q with %d frames in flight.", graph.Name(), cfg.Graph.FramesInFlight)
	return &Renderer{backend: backend, graph: graph, applied: cfg.Graph}, nil
}

func (r *Renderer) Backend() RendererBackend         { return r.backend }
func (r *Renderer) Graph() *rendergraph.RenderGraph { return r.graph }

// Recorder returns the trace device when running on the recorder backend.
func (r *Renderer) Recorder() *recorder.Device {
	if b, ok := r.backend.(*recorderBackend); ok {
		return b.Device
	}
	return nil
}

// DrawFrame records and submits one frame and returns its counters.
func (r *Renderer) DrawFrame() (core.FrameCounters, error) {
	if err := r.graph.Execute(); err != nil {
		return core.FrameCounters{}, err
	}
	if err := r.graph.Submit(); err != nil {
		core.LogError("Renderer submit failed at frame %d.", r.graph.FrameIndex())
		return core.FrameCounters{}, err
	}
	return r.graph.Stats(), nil
}

// ApplyConfig applies the graph settings that can change at runtime.
// Frames in flight and the fence timeout are fixed for the lifetime of the
// graph.
func (r *Renderer) ApplyConfig(cfg *config.Config) error {
	if err := r.graph.SetAsyncCompute(cfg.Graph.AsyncCompute); err != nil {
		return err
	}
	r.applied.AsyncCompute = cfg.Graph.AsyncCompute
	if cfg.Graph.Name != "" {
		if err := r.graph.SetName(cfg.Graph.Name); err != nil {
			return err
		}
	}
	if cfg.Graph.FramesInFlight != r.applied.FramesInFlight {
		core.LogWarn("frames_in_flight changed from %d to %d, restart to apply.", r.applied.FramesInFlight, cfg.Graph.FramesInFlight)
	}
	if cfg.Graph.FenceTimeoutMS != r.applied.FenceTimeoutMS {
		core.LogWarn("fence_timeout_ms changed from %d to %d, restart to apply.", r.applied.FenceTimeoutMS, cfg.Graph.FenceTimeoutMS)
	}
	r.applied.Name = cfg.Graph.Name
	return nil
}

func (r *Renderer) Shutdown() error {
	if err := r.graph.WaitIdle(); err != nil {
		core.LogError(err.Error())
	}
	return r.backend.Shutdown()
}
