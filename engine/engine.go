package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/config"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

var ErrNotInitialized = errors.New("engine is not initialized")

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *config.Config
	watcher      *config.Watcher
	renderer     *renderer.Renderer
	clock        *core.Clock
	metrics      *core.Metrics
}

func New(g *Game) (*Engine, error) {
	cfg := g.Config
	if cfg == nil {
		cfg = config.Default()
		if g.ConfigPath != "" {
			loaded, err := config.Load(g.ConfigPath)
			if err != nil {
				core.LogError(err.Error())
				return nil, err
			}
			cfg = loaded
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if err := core.SetLogLevel(e.config.Log.Level); err != nil {
		return err
	}

	r, err := renderer.New(e.config)
	if err != nil {
		return err
	}
	e.renderer = r

	if e.gameInstance.ConfigPath != "" {
		w, err := config.NewWatcher(e.gameInstance.ConfigPath)
		if err != nil {
			core.LogWarn("config hot reload disabled: %s", err)
		} else {
			e.watcher = w
		}
	}

	if e.gameInstance.FnBuild != nil {
		if err := e.gameInstance.FnBuild(r.Graph(), r.Backend()); err != nil {
			return fmt.Errorf("building the render graph: %w", err)
		}
	}
	// Surface declaration errors before the first frame.
	if err := r.Graph().Compile(); err != nil {
		return err
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// Run renders frames until the configured frame count is reached, a frame
// fails or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return ErrNotInitialized
	}
	e.currentStage = EngineStageRunning
	defer func() { e.currentStage = EngineStageInitialized }()

	e.clock.Start()
	e.clock.Update()
	lastTime := e.clock.Elapsed()

	for frame := 0; e.config.Run.Frames == 0 || frame < e.config.Run.Frames; frame++ {
		select {
		case <-ctx.Done():
			core.LogInfo("Engine stopped after %d frames.", frame)
			return nil
		default:
		}
		e.pollConfig()

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - lastTime

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta.Seconds(), e.renderer.Graph().FrameIndex()); err != nil {
				core.LogError("Game update failed, shutting down.")
				return err
			}
		}

		counters, err := e.renderer.DrawFrame()
		if err != nil {
			core.LogError("Frame %d failed, shutting down.", e.renderer.Graph().FrameIndex())
			return err
		}

		e.clock.Update()
		e.metrics.Update(e.clock.Elapsed()-currentTime, counters)
		core.LogDebug("frame %d: %d levels, %d barriers, %d releases, %d signals, %d waits, %d submissions",
			e.metrics.TotalFrames, counters.Levels, counters.Barriers, counters.Releases,
			counters.Signals, counters.Waits, counters.Submissions)

		lastTime = currentTime
	}
	fps, frameMS := e.metrics.FPSAndFrameTime()
	core.LogInfo("Rendered %d frames (%.1f fps, %.3f ms average).", e.metrics.TotalFrames, fps, frameMS)
	return nil
}

// pollConfig applies the latest reloaded config, if any, without blocking.
func (e *Engine) pollConfig() {
	if e.watcher == nil {
		return
	}
	select {
	case cfg, ok := <-e.watcher.Configs():
		if ok {
			e.applyConfig(cfg)
		}
	default:
	}
}

func (e *Engine) applyConfig(cfg *config.Config) {
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		core.LogWarn(err.Error())
	}
	if err := e.renderer.ApplyConfig(cfg); err != nil {
		core.LogError("applying reloaded config: %s", err)
		return
	}
	// the frame count of a running loop stays as started
	cfg.Run.Frames = e.config.Run.Frames
	e.config = cfg
	core.LogInfo("Config reloaded.")
}

func (e *Engine) Config() *config.Config       { return e.config }
func (e *Engine) Metrics() *core.Metrics       { return e.metrics }
func (e *Engine) Renderer() *renderer.Renderer { return e.renderer }

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
		e.watcher = nil
	}
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.renderer != nil {
		errs = append(errs, e.renderer.Shutdown())
		e.renderer = nil
	}
	e.currentStage = EngineStageUninitialized
	return errors.Join(errs...)
}
