package rendergraph

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

const (
	DefaultFramesInFlight = 3
	DefaultFenceTimeout   = 2 * time.Second
)

type Config struct {
	// Name prefixes command list names. Empty picks a generated one.
	Name           string
	FramesInFlight int
	// AsyncCompute schedules compute passes on the compute queue when the
	// device has one.
	AsyncCompute bool
	FenceTimeout time.Duration
}

// RenderGraph compiles declared passes into per-queue levels and records and
// submits them every frame. It is not safe for concurrent use.
type RenderGraph struct {
	id             uuid.UUID
	name           string
	device         metadata.Device
	asyncCompute   bool
	framesInFlight int

	textures []TextureResource
	buffers  []BufferResource
	passes   []Pass

	schedules [metadata.QueueFamilyCount]Schedule
	order     []LevelRef
	// lists[slot][queue][level]
	lists     [][metadata.QueueFamilyCount][]metadata.CommandList
	prologues [][metadata.QueueFamilyCount]metadata.CommandList

	fences      [metadata.QueueFamilyCount]metadata.Fence
	fenceValues [metadata.QueueFamilyCount]uint64
	pacer       *framePacer
	frameIndex  uint64
	pending     *frameRecord
	counters    core.FrameCounters

	dirty bool
}

func New(device metadata.Device, cfg *Config) (*RenderGraph, error) {
	if device == nil {
		return nil, errors.New("render graph: nil device")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	frames := cfg.FramesInFlight
	if frames <= 0 {
		frames = DefaultFramesInFlight
	}
	timeout := cfg.FenceTimeout
	if timeout <= 0 {
		timeout = DefaultFenceTimeout
	}
	if device.Queue(metadata.QueueFamilyGraphics) == nil {
		return nil, fmt.Errorf("render graph: graphics queue: %w", core.ErrQueueNotAvailable)
	}

	g := &RenderGraph{
		id:             uuid.New(),
		name:           cfg.Name,
		device:         device,
		framesInFlight: frames,
		pacer:          newFramePacer(frames, timeout),
		dirty:          true,
	}
	if g.name == "" {
		g.name = "render-graph-" + strings.SplitN(g.id.String(), "-", 2)[0]
	}

	fence, err := device.CreateFence(0)
	if err != nil {
		return nil, fmt.Errorf("render graph: creating graphics fence: %w", err)
	}
	g.fences[metadata.QueueFamilyGraphics] = fence

	if err := g.SetAsyncCompute(cfg.AsyncCompute); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *RenderGraph) ID() uuid.UUID { return g.id }
func (g *RenderGraph) Name() string  { return g.name }

// SetName renames the graph. Command lists are recreated with the new name
// once the frames still using the old ones have finished.
func (g *RenderGraph) SetName(name string) error {
	if name == g.name {
		return nil
	}
	if g.pending != nil {
		return ErrAlreadyRecorded
	}
	if err := g.pacer.drain(g.fences); err != nil {
		return err
	}
	g.name = name
	g.lists = nil
	g.prologues = nil
	g.dirty = true
	return nil
}

func (g *RenderGraph) AsyncCompute() bool { return g.asyncCompute }

// SetAsyncCompute moves compute passes between the compute and graphics
// queues. Without a compute queue on the device the request is ignored.
// Frames in flight are drained first since tracked ownership is rewritten.
func (g *RenderGraph) SetAsyncCompute(enabled bool) error {
	if enabled && g.device.Queue(metadata.QueueFamilyCompute) == nil {
		core.LogWarn("render graph %q: device has no async compute queue, compute passes run on the graphics queue", g.name)
		enabled = false
	}
	if enabled == g.asyncCompute {
		return nil
	}
	if g.pending != nil {
		return ErrAlreadyRecorded
	}
	if err := g.pacer.drain(g.fences); err != nil {
		return err
	}
	if enabled && g.fences[metadata.QueueFamilyCompute] == nil {
		fence, err := g.device.CreateFence(0)
		if err != nil {
			return fmt.Errorf("render graph: creating compute fence: %w", err)
		}
		g.fences[metadata.QueueFamilyCompute] = fence
	}
	g.asyncCompute = enabled
	g.foldQueues()
	g.dirty = true
	core.LogInfo("render graph %q: async compute %t", g.name, enabled)
	return nil
}

// Dirty reports whether the next Execute recompiles.
func (g *RenderGraph) Dirty() bool { return g.dirty }

// Compile sorts the passes and prepares command lists. It does nothing when
// neither passes nor resources changed since the last compile.
func (g *RenderGraph) Compile() error {
	if !g.dirty {
		return nil
	}
	if g.pending != nil {
		return ErrAlreadyRecorded
	}
	if err := g.validate(); err != nil {
		core.LogError(err.Error())
		return err
	}

	schedules, err := newSorter(g).sort()
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	order, err := interleave(&schedules)
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	g.schedules = schedules
	g.order = order

	if err := g.allocateLists(); err != nil {
		core.LogError(err.Error())
		return err
	}
	g.dirty = false
	g.logSchedule()
	return nil
}

// Execute compiles if needed, waits for a free frame slot and records every
// level. Submit hands the recorded frame to the queues.
func (g *RenderGraph) Execute() error {
	if g.pending != nil {
		return ErrAlreadyRecorded
	}
	if err := g.Compile(); err != nil {
		return err
	}
	if err := g.pacer.throttle(g.fences); err != nil {
		core.LogError(err.Error())
		return err
	}

	fr := &frameRecord{slot: int(g.frameIndex % uint64(g.framesInFlight))}
	if err := g.record(fr); err != nil {
		core.LogError(err.Error())
		return err
	}
	g.pending = fr
	return nil
}

// Submit submits the frame recorded by Execute in interleaved order.
func (g *RenderGraph) Submit() error {
	fr := g.pending
	if fr == nil {
		return ErrNotRecorded
	}
	g.pending = nil

	target, err := g.submit(fr)
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	if err := g.pacer.track(target); err != nil {
		return err
	}
	g.counters = fr.counters
	g.frameIndex++
	return nil
}

// WaitIdle blocks until every submitted frame finished and the device is idle.
func (g *RenderGraph) WaitIdle() error {
	if err := g.pacer.drain(g.fences); err != nil {
		return err
	}
	return g.device.WaitIdle()
}

// Schedule returns a copy of the compiled order of queue q.
func (g *RenderGraph) Schedule(q metadata.QueueFamily) Schedule {
	s := g.schedules[q]
	return Schedule{
		Queue:  s.Queue,
		Passes: append([]ScheduledPass(nil), s.Passes...),
		Levels: append([]Level(nil), s.Levels...),
	}
}

// SubmissionOrder returns the interleaved level order of the last compile.
func (g *RenderGraph) SubmissionOrder() []LevelRef {
	return append([]LevelRef(nil), g.order...)
}

// Stats returns the counters of the last submitted frame.
func (g *RenderGraph) Stats() core.FrameCounters { return g.counters }

// FrameIndex is the number of frames submitted so far.
func (g *RenderGraph) FrameIndex() uint64 { return g.frameIndex }

// FenceValue is the last value queued for signaling on q's fence.
func (g *RenderGraph) FenceValue(q metadata.QueueFamily) uint64 { return g.fenceValues[q] }

func (g *RenderGraph) validate() error {
	for _, p := range g.passes {
		b := p.base()
		for _, att := range append(append([]TextureAttachment(nil), b.textureInputs...), b.textureOutputs...) {
			if err := g.validateTexture(p, att.Texture); err != nil {
				return err
			}
		}
		if rp, ok := p.(*RenderPass); ok && rp.depthStencil != nil {
			if err := g.validateTexture(p, rp.depthStencil.Texture); err != nil {
				return err
			}
		}
		for _, att := range append(append([]BufferAttachment(nil), b.bufferInputs...), b.bufferOutputs...) {
			if err := g.validateBuffer(p, att.Buffer); err != nil {
				return err
			}
		}
		if b.record != nil && !b.customPipeline && !hasPipeline(p) {
			return &GraphError{Kind: ErrUnboundPipeline, Pass: p.Name(), Detail: "set a shader or call UseCustomPipeline"}
		}
	}
	return nil
}

func hasPipeline(p Pass) bool {
	switch pass := p.(type) {
	case *RenderPass:
		return pass.pipeline != nil
	case *ComputePass:
		return pass.pipeline != nil
	}
	return false
}

func (g *RenderGraph) validateTexture(p Pass, inst TextureInstance) error {
	t, err := g.texture(inst.Texture)
	if err != nil {
		err.(*GraphError).Pass = p.Name()
		return err
	}
	if inst.Version >= t.instances {
		return &GraphError{Kind: ErrInvalidHandle, Pass: p.Name(), Resource: t.texture.Name(),
			Detail: fmt.Sprintf("version %d was never made", inst.Version)}
	}
	return nil
}

func (g *RenderGraph) validateBuffer(p Pass, inst BufferInstance) error {
	b, err := g.buffer(inst.Buffer)
	if err != nil {
		err.(*GraphError).Pass = p.Name()
		return err
	}
	if inst.Version >= b.instances {
		return &GraphError{Kind: ErrInvalidHandle, Pass: p.Name(), Resource: b.buffer.Name(),
			Detail: fmt.Sprintf("version %d was never made", inst.Version)}
	}
	return nil
}

// allocateLists makes sure every frame slot owns one command list per level
// per queue. Lists from earlier compiles are reused.
func (g *RenderGraph) allocateLists() error {
	if len(g.lists) != g.framesInFlight {
		g.lists = make([][metadata.QueueFamilyCount][]metadata.CommandList, g.framesInFlight)
		g.prologues = make([][metadata.QueueFamilyCount]metadata.CommandList, g.framesInFlight)
	}
	for slot := range g.lists {
		for q := metadata.QueueFamilyGraphics; q < metadata.QueueFamilyCount; q++ {
			for n := len(g.lists[slot][q]); n < len(g.schedules[q].Levels); n++ {
				cl, err := g.device.CreateCommandList(q, slot, fmt.Sprintf("%s %s list %d", g.name, q, n))
				if err != nil {
					return fmt.Errorf("render graph: creating command list: %w", err)
				}
				g.lists[slot][q] = append(g.lists[slot][q], cl)
			}
		}
	}
	return nil
}

func (g *RenderGraph) prologueList(slot int, q metadata.QueueFamily) (metadata.CommandList, error) {
	if cl := g.prologues[slot][q]; cl != nil {
		return cl, nil
	}
	cl, err := g.device.CreateCommandList(q, slot, fmt.Sprintf("%s %s prologue", g.name, q))
	if err != nil {
		return nil, fmt.Errorf("render graph: creating command list: %w", err)
	}
	g.prologues[slot][q] = cl
	return cl, nil
}

func (g *RenderGraph) logSchedule() {
	core.LogInfo("render graph %q compiled: %d passes, %d graphics levels, %d compute levels",
		g.name, len(g.passes), len(g.schedules[metadata.QueueFamilyGraphics].Levels), len(g.schedules[metadata.QueueFamilyCompute].Levels))
	for _, ref := range g.order {
		s := &g.schedules[ref.Queue]
		lvl := s.Levels[ref.Level]
		names := make([]string, 0, lvl.Len())
		for i := lvl.Start; i < lvl.End; i++ {
			names = append(names, s.Passes[i].Pass.Name())
		}
		core.LogDebug("  %s level %d fence=%d action=%s wait=%d: %s",
			ref.Queue, ref.Level, lvl.Fence, lvl.Action, lvl.WaitLevel, strings.Join(names, ", "))
	}
}
