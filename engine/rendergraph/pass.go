package rendergraph

import "github.com/spaghettifunk/framegraph/engine/renderer/metadata"

// RecordFunc records the commands of a pass. It runs after the pass barriers
// and pipeline bindings are recorded and, for render passes, inside the
// rendering scope.
type RecordFunc func(cl metadata.CommandList) error

// Pass is implemented by *RenderPass and *ComputePass.
type Pass interface {
	Name() string
	// Queue is the queue the pass was scheduled on by the last compile.
	Queue() metadata.QueueFamily
	// Fence is the number of cross-queue synchronization points before the pass.
	Fence() uint64
	// Signals reports whether a pass on the other queue consumes an output.
	Signals() bool
	Stage() metadata.PipelineStage
	base() *passBase
}

type passBase struct {
	graph *RenderGraph
	name  string
	order int

	textureInputs  []TextureAttachment
	textureOutputs []TextureAttachment
	bufferInputs   []BufferAttachment
	bufferOutputs  []BufferAttachment

	rootSignature  metadata.RootSignature
	customPipeline bool
	record         RecordFunc

	// set by the sorter
	queue     metadata.QueueFamily
	fence     uint64
	signal    bool
	waitsOn   []Pass
	scheduled bool
	iteration int
}

func (p *passBase) Name() string                { return p.name }
func (p *passBase) Queue() metadata.QueueFamily { return p.queue }
func (p *passBase) Fence() uint64               { return p.fence }
func (p *passBase) Signals() bool               { return p.signal }
func (p *passBase) base() *passBase             { return p }
func (p *passBase) touch()                      { p.graph.dirty = true }

func (p *passBase) AddTextureInput(att TextureAttachment) {
	p.textureInputs = append(p.textureInputs, att)
	p.touch()
}

func (p *passBase) AddTextureOutput(att TextureAttachment) {
	p.textureOutputs = append(p.textureOutputs, att)
	p.touch()
}

func (p *passBase) AddBufferInput(att BufferAttachment) {
	p.bufferInputs = append(p.bufferInputs, att)
	p.touch()
}

func (p *passBase) AddBufferOutput(att BufferAttachment) {
	p.bufferOutputs = append(p.bufferOutputs, att)
	p.touch()
}

func (p *passBase) SetRootSignature(rs metadata.RootSignature) {
	p.rootSignature = rs
	p.touch()
}

// UseCustomPipeline lets the record function bind its own pipeline.
func (p *passBase) UseCustomPipeline() {
	p.customPipeline = true
	p.touch()
}

func (p *passBase) SetRecordFunc(fn RecordFunc) {
	p.record = fn
	p.touch()
}

func (p *passBase) resetSchedule() {
	p.fence = 0
	p.signal = false
	p.waitsOn = p.waitsOn[:0]
	p.scheduled = false
	p.iteration = 0
}

// RenderPass runs on the graphics queue.
type RenderPass struct {
	passBase
	stage        metadata.PipelineStage
	pipeline     metadata.Pipeline
	area         metadata.Area2D
	depthStencil *TextureAttachment
}

func (p *RenderPass) Stage() metadata.PipelineStage { return p.stage }

// AddColorInput is AddTextureInput under the name render code usually uses.
func (p *RenderPass) AddColorInput(att TextureAttachment) { p.AddTextureInput(att) }

func (p *RenderPass) AddColorOutput(att TextureAttachment) { p.AddTextureOutput(att) }

// SetDepthStencilOutput binds the depth attachment. Its layout is always the
// depth attachment layout whatever the usage.
func (p *RenderPass) SetDepthStencilOutput(att TextureAttachment) {
	p.depthStencil = &att
	p.touch()
}

func (p *RenderPass) SetShader(pipeline metadata.Pipeline, rs metadata.RootSignature) {
	p.pipeline = pipeline
	p.rootSignature = rs
	p.touch()
}

func (p *RenderPass) SetPassArea(area metadata.Area2D) {
	p.area = area
	p.touch()
}

// ComputePass runs on the async compute queue when there is one.
type ComputePass struct {
	passBase
	pipeline metadata.ComputePipeline
}

func (p *ComputePass) Stage() metadata.PipelineStage { return metadata.PipelineStageComputeShader }

func (p *ComputePass) SetShader(pipeline metadata.ComputePipeline, rs metadata.RootSignature) {
	p.pipeline = pipeline
	p.rootSignature = rs
	p.touch()
}

func (g *RenderGraph) AddPass(stage metadata.PipelineStage, name string) *RenderPass {
	if stage == metadata.PipelineStageNone {
		stage = metadata.PipelineStageAllGraphics
	}
	p := &RenderPass{stage: stage}
	p.passBase = passBase{graph: g, name: name, order: len(g.passes)}
	g.passes = append(g.passes, p)
	g.dirty = true
	return p
}

func (g *RenderGraph) AddComputePass(name string) *ComputePass {
	p := &ComputePass{}
	p.passBase = passBase{graph: g, name: name, order: len(g.passes)}
	g.passes = append(g.passes, p)
	g.dirty = true
	return p
}

// ResetPasses drops every pass so the caller can author the next frame.
// Registered resources and their tracked state are kept.
func (g *RenderGraph) ResetPasses() {
	g.passes = nil
	g.dirty = true
}

// Passes returns the passes in declaration order.
func (g *RenderGraph) Passes() []Pass {
	out := make([]Pass, len(g.passes))
	copy(out, g.passes)
	return out
}

// reads lists the texture instances a pass depends on: inputs plus read-only outputs.
func textureReads(p Pass) []TextureAttachment {
	b := p.base()
	reads := append([]TextureAttachment(nil), b.textureInputs...)
	for _, att := range b.textureOutputs {
		if att.Access == AttachmentAccessRead {
			reads = append(reads, att)
		}
	}
	if rp, ok := p.(*RenderPass); ok && rp.depthStencil != nil && rp.depthStencil.Access == AttachmentAccessRead {
		reads = append(reads, *rp.depthStencil)
	}
	return reads
}

func textureWrites(p Pass) []TextureAttachment {
	var writes []TextureAttachment
	for _, att := range p.base().textureOutputs {
		if att.Access != AttachmentAccessRead {
			writes = append(writes, att)
		}
	}
	if rp, ok := p.(*RenderPass); ok && rp.depthStencil != nil && rp.depthStencil.Access != AttachmentAccessRead {
		writes = append(writes, *rp.depthStencil)
	}
	return writes
}

func bufferReads(p Pass) []BufferAttachment {
	b := p.base()
	reads := append([]BufferAttachment(nil), b.bufferInputs...)
	for _, att := range b.bufferOutputs {
		if att.Access == AttachmentAccessRead {
			reads = append(reads, att)
		}
	}
	return reads
}

func bufferWrites(p Pass) []BufferAttachment {
	var writes []BufferAttachment
	for _, att := range p.base().bufferOutputs {
		if att.Access != AttachmentAccessRead {
			writes = append(writes, att)
		}
	}
	return writes
}
