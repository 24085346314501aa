package rendergraph

import (
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

// stagePair packs the source and destination scopes of one PipelineBarrier
// call; ordering by it issues source stages in ascending bit order.
type stagePair uint64

func makeStagePair(src, dst metadata.PipelineStage) stagePair {
	if src == metadata.PipelineStageNone {
		src = metadata.PipelineStageTopOfPipe
	}
	return stagePair(uint64(src)<<32 | uint64(dst))
}

func (s stagePair) src() metadata.PipelineStage { return metadata.PipelineStage(s >> 32) }
func (s stagePair) dst() metadata.PipelineStage { return metadata.PipelineStage(s & 0xffffffff) }

// barrierBatch groups barriers by stage pair until they are flushed into a
// command list.
type barrierBatch struct {
	textures map[stagePair][]metadata.TextureBarrier
	buffers  map[stagePair][]metadata.BufferBarrier
}

func newBarrierBatch() *barrierBatch {
	return &barrierBatch{
		textures: make(map[stagePair][]metadata.TextureBarrier),
		buffers:  make(map[stagePair][]metadata.BufferBarrier),
	}
}

func (b *barrierBatch) addTexture(src, dst metadata.PipelineStage, tb metadata.TextureBarrier) {
	k := makeStagePair(src, dst)
	b.textures[k] = append(b.textures[k], tb)
}

func (b *barrierBatch) addBuffer(src, dst metadata.PipelineStage, bb metadata.BufferBarrier) {
	k := makeStagePair(src, dst)
	b.buffers[k] = append(b.buffers[k], bb)
}

func (b *barrierBatch) len() int {
	n := 0
	for _, v := range b.textures {
		n += len(v)
	}
	for _, v := range b.buffers {
		n += len(v)
	}
	return n
}

// flush records one PipelineBarrier per stage pair and empties the batch. It
// returns the number of barriers recorded.
func (b *barrierBatch) flush(cl metadata.CommandList) int {
	keys := make([]stagePair, 0, len(b.textures)+len(b.buffers))
	for k := range b.textures {
		keys = append(keys, k)
	}
	for k := range b.buffers {
		if _, ok := b.textures[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	n := 0
	for _, k := range keys {
		bufs, texs := b.buffers[k], b.textures[k]
		cl.PipelineBarrier(k.src(), k.dst(), bufs, texs)
		n += len(bufs) + len(texs)
		delete(b.buffers, k)
		delete(b.textures, k)
	}
	return n
}

type textureRequirement struct {
	layout metadata.ResourceLayout
	access metadata.AccessFlags
	queue  metadata.QueueFamily
	stage  metadata.PipelineStage
	pass   Pass
	write  bool
}

type bufferRequirement struct {
	access metadata.AccessFlags
	queue  metadata.QueueFamily
	stage  metadata.PipelineStage
	pass   Pass
	write  bool
}

// hazard remembers the last pass to touch a resource and whether that pass
// wrote it.
type hazard struct {
	last    Pass
	written bool
}

// after reports whether p touching the resource races the previous pass even
// though the tracked state already matches.
func (h *hazard) after(p Pass, write bool) bool {
	if h.last == nil || h.last == p {
		return false
	}
	return h.written || write
}

func (h *hazard) touch(p Pass, write bool) {
	if h.last != p {
		h.written = false
	}
	h.last = p
	h.written = h.written || write
}

// transitionTexture brings a texture to req. The acquire side (or the plain
// transition) goes into acquire; a queue change also puts the release into
// release. A texture already in the required state still gets a barrier
// when it is written by one pass and touched by another. It returns false
// when nothing was emitted.
func transitionTexture(t *TextureResource, req textureRequirement, acquire, release *barrierBatch) bool {
	cur := t.state
	defer t.hazard.touch(req.pass, req.write)
	if cur.Layout == req.layout && cur.Access == req.access && cur.Queue == req.queue {
		if !t.hazard.after(req.pass, req.write) {
			t.state.Stage |= req.stage
			return false
		}
		acquire.addTexture(cur.Stage, req.stage, metadata.TextureBarrier{
			Texture:   t.texture,
			Range:     t.subrange,
			OldLayout: cur.Layout,
			NewLayout: req.layout,
			SrcAccess: cur.Access,
			DstAccess: req.access,
			SrcQueue:  metadata.QueueFamilyIgnored,
			DstQueue:  metadata.QueueFamilyIgnored,
		})
		t.state.Stage = req.stage
		return true
	}

	tb := metadata.TextureBarrier{
		Texture:   t.texture,
		Range:     t.subrange,
		OldLayout: cur.Layout,
		NewLayout: req.layout,
		SrcAccess: cur.Access,
		DstAccess: req.access,
		SrcQueue:  metadata.QueueFamilyIgnored,
		DstQueue:  metadata.QueueFamilyIgnored,
	}
	// undefined contents need no ownership transfer
	if cur.Queue != req.queue && cur.Layout != metadata.ResourceLayoutUndefined {
		rel := tb
		rel.DstAccess = metadata.AccessNone
		rel.SrcQueue, rel.DstQueue = cur.Queue, req.queue
		release.addTexture(cur.Stage, metadata.PipelineStageBottomOfPipe, rel)

		tb.SrcAccess = metadata.AccessNone
		tb.SrcQueue, tb.DstQueue = cur.Queue, req.queue
		acquire.addTexture(metadata.PipelineStageTopOfPipe, req.stage, tb)
	} else {
		acquire.addTexture(cur.Stage, req.stage, tb)
	}

	t.state = TextureState{Layout: req.layout, Access: req.access, Queue: req.queue, Stage: req.stage}
	return true
}

func transitionBuffer(b *BufferResource, req bufferRequirement, acquire, release *barrierBatch) bool {
	cur := b.state
	defer b.hazard.touch(req.pass, req.write)
	if cur.Access == req.access && cur.Queue == req.queue {
		if !b.hazard.after(req.pass, req.write) {
			b.state.Stage |= req.stage
			return false
		}
		acquire.addBuffer(cur.Stage, req.stage, metadata.BufferBarrier{
			Buffer:    b.buffer,
			Offset:    b.offset,
			Size:      b.size,
			SrcAccess: cur.Access,
			DstAccess: req.access,
			SrcQueue:  metadata.QueueFamilyIgnored,
			DstQueue:  metadata.QueueFamilyIgnored,
		})
		b.state.Stage = req.stage
		return true
	}

	bb := metadata.BufferBarrier{
		Buffer:    b.buffer,
		Offset:    b.offset,
		Size:      b.size,
		SrcAccess: cur.Access,
		DstAccess: req.access,
		SrcQueue:  metadata.QueueFamilyIgnored,
		DstQueue:  metadata.QueueFamilyIgnored,
	}
	if cur.Queue != req.queue {
		rel := bb
		rel.DstAccess = metadata.AccessNone
		rel.SrcQueue, rel.DstQueue = cur.Queue, req.queue
		release.addBuffer(cur.Stage, metadata.PipelineStageBottomOfPipe, rel)

		bb.SrcAccess = metadata.AccessNone
		bb.SrcQueue, bb.DstQueue = cur.Queue, req.queue
		acquire.addBuffer(metadata.PipelineStageTopOfPipe, req.stage, bb)
	} else {
		acquire.addBuffer(cur.Stage, req.stage, bb)
	}

	b.state = BufferState{Access: req.access, Queue: req.queue, Stage: req.stage}
	return true
}

// passBarriers synthesizes the transitions every attachment of p needs.
// PassThrough attachments are skipped.
func (g *RenderGraph) passBarriers(p Pass, acquire, release *barrierBatch) {
	b := p.base()
	stage := p.Stage()

	for _, att := range b.textureInputs {
		if att.Usage == AttachmentUsagePassThrough {
			continue
		}
		transitionTexture(&g.textures[att.Texture.Texture.index()], textureRequirement{
			layout: inputLayout(att.Usage),
			access: inputAccess(att.Usage),
			queue:  b.queue,
			stage:  stage,
			pass:   p,
		}, acquire, release)
	}
	for _, att := range b.textureOutputs {
		if att.Usage == AttachmentUsagePassThrough {
			continue
		}
		outStage := stage
		if att.Usage == AttachmentUsageGraphics {
			outStage |= metadata.PipelineStageColorAttachmentOutput
		}
		transitionTexture(&g.textures[att.Texture.Texture.index()], textureRequirement{
			layout: outputLayout(att.Usage),
			access: outputAccess(att.Usage),
			queue:  b.queue,
			stage:  outStage,
			pass:   p,
			write:  true,
		}, acquire, release)
	}
	if rp, ok := p.(*RenderPass); ok && rp.depthStencil != nil && rp.depthStencil.Usage != AttachmentUsagePassThrough {
		att := rp.depthStencil
		transitionTexture(&g.textures[att.Texture.Texture.index()], textureRequirement{
			layout: metadata.ResourceLayoutDepthStencilAttachment,
			access: depthAccess(att.Access),
			queue:  b.queue,
			stage:  stage | metadata.PipelineStageEarlyFragmentTests | metadata.PipelineStageLateFragmentTests,
			pass:   p,
			write:  att.Access != AttachmentAccessRead,
		}, acquire, release)
	}
	for _, att := range b.bufferInputs {
		if att.Usage == AttachmentUsagePassThrough {
			continue
		}
		transitionBuffer(&g.buffers[att.Buffer.Buffer.index()], bufferRequirement{
			access: bufferInputAccess(att.Usage),
			queue:  b.queue,
			stage:  stage,
			pass:   p,
		}, acquire, release)
	}
	for _, att := range b.bufferOutputs {
		if att.Usage == AttachmentUsagePassThrough {
			continue
		}
		transitionBuffer(&g.buffers[att.Buffer.Buffer.index()], bufferRequirement{
			access: bufferOutputAccess(att.Usage),
			queue:  b.queue,
			stage:  stage,
			pass:   p,
			write:  true,
		}, acquire, release)
	}
}
