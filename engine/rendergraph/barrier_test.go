package rendergraph

import (
	"testing"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/spaghettifunk/framegraph/engine/renderer/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionToCurrentStateEmitsNothing(t *testing.T) {
	states := []TextureState{
		{Layout: metadata.ResourceLayoutShaderReadOnly, Access: metadata.AccessShaderRead, Queue: metadata.QueueFamilyGraphics},
		{Layout: metadata.ResourceLayoutGeneral, Access: metadata.AccessShaderRead | metadata.AccessShaderWrite, Queue: metadata.QueueFamilyCompute},
		{Layout: metadata.ResourceLayoutDepthStencilAttachment, Access: metadata.AccessDepthStencilWrite, Queue: metadata.QueueFamilyGraphics},
		{Layout: metadata.ResourceLayoutUndefined, Access: metadata.AccessNone, Queue: metadata.QueueFamilyGraphics},
	}
	for _, st := range states {
		tex := &TextureResource{texture: recorder.NewTexture("t", metadata.FormatRGBA8Unorm, 1, 1), state: st}
		acquire, release := newBarrierBatch(), newBarrierBatch()
		emitted := transitionTexture(tex, textureRequirement{layout: st.Layout, access: st.Access, queue: st.Queue, stage: metadata.PipelineStageFragmentShader}, acquire, release)
		assert.False(t, emitted)
		assert.Zero(t, acquire.len())
		assert.Zero(t, release.len())
		assert.Equal(t, st.Layout, tex.state.Layout)
	}

	buf := &BufferResource{buffer: recorder.NewBuffer("b", 16), state: BufferState{Access: metadata.AccessShaderRead, Queue: metadata.QueueFamilyCompute}}
	acquire, release := newBarrierBatch(), newBarrierBatch()
	assert.False(t, transitionBuffer(buf, bufferRequirement{access: metadata.AccessShaderRead, queue: metadata.QueueFamilyCompute, stage: metadata.PipelineStageComputeShader}, acquire, release))
	assert.Zero(t, acquire.len()+release.len())
	assert.Equal(t, metadata.PipelineStageComputeShader, buf.state.Stage)
}

func TestGraphicsWriteThenShaderRead(t *testing.T) {
	g, dev := newTestGraph(t, true)
	texY := newTexture(t, g, "texture-y", TextureDesc{})

	a := g.AddPass(metadata.PipelineStageAllGraphics, "a")
	a.AddColorOutput(colorOut(texY))
	b := g.AddPass(metadata.PipelineStageAllGraphics, "b")
	b.AddColorInput(colorIn(texY))

	runFrame(t, g)

	subs := submitted(dev, metadata.QueueFamilyGraphics)
	require.Len(t, subs, 1)
	cmds := subs[0].Commands
	end := -1
	for i, c := range cmds {
		if c.Op == recorder.OpEndRendering {
			end = i
		}
	}
	require.GreaterOrEqual(t, end, 0)

	between := barriers(cmds[end+1:])
	require.Len(t, between, 1)
	require.Len(t, between[0].Textures, 1)
	assert.Empty(t, between[0].Buffers)
	tb := between[0].Textures[0]
	assert.Equal(t, "texture-y", tb.Texture.Name())
	assert.Equal(t, metadata.ResourceLayoutColorAttachment, tb.OldLayout)
	assert.Equal(t, metadata.ResourceLayoutShaderReadOnly, tb.NewLayout)
	assert.Equal(t, metadata.AccessColorAttachmentWrite, tb.SrcAccess)
	assert.Equal(t, metadata.AccessShaderRead, tb.DstAccess)
	assert.Equal(t, metadata.QueueFamilyIgnored, tb.SrcQueue)
	assert.Equal(t, metadata.QueueFamilyIgnored, tb.DstQueue)
	assert.Equal(t, metadata.PipelineStageAllGraphics|metadata.PipelineStageColorAttachmentOutput, between[0].Src)
	assert.Equal(t, metadata.PipelineStageAllGraphics, between[0].Dst)
}

func TestOwnershipTransferIsPaired(t *testing.T) {
	g, dev := newTestGraph(t, true)
	bufX := newBuffer(t, g, "buffer-x", BufferDesc{Queue: metadata.QueueFamilyCompute})
	light := newTexture(t, g, "light-grid", TextureDesc{Queue: metadata.QueueFamilyCompute})

	a := g.AddComputePass("a")
	a.AddBufferOutput(bufOut(bufX, AttachmentUsageCompute))
	a.AddTextureOutput(TextureAttachment{Texture: light.Initial(), Usage: AttachmentUsageCompute, Access: AttachmentAccessWrite})
	b := g.AddPass(metadata.PipelineStageFragmentShader, "b")
	b.AddBufferInput(bufIn(bufX, AttachmentUsageGraphics))
	b.AddColorInput(colorIn(light))

	runFrame(t, g)
	assert.Equal(t, 2, g.Stats().Releases)

	releases := map[string]int{}
	acquires := map[string]int{}
	for _, e := range dev.Events() {
		for _, c := range barriers(e.Commands) {
			for _, tb := range c.Textures {
				if !tb.IsOwnershipTransfer() {
					continue
				}
				assert.Equal(t, metadata.QueueFamilyCompute, tb.SrcQueue)
				assert.Equal(t, metadata.QueueFamilyGraphics, tb.DstQueue)
				if e.Queue == tb.SrcQueue {
					assert.Equal(t, metadata.AccessNone, tb.DstAccess)
					assert.Equal(t, metadata.PipelineStageBottomOfPipe, c.Dst)
					releases[tb.Texture.Name()]++
				} else {
					assert.Equal(t, metadata.AccessNone, tb.SrcAccess)
					assert.Equal(t, metadata.AccessShaderRead, tb.DstAccess)
					assert.Equal(t, metadata.ResourceLayoutShaderReadOnly, tb.NewLayout)
					acquires[tb.Texture.Name()]++
				}
			}
			for _, bb := range c.Buffers {
				if !bb.IsOwnershipTransfer() {
					continue
				}
				if e.Queue == bb.SrcQueue {
					assert.Equal(t, metadata.AccessNone, bb.DstAccess)
					releases[bb.Buffer.Name()]++
				} else {
					assert.Equal(t, metadata.QueueFamilyGraphics, e.Queue)
					assert.Equal(t, metadata.AccessNone, bb.SrcAccess)
					assert.Equal(t, metadata.AccessShaderRead, bb.DstAccess)
					acquires[bb.Buffer.Name()]++
				}
			}
		}
	}
	assert.Equal(t, map[string]int{"buffer-x": 1, "light-grid": 1}, releases)
	assert.Equal(t, releases, acquires)
}

func TestUndefinedTextureChangesQueueWithoutTransfer(t *testing.T) {
	g, dev := newTestGraph(t, true)
	tex := newTexture(t, g, "scratch", TextureDesc{})
	p := g.AddComputePass("fill")
	p.AddTextureOutput(TextureAttachment{Texture: tex.Initial(), Usage: AttachmentUsageCompute, Access: AttachmentAccessWrite})

	runFrame(t, g)

	assert.Equal(t, 0, g.Stats().Releases)
	subs := submitted(dev, metadata.QueueFamilyCompute)
	require.Len(t, subs, 1)
	bs := barriers(subs[0].Commands)
	require.Len(t, bs, 1)
	tb := bs[0].Textures[0]
	assert.False(t, tb.IsOwnershipTransfer())
	assert.Equal(t, metadata.ResourceLayoutGeneral, tb.NewLayout)

	st, err := g.TextureState(tex)
	require.NoError(t, err)
	assert.Equal(t, metadata.QueueFamilyCompute, st.Queue)
}

func TestDepthOutputForcesAttachmentLayout(t *testing.T) {
	g, _ := newTestGraph(t, true)
	depth := newDepth(t, g, "depth")
	prepass := g.AddPass(metadata.PipelineStageAllGraphics, "z-prepass")
	prepass.SetDepthStencilOutput(TextureAttachment{Texture: depth.Initial(), Usage: AttachmentUsageCompute, Access: AttachmentAccessWrite})
	shading := g.AddPass(metadata.PipelineStageAllGraphics, "shading")
	shading.SetDepthStencilOutput(TextureAttachment{Texture: depth.Initial(), Usage: AttachmentUsageGraphics, Access: AttachmentAccessRead})

	require.NoError(t, g.Compile())
	requireTopological(t, g)
	require.NoError(t, g.Execute())

	st, err := g.TextureState(depth)
	require.NoError(t, err)
	assert.Equal(t, metadata.ResourceLayoutDepthStencilAttachment, st.Layout)
	assert.Equal(t, metadata.AccessDepthStencilRead, st.Access)
	require.NoError(t, g.Submit())
	assert.Equal(t, 2, g.Stats().Barriers)
}

func TestPassThroughEmitsNoBarrier(t *testing.T) {
	g, _ := newTestGraph(t, true)
	tex := newTexture(t, g, "history", TextureDesc{Layout: metadata.ResourceLayoutGeneral})
	p := g.AddPass(metadata.PipelineStageAllGraphics, "forward")
	p.AddColorInput(TextureAttachment{Texture: tex.Initial(), Usage: AttachmentUsagePassThrough})

	runFrame(t, g)
	assert.Equal(t, 0, g.Stats().Barriers)
	st, err := g.TextureState(tex)
	require.NoError(t, err)
	assert.Equal(t, metadata.ResourceLayoutGeneral, st.Layout)
}

func TestBarriersGroupedByStage(t *testing.T) {
	g, dev := newTestGraph(t, true)
	t1 := newTexture(t, g, "albedo", TextureDesc{})
	t2 := newTexture(t, g, "normal", TextureDesc{})

	w := g.AddPass(metadata.PipelineStageAllGraphics, "gbuffer")
	w.AddColorOutput(colorOut(t1))
	w.AddColorOutput(colorOut(t2))
	r := g.AddPass(metadata.PipelineStageFragmentShader, "lighting")
	r.AddColorInput(colorIn(t1))
	r.AddColorInput(colorIn(t2))

	runFrame(t, g)

	subs := submitted(dev, metadata.QueueFamilyGraphics)
	require.Len(t, subs, 1)
	bs := barriers(subs[0].Commands)
	require.Len(t, bs, 2)
	for _, b := range bs {
		assert.Len(t, b.Textures, 2)
	}
	assert.Equal(t, metadata.PipelineStageTopOfPipe, bs[0].Src)
	assert.Equal(t, metadata.PipelineStageFragmentShader, bs[1].Dst)
}

func TestSetTextureStateOverridesTracking(t *testing.T) {
	g, _ := newTestGraph(t, true)
	tex := newTexture(t, g, "swapchain", TextureDesc{})
	require.NoError(t, g.SetTextureState(tex, metadata.ResourceLayoutPresent, metadata.AccessNone, metadata.QueueFamilyGraphics))

	st, err := g.TextureState(tex)
	require.NoError(t, err)
	assert.Equal(t, metadata.ResourceLayoutPresent, st.Layout)
	assert.Equal(t, metadata.PipelineStageAllCommands, st.Stage)

	buf := newBuffer(t, g, "readback", BufferDesc{})
	require.NoError(t, g.SetBufferState(buf, metadata.AccessTransferWrite, metadata.QueueFamilyCompute))
	bst, err := g.BufferState(buf)
	require.NoError(t, err)
	assert.Equal(t, metadata.QueueFamilyCompute, bst.Queue)
}

func TestSameQueueComputeChainSynchronizes(t *testing.T) {
	g, dev := newTestGraph(t, true)
	clusters := newBuffer(t, g, "clusters", BufferDesc{Queue: metadata.QueueFamilyCompute})
	active := newBuffer(t, g, "active-clusters", BufferDesc{Queue: metadata.QueueFamilyCompute})

	build := g.AddComputePass("build-clusters")
	build.AddBufferOutput(bufOut(clusters, AttachmentUsageCompute))
	filter := g.AddComputePass("filter-clusters")
	filter.AddBufferInput(bufIn(clusters, AttachmentUsageCompute))
	filter.AddBufferOutput(bufOut(active, AttachmentUsageCompute))

	runFrame(t, g)

	subs := submitted(dev, metadata.QueueFamilyCompute)
	require.Len(t, subs, 1)
	var hits []metadata.BufferBarrier
	for _, b := range barriers(subs[0].Commands) {
		for _, bb := range b.Buffers {
			if bb.Buffer.Name() == "clusters" {
				hits = append(hits, bb)
			}
		}
	}
	// first use on the queue, then the write-to-read dependency
	require.Len(t, hits, 2)
	rw := metadata.AccessShaderRead | metadata.AccessShaderWrite
	assert.Equal(t, rw, hits[1].SrcAccess)
	assert.Equal(t, rw, hits[1].DstAccess)
	assert.False(t, hits[1].IsOwnershipTransfer())
}

func TestHazardBarrierOnMatchingState(t *testing.T) {
	writer := &ComputePass{}
	reader := &ComputePass{}
	rw := metadata.AccessShaderRead | metadata.AccessShaderWrite
	req := func(p Pass, write bool) bufferRequirement {
		return bufferRequirement{access: rw, queue: metadata.QueueFamilyCompute, stage: metadata.PipelineStageComputeShader, pass: p, write: write}
	}

	tests := []struct {
		name  string
		steps []bufferRequirement
		want  []bool
	}{
		{"read after write", []bufferRequirement{req(writer, true), req(reader, false)}, []bool{false, true}},
		{"write after write", []bufferRequirement{req(writer, true), req(reader, true)}, []bool{false, true}},
		{"write after read", []bufferRequirement{req(reader, false), req(writer, true)}, []bool{false, true}},
		{"read after read", []bufferRequirement{req(reader, false), req(writer, false)}, []bool{false, false}},
		{"same pass", []bufferRequirement{req(writer, false), req(writer, true)}, []bool{false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &BufferResource{buffer: recorder.NewBuffer("b", 16), state: BufferState{Access: rw, Queue: metadata.QueueFamilyCompute}}
			for i, step := range tt.steps {
				acquire, release := newBarrierBatch(), newBarrierBatch()
				assert.Equal(t, tt.want[i], transitionBuffer(buf, step, acquire, release), "step %d", i)
				assert.Zero(t, release.len())
			}
		})
	}
}
