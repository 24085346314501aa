package rendergraph

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/spaghettifunk/framegraph/engine/renderer/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndependentPassesShareLevelZero(t *testing.T) {
	g, _ := newTestGraph(t, true)
	var passes []*RenderPass
	for _, name := range []string{"a", "b", "c"} {
		p := g.AddPass(metadata.PipelineStageAllGraphics, name)
		p.AddColorOutput(colorOut(newTexture(t, g, name+"-target", TextureDesc{})))
		passes = append(passes, p)
	}

	require.NoError(t, g.Compile())

	s := g.Schedule(metadata.QueueFamilyGraphics)
	require.Len(t, s.Levels, 1)
	assert.Equal(t, 0, s.Levels[0].Start)
	assert.Equal(t, 3, s.Levels[0].End)
	assert.Equal(t, PassActionNone, s.Levels[0].Action)
	for i, p := range passes {
		assert.Same(t, p, s.Passes[i].Pass)
		assert.Equal(t, uint64(0), s.Passes[i].Fence)
	}
	assert.Empty(t, g.Schedule(metadata.QueueFamilyCompute).Levels)
}

func TestPassWithoutAttachmentsIsImmediatelyReady(t *testing.T) {
	g, _ := newTestGraph(t, true)
	target := newTexture(t, g, "target", TextureDesc{})
	v1, err := g.MakeUniqueTextureInstance(target)
	require.NoError(t, err)

	first := g.AddPass(metadata.PipelineStageAllGraphics, "first")
	first.AddColorOutput(TextureAttachment{Texture: v1, Usage: AttachmentUsageGraphics, Access: AttachmentAccessWrite})
	second := g.AddPass(metadata.PipelineStageAllGraphics, "second")
	second.AddColorInput(TextureAttachment{Texture: v1, Usage: AttachmentUsageGraphics, Access: AttachmentAccessRead})
	lone := g.AddComputePass("lone")

	require.NoError(t, g.Compile())
	s := g.Schedule(metadata.QueueFamilyCompute)
	require.Len(t, s.Levels, 1)
	assert.Same(t, lone, s.Passes[0].Pass)
	assert.Equal(t, uint64(0), lone.Fence())
}

func TestComputeProducerGraphicsConsumer(t *testing.T) {
	g, _ := newTestGraph(t, true)
	bufX := newBuffer(t, g, "buffer-x", BufferDesc{Queue: metadata.QueueFamilyCompute})

	a := g.AddComputePass("a")
	a.AddBufferOutput(bufOut(bufX, AttachmentUsageCompute))
	b := g.AddPass(metadata.PipelineStageAllGraphics, "b")
	b.AddBufferInput(bufIn(bufX, AttachmentUsageGraphics))

	require.NoError(t, g.Compile())

	assert.Equal(t, uint64(0), a.Fence())
	assert.Equal(t, uint64(1), b.Fence())
	assert.True(t, a.Signals())
	assert.Equal(t, metadata.QueueFamilyCompute, a.Queue())

	cs := g.Schedule(metadata.QueueFamilyCompute)
	require.Len(t, cs.Levels, 1)
	assert.True(t, cs.Levels[0].Action.Has(PassActionSignal))

	gs := g.Schedule(metadata.QueueFamilyGraphics)
	require.Len(t, gs.Levels, 1)
	assert.True(t, gs.Levels[0].Action.Has(PassActionWait))
	assert.Equal(t, 0, gs.Levels[0].WaitLevel)
	assert.Equal(t, uint64(1), gs.Levels[0].Fence)

	assert.Equal(t, []LevelRef{
		{Queue: metadata.QueueFamilyCompute, Level: 0},
		{Queue: metadata.QueueFamilyGraphics, Level: 0},
	}, g.SubmissionOrder())

	before, err := g.BufferState(bufX)
	require.NoError(t, err)
	assert.Equal(t, metadata.QueueFamilyCompute, before.Queue)

	runFrame(t, g)

	after, err := g.BufferState(bufX)
	require.NoError(t, err)
	assert.Equal(t, metadata.QueueFamilyGraphics, after.Queue)
}

func TestSignalSplitsLevel(t *testing.T) {
	g, _ := newTestGraph(t, true)
	shared := newBuffer(t, g, "shared", BufferDesc{Queue: metadata.QueueFamilyCompute})
	private := newBuffer(t, g, "private", BufferDesc{Queue: metadata.QueueFamilyCompute})

	producer := g.AddComputePass("producer")
	producer.AddBufferOutput(bufOut(shared, AttachmentUsageCompute))
	other := g.AddComputePass("other")
	other.AddBufferOutput(bufOut(private, AttachmentUsageCompute))
	consumer := g.AddPass(metadata.PipelineStageAllGraphics, "consumer")
	consumer.AddBufferInput(bufIn(shared, AttachmentUsageGraphics))

	require.NoError(t, g.Compile())

	cs := g.Schedule(metadata.QueueFamilyCompute)
	require.Len(t, cs.Levels, 2)
	assert.Equal(t, Level{Start: 0, End: 1, Action: PassActionSignal, WaitLevel: -1}, stripIteration(cs.Levels[0]))
	assert.Equal(t, Level{Start: 1, End: 2, Action: PassActionNone, WaitLevel: -1}, stripIteration(cs.Levels[1]))
	assert.True(t, producer.Signals())
	assert.False(t, other.Signals())

	gs := g.Schedule(metadata.QueueFamilyGraphics)
	require.Len(t, gs.Levels, 1)
	assert.Equal(t, 0, gs.Levels[0].WaitLevel)
}

func stripIteration(l Level) Level {
	l.iteration = 0
	return l
}

func TestTopologicalValidity(t *testing.T) {
	for _, async := range []bool{true, false} {
		g, _ := newTestGraph(t, async)
		b1 := newBuffer(t, g, "b1", BufferDesc{})
		b2 := newBuffer(t, g, "b2", BufferDesc{})
		t1 := newTexture(t, g, "t1", TextureDesc{})
		t2 := newTexture(t, g, "t2", TextureDesc{})
		t3 := newTexture(t, g, "t3", TextureDesc{})

		// declared out of dependency order on purpose
		g2 := g.AddPass(metadata.PipelineStageAllGraphics, "g2")
		g2.AddBufferInput(bufIn(b1, AttachmentUsageGraphics))
		g2.AddBufferInput(bufIn(b2, AttachmentUsageGraphics))
		g2.AddColorOutput(colorOut(t2))
		c2 := g.AddComputePass("c2")
		c2.AddTextureInput(TextureAttachment{Texture: t1.Initial(), Usage: AttachmentUsageCompute, Access: AttachmentAccessRead})
		c2.AddBufferOutput(bufOut(b2, AttachmentUsageCompute))
		g1 := g.AddPass(metadata.PipelineStageAllGraphics, "g1")
		g1.AddBufferInput(bufIn(b1, AttachmentUsageGraphics))
		g1.AddColorOutput(colorOut(t1))
		c1 := g.AddComputePass("c1")
		c1.AddBufferOutput(bufOut(b1, AttachmentUsageCompute))
		g0 := g.AddPass(metadata.PipelineStageAllGraphics, "g0")
		g0.AddColorOutput(colorOut(t3))

		require.NoError(t, g.Compile())
		requireTopological(t, g)
		assert.Len(t, positions(g), 5)
		runFrame(t, g)
	}
}

func TestCompileIsIdempotent(t *testing.T) {
	g, _ := newTestGraph(t, true)
	buf := newBuffer(t, g, "lights", BufferDesc{Queue: metadata.QueueFamilyCompute})
	tex := newTexture(t, g, "scene", TextureDesc{})

	cull := g.AddComputePass("cull")
	cull.AddBufferOutput(bufOut(buf, AttachmentUsageCompute))
	shade := g.AddPass(metadata.PipelineStageAllGraphics, "shade")
	shade.AddBufferInput(bufIn(buf, AttachmentUsageGraphics))
	shade.AddColorOutput(colorOut(tex))

	require.NoError(t, g.Compile())
	assert.False(t, g.Dirty())
	gfx, cmp, order := g.Schedule(metadata.QueueFamilyGraphics), g.Schedule(metadata.QueueFamilyCompute), g.SubmissionOrder()
	fences := []uint64{cull.Fence(), shade.Fence()}

	// unchanged: no-op
	require.NoError(t, g.Compile())

	g.dirty = true
	require.NoError(t, g.Compile())
	assert.Equal(t, gfx, g.Schedule(metadata.QueueFamilyGraphics))
	assert.Equal(t, cmp, g.Schedule(metadata.QueueFamilyCompute))
	assert.Equal(t, order, g.SubmissionOrder())
	assert.Equal(t, fences, []uint64{cull.Fence(), shade.Fence()})
}

func TestCycleDetected(t *testing.T) {
	g, _ := newTestGraph(t, true)
	x := newTexture(t, g, "x", TextureDesc{})
	y := newTexture(t, g, "y", TextureDesc{})
	x1, err := g.MakeUniqueTextureInstance(x)
	require.NoError(t, err)
	y1, err := g.MakeUniqueTextureInstance(y)
	require.NoError(t, err)

	a := g.AddPass(metadata.PipelineStageAllGraphics, "a")
	a.AddColorInput(TextureAttachment{Texture: x1, Usage: AttachmentUsageGraphics})
	a.AddColorOutput(TextureAttachment{Texture: y1, Usage: AttachmentUsageGraphics, Access: AttachmentAccessWrite})
	b := g.AddPass(metadata.PipelineStageAllGraphics, "b")
	b.AddColorInput(TextureAttachment{Texture: y1, Usage: AttachmentUsageGraphics})
	b.AddColorOutput(TextureAttachment{Texture: x1, Usage: AttachmentUsageGraphics, Access: AttachmentAccessWrite})

	err = g.Compile()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycleDetected))

	var ge *GraphError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "a", ge.Pass)
	assert.Contains(t, ge.Detail, "b")
	assert.True(t, g.Dirty())
}

func TestDanglingDependency(t *testing.T) {
	g, _ := newTestGraph(t, true)
	x := newTexture(t, g, "history", TextureDesc{})
	x1, err := g.MakeUniqueTextureInstance(x)
	require.NoError(t, err)

	p := g.AddPass(metadata.PipelineStageAllGraphics, "resolve")
	p.AddColorInput(TextureAttachment{Texture: x1, Usage: AttachmentUsageGraphics})

	err = g.Compile()
	assert.ErrorIs(t, err, ErrDanglingDependency)
	var ge *GraphError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "resolve", ge.Pass)
	assert.Equal(t, "history", ge.Resource)
}

func TestExternalInitialVersionIsReady(t *testing.T) {
	g, _ := newTestGraph(t, true)
	envMap := newTexture(t, g, "environment", TextureDesc{Layout: metadata.ResourceLayoutShaderReadOnly, Access: metadata.AccessShaderRead})
	p := g.AddPass(metadata.PipelineStageAllGraphics, "sky")
	p.AddColorInput(colorIn(envMap))

	require.NoError(t, g.Compile())
	runFrame(t, g)
	assert.Equal(t, 0, g.Stats().Barriers)
}

func TestUnboundPipeline(t *testing.T) {
	g, _ := newTestGraph(t, true)
	p := g.AddComputePass("cull")
	p.SetRecordFunc(func(cl metadata.CommandList) error { return nil })

	assert.ErrorIs(t, g.Compile(), ErrUnboundPipeline)

	p.UseCustomPipeline()
	assert.NoError(t, g.Compile())
}

func TestInvalidHandles(t *testing.T) {
	t.Run("zero handle", func(t *testing.T) {
		g, _ := newTestGraph(t, true)
		p := g.AddPass(metadata.PipelineStageAllGraphics, "p")
		p.AddColorOutput(TextureAttachment{Usage: AttachmentUsageGraphics, Access: AttachmentAccessWrite})
		err := g.Compile()
		assert.ErrorIs(t, err, ErrInvalidHandle)
		var ge *GraphError
		require.ErrorAs(t, err, &ge)
		assert.Equal(t, "p", ge.Pass)
	})
	t.Run("version never made", func(t *testing.T) {
		g, _ := newTestGraph(t, true)
		buf := newBuffer(t, g, "b", BufferDesc{})
		p := g.AddComputePass("p")
		p.AddBufferOutput(BufferAttachment{Buffer: BufferInstance{Buffer: buf, Version: 3}, Usage: AttachmentUsageCompute, Access: AttachmentAccessWrite})
		assert.ErrorIs(t, g.Compile(), ErrInvalidHandle)
	})
	t.Run("state of unknown handle", func(t *testing.T) {
		g, _ := newTestGraph(t, true)
		_, err := g.TextureState(TextureHandle{id: 7})
		assert.ErrorIs(t, err, ErrInvalidHandle)
		_, err = g.MakeUniqueBufferInstance(BufferHandle{})
		assert.ErrorIs(t, err, ErrInvalidHandle)
	})
}

func TestSingleQueueDegradation(t *testing.T) {
	g, dev := newTestGraph(t, false)
	assert.False(t, g.AsyncCompute())
	b1 := newBuffer(t, g, "b1", BufferDesc{Queue: metadata.QueueFamilyCompute})
	b2 := newBuffer(t, g, "b2", BufferDesc{})
	t1 := newTexture(t, g, "t1", TextureDesc{})

	c1 := g.AddComputePass("c1")
	c1.AddBufferOutput(bufOut(b1, AttachmentUsageCompute))
	g1 := g.AddPass(metadata.PipelineStageAllGraphics, "g1")
	g1.AddBufferInput(bufIn(b1, AttachmentUsageGraphics))
	g1.AddColorOutput(colorOut(t1))
	c2 := g.AddComputePass("c2")
	c2.AddTextureInput(TextureAttachment{Texture: t1.Initial(), Usage: AttachmentUsageCompute})
	c2.AddBufferOutput(bufOut(b2, AttachmentUsageCompute))
	g2 := g.AddPass(metadata.PipelineStageAllGraphics, "g2")
	g2.AddBufferInput(bufIn(b2, AttachmentUsageGraphics))

	require.NoError(t, g.Compile())

	s := g.Schedule(metadata.QueueFamilyGraphics)
	declared := []Pass{c1, g1, c2, g2}
	require.Len(t, s.Passes, len(declared))
	for i, p := range declared {
		assert.Same(t, p, s.Passes[i].Pass)
		assert.Equal(t, metadata.QueueFamilyGraphics, p.Queue())
		assert.Equal(t, uint64(0), p.Fence())
	}
	for _, lvl := range s.Levels {
		assert.Equal(t, PassActionNone, lvl.Action)
	}
	assert.Empty(t, g.Schedule(metadata.QueueFamilyCompute).Passes)

	for frame := 1; frame <= 3; frame++ {
		runFrame(t, g)
		assert.Equal(t, 0, g.Stats().Signals)
		assert.Equal(t, 0, g.Stats().Waits)
		assert.Equal(t, uint64(frame), g.FenceValue(metadata.QueueFamilyGraphics))
	}

	events := dev.Events()
	assert.Equal(t, 0, countKind(events, recorder.EventWait))
	assert.Equal(t, 3, countKind(events, recorder.EventSignal))
	for _, e := range events {
		assert.Equal(t, metadata.QueueFamilyGraphics, e.Queue)
	}
	for _, b := range []BufferHandle{b1, b2} {
		st, err := g.BufferState(b)
		require.NoError(t, err)
		assert.Equal(t, metadata.QueueFamilyGraphics, st.Queue)
	}
}

func TestSetAsyncComputeMovesComputePasses(t *testing.T) {
	g, _ := newTestGraph(t, true)
	buf := newBuffer(t, g, "b", BufferDesc{Queue: metadata.QueueFamilyCompute})
	c := g.AddComputePass("c")
	c.AddBufferOutput(bufOut(buf, AttachmentUsageCompute))
	require.NoError(t, g.Compile())
	assert.Equal(t, metadata.QueueFamilyCompute, c.Queue())
	runFrame(t, g)

	require.NoError(t, g.SetAsyncCompute(false))
	assert.True(t, g.Dirty())
	require.NoError(t, g.Compile())
	assert.Equal(t, metadata.QueueFamilyGraphics, c.Queue())

	st, err := g.BufferState(buf)
	require.NoError(t, err)
	assert.Equal(t, metadata.QueueFamilyGraphics, st.Queue)
	runFrame(t, g)
}

func TestResetPassesKeepsResources(t *testing.T) {
	g, _ := newTestGraph(t, true)
	tex := newTexture(t, g, "t", TextureDesc{})
	g.AddPass(metadata.PipelineStageAllGraphics, "p").AddColorOutput(colorOut(tex))
	runFrame(t, g)

	g.ResetPasses()
	assert.True(t, g.Dirty())
	assert.Empty(t, g.Passes())

	st, err := g.TextureState(tex)
	require.NoError(t, err)
	assert.Equal(t, metadata.ResourceLayoutColorAttachment, st.Layout)

	require.NoError(t, g.Compile())
	assert.Empty(t, g.SubmissionOrder())
}
