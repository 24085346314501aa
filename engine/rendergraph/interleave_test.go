package rendergraph

import (
	"testing"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/spaghettifunk/framegraph/engine/renderer/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildCrossQueue is a compute producer feeding a graphics consumer that
// reads the buffer with the given usage.
func buildCrossQueue(t *testing.T, g *RenderGraph, usage AttachmentUsage) {
	t.Helper()
	buf := newBuffer(t, g, "clusters", BufferDesc{Queue: metadata.QueueFamilyCompute})
	tex := newTexture(t, g, "scene", TextureDesc{})

	a := g.AddComputePass("build-clusters")
	a.AddBufferOutput(bufOut(buf, AttachmentUsageCompute))
	b := g.AddPass(metadata.PipelineStageAllGraphics, "shade")
	b.AddBufferInput(bufIn(buf, usage))
	b.AddColorOutput(colorOut(tex))
}

func TestInterleaveOrderPrefersLowerFence(t *testing.T) {
	scheds := [metadata.QueueFamilyCount]Schedule{
		{Queue: metadata.QueueFamilyGraphics, Levels: []Level{
			{Fence: 0, WaitLevel: -1},
			{Fence: 2, WaitLevel: 0, Action: PassActionWait},
		}},
		{Queue: metadata.QueueFamilyCompute, Levels: []Level{
			{Fence: 0, WaitLevel: -1, Action: PassActionSignal},
			{Fence: 1, WaitLevel: -1},
		}},
	}
	order, err := interleave(&scheds)
	require.NoError(t, err)
	assert.Equal(t, []LevelRef{
		{Queue: metadata.QueueFamilyGraphics, Level: 0},
		{Queue: metadata.QueueFamilyCompute, Level: 0},
		{Queue: metadata.QueueFamilyCompute, Level: 1},
		{Queue: metadata.QueueFamilyGraphics, Level: 1},
	}, order)
}

func TestInterleaveReportsStall(t *testing.T) {
	scheds := [metadata.QueueFamilyCount]Schedule{
		{Levels: []Level{{WaitLevel: 0, Action: PassActionWait}}},
		{Levels: []Level{{WaitLevel: 0, Action: PassActionWait}}},
	}
	_, err := interleave(&scheds)
	assert.ErrorIs(t, err, ErrCycleDetected)
}

func TestCrossQueueFenceTraffic(t *testing.T) {
	g, dev := newTestGraph(t, true)
	buildCrossQueue(t, g, AttachmentUsageGraphics)

	runFrame(t, g)

	events := dev.Events()
	require.Len(t, events, 6)
	assert.Equal(t, recorder.EventSubmit, events[0].Kind)
	assert.Equal(t, metadata.QueueFamilyCompute, events[0].Queue)
	assert.Equal(t, "test compute list 0", events[0].List)

	assert.Equal(t, recorder.EventSignal, events[1].Kind)
	assert.Equal(t, uint64(1), events[1].Value)
	computeFence := events[1].Fence

	assert.Equal(t, recorder.EventWait, events[2].Kind)
	assert.Equal(t, metadata.QueueFamilyGraphics, events[2].Queue)
	assert.Equal(t, computeFence, events[2].Fence)
	assert.Equal(t, uint64(1), events[2].Value)
	assert.True(t, events[2].Satisfied)

	assert.Equal(t, recorder.EventSubmit, events[3].Kind)
	assert.Equal(t, "test graphics list 0", events[3].List)

	// frame pacing on both queues
	assert.Equal(t, recorder.EventSignal, events[4].Kind)
	assert.Equal(t, metadata.QueueFamilyGraphics, events[4].Queue)
	assert.Equal(t, recorder.EventSignal, events[5].Kind)
	assert.Equal(t, uint64(2), events[5].Value)

	stats := g.Stats()
	assert.Equal(t, core.FrameCounters{Levels: 2, Barriers: 3, Releases: 1, Signals: 1, Waits: 1, Submissions: 2}, stats)
}

func TestOwnershipPingPongsEveryFrame(t *testing.T) {
	g, dev := newTestGraph(t, true)
	buildCrossQueue(t, g, AttachmentUsageGraphics)
	runFrame(t, g)
	dev.ResetEvents()

	runFrame(t, g)

	// the buffer comes back from graphics before compute writes it again
	stats := g.Stats()
	assert.Equal(t, 2, stats.Releases)
	assert.Equal(t, 2, stats.Waits)
	assert.Equal(t, 3, stats.Submissions)
	assert.Equal(t, "test graphics prologue", dev.Events()[0].List)
	assert.Equal(t, 2, stats.Signals)
	assert.Equal(t, uint64(4), g.FenceValue(metadata.QueueFamilyCompute))
	assert.Equal(t, uint64(3), g.FenceValue(metadata.QueueFamilyGraphics))
}

func TestFenceValuesAdvanceAcrossFrames(t *testing.T) {
	g, dev := newTestGraph(t, true)
	buildCrossQueue(t, g, AttachmentUsagePassThrough)

	for i := 0; i < 4; i++ {
		runFrame(t, g)
	}
	assert.Equal(t, uint64(4), g.FrameIndex())
	assert.Equal(t, uint64(8), g.FenceValue(metadata.QueueFamilyCompute))
	assert.Equal(t, uint64(4), g.FenceValue(metadata.QueueFamilyGraphics))

	last := map[int]uint64{}
	for _, e := range dev.Events() {
		switch e.Kind {
		case recorder.EventSignal:
			assert.Greater(t, e.Value, last[e.Fence])
			last[e.Fence] = e.Value
		case recorder.EventWait:
			assert.True(t, e.Satisfied)
		}
	}

	// the pass-through read never moves the buffer to graphics
	assert.Equal(t, 0, g.Stats().Releases)
	assert.Equal(t, 1, g.Stats().Waits)
}

func TestCommandListsBelongToFrameSlots(t *testing.T) {
	g, dev := newTestGraph(t, true)
	buildCrossQueue(t, g, AttachmentUsagePassThrough)
	for i := 0; i < 4; i++ {
		runFrame(t, g)
	}

	lists := dev.Lists()
	require.Len(t, lists, 4)
	slots := map[int]int{}
	for _, cl := range lists {
		assert.Equal(t, 2, cl.Begins())
		slots[cl.FrameSlot()]++
	}
	assert.Equal(t, map[int]int{0: 2, 1: 2}, slots)
}

func TestPrologueCarriesReleaseForIdleQueue(t *testing.T) {
	g, dev := newTestGraph(t, true)
	buf := newBuffer(t, g, "particles", BufferDesc{Queue: metadata.QueueFamilyGraphics, Access: metadata.AccessShaderWrite})
	p := g.AddComputePass("simulate")
	p.AddBufferInput(bufIn(buf, AttachmentUsageCompute))

	runFrame(t, g)

	events := dev.Events()
	require.Len(t, events, 6)
	assert.Equal(t, "test graphics prologue", events[0].List)
	assert.Equal(t, metadata.QueueFamilyGraphics, events[0].Queue)
	require.Len(t, barriers(events[0].Commands), 1)
	release := barriers(events[0].Commands)[0].Buffers[0]
	assert.Equal(t, metadata.QueueFamilyGraphics, release.SrcQueue)
	assert.Equal(t, metadata.QueueFamilyCompute, release.DstQueue)

	assert.Equal(t, recorder.EventSignal, events[1].Kind)
	assert.Equal(t, recorder.EventWait, events[2].Kind)
	assert.Equal(t, metadata.QueueFamilyCompute, events[2].Queue)
	assert.Equal(t, events[1].Value, events[2].Value)
	assert.Equal(t, "test compute list 0", events[3].List)

	dev.ResetEvents()
	runFrame(t, g)
	assert.Equal(t, 0, g.Stats().Releases)
	assert.Equal(t, 0, countKind(dev.Events(), recorder.EventWait))
}

func TestExecuteSubmitProtocol(t *testing.T) {
	g, _ := newTestGraph(t, true)
	buildCrossQueue(t, g, AttachmentUsagePassThrough)

	assert.ErrorIs(t, g.Submit(), ErrNotRecorded)
	require.NoError(t, g.Execute())
	assert.ErrorIs(t, g.Execute(), ErrAlreadyRecorded)
	assert.ErrorIs(t, g.SetAsyncCompute(false), ErrAlreadyRecorded)
	require.NoError(t, g.Submit())
}

func TestDeviceFailurePropagates(t *testing.T) {
	g, dev := newTestGraph(t, true)
	buildCrossQueue(t, g, AttachmentUsagePassThrough)
	dev.FailNextSubmit(core.ErrDeviceLost)

	require.NoError(t, g.Execute())
	err := g.Submit()
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Contains(t, err.Error(), "test compute list 0")
	assert.Equal(t, uint64(0), g.FrameIndex())
}

func TestWaitIdleDrainsFramesInFlight(t *testing.T) {
	g, _ := newTestGraph(t, true)
	buildCrossQueue(t, g, AttachmentUsagePassThrough)
	runFrame(t, g)
	runFrame(t, g)
	assert.Equal(t, 2, g.pacer.inFlightFrames())

	require.NoError(t, g.WaitIdle())
	assert.Equal(t, 0, g.pacer.inFlightFrames())
}
