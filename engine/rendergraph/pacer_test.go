package rendergraph

import (
	"testing"
	"time"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/spaghettifunk/framegraph/engine/renderer/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSingleFrameGraph(t *testing.T) (*RenderGraph, *recorder.Device) {
	t.Helper()
	dev := recorder.New(false)
	g, err := New(dev, &Config{Name: "test", FramesInFlight: 1, FenceTimeout: time.Millisecond})
	require.NoError(t, err)
	tex := newTexture(t, g, "scene", TextureDesc{})
	p := g.AddPass(metadata.PipelineStageAllGraphics, "forward")
	p.AddColorOutput(colorOut(tex))
	return g, dev
}

func TestExecuteTimesOutOnHungFrame(t *testing.T) {
	g, dev := newSingleFrameGraph(t)
	dev.StallQueue(metadata.QueueFamilyGraphics)
	runFrame(t, g)

	err := g.Execute()
	assert.ErrorIs(t, err, core.ErrFenceTimeout)
	assert.Contains(t, err.Error(), "frame 0")
	assert.Equal(t, uint64(1), g.FrameIndex())
	assert.ErrorIs(t, g.Submit(), ErrNotRecorded)
}

func TestSingleFrameInFlightPaces(t *testing.T) {
	g, _ := newSingleFrameGraph(t)
	for i := 0; i < 3; i++ {
		runFrame(t, g)
		assert.Equal(t, 1, g.pacer.inFlightFrames())
	}
}

func TestSetNameDrainsFramesInFlight(t *testing.T) {
	g, dev := newTestGraph(t, true)
	tex := newTexture(t, g, "scene", TextureDesc{})
	p := g.AddPass(metadata.PipelineStageAllGraphics, "forward")
	p.AddColorOutput(colorOut(tex))

	require.NoError(t, g.Execute())
	assert.ErrorIs(t, g.SetName("renamed"), ErrAlreadyRecorded)
	assert.Equal(t, "test", g.Name())
	require.NoError(t, g.Submit())
	require.Equal(t, 1, g.pacer.inFlightFrames())

	require.NoError(t, g.SetName("renamed"))
	assert.Equal(t, 0, g.pacer.inFlightFrames())
	assert.True(t, g.Dirty())

	dev.ResetEvents()
	runFrame(t, g)
	subs := submitted(dev, metadata.QueueFamilyGraphics)
	require.Len(t, subs, 1)
	assert.Equal(t, "renamed graphics list 0", subs[0].List)
}

func TestSetNameKeepsListsWhenFrameHangs(t *testing.T) {
	g, dev := newSingleFrameGraph(t)
	dev.StallQueue(metadata.QueueFamilyGraphics)
	runFrame(t, g)

	assert.ErrorIs(t, g.SetName("renamed"), core.ErrFenceTimeout)
	assert.Equal(t, "test", g.Name())
	assert.NotEmpty(t, g.lists)
}
