package rendergraph

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/spaghettifunk/framegraph/engine/renderer/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ops(cmds []recorder.Command) []recorder.Op {
	out := make([]recorder.Op, len(cmds))
	for i, c := range cmds {
		out[i] = c.Op
	}
	return out
}

func TestRenderingScopeBracketsRecordFunc(t *testing.T) {
	g, dev := newTestGraph(t, true)
	color := newTexture(t, g, "hdr", TextureDesc{})
	depth := newDepth(t, g, "depth")

	p := g.AddPass(metadata.PipelineStageAllGraphics, "forward")
	p.SetShader(recorder.NewPipeline("forward-pso"), recorder.NewRootSignature("forward-rs"))
	p.AddColorOutput(colorOut(color))
	p.SetDepthStencilOutput(TextureAttachment{Texture: depth.Initial(), Usage: AttachmentUsageGraphics, Access: AttachmentAccessReadWrite})
	p.SetRecordFunc(func(cl metadata.CommandList) error {
		cl.Draw(3, 1, 0, 0)
		return nil
	})

	runFrame(t, g)

	subs := submitted(dev, metadata.QueueFamilyGraphics)
	require.Len(t, subs, 1)
	cmds := subs[0].Commands
	assert.Equal(t, []recorder.Op{
		recorder.OpBarrier,
		recorder.OpBarrier,
		recorder.OpSetPipeline,
		recorder.OpSetRootSignature,
		recorder.OpBeginRendering,
		recorder.OpDraw,
		recorder.OpEndRendering,
	}, ops(cmds))

	desc := cmds[4].Rendering
	assert.Equal(t, "forward", desc.Name)
	assert.Equal(t, metadata.Area2D{Width: 640, Height: 480}, desc.Area)
	require.Len(t, desc.Colors, 1)
	assert.Equal(t, metadata.LoadOpClear, desc.Colors[0].LoadOp)
	assert.Equal(t, metadata.ResourceLayoutColorAttachment, desc.Colors[0].Layout)
	assert.Equal(t, metadata.FormatRGBA8Unorm, desc.Colors[0].Format)
	require.NotNil(t, desc.DepthStencil)
	assert.Equal(t, metadata.LoadOpLoad, desc.DepthStencil.LoadOp)
	assert.Equal(t, float32(1), desc.DepthStencil.Clear.Depth)
	assert.Equal(t, metadata.AspectDepth, desc.DepthStencil.Range.Aspect)
	assert.Equal(t, "forward-pso", cmds[2].Name)
}

func TestPassAreaOverridesAttachmentSize(t *testing.T) {
	g, dev := newTestGraph(t, true)
	shadow := newDepth(t, g, "shadow-map")
	p := g.AddPass(metadata.PipelineStageAllGraphics, "shadow")
	p.SetPassArea(metadata.Area2D{Width: 256, Height: 256})
	p.SetDepthStencilOutput(TextureAttachment{Texture: shadow.Initial(), Usage: AttachmentUsageGraphics, Access: AttachmentAccessWrite})

	runFrame(t, g)

	for _, c := range submitted(dev, metadata.QueueFamilyGraphics)[0].Commands {
		if c.Op == recorder.OpBeginRendering {
			assert.Equal(t, uint32(256), c.Rendering.Area.Width)
			assert.Equal(t, metadata.LoadOpClear, c.Rendering.DepthStencil.LoadOp)
			assert.Empty(t, c.Rendering.Colors)
		}
	}
}

func TestComputePassBindsComputePipeline(t *testing.T) {
	g, dev := newTestGraph(t, true)
	p := g.AddComputePass("cull")
	p.SetShader(recorder.NewPipeline("cull-pso"), recorder.NewRootSignature("cull-rs"))
	p.SetRecordFunc(func(cl metadata.CommandList) error {
		cl.Dispatch(16, 8, 1)
		return nil
	})

	runFrame(t, g)

	subs := submitted(dev, metadata.QueueFamilyCompute)
	require.Len(t, subs, 1)
	assert.Equal(t, []recorder.Op{recorder.OpSetComputePipeline, recorder.OpSetRootSignature, recorder.OpDispatch}, ops(subs[0].Commands))
	assert.Equal(t, [4]uint32{16, 8, 1, 0}, subs[0].Commands[2].Args)
}

func TestRecordFuncErrorPropagates(t *testing.T) {
	g, _ := newTestGraph(t, true)
	boom := errors.New("boom")
	p := g.AddComputePass("explode")
	p.UseCustomPipeline()
	p.SetRecordFunc(func(cl metadata.CommandList) error { return boom })

	err := g.Execute()
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "explode")
	assert.ErrorIs(t, g.Submit(), ErrNotRecorded)
}
