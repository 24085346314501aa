package testbed

import (
	"fmt"

	"github.com/spaghettifunk/framegraph/engine"
	"github.com/spaghettifunk/framegraph/engine/config"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

const (
	clusterX, clusterY, clusterZ = 16, 9, 24
	maxLightsPerCluster          = 64
	shadowMapSize                = 2048
)

// TestGame renders a forward+ frame: depth and shadows on the graphics
// queue, light clustering on the compute queue, then shading and tonemap.
type TestGame struct {
	*engine.Game
}

type gameState struct {
	width, height uint32
	lights        uint32
	elapsed       float64

	depth, shadowMap, hdr, backbuffer rendergraph.TextureHandle
	clusters, activeClusters          rendergraph.BufferHandle
	clusterBounds, lightGrid          rendergraph.BufferHandle
}

func NewTestGame(cfg *config.Config, configPath string) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Config:     cfg,
			ConfigPath: configPath,
			State: &gameState{
				width:  1280,
				height: 720,
				lights: 256,
			},
		},
	}
	tg.FnBuild = tg.Build
	tg.FnUpdate = tg.Update
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState { return g.State.(*gameState) }

func (g *TestGame) Build(graph *rendergraph.RenderGraph, backend renderer.RendererBackend) error {
	core.LogInfo("building forward+ graph...")
	s := g.state()

	if err := g.createResources(graph, backend); err != nil {
		return err
	}

	root, err := backend.CreateRootSignature("forward-plus", 128)
	if err != nil {
		return err
	}

	depthTarget := &metadata.RenderingDesc{
		DepthStencil: &metadata.RenderingAttachment{Format: metadata.FormatD32Float},
	}
	prepassPSO, err := backend.CreatePipeline("depth-prepass", root, depthTarget)
	if err != nil {
		return err
	}
	shadowPSO, err := backend.CreatePipeline("shadows", root, depthTarget)
	if err != nil {
		return err
	}
	shadePSO, err := backend.CreatePipeline("forward-shading", root, &metadata.RenderingDesc{
		Colors: []metadata.RenderingAttachment{{Format: metadata.FormatRGBA16Float}},
	})
	if err != nil {
		return err
	}
	tonemapPSO, err := backend.CreatePipeline("tonemap", root, &metadata.RenderingDesc{
		Colors: []metadata.RenderingAttachment{{Format: metadata.FormatBGRA8Unorm}},
	})
	if err != nil {
		return err
	}

	compute := make(map[string]metadata.ComputePipeline, 4)
	for _, name := range []string{"build-clusters", "filter-clusters", "tighten-bounds", "cull-lights"} {
		pso, err := backend.CreateComputePipeline(name, root)
		if err != nil {
			return err
		}
		compute[name] = pso
	}

	fullscreen := func(cl metadata.CommandList) error {
		cl.Draw(3, 1, 0, 0)
		return nil
	}

	prepass := graph.AddPass(metadata.PipelineStageAllGraphics, "depth-prepass")
	prepass.SetShader(prepassPSO, root)
	prepass.SetDepthStencilOutput(graphicsWrite(s.depth))
	prepass.SetRecordFunc(fullscreen)

	shadows := graph.AddPass(metadata.PipelineStageAllGraphics, "shadows")
	shadows.SetShader(shadowPSO, root)
	shadows.SetDepthStencilOutput(graphicsWrite(s.shadowMap))
	shadows.SetPassArea(metadata.Area2D{Width: shadowMapSize, Height: shadowMapSize})
	shadows.SetRecordFunc(fullscreen)

	build := graph.AddComputePass("build-clusters")
	build.SetShader(compute["build-clusters"], root)
	build.AddBufferOutput(computeWrite(s.clusters))
	build.SetRecordFunc(dispatch(clusterX, clusterY, clusterZ))

	filter := graph.AddComputePass("filter-clusters")
	filter.SetShader(compute["filter-clusters"], root)
	filter.AddTextureInput(rendergraph.TextureAttachment{
		Texture: s.depth.Initial(), Usage: rendergraph.AttachmentUsageCompute, Access: rendergraph.AttachmentAccessRead,
	})
	filter.AddBufferInput(computeRead(s.clusters))
	filter.AddBufferOutput(computeWrite(s.activeClusters))
	filter.SetRecordFunc(dispatch((s.width+15)/16, (s.height+15)/16, 1))

	tighten := graph.AddComputePass("tighten-bounds")
	tighten.SetShader(compute["tighten-bounds"], root)
	tighten.AddBufferInput(computeRead(s.clusters))
	tighten.AddBufferInput(computeRead(s.activeClusters))
	tighten.AddBufferOutput(computeWrite(s.clusterBounds))
	tighten.SetRecordFunc(dispatch(clusterX, clusterY, clusterZ))

	cull := graph.AddComputePass("cull-lights")
	cull.SetShader(compute["cull-lights"], root)
	cull.AddBufferInput(computeRead(s.clusterBounds))
	cull.AddBufferOutput(computeWrite(s.lightGrid))
	cull.SetRecordFunc(func(cl metadata.CommandList) error {
		cl.Dispatch((s.lights+63)/64, 1, 1)
		return nil
	})

	shade := graph.AddPass(metadata.PipelineStageAllGraphics, "forward-shading")
	shade.SetShader(shadePSO, root)
	shade.AddBufferInput(rendergraph.BufferAttachment{
		Buffer: s.lightGrid.Initial(), Usage: rendergraph.AttachmentUsageGraphics, Access: rendergraph.AttachmentAccessRead,
	})
	shade.AddTextureInput(rendergraph.TextureAttachment{
		Texture: s.shadowMap.Initial(), Usage: rendergraph.AttachmentUsageGraphics, Access: rendergraph.AttachmentAccessRead,
	})
	shade.AddColorOutput(graphicsWrite(s.hdr))
	shade.SetRecordFunc(fullscreen)

	tonemap := graph.AddPass(metadata.PipelineStageAllGraphics, "tonemap")
	tonemap.SetShader(tonemapPSO, root)
	tonemap.AddColorInput(rendergraph.TextureAttachment{
		Texture: s.hdr.Initial(), Usage: rendergraph.AttachmentUsageGraphics, Access: rendergraph.AttachmentAccessRead,
	})
	tonemap.AddColorOutput(graphicsWrite(s.backbuffer))
	tonemap.SetRecordFunc(fullscreen)

	return nil
}

func (g *TestGame) createResources(graph *rendergraph.RenderGraph, backend renderer.RendererBackend) error {
	s := g.state()

	textures := []struct {
		handle        *rendergraph.TextureHandle
		name          string
		format        metadata.Format
		width, height uint32
	}{
		{&s.depth, "depth", metadata.FormatD32Float, s.width, s.height},
		{&s.shadowMap, "shadow-map", metadata.FormatD32Float, shadowMapSize, shadowMapSize},
		{&s.hdr, "hdr", metadata.FormatRGBA16Float, s.width, s.height},
		{&s.backbuffer, "backbuffer", metadata.FormatBGRA8Unorm, s.width, s.height},
	}
	for _, t := range textures {
		tex, err := backend.CreateTexture(t.name, t.format, t.width, t.height)
		if err != nil {
			return fmt.Errorf("creating texture %q: %w", t.name, err)
		}
		if *t.handle, err = graph.CreateTexture(tex, rendergraph.TextureDesc{}); err != nil {
			return err
		}
	}

	clusterCount := uint64(clusterX * clusterY * clusterZ)
	buffers := []struct {
		handle *rendergraph.BufferHandle
		name   string
		size   uint64
	}{
		{&s.clusters, "clusters", clusterCount * 32},
		{&s.activeClusters, "active-clusters", clusterCount * 4},
		{&s.clusterBounds, "cluster-bounds", clusterCount * 32},
		{&s.lightGrid, "light-grid", clusterCount * maxLightsPerCluster * 4},
	}
	for _, b := range buffers {
		buf, err := backend.CreateBuffer(b.name, b.size)
		if err != nil {
			return fmt.Errorf("creating buffer %q: %w", b.name, err)
		}
		*b.handle, err = graph.CreateBuffer(buf, rendergraph.BufferDesc{Queue: metadata.QueueFamilyCompute})
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *TestGame) Update(deltaTime float64, frame uint64) error {
	s := g.state()
	s.elapsed += deltaTime
	// a slowly pulsing light count keeps the culling dispatch size moving
	s.lights = 256 + uint32(frame%4)*64
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed after %.3fs", g.state().elapsed)
	return nil
}

func dispatch(x, y, z uint32) rendergraph.RecordFunc {
	return func(cl metadata.CommandList) error {
		cl.Dispatch(x, y, z)
		return nil
	}
}

func graphicsWrite(h rendergraph.TextureHandle) rendergraph.TextureAttachment {
	return rendergraph.TextureAttachment{Texture: h.Initial(), Usage: rendergraph.AttachmentUsageGraphics, Access: rendergraph.AttachmentAccessWrite}
}

func computeRead(h rendergraph.BufferHandle) rendergraph.BufferAttachment {
	return rendergraph.BufferAttachment{Buffer: h.Initial(), Usage: rendergraph.AttachmentUsageCompute, Access: rendergraph.AttachmentAccessRead}
}

func computeWrite(h rendergraph.BufferHandle) rendergraph.BufferAttachment {
	return rendergraph.BufferAttachment{Buffer: h.Initial(), Usage: rendergraph.AttachmentUsageCompute, Access: rendergraph.AttachmentAccessWrite}
}
