package rendergraph

import (
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// recordLevel records the passes of lvl into sub's command list. Releases of
// resources the other queue gives up are recorded on that queue's latest list,
// which then has to signal before sub runs.
func (g *RenderGraph) recordLevel(fr *frameRecord, sub *submission, lvl Level) error {
	sched := &g.schedules[sub.queue]
	cl := sub.list
	acquire, release := newBarrierBatch(), newBarrierBatch()

	for i := lvl.Start; i < lvl.End; i++ {
		p := sched.Passes[i].Pass
		g.passBarriers(p, acquire, release)
		fr.counters.Barriers += acquire.flush(cl)

		bindPipeline(cl, p)
		if err := g.recordPass(cl, p); err != nil {
			return err
		}
	}

	if release.len() == 0 {
		return nil
	}
	owner, err := g.releaseOwner(fr, sub.queue.Other())
	if err != nil {
		return err
	}
	fr.counters.Releases += release.flush(owner.list)
	owner.signal = true
	sub.waitFor(owner)
	return nil
}

func bindPipeline(cl metadata.CommandList, p Pass) {
	switch pass := p.(type) {
	case *RenderPass:
		if pass.pipeline != nil {
			cl.SetPipeline(pass.pipeline)
		}
	case *ComputePass:
		if pass.pipeline != nil {
			cl.SetComputePipeline(pass.pipeline)
		}
	}
	if rs := p.base().rootSignature; rs != nil {
		cl.SetRootSignature(rs)
	}
}

func (g *RenderGraph) recordPass(cl metadata.CommandList, p Pass) error {
	var desc *metadata.RenderingDesc
	if rp, ok := p.(*RenderPass); ok {
		desc = g.renderingDesc(rp)
	}
	if desc != nil {
		cl.BeginRendering(desc)
	}
	if fn := p.base().record; fn != nil {
		if err := fn(cl); err != nil {
			return fmt.Errorf("render graph: recording pass %q: %w", p.Name(), err)
		}
	}
	if desc != nil {
		cl.EndRendering()
	}
	return nil
}

// renderingDesc describes the attachments of a render pass, or nil when the
// pass renders to nothing.
func (g *RenderGraph) renderingDesc(rp *RenderPass) *metadata.RenderingDesc {
	desc := &metadata.RenderingDesc{Name: rp.name, Area: rp.area}
	var first metadata.Texture

	for _, att := range rp.textureOutputs {
		if att.Usage != AttachmentUsageGraphics {
			continue
		}
		t := &g.textures[att.Texture.Texture.index()]
		desc.Colors = append(desc.Colors, metadata.RenderingAttachment{
			Texture: t.texture,
			Format:  attachmentFormat(att, t),
			Range:   t.subrange,
			Layout:  t.state.Layout,
			LoadOp:  loadOpFor(att.Access),
			StoreOp: metadata.StoreOpStore,
		})
		if first == nil {
			first = t.texture
		}
	}
	if ds := rp.depthStencil; ds != nil && ds.Usage != AttachmentUsagePassThrough {
		t := &g.textures[ds.Texture.Texture.index()]
		desc.DepthStencil = &metadata.RenderingAttachment{
			Texture: t.texture,
			Format:  attachmentFormat(*ds, t),
			Range:   t.subrange,
			Layout:  t.state.Layout,
			LoadOp:  loadOpFor(ds.Access),
			StoreOp: metadata.StoreOpStore,
			Clear:   metadata.ClearValue{Depth: 1},
		}
		if first == nil {
			first = t.texture
		}
	}
	if first == nil {
		return nil
	}
	if desc.Area.Width == 0 || desc.Area.Height == 0 {
		desc.Area = metadata.Area2D{Width: first.Width(), Height: first.Height()}
	}
	return desc
}

func attachmentFormat(att TextureAttachment, t *TextureResource) metadata.Format {
	if att.Format != metadata.FormatUndefined {
		return att.Format
	}
	return t.texture.Format()
}
