package rendergraph

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// TextureHandle identifies a texture registered with a RenderGraph. The zero
// value is invalid.
type TextureHandle struct {
	id uint32
}

func (h TextureHandle) IsValid() bool { return h.id != 0 }

// Initial returns the externally defined contents of the texture.
func (h TextureHandle) Initial() TextureInstance {
	return TextureInstance{Texture: h}
}

func (h TextureHandle) index() int { return int(h.id) - 1 }

// TextureInstance is a texture at one point of the dependency graph.
type TextureInstance struct {
	Texture TextureHandle
	Version uint32
}

type BufferHandle struct {
	id uint32
}

func (h BufferHandle) IsValid() bool { return h.id != 0 }

func (h BufferHandle) Initial() BufferInstance {
	return BufferInstance{Buffer: h}
}

func (h BufferHandle) index() int { return int(h.id) - 1 }

type BufferInstance struct {
	Buffer  BufferHandle
	Version uint32
}

// TextureState is the tracked GPU state of a texture.
type TextureState struct {
	Layout metadata.ResourceLayout
	Access metadata.AccessFlags
	Queue  metadata.QueueFamily
	Stage  metadata.PipelineStage
}

type BufferState struct {
	Access metadata.AccessFlags
	Queue  metadata.QueueFamily
	Stage  metadata.PipelineStage
}

// TextureDesc carries the state a texture is in when it is registered and the
// subresource range the graph transitions. A zero MipCount or ArrayCount
// means one.
type TextureDesc struct {
	Layout     metadata.ResourceLayout
	Access     metadata.AccessFlags
	Queue      metadata.QueueFamily
	MipSlice   uint32
	MipCount   uint32
	ArraySlice uint32
	ArrayCount uint32
}

// BufferDesc selects the tracked range of a buffer. A zero Size covers the
// whole buffer from Offset.
type BufferDesc struct {
	Offset uint64
	Size   uint64
	Access metadata.AccessFlags
	Queue  metadata.QueueFamily
}

type TextureResource struct {
	texture   metadata.Texture
	subrange  metadata.SubresourceRange
	state     TextureState
	hazard    hazard
	instances uint32
}

func (t *TextureResource) Texture() metadata.Texture { return t.texture }
func (t *TextureResource) State() TextureState       { return t.state }

type BufferResource struct {
	buffer    metadata.Buffer
	offset    uint64
	size      uint64
	state     BufferState
	hazard    hazard
	instances uint32
}

func (b *BufferResource) Buffer() metadata.Buffer { return b.buffer }
func (b *BufferResource) State() BufferState      { return b.state }

func (g *RenderGraph) CreateTexture(texture metadata.Texture, desc TextureDesc) (TextureHandle, error) {
	if texture == nil {
		return TextureHandle{}, errors.New("render graph: nil texture")
	}
	if desc.Queue >= metadata.QueueFamilyCount {
		return TextureHandle{}, fmt.Errorf("render graph: texture %q registered on queue %s", texture.Name(), desc.Queue)
	}
	mips, layers := desc.MipCount, desc.ArrayCount
	if mips == 0 {
		mips = 1
	}
	if layers == 0 {
		layers = 1
	}
	g.textures = append(g.textures, TextureResource{
		texture: texture,
		subrange: metadata.SubresourceRange{
			Aspect:     texture.Format().Aspect(),
			BaseMip:    desc.MipSlice,
			MipCount:   mips,
			BaseLayer:  desc.ArraySlice,
			LayerCount: layers,
		},
		state: TextureState{
			Layout: desc.Layout,
			Access: desc.Access,
			Queue:  g.trackedQueue(desc.Queue),
			Stage:  metadata.PipelineStageTopOfPipe,
		},
		instances: 1,
	})
	g.dirty = true
	return TextureHandle{id: uint32(len(g.textures))}, nil
}

func (g *RenderGraph) CreateBuffer(buffer metadata.Buffer, desc BufferDesc) (BufferHandle, error) {
	if buffer == nil {
		return BufferHandle{}, errors.New("render graph: nil buffer")
	}
	if desc.Queue >= metadata.QueueFamilyCount {
		return BufferHandle{}, fmt.Errorf("render graph: buffer %q registered on queue %s", buffer.Name(), desc.Queue)
	}
	total := buffer.Size()
	if desc.Offset >= total {
		return BufferHandle{}, &GraphError{
			Kind:     ErrInvalidRange,
			Resource: buffer.Name(),
			Detail:   fmt.Sprintf("offset %d past end of %d byte buffer", desc.Offset, total),
		}
	}
	size := desc.Size
	if size == 0 {
		size = total - desc.Offset
	}
	if size > total-desc.Offset {
		return BufferHandle{}, &GraphError{
			Kind:     ErrInvalidRange,
			Resource: buffer.Name(),
			Detail:   fmt.Sprintf("%d bytes at offset %d exceed %d byte buffer", size, desc.Offset, total),
		}
	}
	g.buffers = append(g.buffers, BufferResource{
		buffer: buffer,
		offset: desc.Offset,
		size:   size,
		state: BufferState{
			Access: desc.Access,
			Queue:  g.trackedQueue(desc.Queue),
			Stage:  metadata.PipelineStageTopOfPipe,
		},
		instances: 1,
	})
	g.dirty = true
	return BufferHandle{id: uint32(len(g.buffers))}, nil
}

// MakeUniqueTextureInstance hands out a new version of the texture for a pass
// that writes new contents.
func (g *RenderGraph) MakeUniqueTextureInstance(h TextureHandle) (TextureInstance, error) {
	t, err := g.texture(h)
	if err != nil {
		return TextureInstance{}, err
	}
	inst := TextureInstance{Texture: h, Version: t.instances}
	t.instances++
	g.dirty = true
	return inst, nil
}

func (g *RenderGraph) MakeUniqueBufferInstance(h BufferHandle) (BufferInstance, error) {
	b, err := g.buffer(h)
	if err != nil {
		return BufferInstance{}, err
	}
	inst := BufferInstance{Buffer: h, Version: b.instances}
	b.instances++
	g.dirty = true
	return inst, nil
}

// SetTextureState overrides the tracked state after work recorded outside the
// graph changed it.
func (g *RenderGraph) SetTextureState(h TextureHandle, layout metadata.ResourceLayout, access metadata.AccessFlags, queue metadata.QueueFamily) error {
	t, err := g.texture(h)
	if err != nil {
		return err
	}
	t.state = TextureState{Layout: layout, Access: access, Queue: g.trackedQueue(queue), Stage: metadata.PipelineStageAllCommands}
	t.hazard = hazard{}
	return nil
}

func (g *RenderGraph) SetBufferState(h BufferHandle, access metadata.AccessFlags, queue metadata.QueueFamily) error {
	b, err := g.buffer(h)
	if err != nil {
		return err
	}
	b.state = BufferState{Access: access, Queue: g.trackedQueue(queue), Stage: metadata.PipelineStageAllCommands}
	b.hazard = hazard{}
	return nil
}

func (g *RenderGraph) TextureState(h TextureHandle) (TextureState, error) {
	t, err := g.texture(h)
	if err != nil {
		return TextureState{}, err
	}
	return t.state, nil
}

func (g *RenderGraph) BufferState(h BufferHandle) (BufferState, error) {
	b, err := g.buffer(h)
	if err != nil {
		return BufferState{}, err
	}
	return b.state, nil
}

func (g *RenderGraph) texture(h TextureHandle) (*TextureResource, error) {
	if !h.IsValid() || h.index() >= len(g.textures) {
		return nil, &GraphError{Kind: ErrInvalidHandle, Detail: fmt.Sprintf("texture handle %d", h.id)}
	}
	return &g.textures[h.index()], nil
}

func (g *RenderGraph) buffer(h BufferHandle) (*BufferResource, error) {
	if !h.IsValid() || h.index() >= len(g.buffers) {
		return nil, &GraphError{Kind: ErrInvalidHandle, Detail: fmt.Sprintf("buffer handle %d", h.id)}
	}
	return &g.buffers[h.index()], nil
}

// trackedQueue folds the compute family onto graphics when there is no async
// compute queue, so no ownership transfer is ever synthesized.
func (g *RenderGraph) trackedQueue(q metadata.QueueFamily) metadata.QueueFamily {
	if !g.asyncCompute {
		return metadata.QueueFamilyGraphics
	}
	return q
}

func (g *RenderGraph) foldQueues() {
	for i := range g.textures {
		g.textures[i].state.Queue = g.trackedQueue(g.textures[i].state.Queue)
	}
	for i := range g.buffers {
		g.buffers[i].state.Queue = g.trackedQueue(g.buffers[i].state.Queue)
	}
}
