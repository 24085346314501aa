package recorder

import "github.com/spaghettifunk/framegraph/engine/renderer/metadata"

// Texture is a named stand-in for a GPU texture.
type Texture struct {
	name          string
	format        metadata.Format
	width, height uint32
}

func NewTexture(name string, format metadata.Format, width, height uint32) *Texture {
	return &Texture{name: name, format: format, width: width, height: height}
}

func (t *Texture) Name() string            { return t.name }
func (t *Texture) Format() metadata.Format { return t.format }
func (t *Texture) Width() uint32           { return t.width }
func (t *Texture) Height() uint32          { return t.height }

type Buffer struct {
	name string
	size uint64
}

func NewBuffer(name string, size uint64) *Buffer {
	return &Buffer{name: name, size: size}
}

func (b *Buffer) Name() string { return b.name }
func (b *Buffer) Size() uint64 { return b.size }

// Pipeline satisfies both metadata.Pipeline and metadata.ComputePipeline.
type Pipeline struct {
	name string
}

func NewPipeline(name string) *Pipeline { return &Pipeline{name: name} }

func (p *Pipeline) Name() string { return p.name }

type RootSignature struct {
	name string
}

func NewRootSignature(name string) *RootSignature { return &RootSignature{name: name} }

func (r *RootSignature) Name() string { return r.name }
