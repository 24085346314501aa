package recorder

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

var (
	ErrListRecording    = errors.New("command list is already recording")
	ErrListNotRecording = errors.New("command list is not recording")
)

type Op uint8

const (
	OpBarrier Op = iota
	OpSetPipeline
	OpSetComputePipeline
	OpSetRootSignature
	OpBeginRendering
	OpEndRendering
	OpDraw
	OpDispatch
)

func (o Op) String() string {
	switch o {
	case OpBarrier:
		return "barrier"
	case OpSetPipeline:
		return "set-pipeline"
	case OpSetComputePipeline:
		return "set-compute-pipeline"
	case OpSetRootSignature:
		return "set-root-signature"
	case OpBeginRendering:
		return "begin-rendering"
	case OpEndRendering:
		return "end-rendering"
	case OpDraw:
		return "draw"
	case OpDispatch:
		return "dispatch"
	}
	return "unknown"
}

// Command is one recorded verb. Only the fields relevant to Op are set.
type Command struct {
	Op        Op
	Src, Dst  metadata.PipelineStage
	Buffers   []metadata.BufferBarrier
	Textures  []metadata.TextureBarrier
	Name      string
	Rendering *metadata.RenderingDesc
	Args      [4]uint32
}

// CommandList records into memory. Begin discards the previous recording the
// way resetting an allocator would.
type CommandList struct {
	name      string
	family    metadata.QueueFamily
	slot      int
	commands  []Command
	recording bool
	begins    int
	err       error
}

func (cl *CommandList) Name() string                 { return cl.name }
func (cl *CommandList) Family() metadata.QueueFamily { return cl.family }
func (cl *CommandList) FrameSlot() int               { return cl.slot }

// Begins counts how many times the list was begun.
func (cl *CommandList) Begins() int { return cl.begins }

func (cl *CommandList) Commands() []Command {
	return append([]Command(nil), cl.commands...)
}

func (cl *CommandList) Begin() error {
	if cl.recording {
		return fmt.Errorf("%s: %w", cl.name, ErrListRecording)
	}
	cl.commands = cl.commands[:0]
	cl.recording = true
	cl.begins++
	cl.err = nil
	return nil
}

func (cl *CommandList) End() error {
	if !cl.recording {
		return fmt.Errorf("%s: %w", cl.name, ErrListNotRecording)
	}
	cl.recording = false
	return cl.err
}

func (cl *CommandList) push(c Command) {
	if !cl.recording && cl.err == nil {
		cl.err = fmt.Errorf("%s: %s: %w", cl.name, c.Op, ErrListNotRecording)
	}
	cl.commands = append(cl.commands, c)
}

func (cl *CommandList) PipelineBarrier(src, dst metadata.PipelineStage, buffers []metadata.BufferBarrier, textures []metadata.TextureBarrier) {
	cl.push(Command{
		Op:       OpBarrier,
		Src:      src,
		Dst:      dst,
		Buffers:  append([]metadata.BufferBarrier(nil), buffers...),
		Textures: append([]metadata.TextureBarrier(nil), textures...),
	})
}

func (cl *CommandList) SetPipeline(p metadata.Pipeline) {
	cl.push(Command{Op: OpSetPipeline, Name: p.Name()})
}

func (cl *CommandList) SetComputePipeline(p metadata.ComputePipeline) {
	cl.push(Command{Op: OpSetComputePipeline, Name: p.Name()})
}

func (cl *CommandList) SetRootSignature(r metadata.RootSignature) {
	cl.push(Command{Op: OpSetRootSignature, Name: r.Name()})
}

func (cl *CommandList) BeginRendering(desc *metadata.RenderingDesc) {
	d := *desc
	d.Colors = append([]metadata.RenderingAttachment(nil), desc.Colors...)
	cl.push(Command{Op: OpBeginRendering, Name: desc.Name, Rendering: &d})
}

func (cl *CommandList) EndRendering() {
	cl.push(Command{Op: OpEndRendering})
}

func (cl *CommandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	cl.push(Command{Op: OpDraw, Args: [4]uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (cl *CommandList) Dispatch(x, y, z uint32) {
	cl.push(Command{Op: OpDispatch, Args: [4]uint32{x, y, z}})
}
