package metadata

import "time"

/** @brief A texture created outside of the graph. */
type Texture interface {
	Name() string
	Format() Format
	Width() uint32
	Height() uint32
}

/** @brief A buffer created outside of the graph. */
type Buffer interface {
	Name() string
	Size() uint64
}

/** @brief A bound graphics pipeline state object. */
type Pipeline interface {
	Name() string
}

/** @brief A bound compute pipeline state object. */
type ComputePipeline interface {
	Name() string
}

/** @brief The resource binding layout a pipeline expects. */
type RootSignature interface {
	Name() string
}

/**
 * @brief A list of recorded GPU commands for one queue family. It is begun
 * fresh every frame from the allocator of the frame slot it was created for.
 */
type CommandList interface {
	Name() string
	Family() QueueFamily
	Begin() error
	End() error
	PipelineBarrier(src, dst PipelineStage, buffers []BufferBarrier, textures []TextureBarrier)
	SetPipeline(p Pipeline)
	SetComputePipeline(p ComputePipeline)
	SetRootSignature(r RootSignature)
	BeginRendering(desc *RenderingDesc)
	EndRendering()
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	Dispatch(groupCountX, groupCountY, groupCountZ uint32)
}

/** @brief A monotonically increasing GPU timeline. */
type Fence interface {
	CompletedValue() uint64
	/** @brief Blocks the calling goroutine until the fence reaches value. */
	Wait(value uint64, timeout time.Duration) error
}

/** @brief A hardware queue. */
type Queue interface {
	Family() QueueFamily
	ExecuteCommandLists(lists ...CommandList) error
	SignalFence(f Fence, value uint64) error
	/** @brief Queue-side wait: later submissions on this queue start after the fence reaches value. */
	WaitForFence(f Fence, value uint64) error
	WaitIdle() error
}

/** @brief The device verbs the render graph relies on. */
type Device interface {
	/** @brief Returns nil when the family is not available. */
	Queue(family QueueFamily) Queue
	CreateCommandList(family QueueFamily, frameSlot int, name string) (CommandList, error)
	CreateFence(initial uint64) (Fence, error)
	WaitIdle() error
}
