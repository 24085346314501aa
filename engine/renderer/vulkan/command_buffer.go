package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandBuffer is a primary command buffer with its own pool, so
// resetting it never touches lists of other frame slots.
type VulkanCommandBuffer struct {
	device *VulkanDevice
	name   string
	family metadata.QueueFamily
	slot   int

	pool   vk.CommandPool
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState

	// first recording error, reported by End
	err error
}

func NewVulkanCommandBuffer(vd *VulkanDevice, family metadata.QueueFamily, slot int, name string) (*VulkanCommandBuffer, error) {
	cb := &VulkanCommandBuffer{
		device: vd,
		name:   name,
		family: family,
		slot:   slot,
		State:  COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: vd.families.index(family),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	err := vd.context.locks.SafeCall(CommandPoolManagement, func() error {
		return vulkanError(fmt.Sprintf("creating command pool for %q", name),
			vk.CreateCommandPool(vd.LogicalDevice, &poolCreateInfo, vd.context.Allocator, &cb.pool))
	})
	if err != nil {
		return nil, err
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        cb.pool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(vd.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		cb.Destroy()
		return nil, vulkanError(fmt.Sprintf("allocating command buffer %q", name), res)
	}
	cb.Handle = handles[0]
	cb.State = COMMAND_BUFFER_STATE_READY
	return cb, nil
}

func (v *VulkanCommandBuffer) Name() string                 { return v.name }
func (v *VulkanCommandBuffer) Family() metadata.QueueFamily { return v.family }

// FrameSlot is the frame-in-flight slot the buffer was created for.
func (v *VulkanCommandBuffer) FrameSlot() int { return v.slot }

func (v *VulkanCommandBuffer) Begin() error {
	switch v.State {
	case COMMAND_BUFFER_STATE_NOT_ALLOCATED:
		return fmt.Errorf("vulkan: command buffer %q is not allocated", v.name)
	case COMMAND_BUFFER_STATE_RECORDING, COMMAND_BUFFER_STATE_IN_RENDER_PASS:
		return fmt.Errorf("vulkan: command buffer %q is already recording", v.name)
	}
	if res := vk.ResetCommandBuffer(v.Handle, 0); res != vk.Success {
		return vulkanError(fmt.Sprintf("resetting command buffer %q", v.name), res)
	}

	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(v.Handle, beginInfo); res != vk.Success {
		return vulkanError(fmt.Sprintf("beginning command buffer %q", v.name), res)
	}
	v.err = nil
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		v.fail(fmt.Errorf("vulkan: command buffer %q ended inside a render pass", v.name))
		vk.CmdEndRenderPass(v.Handle)
	}
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		return vulkanError(fmt.Sprintf("ending command buffer %q", v.name), res)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return v.err
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) fail(err error) {
	if v.err == nil {
		core.LogError(err.Error())
		v.err = err
	}
}

func (v *VulkanCommandBuffer) PipelineBarrier(src, dst metadata.PipelineStage, buffers []metadata.BufferBarrier, textures []metadata.TextureBarrier) {
	families := v.device.families

	bufferBarriers := make([]vk.BufferMemoryBarrier, 0, len(buffers))
	for _, b := range buffers {
		buf, ok := b.Buffer.(*VulkanBuffer)
		if !ok {
			v.fail(fmt.Errorf("buffer barrier on %q: %w", b.Buffer.Name(), errForeignObject))
			continue
		}
		size := vk.DeviceSize(b.Size)
		if size == 0 {
			size = vk.DeviceSize(vk.WholeSize)
		}
		srcFamily, dstFamily := families.transfer(b.SrcQueue, b.DstQueue)
		bufferBarriers = append(bufferBarriers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       accessFlags(b.SrcAccess),
			DstAccessMask:       accessFlags(b.DstAccess),
			SrcQueueFamilyIndex: srcFamily,
			DstQueueFamilyIndex: dstFamily,
			Buffer:              buf.Handle,
			Offset:              vk.DeviceSize(b.Offset),
			Size:                size,
		})
	}

	imageBarriers := make([]vk.ImageMemoryBarrier, 0, len(textures))
	for _, t := range textures {
		img, ok := t.Texture.(*VulkanImage)
		if !ok {
			v.fail(fmt.Errorf("texture barrier on %q: %w", t.Texture.Name(), errForeignObject))
			continue
		}
		srcFamily, dstFamily := families.transfer(t.SrcQueue, t.DstQueue)
		imageBarriers = append(imageBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       accessFlags(t.SrcAccess),
			DstAccessMask:       accessFlags(t.DstAccess),
			OldLayout:           imageLayout(t.OldLayout),
			NewLayout:           imageLayout(t.NewLayout),
			SrcQueueFamilyIndex: srcFamily,
			DstQueueFamilyIndex: dstFamily,
			Image:               img.Handle,
			SubresourceRange:    subresourceRange(t.Range),
		})
	}
	if len(bufferBarriers) == 0 && len(imageBarriers) == 0 {
		return
	}

	vk.CmdPipelineBarrier(v.Handle,
		stageFlags(src), stageFlags(dst), 0,
		0, nil,
		uint32(len(bufferBarriers)), bufferBarriers,
		uint32(len(imageBarriers)), imageBarriers)
}

func (v *VulkanCommandBuffer) SetPipeline(p metadata.Pipeline) {
	vp, ok := p.(*VulkanPipeline)
	if !ok {
		v.fail(fmt.Errorf("pipeline %q: %w", p.Name(), errForeignObject))
		return
	}
	vk.CmdBindPipeline(v.Handle, vk.PipelineBindPointGraphics, vp.Handle)
}

func (v *VulkanCommandBuffer) SetComputePipeline(p metadata.ComputePipeline) {
	vp, ok := p.(*VulkanPipeline)
	if !ok {
		v.fail(fmt.Errorf("compute pipeline %q: %w", p.Name(), errForeignObject))
		return
	}
	vk.CmdBindPipeline(v.Handle, vk.PipelineBindPointCompute, vp.Handle)
}

// SetRootSignature only validates the layout. Descriptor sets and push
// constants are bound by the pass through the layout handle.
func (v *VulkanCommandBuffer) SetRootSignature(r metadata.RootSignature) {
	if _, ok := r.(*VulkanRootSignature); !ok {
		v.fail(fmt.Errorf("root signature %q: %w", r.Name(), errForeignObject))
	}
}

func (v *VulkanCommandBuffer) BeginRendering(desc *metadata.RenderingDesc) {
	pass, err := v.device.renderpasses.get(desc)
	if err != nil {
		v.fail(err)
		return
	}
	fb, err := v.device.framebuffers.get(pass, desc)
	if err != nil {
		v.fail(err)
		return
	}

	clearValues := make([]vk.ClearValue, 0, len(desc.Colors)+1)
	for _, c := range desc.Colors {
		var cv vk.ClearValue
		cv.SetColor(c.Clear.Color[:])
		clearValues = append(clearValues, cv)
	}
	if ds := desc.DepthStencil; ds != nil {
		var cv vk.ClearValue
		cv.SetDepthStencil(ds.Clear.Depth, ds.Clear.Stencil)
		clearValues = append(clearValues, cv)
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: desc.Area.X, Y: desc.Area.Y},
			Extent: vk.Extent2D{Width: desc.Area.Width, Height: desc.Area.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(v.Handle, &beginInfo, vk.SubpassContentsInline)
	v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (v *VulkanCommandBuffer) EndRendering() {
	if v.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return
	}
	vk.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

func (v *VulkanCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(v.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (v *VulkanCommandBuffer) Dispatch(groupCountX, groupCountY, groupCountZ uint32) {
	vk.CmdDispatch(v.Handle, groupCountX, groupCountY, groupCountZ)
}

// Destroy frees the buffer together with its pool.
func (v *VulkanCommandBuffer) Destroy() {
	vd := v.device
	if v.Handle != nil {
		vk.FreeCommandBuffers(vd.LogicalDevice, v.pool, 1, []vk.CommandBuffer{v.Handle})
		v.Handle = nil
	}
	if v.pool != nil {
		vd.context.locks.SafeCall(CommandPoolManagement, func() error {
			vk.DestroyCommandPool(vd.LogicalDevice, v.pool, vd.context.Allocator)
			return nil
		})
		v.pool = nil
	}
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}
