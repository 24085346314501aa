package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

var layouts = [...]vk.ImageLayout{
	metadata.ResourceLayoutUndefined:              vk.ImageLayoutUndefined,
	metadata.ResourceLayoutGeneral:                vk.ImageLayoutGeneral,
	metadata.ResourceLayoutColorAttachment:        vk.ImageLayoutColorAttachmentOptimal,
	metadata.ResourceLayoutDepthStencilAttachment: vk.ImageLayoutDepthStencilAttachmentOptimal,
	metadata.ResourceLayoutDepthStencilReadOnly:   vk.ImageLayoutDepthStencilReadOnlyOptimal,
	metadata.ResourceLayoutShaderReadOnly:         vk.ImageLayoutShaderReadOnlyOptimal,
	metadata.ResourceLayoutTransferSrc:            vk.ImageLayoutTransferSrcOptimal,
	metadata.ResourceLayoutTransferDst:            vk.ImageLayoutTransferDstOptimal,
	metadata.ResourceLayoutPresent:                vk.ImageLayoutPresentSrc,
}

func imageLayout(l metadata.ResourceLayout) vk.ImageLayout {
	if int(l) < len(layouts) {
		return layouts[l]
	}
	return vk.ImageLayoutGeneral
}

var accessBits = []struct {
	from metadata.AccessFlags
	to   vk.AccessFlagBits
}{
	{metadata.AccessShaderRead, vk.AccessShaderReadBit},
	{metadata.AccessShaderWrite, vk.AccessShaderWriteBit},
	{metadata.AccessColorAttachmentRead, vk.AccessColorAttachmentReadBit},
	{metadata.AccessColorAttachmentWrite, vk.AccessColorAttachmentWriteBit},
	{metadata.AccessDepthStencilRead, vk.AccessDepthStencilAttachmentReadBit},
	{metadata.AccessDepthStencilWrite, vk.AccessDepthStencilAttachmentWriteBit},
	{metadata.AccessTransferRead, vk.AccessTransferReadBit},
	{metadata.AccessTransferWrite, vk.AccessTransferWriteBit},
}

func accessFlags(a metadata.AccessFlags) vk.AccessFlags {
	var out vk.AccessFlags
	for _, b := range accessBits {
		if a&b.from != 0 {
			out |= vk.AccessFlags(b.to)
		}
	}
	return out
}

var stageBits = []struct {
	from metadata.PipelineStage
	to   vk.PipelineStageFlagBits
}{
	{metadata.PipelineStageTopOfPipe, vk.PipelineStageTopOfPipeBit},
	{metadata.PipelineStageDrawIndirect, vk.PipelineStageDrawIndirectBit},
	{metadata.PipelineStageVertexShader, vk.PipelineStageVertexShaderBit},
	{metadata.PipelineStageEarlyFragmentTests, vk.PipelineStageEarlyFragmentTestsBit},
	{metadata.PipelineStageFragmentShader, vk.PipelineStageFragmentShaderBit},
	{metadata.PipelineStageLateFragmentTests, vk.PipelineStageLateFragmentTestsBit},
	{metadata.PipelineStageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
	{metadata.PipelineStageComputeShader, vk.PipelineStageComputeShaderBit},
	{metadata.PipelineStageTransfer, vk.PipelineStageTransferBit},
	{metadata.PipelineStageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
	{metadata.PipelineStageAllGraphics, vk.PipelineStageAllGraphicsBit},
	{metadata.PipelineStageAllCommands, vk.PipelineStageAllCommandsBit},
}

// stageFlags converts a stage mask. An empty mask means top of pipe since
// Vulkan rejects a zero stage mask.
func stageFlags(s metadata.PipelineStage) vk.PipelineStageFlags {
	var out vk.PipelineStageFlags
	for _, b := range stageBits {
		if s&b.from != 0 {
			out |= vk.PipelineStageFlags(b.to)
		}
	}
	if out == 0 {
		out = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	return out
}

var formats = [...]vk.Format{
	metadata.FormatUndefined:      vk.FormatUndefined,
	metadata.FormatRGBA8Unorm:     vk.FormatR8g8b8a8Unorm,
	metadata.FormatBGRA8Unorm:     vk.FormatB8g8r8a8Unorm,
	metadata.FormatRGBA16Float:    vk.FormatR16g16b16a16Sfloat,
	metadata.FormatRGBA32Float:    vk.FormatR32g32b32a32Sfloat,
	metadata.FormatR32Uint:        vk.FormatR32Uint,
	metadata.FormatR32Float:       vk.FormatR32Sfloat,
	metadata.FormatD16Unorm:       vk.FormatD16Unorm,
	metadata.FormatD32Float:       vk.FormatD32Sfloat,
	metadata.FormatD24UnormS8Uint: vk.FormatD24UnormS8Uint,
}

func format(f metadata.Format) vk.Format {
	if int(f) < len(formats) {
		return formats[f]
	}
	return vk.FormatUndefined
}

func aspectFlags(a metadata.Aspect) vk.ImageAspectFlags {
	var out vk.ImageAspectFlags
	if a&metadata.AspectColor != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	if a&metadata.AspectDepth != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	if a&metadata.AspectStencil != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return out
}

func subresourceRange(r metadata.SubresourceRange) vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     aspectFlags(r.Aspect),
		BaseMipLevel:   r.BaseMip,
		LevelCount:     r.MipCount,
		BaseArrayLayer: r.BaseLayer,
		LayerCount:     r.LayerCount,
	}
}

func loadOp(op metadata.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case metadata.LoadOpClear:
		return vk.AttachmentLoadOpClear
	case metadata.LoadOpDontCare:
		return vk.AttachmentLoadOpDontCare
	}
	return vk.AttachmentLoadOpLoad
}

func storeOp(op metadata.StoreOp) vk.AttachmentStoreOp {
	if op == metadata.StoreOpDontCare {
		return vk.AttachmentStoreOpDontCare
	}
	return vk.AttachmentStoreOpStore
}

// queueFamilyIndices maps the graph's queue families onto the device's
// family indices for ownership transfers.
type queueFamilyIndices [metadata.QueueFamilyCount]uint32

func (q queueFamilyIndices) index(f metadata.QueueFamily) uint32 {
	if f >= metadata.QueueFamilyCount {
		return vk.QueueFamilyIgnored
	}
	return q[f]
}

// transfer returns the source and destination family indices of a barrier.
// Both are ignored when the two queues share a family on this device.
func (q queueFamilyIndices) transfer(src, dst metadata.QueueFamily) (uint32, uint32) {
	s, d := q.index(src), q.index(dst)
	if s == d {
		return vk.QueueFamilyIgnored, vk.QueueFamilyIgnored
	}
	return s, d
}
