package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// VulkanImage is a 2D device-local texture with a view over all of it.
type VulkanImage struct {
	name   string
	format metadata.Format
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	width  uint32
	height uint32
}

func (vi *VulkanImage) Name() string            { return vi.name }
func (vi *VulkanImage) Format() metadata.Format { return vi.format }
func (vi *VulkanImage) Width() uint32           { return vi.width }
func (vi *VulkanImage) Height() uint32          { return vi.height }

// CreateImage allocates a texture usable as an attachment, a storage image,
// a sampled image and a copy source or destination.
func (vd *VulkanDevice) CreateImage(name string, f metadata.Format, width, height uint32) (*VulkanImage, error) {
	usage := vk.ImageUsageSampledBit | vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit
	if f.IsDepth() {
		usage |= vk.ImageUsageDepthStencilAttachmentBit
	} else {
		usage |= vk.ImageUsageColorAttachmentBit | vk.ImageUsageStorageBit
	}

	img := &VulkanImage{name: name, format: f, width: width, height: height}
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format(f),
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if res := vk.CreateImage(vd.LogicalDevice, &imageInfo, vd.context.Allocator, &img.Handle); res != vk.Success {
		return nil, vulkanError(fmt.Sprintf("creating image %q", name), res)
	}

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(vd.LogicalDevice, img.Handle, &memReqs)
	memReqs.Deref()
	index, err := vd.context.FindMemoryIndex(memReqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		img.Destroy(vd)
		return nil, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: index,
	}
	if res := vk.AllocateMemory(vd.LogicalDevice, &allocInfo, vd.context.Allocator, &img.Memory); res != vk.Success {
		img.Destroy(vd)
		return nil, vulkanError(fmt.Sprintf("allocating memory for %q", name), res)
	}
	if res := vk.BindImageMemory(vd.LogicalDevice, img.Handle, img.Memory, 0); res != vk.Success {
		img.Destroy(vd)
		return nil, vulkanError(fmt.Sprintf("binding memory of %q", name), res)
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle,
		ViewType: vk.ImageViewType2d,
		Format:   format(f),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectFlags(f.Aspect()),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	if res := vk.CreateImageView(vd.LogicalDevice, &viewInfo, vd.context.Allocator, &img.View); res != vk.Success {
		img.Destroy(vd)
		return nil, vulkanError(fmt.Sprintf("creating view of %q", name), res)
	}
	return img, nil
}

func (vi *VulkanImage) Destroy(vd *VulkanDevice) {
	vd.framebuffers.evict(vi.View)
	if vi.View != nil {
		vk.DestroyImageView(vd.LogicalDevice, vi.View, vd.context.Allocator)
		vi.View = nil
	}
	if vi.Handle != nil {
		vk.DestroyImage(vd.LogicalDevice, vi.Handle, vd.context.Allocator)
		vi.Handle = nil
	}
	if vi.Memory != nil {
		vk.FreeMemory(vd.LogicalDevice, vi.Memory, vd.context.Allocator)
		vi.Memory = nil
	}
}

// VulkanBuffer is a device-local storage buffer.
type VulkanBuffer struct {
	name   string
	Handle vk.Buffer
	Memory vk.DeviceMemory
	size   uint64
}

func (vb *VulkanBuffer) Name() string { return vb.name }
func (vb *VulkanBuffer) Size() uint64 { return vb.size }

func (vd *VulkanDevice) CreateBuffer(name string, size uint64) (*VulkanBuffer, error) {
	buf := &VulkanBuffer{name: name, size: size}
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit | vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit),
		SharingMode: vk.SharingModeExclusive,
	}
	if res := vk.CreateBuffer(vd.LogicalDevice, &bufferInfo, vd.context.Allocator, &buf.Handle); res != vk.Success {
		return nil, vulkanError(fmt.Sprintf("creating buffer %q", name), res)
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(vd.LogicalDevice, buf.Handle, &memReqs)
	memReqs.Deref()
	index, err := vd.context.FindMemoryIndex(memReqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		buf.Destroy(vd)
		return nil, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: index,
	}
	if res := vk.AllocateMemory(vd.LogicalDevice, &allocInfo, vd.context.Allocator, &buf.Memory); res != vk.Success {
		buf.Destroy(vd)
		return nil, vulkanError(fmt.Sprintf("allocating memory for %q", name), res)
	}
	if res := vk.BindBufferMemory(vd.LogicalDevice, buf.Handle, buf.Memory, 0); res != vk.Success {
		buf.Destroy(vd)
		return nil, vulkanError(fmt.Sprintf("binding memory of %q", name), res)
	}
	return buf, nil
}

func (vb *VulkanBuffer) Destroy(vd *VulkanDevice) {
	if vb.Handle != nil {
		vk.DestroyBuffer(vd.LogicalDevice, vb.Handle, vd.context.Allocator)
		vb.Handle = nil
	}
	if vb.Memory != nil {
		vk.FreeMemory(vd.LogicalDevice, vb.Memory, vd.context.Allocator)
		vb.Memory = nil
	}
}
