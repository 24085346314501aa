package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type framebufferKey struct {
	pass   vk.RenderPass
	views  [VULKAN_MAX_ATTACHMENTS]vk.ImageView
	width  uint32
	height uint32
}

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
}

// framebufferCache keeps one framebuffer per render pass and attachment
// set. Framebuffers are evicted when one of their views is destroyed.
type framebufferCache struct {
	device       *VulkanDevice
	mutex        sync.Mutex
	framebuffers map[framebufferKey]*VulkanFramebuffer
}

func newFramebufferCache(vd *VulkanDevice) *framebufferCache {
	return &framebufferCache{
		device:       vd,
		framebuffers: make(map[framebufferKey]*VulkanFramebuffer),
	}
}

func (fc *framebufferCache) get(pass vk.RenderPass, desc *metadata.RenderingDesc) (vk.Framebuffer, error) {
	key := framebufferKey{pass: pass}
	attachments := make([]vk.ImageView, 0, VULKAN_MAX_ATTACHMENTS)
	add := func(a *metadata.RenderingAttachment) error {
		img, ok := a.Texture.(*VulkanImage)
		if !ok {
			return fmt.Errorf("attachment of %q: %w", desc.Name, errForeignObject)
		}
		key.views[len(attachments)] = img.View
		attachments = append(attachments, img.View)
		if key.width == 0 {
			key.width, key.height = img.Width(), img.Height()
		}
		return nil
	}
	for i := range desc.Colors {
		if err := add(&desc.Colors[i]); err != nil {
			return nil, err
		}
	}
	if desc.DepthStencil != nil {
		if err := add(desc.DepthStencil); err != nil {
			return nil, err
		}
	}

	fc.mutex.Lock()
	defer fc.mutex.Unlock()
	if fb, ok := fc.framebuffers[key]; ok {
		return fb.Handle, nil
	}

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           key.width,
		Height:          key.height,
		Layers:          1,
	}
	vd := fc.device
	fb := &VulkanFramebuffer{Attachments: attachments}
	if res := vk.CreateFramebuffer(vd.LogicalDevice, &createInfo, vd.context.Allocator, &fb.Handle); res != vk.Success {
		return nil, vulkanError(fmt.Sprintf("creating framebuffer for %q", desc.Name), res)
	}
	fc.framebuffers[key] = fb
	return fb.Handle, nil
}

// evict destroys every framebuffer that references view.
func (fc *framebufferCache) evict(view vk.ImageView) {
	if view == nil {
		return
	}
	fc.mutex.Lock()
	defer fc.mutex.Unlock()
	for key, fb := range fc.framebuffers {
		for _, v := range fb.Attachments {
			if v == view {
				fb.Destroy(fc.device)
				delete(fc.framebuffers, key)
				break
			}
		}
	}
}

func (fc *framebufferCache) destroy() {
	fc.mutex.Lock()
	defer fc.mutex.Unlock()
	for key, fb := range fc.framebuffers {
		fb.Destroy(fc.device)
		delete(fc.framebuffers, key)
	}
}

func (vfb *VulkanFramebuffer) Destroy(vd *VulkanDevice) {
	vk.DestroyFramebuffer(vd.LogicalDevice, vfb.Handle, vd.context.Allocator)
	vfb.Handle = nil
	vfb.Attachments = nil
}
