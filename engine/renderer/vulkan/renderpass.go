package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type attachmentKey struct {
	format  vk.Format
	layout  vk.ImageLayout
	loadOp  vk.AttachmentLoadOp
	storeOp vk.AttachmentStoreOp
	stencil bool
}

type renderpassKey struct {
	colors     [VULKAN_MAX_COLOR_ATTACHMENTS]attachmentKey
	colorCount int
	depth      attachmentKey
	hasDepth   bool
}

func makeRenderpassKey(desc *metadata.RenderingDesc) (renderpassKey, error) {
	var key renderpassKey
	if len(desc.Colors) > VULKAN_MAX_COLOR_ATTACHMENTS {
		return key, fmt.Errorf("vulkan: %q binds %d color attachments, at most %d are supported",
			desc.Name, len(desc.Colors), VULKAN_MAX_COLOR_ATTACHMENTS)
	}
	for i, c := range desc.Colors {
		key.colors[i] = makeAttachmentKey(&c)
	}
	key.colorCount = len(desc.Colors)
	if desc.DepthStencil != nil {
		key.depth = makeAttachmentKey(desc.DepthStencil)
		key.hasDepth = true
	}
	return key, nil
}

func makeAttachmentKey(a *metadata.RenderingAttachment) attachmentKey {
	f := a.Format
	if f == metadata.FormatUndefined && a.Texture != nil {
		f = a.Texture.Format()
	}
	return attachmentKey{
		format:  format(f),
		layout:  imageLayout(a.Layout),
		loadOp:  loadOp(a.LoadOp),
		storeOp: storeOp(a.StoreOp),
		stencil: f.HasStencil(),
	}
}

// The graph transitions attachments before the scope begins, so a render
// pass keeps every attachment in the layout it was handed.
func (k attachmentKey) description() vk.AttachmentDescription {
	d := vk.AttachmentDescription{
		Format:         k.format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         k.loadOp,
		StoreOp:        k.storeOp,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  k.layout,
		FinalLayout:    k.layout,
	}
	if k.stencil {
		d.StencilLoadOp = k.loadOp
		d.StencilStoreOp = k.storeOp
	}
	return d
}

// renderpassCache creates one render pass per distinct attachment setup.
type renderpassCache struct {
	device *VulkanDevice
	mutex  sync.Mutex
	passes map[renderpassKey]vk.RenderPass
}

func newRenderpassCache(vd *VulkanDevice) *renderpassCache {
	return &renderpassCache{
		device: vd,
		passes: make(map[renderpassKey]vk.RenderPass),
	}
}

func (rc *renderpassCache) get(desc *metadata.RenderingDesc) (vk.RenderPass, error) {
	key, err := makeRenderpassKey(desc)
	if err != nil {
		return nil, err
	}

	rc.mutex.Lock()
	defer rc.mutex.Unlock()
	if pass, ok := rc.passes[key]; ok {
		return pass, nil
	}
	pass, err := rc.create(key, desc)
	if err != nil {
		return nil, err
	}
	rc.passes[key] = pass
	return pass, nil
}

func (rc *renderpassCache) create(key renderpassKey, desc *metadata.RenderingDesc) (vk.RenderPass, error) {
	attachments := make([]vk.AttachmentDescription, 0, VULKAN_MAX_ATTACHMENTS)
	colorRefs := make([]vk.AttachmentReference, 0, key.colorCount)
	for i := 0; i < key.colorCount; i++ {
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(len(attachments)),
			Layout:     key.colors[i].layout,
		})
		attachments = append(attachments, key.colors[i].description())
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if key.hasDepth {
		depthRef := vk.AttachmentReference{
			Attachment: uint32(len(attachments)),
			Layout:     key.depth.layout,
		}
		subpass.PDepthStencilAttachment = &depthRef
		attachments = append(attachments, key.depth.description())
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	vd := rc.device
	var pass vk.RenderPass
	err := vd.context.locks.SafeCall(RenderpassManagement, func() error {
		return vulkanError(fmt.Sprintf("creating render pass for %q", desc.Name),
			vk.CreateRenderPass(vd.LogicalDevice, &createInfo, vd.context.Allocator, &pass))
	})
	return pass, err
}

func (rc *renderpassCache) destroy() {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()
	for key, pass := range rc.passes {
		vk.DestroyRenderPass(rc.device.LogicalDevice, pass, rc.device.context.Allocator)
		delete(rc.passes, key)
	}
}
