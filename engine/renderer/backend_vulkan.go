package renderer

import (
	"errors"
	"fmt"
	"os"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/assets"
	"github.com/spaghettifunk/framegraph/engine/config"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/spaghettifunk/framegraph/engine/renderer/vulkan"
)

type vulkanBackend struct {
	device  *vulkan.VulkanDevice
	shaders *assets.AssetManager
	// destroyed in reverse creation order on shutdown
	owned []func(vd *vulkan.VulkanDevice)
}

func newVulkanBackend(cfg *config.Config) (*vulkanBackend, error) {
	vd, err := vulkan.NewDevice(vulkan.Options{
		ApplicationName: cfg.Graph.Name,
		AsyncCompute:    true,
		Validation:      cfg.Run.Validation,
	})
	if err != nil {
		return nil, err
	}
	shaders, err := assets.NewAssetManager()
	if err != nil {
		vd.Destroy()
		return nil, err
	}
	if err := shaders.Initialize(cfg.Run.ShaderDir); err != nil {
		shaders.Close()
		vd.Destroy()
		return nil, err
	}
	return &vulkanBackend{device: vd, shaders: shaders}, nil
}

func (b *vulkanBackend) Queue(family metadata.QueueFamily) metadata.Queue {
	return b.device.Queue(family)
}

func (b *vulkanBackend) CreateCommandList(family metadata.QueueFamily, frameSlot int, name string) (metadata.CommandList, error) {
	return b.device.CreateCommandList(family, frameSlot, name)
}

func (b *vulkanBackend) CreateFence(initial uint64) (metadata.Fence, error) {
	return b.device.CreateFence(initial)
}

func (b *vulkanBackend) WaitIdle() error { return b.device.WaitIdle() }

func (b *vulkanBackend) CreateTexture(name string, format metadata.Format, width, height uint32) (metadata.Texture, error) {
	img, err := b.device.CreateImage(name, format, width, height)
	if err != nil {
		return nil, err
	}
	b.owned = append(b.owned, img.Destroy)
	return img, nil
}

func (b *vulkanBackend) CreateBuffer(name string, size uint64) (metadata.Buffer, error) {
	buf, err := b.device.CreateBuffer(name, size)
	if err != nil {
		return nil, err
	}
	b.owned = append(b.owned, buf.Destroy)
	return buf, nil
}

func (b *vulkanBackend) CreateRootSignature(name string, pushConstantSize uint32) (metadata.RootSignature, error) {
	rs, err := b.device.CreateRootSignature(name, nil, pushConstantSize)
	if err != nil {
		return nil, err
	}
	b.owned = append(b.owned, rs.Destroy)
	return rs, nil
}

func (b *vulkanBackend) rootSignature(root metadata.RootSignature) (*vulkan.VulkanRootSignature, error) {
	rs, ok := root.(*vulkan.VulkanRootSignature)
	if !ok {
		return nil, fmt.Errorf("root signature %q was not created by the vulkan backend", root.Name())
	}
	return rs, nil
}

// CreatePipeline loads <shader_dir>/<name>.vert.spv and, when present,
// <name>.frag.spv. Depth-only passes may ship without a fragment stage.
func (b *vulkanBackend) CreatePipeline(name string, root metadata.RootSignature, target *metadata.RenderingDesc) (metadata.Pipeline, error) {
	if target == nil {
		return nil, fmt.Errorf("pipeline %q has no rendering target", name)
	}
	rs, err := b.rootSignature(root)
	if err != nil {
		return nil, err
	}
	vert, err := b.shader(name, "vert", vk.ShaderStageVertexBit)
	if err != nil {
		return nil, err
	}
	defer vert.Destroy(b.device)
	stages := []*vulkan.VulkanShaderStage{vert}

	frag, err := b.shader(name, "frag", vk.ShaderStageFragmentBit)
	switch {
	case err == nil:
		defer frag.Destroy(b.device)
		stages = append(stages, frag)
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	target = attachmentLayouts(target)
	pipelineConfig := &vulkan.VulkanPipelineConfig{
		Name:     name,
		Target:   target,
		Root:     rs,
		Stages:   stages,
		CullMode: vk.CullModeBackBit,
	}
	if ds := target.DepthStencil; ds != nil {
		pipelineConfig.DepthTest = true
		pipelineConfig.DepthWrite = ds.Layout != metadata.ResourceLayoutDepthStencilReadOnly
	}
	p, err := b.device.CreateGraphicsPipeline(pipelineConfig)
	if err != nil {
		return nil, err
	}
	b.owned = append(b.owned, p.Destroy)
	return p, nil
}

// attachmentLayouts fills in the attachment layouts a target leaves
// undefined. Render passes only have to be compatible in formats, so any
// valid layout serves for pipeline creation.
func attachmentLayouts(target *metadata.RenderingDesc) *metadata.RenderingDesc {
	out := *target
	out.Colors = append([]metadata.RenderingAttachment(nil), target.Colors...)
	for i := range out.Colors {
		if out.Colors[i].Layout == metadata.ResourceLayoutUndefined {
			out.Colors[i].Layout = metadata.ResourceLayoutColorAttachment
		}
	}
	if target.DepthStencil != nil {
		ds := *target.DepthStencil
		if ds.Layout == metadata.ResourceLayoutUndefined {
			ds.Layout = metadata.ResourceLayoutDepthStencilAttachment
		}
		out.DepthStencil = &ds
	}
	return &out
}

func (b *vulkanBackend) CreateComputePipeline(name string, root metadata.RootSignature) (metadata.ComputePipeline, error) {
	rs, err := b.rootSignature(root)
	if err != nil {
		return nil, err
	}
	comp, err := b.shader(name, "comp", vk.ShaderStageComputeBit)
	if err != nil {
		return nil, err
	}
	defer comp.Destroy(b.device)

	p, err := b.device.CreateComputePipeline(name, comp, rs)
	if err != nil {
		return nil, err
	}
	b.owned = append(b.owned, p.Destroy)
	return p, nil
}

func (b *vulkanBackend) shader(name, stage string, flag vk.ShaderStageFlagBits) (*vulkan.VulkanShaderStage, error) {
	spirv, err := b.shaders.LoadShader(name, stage)
	if err != nil {
		return nil, err
	}
	return vulkan.NewShaderModule(b.device, name, spirv, flag)
}

func (b *vulkanBackend) Shutdown() error {
	if err := b.device.WaitIdle(); err != nil {
		core.LogError("vulkan: waiting before shutdown: %s", err)
	}
	for i := len(b.owned) - 1; i >= 0; i-- {
		b.owned[i](b.device)
	}
	b.owned = nil
	b.device.Destroy()
	return b.shaders.Close()
}
