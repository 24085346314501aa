package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// NOTE: 128 bytes is the push constant size every implementation guarantees.
const maxPushConstantSize = 128

/**
 * @brief A pipeline layout. Passes bind descriptor sets and push constants
 * through Layout.
 */
type VulkanRootSignature struct {
	name   string
	Layout vk.PipelineLayout
}

func (rs *VulkanRootSignature) Name() string { return rs.name }

// CreateRootSignature builds a layout over the given set layouts with one
// push constant range visible to every stage.
func (vd *VulkanDevice) CreateRootSignature(name string, setLayouts []vk.DescriptorSetLayout, pushConstantSize uint32) (*VulkanRootSignature, error) {
	if pushConstantSize > maxPushConstantSize {
		return nil, fmt.Errorf("vulkan: root signature %q: push constants of %d bytes exceed %d", name, pushConstantSize, maxPushConstantSize)
	}
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if pushConstantSize > 0 {
		createInfo.PushConstantRangeCount = 1
		createInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageAll),
			Size:       pushConstantSize,
		}}
	}

	rs := &VulkanRootSignature{name: name}
	err := vd.context.locks.SafeCall(PipelineManagement, func() error {
		return vulkanError(fmt.Sprintf("creating pipeline layout %q", name),
			vk.CreatePipelineLayout(vd.LogicalDevice, &createInfo, vd.context.Allocator, &rs.Layout))
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *VulkanRootSignature) Destroy(vd *VulkanDevice) {
	if rs.Layout != nil {
		vd.context.locks.SafeCall(PipelineManagement, func() error {
			vk.DestroyPipelineLayout(vd.LogicalDevice, rs.Layout, vd.context.Allocator)
			return nil
		})
		rs.Layout = nil
	}
}

/**
 * @brief Holds a Vulkan pipeline. It serves both as a graphics and a compute
 * pipeline of the graph.
 */
type VulkanPipeline struct {
	name string
	/** @brief The internal pipeline handle. */
	Handle    vk.Pipeline
	BindPoint vk.PipelineBindPoint
}

func (p *VulkanPipeline) Name() string { return p.name }

type VulkanPipelineConfig struct {
	Name string
	/** @brief The attachments the pipeline renders to. Only formats and layouts matter. */
	Target *metadata.RenderingDesc
	Root   *VulkanRootSignature
	Stages []*VulkanShaderStage
	/** @brief The face cull mode. */
	CullMode   vk.CullModeFlagBits
	DepthTest  bool
	DepthWrite bool
}

// CreateGraphicsPipeline builds a pipeline without vertex input; shaders
// pull their vertices from storage buffers. Viewport and scissor are dynamic.
func (vd *VulkanDevice) CreateGraphicsPipeline(config *VulkanPipelineConfig) (*VulkanPipeline, error) {
	pass, err := vd.renderpasses.get(config.Target)
	if err != nil {
		return nil, err
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, len(config.Stages))
	for i, s := range config.Stages {
		stages[i] = s.ShaderStageCreateInfo
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1.0,
		CullMode:    vk.CullModeFlags(config.CullMode),
		FrontFace:   vk.FrontFaceCounterClockwise,
	}
	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: vk.CompareOpLessOrEqual,
	}
	if config.DepthTest {
		depthStencil.DepthTestEnable = vk.True
	}
	if config.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	blend := make([]vk.PipelineColorBlendAttachmentState, len(config.Target.Colors))
	for i := range blend {
		blend[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:         vk.True,
			SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
			DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			ColorBlendOp:        vk.BlendOpAdd,
			SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
			DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			AlphaBlendOp:        vk.BlendOpAdd,
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
				vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
		}
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blend)),
		PAttachments:    blend,
	}
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              config.Root.Layout,
		RenderPass:          pass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	err = vd.context.locks.SafeCall(PipelineManagement, func() error {
		return vulkanError(fmt.Sprintf("creating graphics pipeline %q", config.Name),
			vk.CreateGraphicsPipelines(vd.LogicalDevice, vk.NullPipelineCache, 1,
				[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, vd.context.Allocator, pipelines))
	})
	if err != nil {
		return nil, err
	}
	core.LogDebug("Graphics pipeline %q created.", config.Name)
	return &VulkanPipeline{name: config.Name, Handle: pipelines[0], BindPoint: vk.PipelineBindPointGraphics}, nil
}

func (vd *VulkanDevice) CreateComputePipeline(name string, shader *VulkanShaderStage, root *VulkanRootSignature) (*VulkanPipeline, error) {
	createInfo := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              shader.ShaderStageCreateInfo,
		Layout:             root.Layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	err := vd.context.locks.SafeCall(PipelineManagement, func() error {
		return vulkanError(fmt.Sprintf("creating compute pipeline %q", name),
			vk.CreateComputePipelines(vd.LogicalDevice, vk.NullPipelineCache, 1,
				[]vk.ComputePipelineCreateInfo{createInfo}, vd.context.Allocator, pipelines))
	})
	if err != nil {
		return nil, err
	}
	core.LogDebug("Compute pipeline %q created.", name)
	return &VulkanPipeline{name: name, Handle: pipelines[0], BindPoint: vk.PipelineBindPointCompute}, nil
}

func (p *VulkanPipeline) Destroy(vd *VulkanDevice) {
	if p.Handle != nil {
		vd.context.locks.SafeCall(PipelineManagement, func() error {
			vk.DestroyPipeline(vd.LogicalDevice, p.Handle, vd.context.Allocator)
			return nil
		})
		p.Handle = nil
	}
}
