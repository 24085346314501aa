package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
)

var errEmptyShader = errors.New("vulkan: empty SPIR-V module")

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

// NewShaderModule wraps SPIR-V words in a module whose entry point is main.
func NewShaderModule(vd *VulkanDevice, name string, spirv []uint32, stage vk.ShaderStageFlagBits) (*VulkanShaderStage, error) {
	if len(spirv) == 0 {
		return nil, fmt.Errorf("shader %q: %w", name, errEmptyShader)
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(spirv) * 4),
		PCode:    spirv,
	}

	s := &VulkanShaderStage{}
	err := vd.context.locks.SafeCall(ShaderManagement, func() error {
		return vulkanError(fmt.Sprintf("creating shader module %q", name),
			vk.CreateShaderModule(vd.LogicalDevice, &createInfo, vd.context.Allocator, &s.Handle))
	})
	if err != nil {
		return nil, err
	}

	s.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: s.Handle,
		PName:  VulkanSafeString("main"),
	}
	return s, nil
}

func (s *VulkanShaderStage) Destroy(vd *VulkanDevice) {
	if s.Handle != nil {
		vk.DestroyShaderModule(vd.LogicalDevice, s.Handle, vd.context.Allocator)
		s.Handle = nil
	}
}
