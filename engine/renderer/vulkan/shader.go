package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
)

type VulkanShaderStage struct {
	Handle                vk.ShaderModule
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

func NewShaderStage(context *VulkanContext, code []byte, shaderStageFlag vk.ShaderStageFlagBits) (*VulkanShaderStage, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("shader code size %d is not a multiple of 4", len(code))
	}

	stage := &VulkanShaderStage{}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    repackUint32(code),
	}
	if res := vk.CreateShaderModule(
		context.Device.LogicalDevice,
		&createInfo,
		context.Allocator,
		&stage.Handle); res != vk.Success {
		return nil, resultToError(res, "vkCreateShaderModule")
	}

	stage.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  shaderStageFlag,
		Module: stage.Handle,
		PName:  VulkanSafeString("main"),
	}
	return stage, nil
}

func (stage *VulkanShaderStage) Destroy(context *VulkanContext) {
	if stage.Handle != vk.NullShaderModule {
		vk.DestroyShaderModule(context.Device.LogicalDevice, stage.Handle, context.Allocator)
		stage.Handle = vk.NullShaderModule
	}
}

// repackUint32 reinterprets SPIR-V bytes as words without copying the
// underlying data. The caller must keep the byte slice alive for the
// duration of the create call.
func repackUint32(data []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}
