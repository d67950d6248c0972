package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/renderer"
)

// VulkanAllocation implements renderer.Allocation. It backs either a buffer
// or an image; exactly one of the two handle sets is populated.
type VulkanAllocation struct {
	context *VulkanContext
	size    uint64

	Buffer vk.Buffer

	Image vk.Image
	View  vk.ImageView

	Memory      vk.DeviceMemory
	hostVisible bool
}

func (a *VulkanAllocation) Size() uint64 { return a.size }

// bufferUsageFlags maps the renderer usage onto Vulkan usage and memory
// property flags. Vertex and index buffers live in device-local memory and
// are filled with a staging copy; uniform and staging buffers are mapped
// from the CPU.
func bufferUsageFlags(usage renderer.BufferUsage) (vk.BufferUsageFlags, vk.MemoryPropertyFlags) {
	var usageFlags vk.BufferUsageFlags
	if usage&renderer.BufferUsageVertex != 0 {
		usageFlags |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit) | vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	if usage&renderer.BufferUsageIndex != 0 {
		usageFlags |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit) | vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	if usage&renderer.BufferUsageUniform != 0 {
		usageFlags |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if usage&renderer.BufferUsageStaging != 0 {
		usageFlags |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}

	memFlags := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if usage.HostVisible() {
		memFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) |
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	}
	return usageFlags, memFlags
}

func createBufferAllocation(context *VulkanContext, size uint64, usage renderer.BufferUsage) (*VulkanAllocation, error) {
	usageFlags, memFlags := bufferUsageFlags(usage)

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usageFlags,
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &buffer); res != vk.Success {
		return nil, resultToError(res, "vkCreateBuffer")
	}

	var memRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, buffer, &memRequirements)
	memRequirements.Deref()

	memory, err := allocateDeviceMemory(context, memRequirements, memFlags)
	if err != nil {
		vk.DestroyBuffer(context.Device.LogicalDevice, buffer, context.Allocator)
		return nil, err
	}

	if res := vk.BindBufferMemory(context.Device.LogicalDevice, buffer, memory, 0); res != vk.Success {
		vk.FreeMemory(context.Device.LogicalDevice, memory, context.Allocator)
		vk.DestroyBuffer(context.Device.LogicalDevice, buffer, context.Allocator)
		return nil, resultToError(res, "vkBindBufferMemory")
	}

	return &VulkanAllocation{
		context:     context,
		size:        size,
		Buffer:      buffer,
		Memory:      memory,
		hostVisible: usage.HostVisible(),
	}, nil
}

func createImageAllocation(context *VulkanContext, extent renderer.Extent, format renderer.ImageFormat, mipLevels, sampleCount uint32) (*VulkanAllocation, error) {
	vkFormat, err := vulkanFormat(format)
	if err != nil {
		return nil, err
	}

	usage := vk.ImageUsageFlags(vk.ImageUsageTransferDstBit) | vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	if format.IsDepth() {
		usage = vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}

	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  extent.Width,
			Height: extent.Height,
			Depth:  1,
		},
		MipLevels:     mipLevels,
		ArrayLayers:   1,
		Format:        vkFormat,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		Samples:       sampleCountFlag(sampleCount),
	}

	var image vk.Image
	if res := vk.CreateImage(context.Device.LogicalDevice, &imageInfo, context.Allocator, &image); res != vk.Success {
		return nil, resultToError(res, "vkCreateImage")
	}

	var memRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, image, &memRequirements)
	memRequirements.Deref()

	memory, err := allocateDeviceMemory(context, memRequirements, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(context.Device.LogicalDevice, image, context.Allocator)
		return nil, err
	}

	if res := vk.BindImageMemory(context.Device.LogicalDevice, image, memory, 0); res != vk.Success {
		vk.FreeMemory(context.Device.LogicalDevice, memory, context.Allocator)
		vk.DestroyImage(context.Device.LogicalDevice, image, context.Allocator)
		return nil, resultToError(res, "vkBindImageMemory")
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   vkFormat,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     mipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var view vk.ImageView
	if res := vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &view); res != vk.Success {
		vk.FreeMemory(context.Device.LogicalDevice, memory, context.Allocator)
		vk.DestroyImage(context.Device.LogicalDevice, image, context.Allocator)
		return nil, resultToError(res, "vkCreateImageView")
	}

	return &VulkanAllocation{
		context: context,
		size:    uint64(memRequirements.Size),
		Image:   image,
		View:    view,
		Memory:  memory,
	}, nil
}

func allocateDeviceMemory(context *VulkanContext, requirements vk.MemoryRequirements, properties vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	memoryIndex := context.FindMemoryIndex(requirements.MemoryTypeBits, uint32(properties))
	if memoryIndex < 0 {
		return nil, fmt.Errorf("no memory type matches filter 0x%x: %w", requirements.MemoryTypeBits, core.ErrOutOfMemory)
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}

	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocInfo, context.Allocator, &memory); res != vk.Success {
		return nil, resultToError(res, "vkAllocateMemory")
	}
	return memory, nil
}

// write maps the allocation and copies data in at the given offset. Only
// valid for host-visible memory.
func (a *VulkanAllocation) write(offset uint64, data []byte) error {
	if !a.hostVisible {
		return fmt.Errorf("write to non host-visible allocation")
	}

	var pData unsafe.Pointer
	if res := vk.MapMemory(a.context.Device.LogicalDevice, a.Memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &pData); res != vk.Success {
		return resultToError(res, "vkMapMemory")
	}
	vk.Memcopy(pData, data)
	vk.UnmapMemory(a.context.Device.LogicalDevice, a.Memory)
	return nil
}

func (a *VulkanAllocation) destroy() {
	device := a.context.Device.LogicalDevice
	if a.View != nil {
		vk.DestroyImageView(device, a.View, a.context.Allocator)
		a.View = nil
	}
	if a.Image != nil {
		vk.DestroyImage(device, a.Image, a.context.Allocator)
		a.Image = nil
	}
	if a.Buffer != nil {
		vk.DestroyBuffer(device, a.Buffer, a.context.Allocator)
		a.Buffer = nil
	}
	if a.Memory != nil {
		vk.FreeMemory(device, a.Memory, a.context.Allocator)
		a.Memory = nil
	}
}

func vulkanFormat(format renderer.ImageFormat) (vk.Format, error) {
	switch format {
	case renderer.FormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm, nil
	case renderer.FormatBGRA8Unorm:
		return vk.FormatB8g8r8a8Unorm, nil
	case renderer.FormatD32Sfloat:
		return vk.FormatD32Sfloat, nil
	case renderer.FormatD24UnormS8Uint:
		return vk.FormatD24UnormS8Uint, nil
	case renderer.FormatRG32Sfloat:
		return vk.FormatR32g32Sfloat, nil
	case renderer.FormatRGB32Sfloat:
		return vk.FormatR32g32b32Sfloat, nil
	case renderer.FormatRGBA32Sfloat:
		return vk.FormatR32g32b32a32Sfloat, nil
	}
	return vk.FormatUndefined, fmt.Errorf("unsupported image format %d", format)
}

func rendererFormat(format vk.Format) renderer.ImageFormat {
	switch format {
	case vk.FormatR8g8b8a8Unorm:
		return renderer.FormatRGBA8Unorm
	case vk.FormatB8g8r8a8Unorm:
		return renderer.FormatBGRA8Unorm
	case vk.FormatD32Sfloat:
		return renderer.FormatD32Sfloat
	case vk.FormatD24UnormS8Uint:
		return renderer.FormatD24UnormS8Uint
	}
	return renderer.FormatUndefined
}

func sampleCountFlag(samples uint32) vk.SampleCountFlagBits {
	switch samples {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	default:
		return vk.SampleCount1Bit
	}
}
