package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/lumen-engine/lumen/engine/renderer"
)

// VulkanCommandBuffer implements renderer.CommandBuffer on a primary
// command buffer from the graphics pool.
type VulkanCommandBuffer struct {
	context *VulkanContext
	Handle  vk.CommandBuffer
}

func NewVulkanCommandBuffer(context *VulkanContext) (*VulkanCommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        context.Device.GraphicsCommandPool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}

	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		return nil, resultToError(res, "vkAllocateCommandBuffers")
	}
	return &VulkanCommandBuffer{context: context, Handle: handles[0]}, nil
}

func (v *VulkanCommandBuffer) Free() {
	if v.Handle != nil {
		vk.FreeCommandBuffers(v.context.Device.LogicalDevice, v.context.Device.GraphicsCommandPool, 1, []vk.CommandBuffer{v.Handle})
		v.Handle = nil
	}
}

func (v *VulkanCommandBuffer) Begin() error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if res := vk.BeginCommandBuffer(v.Handle, &beginInfo); res != vk.Success {
		return resultToError(res, "vkBeginCommandBuffer")
	}
	return nil
}

func (v *VulkanCommandBuffer) beginSingleUse() error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(v.Handle, &beginInfo); res != vk.Success {
		return resultToError(res, "vkBeginCommandBuffer")
	}
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		return resultToError(res, "vkEndCommandBuffer")
	}
	return nil
}

func (v *VulkanCommandBuffer) Reset() error {
	if res := vk.ResetCommandBuffer(v.Handle, 0); res != vk.Success {
		return resultToError(res, "vkResetCommandBuffer")
	}
	return nil
}

// BeginRenderPass starts the main render pass against the swapchain
// framebuffer for the acquired image and sets the dynamic viewport and
// scissor to cover the full extent.
func (v *VulkanCommandBuffer) BeginRenderPass(imageIndex uint32, extent renderer.Extent) {
	framebuffer := v.context.Swapchain.Framebuffers[imageIndex]
	v.context.MainRenderpass.Begin(v, framebuffer.Handle, extent.Width, extent.Height)

	viewport := vk.Viewport{
		X:        0,
		Y:        float32(extent.Height),
		Width:    float32(extent.Width),
		Height:   -float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{scissor})
}

func (v *VulkanCommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(v.Handle)
}

func (v *VulkanCommandBuffer) BindPipeline(p *renderer.Pipeline) {
	pipeline := p.Native.(*VulkanPipeline)
	vk.CmdBindPipeline(v.Handle, vk.PipelineBindPointGraphics, pipeline.Handle)
}

func (v *VulkanCommandBuffer) BindVertexBuffer(b *renderer.Buffer, offset uint64) {
	alloc := b.Allocation.(*VulkanAllocation)
	vk.CmdBindVertexBuffers(v.Handle, 0, 1, []vk.Buffer{alloc.Buffer}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (v *VulkanCommandBuffer) BindIndexBuffer(b *renderer.Buffer, offset uint64) {
	alloc := b.Allocation.(*VulkanAllocation)
	vk.CmdBindIndexBuffer(v.Handle, alloc.Buffer, vk.DeviceSize(offset), vk.IndexTypeUint32)
}

func (v *VulkanCommandBuffer) BindDescriptorSet(p *renderer.Pipeline, ds *renderer.DescriptorSet) {
	pipeline := p.Native.(*VulkanPipeline)
	set := ds.Native.(vk.DescriptorSet)
	vk.CmdBindDescriptorSets(v.Handle, vk.PipelineBindPointGraphics, pipeline.PipelineLayout, 0, 1, []vk.DescriptorSet{set}, 0, nil)
}

func (v *VulkanCommandBuffer) PushConstants(p *renderer.Pipeline, data []byte) {
	pipeline := p.Native.(*VulkanPipeline)
	stages := vk.ShaderStageFlags(vk.ShaderStageVertexBit) | vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	vk.CmdPushConstants(v.Handle, pipeline.PipelineLayout, stages, 0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (v *VulkanCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(v.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(v.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (v *VulkanCommandBuffer) CopyBuffer(src, dst *renderer.Buffer, srcOffset, dstOffset, size uint64) {
	srcAlloc := src.Allocation.(*VulkanAllocation)
	dstAlloc := dst.Allocation.(*VulkanAllocation)
	region := vk.BufferCopy{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(v.Handle, srcAlloc.Buffer, dstAlloc.Buffer, 1, []vk.BufferCopy{region})
}

func (v *VulkanCommandBuffer) CopyBufferToImage(src *renderer.Buffer, dst *renderer.Image) {
	srcAlloc := src.Allocation.(*VulkanAllocation)
	dstAlloc := dst.Allocation.(*VulkanAllocation)

	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{X: 0, Y: 0, Z: 0},
		ImageExtent: vk.Extent3D{
			Width:  dst.Extent.Width,
			Height: dst.Extent.Height,
			Depth:  1,
		},
	}
	vk.CmdCopyBufferToImage(v.Handle, srcAlloc.Buffer, dstAlloc.Image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

// TransitionImageLayout records a pipeline barrier moving the image between
// layouts. Legality of the transition is checked above the backend; here
// only the access masks and stages are derived.
func (v *VulkanCommandBuffer) TransitionImageLayout(img *renderer.Image, from, to renderer.ImageLayout) {
	alloc := img.Allocation.(*VulkanAllocation)

	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	if img.Format.IsDepth() {
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           vulkanImageLayout(from),
		NewLayout:           vulkanImageLayout(to),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               alloc.Image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     img.MipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var srcStage, dstStage vk.PipelineStageFlags
	switch {
	case from == renderer.LayoutUndefined && to == renderer.LayoutTransferDst:
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case from == renderer.LayoutTransferDst && to == renderer.LayoutShaderReadOnly:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	default:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessMemoryWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessMemoryReadBit) | vk.AccessFlags(vk.AccessMemoryWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}

	vk.CmdPipelineBarrier(v.Handle, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func vulkanImageLayout(layout renderer.ImageLayout) vk.ImageLayout {
	switch layout {
	case renderer.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case renderer.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case renderer.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case renderer.LayoutDepthAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case renderer.LayoutPresent:
		return vk.ImageLayoutPresentSrc
	default:
		return vk.ImageLayoutUndefined
	}
}

var _ renderer.CommandBuffer = (*VulkanCommandBuffer)(nil)

// endSingleUse submits a one-shot command buffer to the given queue and
// blocks until it completes.
func (v *VulkanCommandBuffer) endSingleUse(queue vk.Queue) error {
	defer v.Free()
	if err := v.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	if res := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, nil); res != vk.Success {
		return resultToError(res, "vkQueueSubmit")
	}
	if res := vk.QueueWaitIdle(queue); res != vk.Success {
		return fmt.Errorf("transfer queue wait: %w", resultToError(res, "vkQueueWaitIdle"))
	}
	return nil
}
