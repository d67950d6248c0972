package vulkan

import (
	"fmt"
	"math"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/lumen-engine/lumen/engine/core"
)

// VulkanFence implements renderer.Fence. IsSignaled caches the last known
// state so repeated waits on an already-signaled fence skip the driver
// call.
type VulkanFence struct {
	context    *VulkanContext
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		context:    context,
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &pFence); res != vk.Success {
		return nil, fmt.Errorf("failed to create fence: %s", VulkanResultString(res, true))
	}
	fence.Handle = pFence
	return fence, nil
}

// Wait blocks until the GPU signals the fence. A zero timeout waits
// forever. Expiry and device loss both leave the renderer unable to make
// progress, so they surface as core.ErrDeviceLost.
func (vf *VulkanFence) Wait(timeout time.Duration) error {
	if vf.IsSignaled {
		return nil
	}

	timeoutNs := uint64(math.MaxUint64)
	if timeout > 0 {
		timeoutNs = uint64(timeout.Nanoseconds())
	}

	result := vk.WaitForFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		return fmt.Errorf("fence wait timed out after %s: %w", timeout, core.ErrDeviceLost)
	default:
		return resultToError(result, "vkWaitForFences")
	}
}

func (vf *VulkanFence) Reset() error {
	if !vf.IsSignaled {
		return nil
	}
	if res := vk.ResetFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
		return fmt.Errorf("failed to reset fence: %s", VulkanResultString(res, true))
	}
	vf.IsSignaled = false
	return nil
}

func (vf *VulkanFence) Signaled() bool {
	if vf.IsSignaled {
		return true
	}
	if vk.GetFenceStatus(vf.context.Device.LogicalDevice, vf.Handle) == vk.Success {
		vf.IsSignaled = true
	}
	return vf.IsSignaled
}

func (vf *VulkanFence) Destroy() {
	if vf.Handle != nil {
		vk.DestroyFence(vf.context.Device.LogicalDevice, vf.Handle, vf.context.Allocator)
		vf.Handle = nil
	}
	vf.IsSignaled = false
}
