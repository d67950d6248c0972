package vulkan

import (
	"fmt"
	"math"
	"runtime"
	"time"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/lumen-engine/lumen/engine/config"
	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/platform"
	"github.com/lumen-engine/lumen/engine/renderer"
)

// Backend implements renderer.Device on top of Vulkan. All bootstrap state,
// from the instance down to the swapchain, lives in the context; the methods
// translate the device contract into Vulkan calls and map VkResult codes
// onto the core error taxonomy.
type Backend struct {
	platform *platform.Platform
	context  *VulkanContext

	debug bool
}

var _ renderer.Device = (*Backend)(nil)

func New(p *platform.Platform) *Backend {
	return &Backend{
		platform: p,
		context: &VulkanContext{
			Allocator: nil,
			Device:    &VulkanDevice{},
		},
		debug: true,
	}
}

func (b *Backend) Initialize(cfg *config.Config) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return fmt.Errorf("vulkan loader not found: GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to initialize vulkan bindings: %w", err)
	}

	width, height := b.platform.FramebufferSize()
	b.context.FramebufferWidth = width
	b.context.FramebufferHeight = height
	b.context.VSync = cfg.Renderer.VSync

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(cfg.AppName),
		PEngineName:        VulkanSafeString("Lumen Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{"VK_KHR_surface"}
	requiredExtensions = append(requiredExtensions, b.platform.GetRequiredExtensionNames()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
	}
	if b.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		core.LogInfo("Required extensions:")
		for i := 0; i < len(requiredExtensions); i++ {
			core.LogInfo("  %s", requiredExtensions[i])
		}
	}
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	requiredLayers := []string{}
	if b.debug {
		requiredLayers = []string{"VK_LAYER_KHRONOS_validation"}
		if runtime.GOOS == "darwin" {
			createInfo.Flags |= 1
		}
		if err := verifyValidationLayers(requiredLayers); err != nil {
			return err
		}
	}
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	if res := vk.CreateInstance(&createInfo, b.context.Allocator, &b.context.Instance); res != vk.Success {
		return resultToError(res, "vkCreateInstance")
	}
	if err := vk.InitInstance(b.context.Instance); err != nil {
		return fmt.Errorf("failed to initialize instance proc addrs: %w", err)
	}
	core.LogInfo("Vulkan instance created.")

	if b.debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if res := vk.CreateDebugReportCallback(b.context.Instance, &debugCreateInfo, nil, &dbg); res != vk.Success {
			return resultToError(res, "vkCreateDebugReportCallbackEXT")
		}
		b.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	surface, err := b.platform.Window.CreateWindowSurface(b.context.Instance, nil)
	if err != nil {
		return fmt.Errorf("failed to create window surface: %w", err)
	}
	b.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(b.context); err != nil {
		return fmt.Errorf("device creation failed: %w", err)
	}

	sc, err := SwapchainCreate(b.context, b.context.FramebufferWidth, b.context.FramebufferHeight)
	if err != nil {
		return fmt.Errorf("swapchain creation failed: %w", err)
	}
	b.context.Swapchain = sc

	rp, err := RenderpassCreate(b.context, 0.0, 0.0, 0.2, 1.0, 1.0, 0)
	if err != nil {
		return fmt.Errorf("renderpass creation failed: %w", err)
	}
	b.context.MainRenderpass = rp

	if err := b.regenerateFramebuffers(); err != nil {
		return err
	}

	core.LogInfo("Vulkan backend initialized.")
	return nil
}

func (b *Backend) Shutdown() {
	vk.DeviceWaitIdle(b.context.Device.LogicalDevice)

	// Destroy in the opposite order of creation.
	b.context.MainRenderpass.Destroy(b.context)
	b.context.Swapchain.Destroy(b.context)

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(b.context)

	core.LogDebug("Destroying Vulkan surface...")
	if b.context.Surface != vk.NullSurface {
		vk.DestroySurface(b.context.Instance, b.context.Surface, b.context.Allocator)
		b.context.Surface = vk.NullSurface
	}

	if b.debug && b.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(b.context.Instance, b.context.debugMessenger, b.context.Allocator)
	}

	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(b.context.Instance, b.context.Allocator)
}

func (b *Backend) CreateFence(signaled bool) (renderer.Fence, error) {
	return NewFence(b.context, signaled)
}

func (b *Backend) DestroyFence(f renderer.Fence) {
	f.(*VulkanFence).Destroy()
}

func (b *Backend) CreateSemaphore() (renderer.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if res := vk.CreateSemaphore(b.context.Device.LogicalDevice, &semaphoreCreateInfo, b.context.Allocator, &semaphore); res != vk.Success {
		return nil, resultToError(res, "vkCreateSemaphore")
	}
	return semaphore, nil
}

func (b *Backend) DestroySemaphore(s renderer.Semaphore) {
	if s == nil {
		return
	}
	vk.DestroySemaphore(b.context.Device.LogicalDevice, s.(vk.Semaphore), b.context.Allocator)
}

func (b *Backend) CreateCommandBuffer() (renderer.CommandBuffer, error) {
	return NewVulkanCommandBuffer(b.context)
}

func (b *Backend) DestroyCommandBuffer(cb renderer.CommandBuffer) {
	cb.(*VulkanCommandBuffer).Free()
}

func (b *Backend) AllocateBuffer(size uint64, usage renderer.BufferUsage) (renderer.Allocation, error) {
	return createBufferAllocation(b.context, size, usage)
}

func (b *Backend) AllocateImage(extent renderer.Extent, format renderer.ImageFormat, mipLevels, sampleCount uint32) (renderer.Allocation, error) {
	return createImageAllocation(b.context, extent, format, mipLevels, sampleCount)
}

func (b *Backend) Free(a renderer.Allocation) {
	a.(*VulkanAllocation).destroy()
}

func (b *Backend) WriteBuffer(a renderer.Allocation, offset uint64, data []byte) error {
	return a.(*VulkanAllocation).write(offset, data)
}

func (b *Backend) CreatePipeline(cfg renderer.PipelineConfig) (interface{}, error) {
	return NewGraphicsPipeline(b.context, cfg)
}

func (b *Backend) DestroyPipeline(native interface{}) {
	native.(*VulkanPipeline).Destroy(b.context)
}

func (b *Backend) AcquireNextImage(timeout time.Duration, imageAvailable renderer.Semaphore) (uint32, error) {
	timeoutNs := uint64(math.MaxUint64)
	if timeout > 0 {
		timeoutNs = uint64(timeout.Nanoseconds())
	}
	return b.context.Swapchain.AcquireNextImageIndex(b.context, timeoutNs, imageAvailable.(vk.Semaphore))
}

func (b *Backend) Submit(cb renderer.CommandBuffer, waitImageAvailable, signalRenderFinished renderer.Semaphore, fence renderer.Fence) error {
	commandBuffer := cb.(*VulkanCommandBuffer)

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{commandBuffer.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{signalRenderFinished.(vk.Semaphore)},
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{waitImageAvailable.(vk.Semaphore)},
		// The color attachment write must not begin until the swapchain
		// image is available.
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
	}

	var fenceHandle vk.Fence
	if fence != nil {
		fenceHandle = fence.(*VulkanFence).Handle
	}

	if res := vk.QueueSubmit(b.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fenceHandle); res != vk.Success {
		return resultToError(res, "vkQueueSubmit")
	}
	return nil
}

func (b *Backend) Present(waitRenderFinished renderer.Semaphore, imageIndex uint32) error {
	return b.context.Swapchain.Present(b.context, b.context.Device.PresentQueue, waitRenderFinished.(vk.Semaphore), imageIndex)
}

// SubmitTransfer records into a one-shot command buffer on the graphics
// queue and blocks until it drains. Uploads happen outside the frame loop,
// so the stall is acceptable.
func (b *Backend) SubmitTransfer(record func(cb renderer.CommandBuffer) error) error {
	commandBuffer, err := NewVulkanCommandBuffer(b.context)
	if err != nil {
		return err
	}
	if err := commandBuffer.beginSingleUse(); err != nil {
		commandBuffer.Free()
		return err
	}
	if err := record(commandBuffer); err != nil {
		commandBuffer.Free()
		return err
	}
	return commandBuffer.endSingleUse(b.context.Device.GraphicsQueue)
}

func (b *Backend) SwapchainImageCount() int {
	return int(b.context.Swapchain.ImageCount)
}

func (b *Backend) SurfaceExtent() renderer.Extent {
	return renderer.Extent{
		Width:  b.context.FramebufferWidth,
		Height: b.context.FramebufferHeight,
	}
}

func (b *Backend) SurfaceFormat() renderer.ImageFormat {
	return rendererFormat(b.context.Swapchain.ImageFormat.Format)
}

func (b *Backend) RecreateSurface(extent renderer.Extent) error {
	if extent.Width == 0 || extent.Height == 0 {
		return fmt.Errorf("cannot recreate surface at %dx%d: %w", extent.Width, extent.Height, core.ErrSurfaceStale)
	}

	if res := vk.DeviceWaitIdle(b.context.Device.LogicalDevice); res != vk.Success {
		return resultToError(res, "vkDeviceWaitIdle")
	}

	if err := DeviceQuerySwapchainSupport(b.context.Device.PhysicalDevice, b.context.Surface, &b.context.Device.SwapchainSupport); err != nil {
		return err
	}
	if !DeviceDetectDepthFormat(b.context.Device) {
		return fmt.Errorf("failed to find a supported depth format")
	}

	sc, err := b.context.Swapchain.Recreate(b.context, extent.Width, extent.Height)
	if err != nil {
		return err
	}
	b.context.Swapchain = sc
	b.context.FramebufferWidth = extent.Width
	b.context.FramebufferHeight = extent.Height

	return b.regenerateFramebuffers()
}

func (b *Backend) WaitIdle() error {
	if res := vk.DeviceWaitIdle(b.context.Device.LogicalDevice); res != vk.Success {
		return resultToError(res, "vkDeviceWaitIdle")
	}
	return nil
}

func (b *Backend) regenerateFramebuffers() error {
	swapchain := b.context.Swapchain
	swapchain.Framebuffers = make([]*VulkanFramebuffer, swapchain.ImageCount)
	for i := 0; i < int(swapchain.ImageCount); i++ {
		attachments := []vk.ImageView{
			swapchain.Views[i],
			swapchain.DepthAttachment.View,
		}
		fb, err := FramebufferCreate(b.context, b.context.MainRenderpass, b.context.FramebufferWidth, b.context.FramebufferHeight, attachments)
		if err != nil {
			return err
		}
		swapchain.Framebuffers[i] = fb
	}
	return nil
}

func verifyValidationLayers(required []string) error {
	var availableLayerCount uint32
	if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
		return resultToError(res, "vkEnumerateInstanceLayerProperties")
	}
	availableLayers := make([]vk.LayerProperties, availableLayerCount)
	if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
		return resultToError(res, "vkEnumerateInstanceLayerProperties")
	}

	for _, name := range required {
		found := false
		for j := range availableLayers {
			availableLayers[j].Deref()
			end := FindFirstZeroInByteArray(availableLayers[j].LayerName[:])
			if name == vk.ToString(availableLayers[j].LayerName[:end+1]) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("required validation layer is missing: %s", name)
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d: %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("[%s] Code %d: %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
