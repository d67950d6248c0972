package renderer

import "time"

// Extent is a surface or image size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// BufferUsage is a bitmask describing what a buffer is for. Usage decides
// the memory the backend allocates from: uniform and staging buffers are
// host-visible, vertex and index buffers are device-local and filled through
// a staging copy.
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStaging
)

// HostVisible reports whether buffers with this usage are mappable from the
// CPU and writable without a staging copy.
func (u BufferUsage) HostVisible() bool {
	return u&(BufferUsageUniform|BufferUsageStaging) != 0
}

// ImageFormat is the subset of pixel formats the core plumbs through.
type ImageFormat int

const (
	FormatUndefined ImageFormat = iota
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatD32Sfloat
	FormatD24UnormS8Uint

	// Float formats, used for vertex attribute layouts.
	FormatRG32Sfloat
	FormatRGB32Sfloat
	FormatRGBA32Sfloat
)

// IsDepth reports whether the format is a depth/stencil format.
func (f ImageFormat) IsDepth() bool {
	return f == FormatD32Sfloat || f == FormatD24UnormS8Uint
}

// ImageLayout tracks which GPU operations may legally touch an image.
// Transitions are explicit operations recorded into command buffers.
type ImageLayout int

const (
	LayoutUndefined ImageLayout = iota
	LayoutTransferDst
	LayoutShaderReadOnly
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutPresent
)

// Allocation is an opaque device memory allocation owned by the backend.
type Allocation interface {
	Size() uint64
}

// Fence is a CPU-waitable GPU completion signal.
type Fence interface {
	// Wait blocks until the fence signals. A zero timeout waits forever.
	// Expiry or device loss is reported as core.ErrDeviceLost.
	Wait(timeout time.Duration) error
	Reset() error
	Signaled() bool
}

// Semaphore is an opaque GPU-GPU synchronization primitive.
type Semaphore interface{}

// CommandBuffer records draw, copy and barrier commands for one frame slot
// or one transfer submission. Recording methods take resolved resource
// payloads, never handles; handle resolution is the store's job.
type CommandBuffer interface {
	Begin() error
	End() error
	Reset() error

	BeginRenderPass(imageIndex uint32, extent Extent)
	EndRenderPass()

	BindPipeline(p *Pipeline)
	BindVertexBuffer(b *Buffer, offset uint64)
	BindIndexBuffer(b *Buffer, offset uint64)
	BindDescriptorSet(p *Pipeline, ds *DescriptorSet)
	PushConstants(p *Pipeline, data []byte)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)

	CopyBuffer(src, dst *Buffer, srcOffset, dstOffset, size uint64)
	CopyBufferToImage(src *Buffer, dst *Image)
	TransitionImageLayout(img *Image, from, to ImageLayout)
}

// Device is the capability boundary to the native graphics API. The
// bootstrap sequence (instance, physical device, queues, surface) lives
// behind it; the core only sees sync objects, allocations and the
// acquire/submit/present cycle. Everything crossing this boundary reports
// failures with the core error taxonomy.
type Device interface {
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)
	CreateCommandBuffer() (CommandBuffer, error)
	DestroyCommandBuffer(cb CommandBuffer)

	// AllocateBuffer and AllocateImage report exhaustion as
	// core.ErrOutOfMemory.
	AllocateBuffer(size uint64, usage BufferUsage) (Allocation, error)
	AllocateImage(extent Extent, format ImageFormat, mipLevels, sampleCount uint32) (Allocation, error)
	Free(a Allocation)
	// WriteBuffer copies into a host-visible allocation.
	WriteBuffer(a Allocation, offset uint64, data []byte) error

	CreatePipeline(cfg PipelineConfig) (native interface{}, err error)
	DestroyPipeline(native interface{})

	// AcquireNextImage reports surface staleness as core.ErrSurfaceStale.
	AcquireNextImage(timeout time.Duration, imageAvailable Semaphore) (uint32, error)
	Submit(cb CommandBuffer, waitImageAvailable, signalRenderFinished Semaphore, fence Fence) error
	// Present reports staleness as core.ErrSurfaceStale, identically to
	// acquisition.
	Present(waitRenderFinished Semaphore, imageIndex uint32) error

	// SubmitTransfer records into a one-shot command buffer, submits it and
	// blocks until the copy completes. Used for staging uploads.
	SubmitTransfer(record func(cb CommandBuffer) error) error

	SwapchainImageCount() int
	SurfaceExtent() Extent
	SurfaceFormat() ImageFormat
	RecreateSurface(extent Extent) error
	WaitIdle() error
}
