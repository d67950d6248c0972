package renderer

import (
	"fmt"
	"time"

	"github.com/lumen-engine/lumen/engine/core"
)

// testFence signals only when the test (or the device's auto-complete mode)
// says so; waiting on an unsignaled fence fails like a timed-out GPU would.
type testFence struct {
	signaled bool
}

func (f *testFence) Wait(timeout time.Duration) error {
	if !f.signaled {
		return fmt.Errorf("test fence never signaled: %w", core.ErrDeviceLost)
	}
	return nil
}

func (f *testFence) Reset() error {
	f.signaled = false
	return nil
}

func (f *testFence) Signaled() bool { return f.signaled }

type testSemaphore struct{}

type testAllocation struct {
	size    uint64
	content []byte
	freed   bool
}

func (a *testAllocation) Size() uint64 { return a.size }

// testCommandBuffer records the names of the commands issued into it so
// tests can assert on recording order.
type testCommandBuffer struct {
	ops       []string
	recording bool
}

func (cb *testCommandBuffer) Begin() error {
	cb.recording = true
	return nil
}

func (cb *testCommandBuffer) End() error {
	cb.recording = false
	return nil
}

func (cb *testCommandBuffer) Reset() error {
	cb.ops = nil
	cb.recording = false
	return nil
}

func (cb *testCommandBuffer) BeginRenderPass(imageIndex uint32, extent Extent) {
	cb.ops = append(cb.ops, fmt.Sprintf("begin-render-pass(%d)", imageIndex))
}

func (cb *testCommandBuffer) EndRenderPass() {
	cb.ops = append(cb.ops, "end-render-pass")
}

func (cb *testCommandBuffer) BindPipeline(p *Pipeline) {
	cb.ops = append(cb.ops, "bind-pipeline")
}

func (cb *testCommandBuffer) BindVertexBuffer(b *Buffer, offset uint64) {
	cb.ops = append(cb.ops, "bind-vertex-buffer")
}

func (cb *testCommandBuffer) BindIndexBuffer(b *Buffer, offset uint64) {
	cb.ops = append(cb.ops, "bind-index-buffer")
}

func (cb *testCommandBuffer) BindDescriptorSet(p *Pipeline, ds *DescriptorSet) {
	cb.ops = append(cb.ops, "bind-descriptor-set")
}

func (cb *testCommandBuffer) PushConstants(p *Pipeline, data []byte) {
	cb.ops = append(cb.ops, fmt.Sprintf("push-constants(%d)", len(data)))
}

func (cb *testCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	cb.ops = append(cb.ops, fmt.Sprintf("draw(%d,%d)", vertexCount, instanceCount))
}

func (cb *testCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	cb.ops = append(cb.ops, fmt.Sprintf("draw-indexed(%d,%d)", indexCount, instanceCount))
}

func (cb *testCommandBuffer) CopyBuffer(src, dst *Buffer, srcOffset, dstOffset, size uint64) {
	cb.ops = append(cb.ops, fmt.Sprintf("copy-buffer(%d)", size))
}

func (cb *testCommandBuffer) CopyBufferToImage(src *Buffer, dst *Image) {
	cb.ops = append(cb.ops, "copy-buffer-to-image")
}

func (cb *testCommandBuffer) TransitionImageLayout(img *Image, from, to ImageLayout) {
	cb.ops = append(cb.ops, fmt.Sprintf("transition(%d->%d)", from, to))
}

// testDevice is a scriptable in-memory device. Fences do not signal on
// their own: autoSignal makes Submit complete instantly, otherwise the test
// drives completion by hand.
type testDevice struct {
	// autoSignal signals the submit fence immediately, collapsing the GPU
	// timeline onto the CPU one.
	autoSignal bool

	extent      Extent
	format      ImageFormat
	imageCount  int
	nextImage   uint32
	acquireErrs []error
	presentErrs []error

	acquireCalls  int
	presentCalls  int
	submitCalls   int
	transferCalls int
	waitIdleCalls int

	allocations []*testAllocation
	failAlloc   bool

	pipelinesCreated   int
	pipelinesDestroyed []interface{}
	lastTransferCB     *testCommandBuffer
}

func newTestDevice() *testDevice {
	return &testDevice{
		autoSignal: true,
		extent:     Extent{Width: 800, Height: 600},
		format:     FormatBGRA8Unorm,
		imageCount: 3,
	}
}

func (d *testDevice) CreateFence(signaled bool) (Fence, error) {
	return &testFence{signaled: signaled}, nil
}

func (d *testDevice) DestroyFence(f Fence) {}

func (d *testDevice) CreateSemaphore() (Semaphore, error) {
	return &testSemaphore{}, nil
}

func (d *testDevice) DestroySemaphore(s Semaphore) {}

func (d *testDevice) CreateCommandBuffer() (CommandBuffer, error) {
	return &testCommandBuffer{}, nil
}

func (d *testDevice) DestroyCommandBuffer(cb CommandBuffer) {}

func (d *testDevice) AllocateBuffer(size uint64, usage BufferUsage) (Allocation, error) {
	if d.failAlloc {
		return nil, fmt.Errorf("test allocator: %w", core.ErrOutOfMemory)
	}
	a := &testAllocation{size: size, content: make([]byte, size)}
	d.allocations = append(d.allocations, a)
	return a, nil
}

func (d *testDevice) AllocateImage(extent Extent, format ImageFormat, mipLevels, sampleCount uint32) (Allocation, error) {
	if d.failAlloc {
		return nil, fmt.Errorf("test allocator: %w", core.ErrOutOfMemory)
	}
	a := &testAllocation{size: uint64(extent.Width) * uint64(extent.Height) * 4}
	d.allocations = append(d.allocations, a)
	return a, nil
}

func (d *testDevice) Free(a Allocation) {
	a.(*testAllocation).freed = true
}

func (d *testDevice) WriteBuffer(a Allocation, offset uint64, data []byte) error {
	alloc := a.(*testAllocation)
	if offset+uint64(len(data)) > alloc.size {
		return fmt.Errorf("test write out of bounds: %w", core.ErrOutOfMemory)
	}
	copy(alloc.content[offset:], data)
	return nil
}

func (d *testDevice) CreatePipeline(cfg PipelineConfig) (interface{}, error) {
	d.pipelinesCreated++
	return fmt.Sprintf("pipeline-%d", d.pipelinesCreated), nil
}

func (d *testDevice) DestroyPipeline(native interface{}) {
	d.pipelinesDestroyed = append(d.pipelinesDestroyed, native)
}

func (d *testDevice) AcquireNextImage(timeout time.Duration, imageAvailable Semaphore) (uint32, error) {
	d.acquireCalls++
	if len(d.acquireErrs) > 0 {
		err := d.acquireErrs[0]
		d.acquireErrs = d.acquireErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	idx := d.nextImage
	d.nextImage = (d.nextImage + 1) % uint32(d.imageCount)
	return idx, nil
}

func (d *testDevice) Submit(cb CommandBuffer, waitImageAvailable, signalRenderFinished Semaphore, fence Fence) error {
	d.submitCalls++
	if d.autoSignal {
		fence.(*testFence).signaled = true
	}
	return nil
}

func (d *testDevice) Present(waitRenderFinished Semaphore, imageIndex uint32) error {
	d.presentCalls++
	if len(d.presentErrs) > 0 {
		err := d.presentErrs[0]
		d.presentErrs = d.presentErrs[1:]
		return err
	}
	return nil
}

func (d *testDevice) SubmitTransfer(record func(cb CommandBuffer) error) error {
	d.transferCalls++
	cb := &testCommandBuffer{}
	d.lastTransferCB = cb
	return record(cb)
}

func (d *testDevice) SwapchainImageCount() int { return d.imageCount }

func (d *testDevice) SurfaceExtent() Extent { return d.extent }

func (d *testDevice) SurfaceFormat() ImageFormat { return d.format }

func (d *testDevice) RecreateSurface(extent Extent) error {
	d.extent = extent
	d.nextImage = 0
	return nil
}

func (d *testDevice) WaitIdle() error {
	d.waitIdleCalls++
	return nil
}

// liveAllocations counts allocations the device handed out that were never
// freed.
func (d *testDevice) liveAllocations() int {
	live := 0
	for _, a := range d.allocations {
		if !a.freed {
			live++
		}
	}
	return live
}
