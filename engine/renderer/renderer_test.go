package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-engine/lumen/engine/core"
)

func newTestRenderer(t *testing.T, framesInFlight int) (*Renderer, *testDevice) {
	t.Helper()
	device := newTestDevice()
	r, err := New(device, testRendererConfig(framesInFlight))
	require.NoError(t, err)
	return r, device
}

func testPipelineConfig(surfaceDependent bool) PipelineConfig {
	return PipelineConfig{
		VertexShader:     []byte{0x03, 0x02, 0x23, 0x07},
		FragmentShader:   []byte{0x03, 0x02, 0x23, 0x07},
		SurfaceDependent: surfaceDependent,
	}
}

func TestRendererCreateBufferHostVisible(t *testing.T) {
	r, device := newTestRenderer(t, 2)

	data := []byte{1, 2, 3, 4}
	h, err := r.CreateBuffer(64, BufferUsageUniform, data)
	require.NoError(t, err)

	buffer, err := r.store.ResolveBuffer(h)
	require.NoError(t, err)
	assert.True(t, buffer.HostVisible)
	assert.Equal(t, data, buffer.Allocation.(*testAllocation).content[:4])
	assert.Equal(t, 0, device.transferCalls, "host-visible writes bypass staging")
}

func TestRendererCreateBufferStagingUpload(t *testing.T) {
	r, device := newTestRenderer(t, 2)

	h, err := r.CreateBuffer(64, BufferUsageVertex, []byte{9, 9, 9})
	require.NoError(t, err)

	assert.Equal(t, 1, device.transferCalls)
	assert.Contains(t, device.lastTransferCB.ops, "copy-buffer(3)")

	buffer, err := r.store.ResolveBuffer(h)
	require.NoError(t, err)
	assert.False(t, buffer.Allocation.(*testAllocation).freed)
}

func TestRendererCreateBufferValidation(t *testing.T) {
	r, _ := newTestRenderer(t, 2)

	_, err := r.CreateBuffer(0, BufferUsageVertex, nil)
	assert.Error(t, err)

	_, err = r.CreateBuffer(2, BufferUsageVertex, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestRendererCreateBufferOutOfMemory(t *testing.T) {
	r, device := newTestRenderer(t, 2)
	device.failAlloc = true

	_, err := r.CreateBuffer(64, BufferUsageVertex, nil)
	assert.ErrorIs(t, err, core.ErrOutOfMemory)
}

func TestRendererUpdateBufferInPlace(t *testing.T) {
	r, _ := newTestRenderer(t, 2)

	h, err := r.CreateBuffer(64, BufferUsageUniform, nil)
	require.NoError(t, err)
	before, err := r.store.ResolveBuffer(h)
	require.NoError(t, err)
	alloc := before.Allocation

	require.NoError(t, r.UpdateBuffer(h, 8, []byte{7, 7}))

	after, err := r.store.ResolveBuffer(h)
	require.NoError(t, err)
	assert.Same(t, alloc, after.Allocation, "content updates must not reallocate")
	assert.Equal(t, []byte{7, 7}, alloc.(*testAllocation).content[8:10])

	assert.Error(t, r.UpdateBuffer(h, 63, []byte{1, 2}), "out-of-range update")
}

func TestRendererCreateImageUpload(t *testing.T) {
	r, device := newTestRenderer(t, 2)

	pixels := make([]byte, 4*4*4)
	h, err := r.CreateImage(Extent{Width: 4, Height: 4}, FormatRGBA8Unorm, 1, 1, pixels)
	require.NoError(t, err)

	image, err := r.store.ResolveImage(h)
	require.NoError(t, err)
	assert.Equal(t, LayoutShaderReadOnly, image.Layout)

	require.Equal(t, 1, device.transferCalls)
	assert.Equal(t, []string{
		"transition(0->1)",
		"copy-buffer-to-image",
		"transition(1->2)",
	}, device.lastTransferCB.ops)
}

func TestRendererCreateImageWithoutPixels(t *testing.T) {
	r, _ := newTestRenderer(t, 2)

	h, err := r.CreateImage(Extent{Width: 4, Height: 4}, FormatD32Sfloat, 0, 0, nil)
	require.NoError(t, err)

	image, err := r.store.ResolveImage(h)
	require.NoError(t, err)
	assert.Equal(t, LayoutUndefined, image.Layout)
	assert.Equal(t, uint32(1), image.MipLevels)
}

func TestRendererDraw(t *testing.T) {
	r, _ := newTestRenderer(t, 2)

	vertices, err := r.CreateBuffer(64, BufferUsageVertex, nil)
	require.NoError(t, err)
	pipeline, err := r.CreatePipeline(testPipelineConfig(false))
	require.NoError(t, err)

	require.NoError(t, r.BeginFrame())
	require.NoError(t, r.Draw(DrawCommand{
		Pipeline:    pipeline,
		Resources:   []Handle{vertices},
		VertexCount: 3,
	}))

	cb := r.frames.CurrentSlot().CommandBuffer.(*testCommandBuffer)
	assert.Contains(t, cb.ops, "bind-pipeline")
	assert.Contains(t, cb.ops, "bind-vertex-buffer")
	assert.Contains(t, cb.ops, "draw(3,1)")

	require.NoError(t, r.EndFrame())
}

func TestRendererDrawOutsideFrame(t *testing.T) {
	r, _ := newTestRenderer(t, 2)

	pipeline, err := r.CreatePipeline(testPipelineConfig(false))
	require.NoError(t, err)
	assert.Error(t, r.Draw(DrawCommand{Pipeline: pipeline, VertexCount: 3}))
}

// A stale handle inside a draw aborts the whole frame: nothing partial gets
// submitted and the caller sees the resolution error.
func TestRendererDrawStaleHandleAbortsFrame(t *testing.T) {
	r, device := newTestRenderer(t, 2)

	vertices, err := r.CreateBuffer(64, BufferUsageVertex, nil)
	require.NoError(t, err)
	pipeline, err := r.CreatePipeline(testPipelineConfig(false))
	require.NoError(t, err)
	require.NoError(t, r.Destroy(vertices))

	require.NoError(t, r.BeginFrame())
	err = r.Draw(DrawCommand{Pipeline: pipeline, Resources: []Handle{vertices}, VertexCount: 3})
	require.ErrorIs(t, err, core.ErrStaleHandle)

	assert.Equal(t, FrameIdle, r.frames.CurrentSlot().State)
	assert.Equal(t, 0, device.submitCalls)

	// The aborted slot is immediately reusable.
	require.NoError(t, r.BeginFrame())
	require.NoError(t, r.EndFrame())
}

func TestRendererDrawBindsDescriptorSet(t *testing.T) {
	r, _ := newTestRenderer(t, 2)

	set, err := r.store.Create(&DescriptorSet{Native: "set-0"})
	require.NoError(t, err)
	pipeline, err := r.CreatePipeline(testPipelineConfig(false))
	require.NoError(t, err)

	resolved, err := r.store.ResolveDescriptorSet(set)
	require.NoError(t, err)
	assert.Equal(t, "set-0", resolved.Native)

	require.NoError(t, r.BeginFrame())
	require.NoError(t, r.Draw(DrawCommand{
		Pipeline:    pipeline,
		Resources:   []Handle{set},
		VertexCount: 3,
	}))

	cb := r.frames.CurrentSlot().CommandBuffer.(*testCommandBuffer)
	assert.Contains(t, cb.ops, "bind-descriptor-set")

	require.NoError(t, r.EndFrame())
}

// Sampling is only legal from ShaderReadOnly; an image still in its initial
// layout must be rejected at record time and the frame rolled back.
func TestRendererDrawRejectsUnreadableImage(t *testing.T) {
	r, device := newTestRenderer(t, 2)

	image, err := r.CreateImage(Extent{Width: 4, Height: 4}, FormatRGBA8Unorm, 1, 1, nil)
	require.NoError(t, err)
	pipeline, err := r.CreatePipeline(testPipelineConfig(false))
	require.NoError(t, err)

	img, err := r.store.ResolveImage(image)
	require.NoError(t, err)
	require.Equal(t, LayoutUndefined, img.Layout)

	require.NoError(t, r.BeginFrame())
	err = r.Draw(DrawCommand{Pipeline: pipeline, Resources: []Handle{image}, VertexCount: 3})
	assert.Error(t, err)
	assert.Equal(t, FrameIdle, r.frames.CurrentSlot().State)
	assert.Equal(t, 0, device.submitCalls)
}

func TestRendererDrawPushConstantLimit(t *testing.T) {
	r, _ := newTestRenderer(t, 2)

	pipeline, err := r.CreatePipeline(testPipelineConfig(false))
	require.NoError(t, err)

	require.NoError(t, r.BeginFrame())
	err = r.Draw(DrawCommand{
		Pipeline:      pipeline,
		PushConstants: make([]byte, maxPushConstantBytes+4),
		VertexCount:   3,
	})
	assert.Error(t, err)
	assert.Equal(t, FrameIdle, r.frames.CurrentSlot().State)
}

func TestRendererSurfaceStaleLatch(t *testing.T) {
	r, device := newTestRenderer(t, 2)
	device.acquireErrs = []error{core.ErrSurfaceStale}

	require.ErrorIs(t, r.BeginFrame(), core.ErrSurfaceStale)

	// Every further frame is refused without touching the device until a
	// resize clears the latch.
	acquires := device.acquireCalls
	require.ErrorIs(t, r.BeginFrame(), core.ErrSurfaceStale)
	assert.Equal(t, acquires, device.acquireCalls)

	require.NoError(t, r.Resize(Extent{Width: 1024, Height: 768}))
	require.NoError(t, r.BeginFrame())
	require.NoError(t, r.EndFrame())
}

func TestRendererPresentStaleLatch(t *testing.T) {
	r, device := newTestRenderer(t, 2)
	device.presentErrs = []error{core.ErrSurfaceStale}

	require.NoError(t, r.BeginFrame())
	require.ErrorIs(t, r.EndFrame(), core.ErrSurfaceStale)
	require.ErrorIs(t, r.BeginFrame(), core.ErrSurfaceStale)

	require.NoError(t, r.Resize(Extent{Width: 1024, Height: 768}))
	require.NoError(t, r.BeginFrame())
}

// Handles survive a resize: surface-dependent pipelines are rebuilt in
// place under the same slot and generation.
func TestRendererResizeRebuildsPipelines(t *testing.T) {
	r, device := newTestRenderer(t, 2)

	dependent, err := r.CreatePipeline(testPipelineConfig(true))
	require.NoError(t, err)
	independent, err := r.CreatePipeline(testPipelineConfig(false))
	require.NoError(t, err)

	depBefore, err := r.store.ResolvePipeline(dependent)
	require.NoError(t, err)
	nativeBefore := depBefore.Native
	indepBefore, err := r.store.ResolvePipeline(independent)
	require.NoError(t, err)
	indepNative := indepBefore.Native

	require.NoError(t, r.Resize(Extent{Width: 1024, Height: 768}))
	assert.Equal(t, Extent{Width: 1024, Height: 768}, device.SurfaceExtent())

	depAfter, err := r.store.ResolvePipeline(dependent)
	require.NoError(t, err)
	assert.NotEqual(t, nativeBefore, depAfter.Native)
	assert.Equal(t, device.pipelinesDestroyed, []interface{}{nativeBefore})

	indepAfter, err := r.store.ResolvePipeline(independent)
	require.NoError(t, err)
	assert.Equal(t, indepNative, indepAfter.Native, "surface-independent pipelines keep their native object")
}

func TestRendererResizeIgnoresZeroExtent(t *testing.T) {
	r, device := newTestRenderer(t, 2)
	device.acquireErrs = []error{core.ErrSurfaceStale}
	require.ErrorIs(t, r.BeginFrame(), core.ErrSurfaceStale)

	// Minimized window: the latch stays until a usable extent arrives.
	require.NoError(t, r.Resize(Extent{}))
	require.ErrorIs(t, r.BeginFrame(), core.ErrSurfaceStale)
}

func TestRendererDestroyDeferred(t *testing.T) {
	r, device := newTestRenderer(t, 2)

	h, err := r.CreateBuffer(64, BufferUsageVertex, nil)
	require.NoError(t, err)
	live := device.liveAllocations()

	require.NoError(t, r.Destroy(h))
	_, resolveErr := r.store.ResolveBuffer(h)
	assert.ErrorIs(t, resolveErr, core.ErrStaleHandle)

	for i := 0; i < 2; i++ {
		require.NoError(t, r.BeginFrame())
		require.NoError(t, r.EndFrame())
		assert.Equal(t, live, device.liveAllocations())
	}
	require.NoError(t, r.BeginFrame())
	require.NoError(t, r.EndFrame())
	assert.Equal(t, live-1, device.liveAllocations())
}

func TestRendererWriteFrameUniform(t *testing.T) {
	r, _ := newTestRenderer(t, 2)

	require.NoError(t, r.BeginFrame())
	h, offset, err := r.WriteFrameUniform([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.False(t, h.IsNil())
	assert.Equal(t, uint64(0), offset)
	require.NoError(t, r.EndFrame())
}

func TestRendererShutdown(t *testing.T) {
	r, device := newTestRenderer(t, 2)

	_, err := r.CreateBuffer(64, BufferUsageVertex, nil)
	require.NoError(t, err)
	require.NoError(t, r.BeginFrame())
	require.NoError(t, r.EndFrame())

	require.NoError(t, r.Shutdown())
	assert.Equal(t, 0, device.liveAllocations())
	assert.GreaterOrEqual(t, device.waitIdleCalls, 1)
}
