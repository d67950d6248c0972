package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-engine/lumen/engine/config"
	"github.com/lumen-engine/lumen/engine/core"
)

func testRendererConfig(framesInFlight int) config.Renderer {
	cfg := config.Default().Renderer
	cfg.FramesInFlight = framesInFlight
	cfg.UniformArenaSize = 1024
	return cfg
}

func newTestFrameSync(t *testing.T, framesInFlight int) (*FrameSync, *ResourceStore, *testDevice) {
	t.Helper()
	device := newTestDevice()
	store := NewResourceStore(device, framesInFlight)
	fs, err := NewFrameSync(device, store, testRendererConfig(framesInFlight))
	require.NoError(t, err)
	return fs, store, device
}

func TestFrameSyncLifecycle(t *testing.T) {
	fs, _, device := newTestFrameSync(t, 2)

	require.NoError(t, fs.BeginFrame())
	assert.Equal(t, FrameRecording, fs.CurrentSlot().State)
	assert.Equal(t, uint64(0), fs.FrameNumber())
	assert.Equal(t, uint32(0), fs.ImageIndex())

	require.NoError(t, fs.EndFrame())
	assert.Equal(t, uint64(1), fs.FrameNumber())
	assert.Equal(t, 1, device.submitCalls)
	assert.Equal(t, 1, device.presentCalls)

	require.NoError(t, fs.BeginFrame())
	assert.Equal(t, uint32(1), fs.ImageIndex())
	require.NoError(t, fs.EndFrame())
}

func TestFrameSyncDoubleBegin(t *testing.T) {
	fs, _, _ := newTestFrameSync(t, 2)

	require.NoError(t, fs.BeginFrame())
	assert.Error(t, fs.BeginFrame())
}

func TestFrameSyncEndWithoutBegin(t *testing.T) {
	fs, _, _ := newTestFrameSync(t, 2)
	assert.Error(t, fs.EndFrame())
}

// With fences that never signal on their own, the CPU can record exactly N
// frames ahead before BeginFrame blocks on the oldest slot's fence.
func TestFrameSyncRunAheadBound(t *testing.T) {
	fs, _, device := newTestFrameSync(t, 2)
	device.autoSignal = false

	for i := 0; i < 2; i++ {
		require.NoError(t, fs.BeginFrame())
		require.NoError(t, fs.EndFrame())
	}

	// Frame 2 reuses slot 0, whose fence is still pending.
	err := fs.BeginFrame()
	require.ErrorIs(t, err, core.ErrDeviceLost)

	// GPU finishes frame 0; the slot becomes reusable.
	fs.slots[0].InFlightFence.(*testFence).signaled = true
	require.NoError(t, fs.BeginFrame())
}

func TestFrameSyncAcquireStale(t *testing.T) {
	fs, _, device := newTestFrameSync(t, 2)
	device.acquireErrs = []error{core.ErrSurfaceStale}

	err := fs.BeginFrame()
	require.ErrorIs(t, err, core.ErrSurfaceStale)
	assert.Equal(t, FrameIdle, fs.CurrentSlot().State)
	assert.Equal(t, uint64(0), fs.FrameNumber())
	assert.Equal(t, 0, device.submitCalls)

	// The slot fence was never reset, so retrying after the surface is
	// fixed does not deadlock.
	require.NoError(t, fs.BeginFrame())
}

func TestFrameSyncPresentStale(t *testing.T) {
	fs, _, device := newTestFrameSync(t, 2)
	device.presentErrs = []error{core.ErrSurfaceStale}

	require.NoError(t, fs.BeginFrame())
	err := fs.EndFrame()
	require.ErrorIs(t, err, core.ErrSurfaceStale)

	// The work was submitted and the frame counted; only presentation
	// failed.
	assert.Equal(t, uint64(1), fs.FrameNumber())
	assert.Equal(t, 1, device.submitCalls)
}

func TestFrameSyncAbort(t *testing.T) {
	fs, _, device := newTestFrameSync(t, 2)

	require.NoError(t, fs.BeginFrame())
	fs.AbortFrame()
	assert.Equal(t, FrameIdle, fs.CurrentSlot().State)
	assert.Equal(t, uint64(0), fs.FrameNumber())
	assert.Equal(t, 0, device.submitCalls)

	require.NoError(t, fs.BeginFrame())
	require.NoError(t, fs.EndFrame())
	assert.Equal(t, uint64(1), fs.FrameNumber())
}

func TestFrameSyncWriteUniform(t *testing.T) {
	fs, store, _ := newTestFrameSync(t, 2)

	_, _, err := fs.WriteUniform([]byte{1})
	assert.Error(t, err, "uniform writes outside recording must fail")

	require.NoError(t, fs.BeginFrame())

	h1, off1, err := fs.WriteUniform(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), off1)

	h2, off2, err := fs.WriteUniform(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, uint64(64), off2)
	assert.Equal(t, h1, h2, "writes within a frame share the slot arena")

	arena, err := store.ResolveBuffer(h1)
	require.NoError(t, err)
	assert.True(t, arena.HostVisible)

	_, _, err = fs.WriteUniform(make([]byte, 2048))
	assert.ErrorIs(t, err, core.ErrOutOfMemory)
	require.NoError(t, fs.EndFrame())

	// The next frame uses a different slot and its offset starts over.
	require.NoError(t, fs.BeginFrame())
	h3, off3, err := fs.WriteUniform(make([]byte, 16))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), off3)
	assert.NotEqual(t, h1, h3)
}

// An image handed out again while an earlier frame still renders to it must
// be waited on before resubmission.
func TestFrameSyncImageInFlight(t *testing.T) {
	fs, _, device := newTestFrameSync(t, 2)
	device.autoSignal = false
	device.imageCount = 1
	fs.ResetImages()

	require.NoError(t, fs.BeginFrame())
	require.NoError(t, fs.EndFrame())

	// Same image, different slot: EndFrame must wait on frame 0's fence.
	require.NoError(t, fs.BeginFrame())
	err := fs.EndFrame()
	require.ErrorIs(t, err, core.ErrDeviceLost)

	fs.slots[0].InFlightFence.(*testFence).signaled = true
	require.NoError(t, fs.EndFrame())
}

func TestFrameSyncDrain(t *testing.T) {
	fs, _, device := newTestFrameSync(t, 2)

	require.NoError(t, fs.BeginFrame())
	assert.Error(t, fs.Drain(), "drain during recording must fail")
	require.NoError(t, fs.EndFrame())

	require.NoError(t, fs.Drain())
	for _, slot := range fs.slots {
		assert.Equal(t, FrameIdle, slot.State)
	}
	assert.Equal(t, 1, device.waitIdleCalls)
}

func TestFrameSyncReclaimsAtFrameBoundary(t *testing.T) {
	fs, store, device := newTestFrameSync(t, 2)

	h := storeBuffer(t, store, device)
	liveBefore := device.liveAllocations()
	require.NoError(t, store.Retire(h, fs.FrameNumber()))

	// Two full frames later the allocation is still referenced by frames
	// potentially in flight; the third boundary frees it.
	for i := 0; i < 2; i++ {
		require.NoError(t, fs.BeginFrame())
		require.NoError(t, fs.EndFrame())
		assert.Equal(t, liveBefore, device.liveAllocations())
	}
	require.NoError(t, fs.BeginFrame())
	require.NoError(t, fs.EndFrame())
	assert.Equal(t, liveBefore-1, device.liveAllocations())
}
