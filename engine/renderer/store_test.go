package renderer

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-engine/lumen/engine/core"
)

func newTestStore(framesInFlight int) (*ResourceStore, *testDevice) {
	device := newTestDevice()
	return NewResourceStore(device, framesInFlight), device
}

func storeBuffer(t *testing.T, store *ResourceStore, device *testDevice) Handle {
	t.Helper()
	alloc, err := device.AllocateBuffer(256, BufferUsageVertex)
	require.NoError(t, err)
	h, err := store.Create(&Buffer{Size: 256, Usage: BufferUsageVertex, Allocation: alloc})
	require.NoError(t, err)
	return h
}

func TestStoreCreateAndResolve(t *testing.T) {
	store, device := newTestStore(2)

	h := storeBuffer(t, store, device)
	assert.False(t, h.IsNil())
	assert.Equal(t, uint32(1), h.Generation)

	buffer, err := store.ResolveBuffer(h)
	require.NoError(t, err)
	assert.Equal(t, uint64(256), buffer.Size)
	assert.NotEqual(t, uuid.Nil, buffer.DebugID())
	assert.Equal(t, 1, store.Live())
}

func TestStoreInvalidHandle(t *testing.T) {
	store, _ := newTestStore(2)

	_, err := store.Resolve(Handle{Index: 42, Generation: 1})
	assert.ErrorIs(t, err, core.ErrInvalidHandle)

	_, err = store.Resolve(NilHandle)
	assert.ErrorIs(t, err, core.ErrInvalidHandle)
}

func TestStoreTypedResolveMismatch(t *testing.T) {
	store, device := newTestStore(2)
	h := storeBuffer(t, store, device)

	_, err := store.ResolveImage(h)
	assert.ErrorIs(t, err, core.ErrStaleHandle)

	_, err = store.ResolvePipeline(h)
	assert.ErrorIs(t, err, core.ErrStaleHandle)

	_, err = store.ResolveDescriptorSet(h)
	assert.ErrorIs(t, err, core.ErrStaleHandle)

	ds, err := store.Create(&DescriptorSet{Native: "set-0"})
	require.NoError(t, err)
	_, err = store.ResolveBuffer(ds)
	assert.ErrorIs(t, err, core.ErrStaleHandle)
}

func TestStoreRetireDefersDestruction(t *testing.T) {
	store, device := newTestStore(2)
	h := storeBuffer(t, store, device)

	require.NoError(t, store.Retire(h, 5))

	// Retired handles are unresolvable immediately, even though the payload
	// still exists for frames already recorded against it.
	_, err := store.Resolve(h)
	assert.ErrorIs(t, err, core.ErrStaleHandle)
	assert.Equal(t, 1, store.PendingDestruction())
	assert.Equal(t, 1, device.liveAllocations())

	assert.Equal(t, 0, store.Reclaim(5))
	assert.Equal(t, 0, store.Reclaim(6))
	assert.Equal(t, 1, device.liveAllocations())

	assert.Equal(t, 1, store.Reclaim(7))
	assert.Equal(t, 0, device.liveAllocations())
	assert.Equal(t, 0, store.PendingDestruction())
}

func TestStoreDoubleRetire(t *testing.T) {
	store, device := newTestStore(2)
	h := storeBuffer(t, store, device)

	require.NoError(t, store.Retire(h, 0))
	assert.ErrorIs(t, store.Retire(h, 0), core.ErrStaleHandle)
}

func TestStoreSlotReuseBumpsGeneration(t *testing.T) {
	store, device := newTestStore(2)

	old := storeBuffer(t, store, device)
	require.NoError(t, store.Retire(old, 0))
	require.Equal(t, 1, store.Reclaim(2))

	// The reclaimed slot is reused; the stale handle must not see the new
	// occupant.
	fresh := storeBuffer(t, store, device)
	assert.Equal(t, old.Index, fresh.Index)
	assert.Equal(t, old.Generation+1, fresh.Generation)

	_, err := store.Resolve(old)
	assert.ErrorIs(t, err, core.ErrStaleHandle)

	_, err = store.Resolve(fresh)
	assert.NoError(t, err)
}

func TestStoreReclaimOrder(t *testing.T) {
	store, device := newTestStore(2)

	early := storeBuffer(t, store, device)
	late := storeBuffer(t, store, device)
	require.NoError(t, store.Retire(early, 1))
	require.NoError(t, store.Retire(late, 4))

	// Only the entry retired long enough ago is freed; the scan stops at
	// the first young entry.
	assert.Equal(t, 1, store.Reclaim(3))
	assert.Equal(t, 1, store.PendingDestruction())
	assert.Equal(t, 1, store.Reclaim(6))
	assert.Equal(t, 0, store.PendingDestruction())
}

func TestStoreReleaseAll(t *testing.T) {
	store, device := newTestStore(2)

	storeBuffer(t, store, device)
	h := storeBuffer(t, store, device)
	require.NoError(t, store.Retire(h, 0))

	store.ReleaseAll()
	assert.Equal(t, 0, store.Live())
	assert.Equal(t, 0, store.PendingDestruction())
	assert.Equal(t, 0, device.liveAllocations())
}

func TestStorePipelineDestroyPath(t *testing.T) {
	store, device := newTestStore(2)

	native, err := device.CreatePipeline(PipelineConfig{})
	require.NoError(t, err)
	h, err := store.Create(&Pipeline{Native: native})
	require.NoError(t, err)

	require.NoError(t, store.Retire(h, 0))
	store.Reclaim(2)
	require.Len(t, device.pipelinesDestroyed, 1)
	assert.Equal(t, native, device.pipelinesDestroyed[0])
}
