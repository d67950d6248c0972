package renderer

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lumen-engine/lumen/engine/containers"
	"github.com/lumen-engine/lumen/engine/core"
)

const initialStoreCapacity = 64

// slot is one unit of resource storage. Its generation increments exactly
// once per destroy-then-reuse cycle, at reclaim time, so a handle minted
// before the destroy can never resolve to whatever occupies the slot next.
type slot struct {
	generation uint32
	occupied   bool
	retired    bool
	resource   Resource
}

// pendingDestroy tags a retired handle with the frame it was retired on.
type pendingDestroy struct {
	handle Handle
	frame  uint64
}

// ResourceStore is the single owner of all GPU resource payloads. It issues
// generational handles and defers destruction until no in-flight frame can
// still reference a retired resource. It assumes a single CPU thread; the
// CPU/GPU race is handled by the frame synchronization layer, not by locks
// here.
type ResourceStore struct {
	device   Device
	slots    []slot
	freeList []uint32
	pending  *containers.RingQueue[pendingDestroy]

	// framesInFlight is the reclamation delay N: a retired resource is freed
	// only after N subsequent frame completions.
	framesInFlight uint64
}

func NewResourceStore(device Device, framesInFlight int) *ResourceStore {
	return &ResourceStore{
		device:         device,
		slots:          make([]slot, 0, initialStoreCapacity),
		pending:        containers.NewRingQueue[pendingDestroy](initialStoreCapacity),
		framesInFlight: uint64(framesInFlight),
	}
}

// Create stores a payload in a free slot, reusing a previously reclaimed one
// when available, and returns a handle encoding (index, generation).
func (rs *ResourceStore) Create(resource Resource) (Handle, error) {
	if resource == nil {
		return NilHandle, fmt.Errorf("resource store: nil payload: %w", core.ErrInvalidHandle)
	}
	resource.setDebugID(uuid.New())

	var index uint32
	if n := len(rs.freeList); n > 0 {
		index = rs.freeList[n-1]
		rs.freeList = rs.freeList[:n-1]
	} else {
		rs.slots = append(rs.slots, slot{generation: 1})
		index = uint32(len(rs.slots) - 1)
	}

	s := &rs.slots[index]
	s.occupied = true
	s.retired = false
	s.resource = resource

	h := Handle{Index: index, Generation: s.generation}
	core.LogDebug("resource %s created as %s", resource.DebugID(), h)
	return h, nil
}

// Resolve returns the payload for a handle. The generation check is
// mandatory on every access; it converts use-after-free into an explicit
// error at the point of misuse.
func (rs *ResourceStore) Resolve(h Handle) (Resource, error) {
	s, err := rs.lookup(h)
	if err != nil {
		return nil, err
	}
	return s.resource, nil
}

// ResolveBuffer resolves a handle that must reference a buffer.
func (rs *ResourceStore) ResolveBuffer(h Handle) (*Buffer, error) {
	res, err := rs.Resolve(h)
	if err != nil {
		return nil, err
	}
	b, ok := res.(*Buffer)
	if !ok {
		return nil, fmt.Errorf("%s is not a buffer: %w", h, core.ErrStaleHandle)
	}
	return b, nil
}

// ResolveImage resolves a handle that must reference an image.
func (rs *ResourceStore) ResolveImage(h Handle) (*Image, error) {
	res, err := rs.Resolve(h)
	if err != nil {
		return nil, err
	}
	img, ok := res.(*Image)
	if !ok {
		return nil, fmt.Errorf("%s is not an image: %w", h, core.ErrStaleHandle)
	}
	return img, nil
}

// ResolvePipeline resolves a handle that must reference a pipeline.
func (rs *ResourceStore) ResolvePipeline(h Handle) (*Pipeline, error) {
	res, err := rs.Resolve(h)
	if err != nil {
		return nil, err
	}
	p, ok := res.(*Pipeline)
	if !ok {
		return nil, fmt.Errorf("%s is not a pipeline: %w", h, core.ErrStaleHandle)
	}
	return p, nil
}

// ResolveDescriptorSet resolves a handle that must reference a descriptor set.
func (rs *ResourceStore) ResolveDescriptorSet(h Handle) (*DescriptorSet, error) {
	res, err := rs.Resolve(h)
	if err != nil {
		return nil, err
	}
	d, ok := res.(*DescriptorSet)
	if !ok {
		return nil, fmt.Errorf("%s is not a descriptor set: %w", h, core.ErrStaleHandle)
	}
	return d, nil
}

// Retire marks a resource for deferred destruction, tagged with the frame it
// was retired on. It never frees synchronously: an in-flight draw recorded
// this frame may still reference the payload. Double-retire is a programmer
// error surfaced as ErrStaleHandle.
func (rs *ResourceStore) Retire(h Handle, frame uint64) error {
	s, err := rs.lookup(h)
	if err != nil {
		return err
	}
	s.retired = true
	rs.pending.Enqueue(pendingDestroy{handle: h, frame: frame})
	return nil
}

// Reclaim frees every pending entry retired at least framesInFlight frames
// before the given frame index: the payload's device memory is returned to
// the allocator, the slot generation is incremented and the slot goes back
// on the free list. Called once per frame boundary. Returns the number of
// resources freed.
func (rs *ResourceStore) Reclaim(currentFrame uint64) int {
	freed := 0
	for !rs.pending.IsEmpty() {
		entry, _ := rs.pending.Peek()
		if entry.frame+rs.framesInFlight > currentFrame {
			// Entries are enqueued in frame order; the first young entry
			// ends the scan.
			break
		}
		rs.pending.Dequeue()

		s := &rs.slots[entry.handle.Index]
		if s.generation != entry.handle.Generation || !s.occupied {
			// Already reclaimed through a forced release.
			continue
		}
		rs.release(entry.handle.Index)
		freed++
	}
	return freed
}

// ReleaseAll frees every live resource immediately. Only legal once all
// in-flight frames have been drained; used at shutdown.
func (rs *ResourceStore) ReleaseAll() {
	for !rs.pending.IsEmpty() {
		rs.pending.Dequeue()
	}
	for i := range rs.slots {
		if rs.slots[i].occupied {
			rs.release(uint32(i))
		}
	}
}

// Live returns the number of occupied, non-retired slots.
func (rs *ResourceStore) Live() int {
	live := 0
	for i := range rs.slots {
		if rs.slots[i].occupied && !rs.slots[i].retired {
			live++
		}
	}
	return live
}

// PendingDestruction returns the number of retired resources awaiting
// reclamation.
func (rs *ResourceStore) PendingDestruction() int {
	return rs.pending.Len()
}

// EachPipeline visits every live pipeline payload. Callers may mutate the
// payload in place, which is how pipelines are rebuilt across a surface
// recreation without invalidating their handles.
func (rs *ResourceStore) EachPipeline(fn func(p *Pipeline) error) error {
	for i := range rs.slots {
		s := &rs.slots[i]
		if !s.occupied || s.retired {
			continue
		}
		if p, ok := s.resource.(*Pipeline); ok {
			if err := fn(p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (rs *ResourceStore) lookup(h Handle) (*slot, error) {
	if int(h.Index) >= len(rs.slots) {
		return nil, fmt.Errorf("%s: %w", h, core.ErrInvalidHandle)
	}
	s := &rs.slots[h.Index]
	if s.generation != h.Generation || !s.occupied || s.retired {
		return nil, fmt.Errorf("%s: %w", h, core.ErrStaleHandle)
	}
	return s, nil
}

func (rs *ResourceStore) release(index uint32) {
	s := &rs.slots[index]
	core.LogDebug("resource %s released from slot %d", s.resource.DebugID(), index)
	rs.destroyPayload(s.resource)
	s.resource = nil
	s.occupied = false
	s.retired = false
	s.generation++
	rs.freeList = append(rs.freeList, index)
}

func (rs *ResourceStore) destroyPayload(resource Resource) {
	switch res := resource.(type) {
	case *Buffer:
		if res.Allocation != nil {
			rs.device.Free(res.Allocation)
		}
	case *Image:
		if res.Allocation != nil {
			rs.device.Free(res.Allocation)
		}
	case *Pipeline:
		if res.Native != nil {
			rs.device.DestroyPipeline(res.Native)
		}
	case *DescriptorSet:
		// Backend descriptor sets are pool-allocated and reclaimed with
		// their pool.
	}
}
