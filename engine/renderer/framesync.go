package renderer

import (
	"fmt"
	"time"

	"github.com/lumen-engine/lumen/engine/config"
	"github.com/lumen-engine/lumen/engine/core"
)

// FrameState is the per-slot recording state machine. Transitions are
// checked at BeginFrame/EndFrame entry; GPU completion is observed through
// the slot fence, never through callbacks.
type FrameState int

const (
	// FrameIdle: the fence from prior use (if any) has signaled; the slot's
	// command buffer may be reset and re-recorded.
	FrameIdle FrameState = iota
	// FrameRecording: the client is issuing commands into the slot's
	// command buffer.
	FrameRecording
	// FrameSubmitted: the command buffer is on the GPU queue; the slot is
	// not reusable until its fence signals.
	FrameSubmitted
)

func (s FrameState) String() string {
	switch s {
	case FrameIdle:
		return "idle"
	case FrameRecording:
		return "recording"
	case FrameSubmitted:
		return "submitted"
	}
	return "unknown"
}

// FrameSlot is one of N cyclically reused pipelining units. Everything a
// frame mutates while the previous frame may still execute on the GPU is
// private to the slot: command buffer, fences, semaphores and a uniform
// arena.
type FrameSlot struct {
	CommandBuffer  CommandBuffer
	InFlightFence  Fence
	ImageAvailable Semaphore
	RenderFinished Semaphore

	// UniformBuffer is a host-visible per-frame arena, bump-allocated during
	// recording and wholly reused next time the slot comes around.
	UniformBuffer Handle
	uniformOffset uint64
	uniformSize   uint64

	State FrameState
}

// FrameSync pipelines CPU recording and GPU execution across N frames in
// flight. A single CPU thread drives it; the GPU timeline is synchronized
// exclusively through the slot fences and semaphore pairs.
type FrameSync struct {
	device Device
	store  *ResourceStore

	slots []*FrameSlot
	// imagesInFlight maps a swapchain image index to the fence of the frame
	// last submitted against it. An image handed back out of order must not
	// be re-recorded while that frame still runs.
	imagesInFlight []Fence

	frameNumber  uint64
	imageIndex   uint32
	fenceTimeout time.Duration
}

func NewFrameSync(device Device, store *ResourceStore, cfg config.Renderer) (*FrameSync, error) {
	fs := &FrameSync{
		device:       device,
		store:        store,
		slots:        make([]*FrameSlot, cfg.FramesInFlight),
		fenceTimeout: cfg.FenceTimeout(),
	}

	for i := range fs.slots {
		cb, err := device.CreateCommandBuffer()
		if err != nil {
			return nil, fmt.Errorf("frame slot %d: command buffer: %w", i, err)
		}
		// Created signaled so the first wait on a never-submitted slot
		// passes immediately.
		fence, err := device.CreateFence(true)
		if err != nil {
			return nil, fmt.Errorf("frame slot %d: fence: %w", i, err)
		}
		imageAvailable, err := device.CreateSemaphore()
		if err != nil {
			return nil, fmt.Errorf("frame slot %d: image available semaphore: %w", i, err)
		}
		renderFinished, err := device.CreateSemaphore()
		if err != nil {
			return nil, fmt.Errorf("frame slot %d: render finished semaphore: %w", i, err)
		}

		uniformAlloc, err := device.AllocateBuffer(cfg.UniformArenaSize, BufferUsageUniform)
		if err != nil {
			return nil, fmt.Errorf("frame slot %d: uniform arena: %w", i, err)
		}
		uniformHandle, err := store.Create(&Buffer{
			Size:        cfg.UniformArenaSize,
			Usage:       BufferUsageUniform,
			Allocation:  uniformAlloc,
			HostVisible: true,
		})
		if err != nil {
			return nil, err
		}

		fs.slots[i] = &FrameSlot{
			CommandBuffer:  cb,
			InFlightFence:  fence,
			ImageAvailable: imageAvailable,
			RenderFinished: renderFinished,
			UniformBuffer:  uniformHandle,
			uniformSize:    cfg.UniformArenaSize,
			State:          FrameIdle,
		}
	}

	fs.imagesInFlight = make([]Fence, device.SwapchainImageCount())
	return fs, nil
}

// CurrentSlot returns the slot the current frame records into.
func (fs *FrameSync) CurrentSlot() *FrameSlot {
	return fs.slots[fs.frameNumber%uint64(len(fs.slots))]
}

// FrameNumber is the global frame counter, advanced at every EndFrame.
func (fs *FrameSync) FrameNumber() uint64 {
	return fs.frameNumber
}

// ImageIndex is the swapchain image acquired for the current frame.
func (fs *FrameSync) ImageIndex() uint32 {
	return fs.imageIndex
}

// BeginFrame selects the slot for the current frame, waits for its previous
// GPU work to finish and starts recording. This fence wait is the sole
// blocking point in the renderer and bounds CPU run-ahead to exactly N
// frames. Surface staleness from image acquisition propagates as
// core.ErrSurfaceStale with the slot left Idle.
func (fs *FrameSync) BeginFrame() error {
	slot := fs.CurrentSlot()
	if slot.State == FrameRecording {
		return fmt.Errorf("begin frame: slot already %s", slot.State)
	}

	if err := slot.InFlightFence.Wait(fs.fenceTimeout); err != nil {
		return fmt.Errorf("begin frame: in-flight fence: %w", err)
	}
	slot.State = FrameIdle

	imageIndex, err := fs.device.AcquireNextImage(fs.fenceTimeout, slot.ImageAvailable)
	if err != nil {
		// Staleness is steady-state traffic during resizes, not an error.
		return err
	}
	fs.imageIndex = imageIndex

	if err := slot.CommandBuffer.Reset(); err != nil {
		return err
	}
	if err := slot.CommandBuffer.Begin(); err != nil {
		return err
	}
	slot.CommandBuffer.BeginRenderPass(fs.imageIndex, fs.device.SurfaceExtent())

	slot.uniformOffset = 0
	slot.State = FrameRecording
	return nil
}

// EndFrame closes the slot's command buffer, submits it signaling the
// render-finished semaphore and the slot fence, presents, reclaims
// resources retired long enough ago, and advances the frame counter.
// Present staleness is returned as core.ErrSurfaceStale after the counter
// has advanced; the submitted work still runs to completion.
func (fs *FrameSync) EndFrame() error {
	slot := fs.CurrentSlot()
	if slot.State != FrameRecording {
		return fmt.Errorf("end frame: slot is %s, not %s", slot.State, FrameRecording)
	}

	slot.CommandBuffer.EndRenderPass()
	if err := slot.CommandBuffer.End(); err != nil {
		return err
	}

	// Make sure no earlier frame is still rendering to this image.
	if inFlight := fs.imagesInFlight[fs.imageIndex]; inFlight != nil && inFlight != slot.InFlightFence {
		if err := inFlight.Wait(fs.fenceTimeout); err != nil {
			return fmt.Errorf("end frame: image in flight: %w", err)
		}
	}
	fs.imagesInFlight[fs.imageIndex] = slot.InFlightFence

	if err := slot.InFlightFence.Reset(); err != nil {
		return err
	}
	if err := fs.device.Submit(slot.CommandBuffer, slot.ImageAvailable, slot.RenderFinished, slot.InFlightFence); err != nil {
		return err
	}
	slot.State = FrameSubmitted

	presentErr := fs.device.Present(slot.RenderFinished, fs.imageIndex)

	fs.store.Reclaim(fs.frameNumber)
	fs.frameNumber++
	return presentErr
}

// AbortFrame rolls a recording slot back to Idle, discarding everything
// recorded so far. Nothing is submitted; the global frame counter does not
// advance.
func (fs *FrameSync) AbortFrame() {
	slot := fs.CurrentSlot()
	if slot.State != FrameRecording {
		return
	}
	if err := slot.CommandBuffer.Reset(); err != nil {
		core.LogWarn("abort frame: command buffer reset failed: %s", err)
	}
	slot.State = FrameIdle
}

// WriteUniform bump-allocates from the current slot's uniform arena and
// writes data there, returning the arena handle and the byte offset the
// data landed at. Valid only while recording.
func (fs *FrameSync) WriteUniform(data []byte) (Handle, uint64, error) {
	slot := fs.CurrentSlot()
	if slot.State != FrameRecording {
		return NilHandle, 0, fmt.Errorf("uniform write outside of recording (slot is %s)", slot.State)
	}
	if slot.uniformOffset+uint64(len(data)) > slot.uniformSize {
		return NilHandle, 0, fmt.Errorf("uniform arena exhausted (%d of %d bytes): %w",
			slot.uniformOffset, slot.uniformSize, core.ErrOutOfMemory)
	}

	arena, err := fs.store.ResolveBuffer(slot.UniformBuffer)
	if err != nil {
		return NilHandle, 0, err
	}
	offset := slot.uniformOffset
	if err := fs.device.WriteBuffer(arena.Allocation, offset, data); err != nil {
		return NilHandle, 0, err
	}
	slot.uniformOffset += uint64(len(data))
	return slot.UniformBuffer, offset, nil
}

// Drain waits for every submitted slot's fence and for the device to go
// idle. Required before surface recreation and shutdown so nothing still
// referenced by pending GPU work is destroyed.
func (fs *FrameSync) Drain() error {
	for _, slot := range fs.slots {
		if slot.State == FrameRecording {
			return fmt.Errorf("drain: a frame is still recording")
		}
		if slot.State == FrameSubmitted {
			if err := slot.InFlightFence.Wait(fs.fenceTimeout); err != nil {
				return err
			}
			slot.State = FrameIdle
		}
	}
	for i := range fs.imagesInFlight {
		fs.imagesInFlight[i] = nil
	}
	return fs.device.WaitIdle()
}

// ResetImages resizes the image-in-flight tracking after swapchain
// recreation. Call only after Drain.
func (fs *FrameSync) ResetImages() {
	fs.imagesInFlight = make([]Fence, fs.device.SwapchainImageCount())
}

// Destroy releases the sync objects and command buffers. The uniform arenas
// are store-owned and freed with the store.
func (fs *FrameSync) Destroy() {
	for _, slot := range fs.slots {
		fs.device.DestroySemaphore(slot.ImageAvailable)
		fs.device.DestroySemaphore(slot.RenderFinished)
		fs.device.DestroyFence(slot.InFlightFence)
		fs.device.DestroyCommandBuffer(slot.CommandBuffer)
	}
	fs.slots = nil
	fs.imagesInFlight = nil
}
