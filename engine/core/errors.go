package core

import (
	"errors"
)

// Error taxonomy for the renderer. Every failure crossing the renderer
// boundary wraps one of these sentinels so callers can classify with
// errors.Is.
var (
	// ErrInvalidHandle means the handle index does not address any slot.
	ErrInvalidHandle = errors.New("invalid handle: index out of range")
	// ErrStaleHandle means the slot was destroyed, retired or reused since
	// the handle was issued. The caller should stop using the handle.
	ErrStaleHandle = errors.New("stale handle: resource destroyed or slot reused")
	// ErrOutOfMemory is allocator exhaustion. Recoverable by freeing resources.
	ErrOutOfMemory = errors.New("device allocator out of memory")
	// ErrSurfaceStale means the presentation surface no longer matches its
	// configuration (resize, minimize). Recoverable via Resize. Not a bug.
	ErrSurfaceStale = errors.New("presentation surface out of date")
	// ErrDeviceLost is fatal for the renderer instance.
	ErrDeviceLost = errors.New("device lost")
)
