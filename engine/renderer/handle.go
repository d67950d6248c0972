package renderer

import "fmt"

// Handle is an opaque (index, generation) capability referencing a resource
// slot in the store. It carries no ownership; it is only valid for lookup
// while its generation matches the slot's current generation. Handles are
// cheap to copy, comparable and usable as map keys.
type Handle struct {
	Index      uint32
	Generation uint32
}

// NilHandle is the zero Handle. Slot generations start at 1, so the zero
// value never resolves.
var NilHandle = Handle{}

func (h Handle) IsNil() bool {
	return h.Generation == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("handle(%d:%d)", h.Index, h.Generation)
}
