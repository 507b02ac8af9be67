package trace

import (
	"github.com/gomlx/exceptions"
)

// EdgeCallback is the continuation capability external layers (notably the
// autodiff graph) attach to a dependency edge. OnForward fires when the edge
// collapses, i.e. once a kernel has materialized the edge's consumer into a
// buffer; a consumer compiled without a buffer keeps its edges and does not
// fire. OnBackward is driven by the external
// layer itself during its reverse pass. The trace owns the callback through
// the edge and drops it when the edge is retired (collapsed after
// materialization, or destroyed with its variable).
type EdgeCallback interface {
	OnForward()
	OnBackward()
}

// SetEdgeCallback attaches cb to the edge from variable idx to its operand in
// the given slot (0..2). The slot must name an operand.
func (c *Context) SetEdgeCallback(idx Index, slot int, cb EdgeCallback) {
	v := c.get(idx)
	if slot < 0 || slot >= len(v.deps) || v.deps[slot] == 0 {
		cbPanic(idx, slot)
	}
	v.callbacks[slot] = cb
}

// GetEdgeCallback returns the callback on the given edge, or nil.
func (c *Context) GetEdgeCallback(idx Index, slot int) EdgeCallback {
	v := c.get(idx)
	if slot < 0 || slot >= len(v.deps) {
		cbPanic(idx, slot)
	}
	return v.callbacks[slot]
}

func cbPanic(idx Index, slot int) {
	exceptions.Panicf("trace: variable %d has no operand edge in slot %d", idx, slot)
}
