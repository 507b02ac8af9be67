package trace

import (
	"github.com/enokigo/enoki/cuda"
	"github.com/enokigo/enoki/ptx"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// Append records a new computed variable of the given element type, defined by
// a PTX instruction template over up to three operands, and returns its index.
//
// The result starts with one external reference, mirroring the front-end handle
// about to wrap it, and is added to the active set. Each operand gains an
// internal reference. The element count is the maximum of the operands' counts
// (1 for a 0-operand variable); appending a consumer of mismatched non-scalar
// counts is caught later, at scheduling time, by the bucket shape check.
//
// If any operand is dirty -- a scatter wrote through it since the last
// evaluation -- the whole trace is evaluated first, so the new variable only
// ever observes settled data.
func (c *Context) Append(typ ptx.Type, stmt string, deps ...Index) Index {
	if len(deps) > 3 {
		exceptions.Panicf("trace: Append takes at most 3 operands, got %d", len(deps))
	}
	if ptx.Lookup(typ).Size < 0 {
		exceptions.Panicf("trace: Append with invalid element type %s", typ)
	}

	// Read-after-write barrier.
	for _, dep := range deps {
		if dep >= reservedIndices && c.get(dep).dirty {
			c.Evaluate()
			break
		}
	}

	v := &Variable{typ: typ, stmt: stmt, count: 1, subtreeSize: 1}
	for slot, dep := range deps {
		if dep == 0 {
			exceptions.Panicf("trace: Append operand %d is the null variable", slot+2)
		}
		d := c.get(dep) // reserved indices resolve to the preamble pseudo-registers
		if d.dirty {
			exceptions.Panicf("trace: operand %d still dirty after evaluation", dep)
		}
		if d.count > v.count {
			v.count = d.count
		}
		v.subtreeSize += d.subtreeSize
		v.deps[slot] = dep
	}

	idx := Index(len(c.vars))
	c.vars = append(c.vars, v)
	for _, dep := range deps {
		c.IncRefInt(dep)
	}
	c.IncRefExt(idx)
	c.active[idx] = struct{}{}
	if klog.V(3).Enabled() {
		klog.Infof("trace: append %d <- %s [%s x%d] deps=%v", idx, stmt, typ, v.count, deps)
	}
	return idx
}

// RegisterInput publishes an externally allocated device buffer as a trace
// variable: it has no instruction, only data. When owns is true the buffer is
// released when the variable is destroyed. A non-zero parent is internally
// referenced for the lifetime of the new variable; used when ptr aliases
// memory owned by another variable.
func (c *Context) RegisterInput(typ ptx.Type, count int, ptr cuda.DevicePtr, parent Index, owns bool) Index {
	if ptr == 0 {
		exceptions.Panicf("trace: RegisterInput with null device pointer")
	}
	if ptx.Lookup(typ).Size < 0 {
		exceptions.Panicf("trace: RegisterInput with invalid element type %s", typ)
	}
	v := &Variable{typ: typ, count: count, data: ptr, ownsData: owns, subtreeSize: 1}
	if parent != 0 {
		c.get(parent)
		v.deps[0] = parent
	}
	idx := Index(len(c.vars))
	c.vars = append(c.vars, v)
	if parent != 0 {
		c.IncRefInt(parent)
	}
	if owns {
		c.usedDeviceBytes += v.memory()
	}
	c.IncRefExt(idx)
	c.active[idx] = struct{}{}
	return idx
}

// MarkSideEffect pins idx into the next schedule even if the front-end drops
// every handle to it: the scheduler holds one extra external reference, which
// it releases when the variable's instruction has been emitted.
func (c *Context) MarkSideEffect(idx Index) {
	v := c.get(idx)
	v.sideEffect = true
	c.IncRefExt(idx)
	c.active[idx] = struct{}{}
}

// MarkDirty records that a scatter-like side effect will overwrite target's
// buffer when the trace next runs. Until then, target may not be consumed by
// new trace entries without an intervening evaluation (see Append), and
// fetches of target force one.
func (c *Context) MarkDirty(target Index) {
	v := c.get(target)
	if !v.dirty {
		v.dirty = true
		c.dirtyQueue = append(c.dirtyQueue, target)
	}
}
