package trace

import (
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// Reference management. Every variable carries two counts:
//
//   - external references mirror front-end array handles: user code still
//     holds the value.
//   - internal references pin a variable while it is named as an operand of a
//     later trace entry.
//
// A variable is destroyed only when both reach zero; destruction releases its
// device buffer (when owned) and cascades an internal decrement into its
// operands. Reference operations on reserved indices are silently ignored.

// IncRefExt increments the external reference count of idx.
func (c *Context) IncRefExt(idx Index) {
	if idx < reservedIndices {
		return
	}
	c.get(idx).refExt++
}

// DecRefExt decrements the external reference count of idx. When the count
// reaches zero the variable is evicted from the active set, and destroyed if
// no internal references remain.
func (c *Context) DecRefExt(idx Index) {
	if idx < reservedIndices {
		return
	}
	v := c.get(idx)
	v.refExt--
	if v.refExt < 0 {
		exceptions.Panicf("trace: external reference count of variable %d became negative", idx)
	}
	if v.refExt == 0 {
		delete(c.active, idx)
	}
	c.collectIfDead(idx)
}

// IncRefInt increments the internal reference count of idx.
func (c *Context) IncRefInt(idx Index) {
	if idx < reservedIndices {
		return
	}
	c.get(idx).refInt++
}

// DecRefInt decrements the internal reference count of idx, destroying the
// variable when both counts reached zero.
func (c *Context) DecRefInt(idx Index) {
	if idx < reservedIndices {
		return
	}
	v := c.get(idx)
	v.refInt--
	if v.refInt < 0 {
		exceptions.Panicf("trace: internal reference count of variable %d became negative", idx)
	}
	c.collectIfDead(idx)
}

func (c *Context) collectIfDead(idx Index) {
	v := c.vars[idx]
	if v.refExt != 0 || v.refInt != 0 {
		return
	}
	c.destroy(idx)
}

// destroy releases a collected variable: the device buffer goes back to the
// driver when owned, operand edges are decremented (cascading destruction
// through the expression DAG), and the table slot is nilled.
func (c *Context) destroy(idx Index) {
	v := c.vars[idx]
	c.vars[idx] = nil
	delete(c.active, idx)
	if v.ownsData && v.data != 0 {
		if err := c.driver.MemFree(v.data); err != nil {
			exceptions.Panicf("trace: releasing buffer of variable %d: %+v", idx, err)
		}
		c.usedDeviceBytes -= v.memory()
		if klog.V(2).Enabled() {
			klog.Infof("trace: variable %d collected, freed %d bytes", idx, v.memory())
		}
	}
	for slot, dep := range v.deps {
		v.callbacks[slot] = nil
		v.deps[slot] = 0
		if dep != 0 {
			c.DecRefInt(dep)
		}
	}
}
