package trace

import (
	"github.com/enokigo/enoki/cuda"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// Evaluate materializes the active set: the trace is partitioned into buckets,
// each bucket is compiled into one PTX kernel, and the kernels are launched
// largest-first. After every launch the emitted variables collapse into plain
// data leaves, dropping their operand edges; the active set ends up empty.
//
// Evaluating an empty active set is a no-op, so callers may invoke it
// defensively (Append and FetchBytes both do).
func (c *Context) Evaluate() {
	if len(c.active) == 0 && len(c.dirtyQueue) == 0 {
		return
	}
	buckets := c.partition()
	c.scheduleBuckets(buckets)

	// The launches below settle every pending scatter.
	for _, idx := range c.dirtyQueue {
		if v := c.vars[idx]; v != nil {
			v.dirty = false
		}
	}
	c.dirtyQueue = c.dirtyQueue[:0]

	for _, b := range buckets {
		if len(b.schedule) == 0 {
			continue
		}
		source, args := c.assemble(b)
		if c.KernelHook != nil {
			c.KernelHook(source)
		}
		if klog.V(1).Enabled() {
			klog.Infof("trace: launching %d-element kernel, %d scheduled variables, %d arguments",
				b.size, len(b.schedule), len(args))
		}
		if klog.V(2).Enabled() {
			klog.Infof("trace: kernel source:\n%s", source)
		}
		err := c.driver.LaunchPTX(source, KernelName, args, b.size, c.opts.Blocks, c.opts.Threads)
		if err != nil {
			exceptions.Panicf("trace: kernel for %d-element bucket failed: %+v", b.size, err)
		}
		for _, idx := range b.schedule {
			c.collapse(idx)
		}
	}
	clear(c.active)
}

// collapse retires a materialized variable's expression edges: forward
// callbacks fire, then the operand references are released. The variable keeps
// its buffer and behaves like an input from now on. Variables without a buffer
// (dead sub-expressions kept alive only inside the kernel) keep their edges;
// they are re-emitted if referenced again.
func (c *Context) collapse(idx Index) {
	v := c.vars[idx]
	if v == nil || v.data == 0 || v.stmt == "" {
		return
	}
	for slot, dep := range v.deps {
		if cb := v.callbacks[slot]; cb != nil {
			cb.OnForward()
			v.callbacks[slot] = nil
		}
		v.deps[slot] = 0
		if dep != 0 {
			c.DecRefInt(dep)
		}
	}
}

// Sync blocks until all launched kernels have completed.
func (c *Context) Sync() {
	if err := c.driver.Synchronize(); err != nil {
		exceptions.Panicf("trace: device synchronization failed: %+v", err)
	}
}

// ManagedAlloc allocates unified memory reachable from both host and device,
// outside the variable table. The caller owns the allocation.
func (c *Context) ManagedAlloc(bytes int64) cuda.DevicePtr {
	ptr, err := c.driver.MemAllocManaged(bytes)
	if err != nil {
		exceptions.Panicf("trace: allocating %d managed bytes: %+v", bytes, err)
	}
	return ptr
}

// ManagedFree releases a ManagedAlloc allocation.
func (c *Context) ManagedFree(ptr cuda.DevicePtr) {
	if err := c.driver.MemFree(ptr); err != nil {
		exceptions.Panicf("trace: releasing managed allocation: %+v", err)
	}
}
