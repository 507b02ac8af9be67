// Package trace implements the tracing JIT compiler at the heart of enoki-go.
//
// Arithmetic issued against array handles is not executed immediately: each
// operation appends a Variable to an append-only trace, carrying a PTX
// instruction template and the indices of up to three operands. On Evaluate
// (triggered explicitly, by a fetch, or by a read-after-write hazard) the trace
// is partitioned by element count, topologically scheduled, emitted as one PTX
// kernel per partition, JIT-linked through the CUDA driver, and launched with a
// grid-stride loop. Results land in device buffers attached to the variables
// that still have external references.
//
// The trace is a single, unsynchronized structure: concurrent mutation from
// multiple goroutines is undefined. All errors in the core are fatal and
// reported as panics with a diagnostic message (see package
// github.com/gomlx/exceptions to trap them); driver errors carry the CUDA
// status and linker log verbatim.
package trace

import (
	"github.com/enokigo/enoki/cuda"
	"github.com/enokigo/enoki/ptx"
	"github.com/gomlx/exceptions"
)

// Index identifies a Variable in the trace table.
//
// Index 0 is reserved for "no operand". Indices 1..reservedIndices-1 name the
// fixed pseudo-registers installed by the kernel preamble (element count, lane
// index, stride, thread/block identifiers, address scratch) and are not handed
// out to user code.
type Index uint32

// reservedIndices is the number of table slots with fixed roles. Register
// allocation for scheduled variables starts here.
const reservedIndices = 10

// Fixed pseudo-register indices usable as operands in instruction templates,
// e.g. a gather references Lane to compute its per-thread address.
const (
	// SizeReg holds the element count of the kernel (%r1).
	SizeReg Index = 1
	// Lane holds the per-thread element index of the grid-stride loop (%r2).
	Lane Index = 2
	// Stride holds the grid-stride increment (%r3).
	Stride Index = 3
)

// Options configure a Context.
type Options struct {
	// Blocks and Threads fix the launch geometry of every kernel.
	// Zero values select the defaults (32 blocks of 128 threads).
	Blocks, Threads int
}

const (
	defaultBlocks  = 32
	defaultThreads = 128
)

// Context owns one trace: the variable table, the active set of variables that
// must be considered roots at the next evaluation, and the queue of variables
// dirtied by scatters. It also owns every device buffer attached to a
// materialized variable.
//
// A Context is not safe for concurrent use.
type Context struct {
	driver cuda.Driver
	opts   Options

	// vars is the append-only variable table; position is the Index.
	// Destroyed variables leave a nil slot behind.
	vars []*Variable

	// active holds the evaluation roots: externally referenced results and
	// side-effectful variables.
	active map[Index]struct{}

	// dirtyQueue lists variables overwritten by a scatter since the last
	// evaluation.
	dirtyQueue []Index

	// usedDeviceBytes tracks device memory attached to (and owned by) trace
	// variables.
	usedDeviceBytes int64

	// KernelHook, if set, receives every emitted kernel before it is launched.
	KernelHook func(ptxSource []byte)
}

// New creates a Context on the given driver with default options.
func New(driver cuda.Driver) *Context {
	return NewWithOptions(driver, Options{})
}

// NewWithOptions creates a Context with an explicit launch geometry.
func NewWithOptions(driver cuda.Driver, opts Options) *Context {
	if opts.Blocks <= 0 {
		opts.Blocks = defaultBlocks
	}
	if opts.Threads <= 0 {
		opts.Threads = defaultThreads
	}
	c := &Context{
		driver: driver,
		opts:   opts,
		active: make(map[Index]struct{}),
	}
	c.installReserved()
	return c
}

// installReserved fills table slots 0..reservedIndices-1 with the fixed
// pseudo-registers of the kernel preamble, so that instruction templates can
// name them as operands ($r with the matching type).
func (c *Context) installReserved() {
	c.vars = make([]*Variable, reservedIndices)
	c.vars[0] = &Variable{typ: ptx.Invalid, count: 1, comment: "null"}
	roles := [...]struct {
		typ     ptx.Type
		comment string
	}{
		1: {ptx.U32, "size"},
		2: {ptx.U32, "lane"},
		3: {ptx.U32, "stride"},
		4: {ptx.U32, "tid.x"},
		5: {ptx.U32, "ctaid.x"},
		6: {ptx.U32, "ntid.x"},
		7: {ptx.U32, "nctaid.x"},
		8: {ptx.Pointer, "addr scratch"},
		9: {ptx.Pointer, "addr scratch"},
	}
	for i := 1; i < reservedIndices; i++ {
		c.vars[i] = &Variable{typ: roles[i].typ, count: 1, comment: roles[i].comment}
	}
}

// Driver returns the device driver the context was created on.
func (c *Context) Driver() cuda.Driver { return c.driver }

// NumVariables returns the number of live (not yet destroyed) variables,
// excluding the reserved slots.
func (c *Context) NumVariables() int {
	n := 0
	for idx := reservedIndices; idx < len(c.vars); idx++ {
		if c.vars[idx] != nil {
			n++
		}
	}
	return n
}

// UsedDeviceBytes returns the device memory currently owned by trace
// variables.
func (c *Context) UsedDeviceBytes() int64 { return c.usedDeviceBytes }

// get returns the variable at idx, which must be live. Reserved indices
// resolve to the preamble pseudo-register entries; only the null index 0 is
// rejected outright.
func (c *Context) get(idx Index) *Variable {
	if idx == 0 || int(idx) >= len(c.vars) {
		exceptions.Panicf("trace: variable %d out of range (table has %d entries)", idx, len(c.vars))
	}
	v := c.vars[idx]
	if v == nil {
		exceptions.Panicf("trace: variable %d was already destroyed", idx)
	}
	return v
}

// Finalize releases every device buffer still owned by the trace and empties
// the table. The Context must not be used afterwards. The driver itself is not
// closed; it belongs to the caller.
func (c *Context) Finalize() {
	for idx := reservedIndices; idx < len(c.vars); idx++ {
		v := c.vars[idx]
		if v == nil || !v.ownsData || v.data == 0 {
			continue
		}
		if err := c.driver.MemFree(v.data); err != nil {
			exceptions.Panicf("trace: releasing buffer of variable %d: %+v", idx, err)
		}
	}
	c.vars = nil
	c.active = nil
	c.dirtyQueue = nil
	c.usedDeviceBytes = 0
}
