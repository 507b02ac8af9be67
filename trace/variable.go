package trace

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/enokigo/enoki/cuda"
	"github.com/enokigo/enoki/ptx"
)

// Variable is one record of the trace: an intermediate value defined either by
// a PTX instruction template over up to three operands, or by a registered
// device buffer.
type Variable struct {
	typ ptx.Type

	// stmt is the PTX instruction template. Empty for input variables.
	// Placeholders $t<d>, $b<d> and $r<d> (d in 1..4) resolve against operand
	// d's element type and schedule-assigned register: 1 is the variable
	// itself, 2..4 its operands in declared order.
	stmt string

	// deps are the operand indices; 0 marks an absent slot. Operands always
	// refer to strictly earlier table entries, so the trace is a DAG by
	// construction.
	deps [3]Index

	// callbacks are optional per-edge continuations registered by external
	// layers (autodiff). A callback is dropped when its edge is retired.
	callbacks [3]EdgeCallback

	// count is the number of lanes; 1 denotes a broadcast scalar.
	count int

	// data is the attached device buffer, 0 until materialization.
	data cuda.DevicePtr

	// ownsData marks buffers released when the variable is destroyed.
	ownsData bool

	refExt int32
	refInt int32

	// sideEffect pins the variable into the next schedule even without
	// external references (scatter, printf).
	sideEffect bool

	// dirty is set when a scatter overwrote the buffer; consumers must wait
	// for the next evaluation.
	dirty bool

	// subtreeSize caches 1 plus the sum of the operands' subtree sizes. The
	// scheduler uses it to emit heavy sub-expressions first.
	subtreeSize uint32

	// decl is module-scope PTX the instruction depends on, emitted once before
	// the kernel entry (printf format strings).
	decl string

	comment string
}

// Type returns the element type of the variable.
func (v *Variable) Type() ptx.Type { return v.typ }

// Count returns the number of lanes.
func (v *Variable) Count() int { return v.count }

// Data returns the attached device buffer, or 0 when not materialized.
func (v *Variable) Data() cuda.DevicePtr { return v.data }

// Dirty reports whether the variable awaits a scatter to settle.
func (v *Variable) Dirty() bool { return v.dirty }

// Comment returns the diagnostic comment, if any.
func (v *Variable) Comment() string { return v.comment }

// Refs returns the external and internal reference counts.
func (v *Variable) Refs() (external, internal int) {
	return int(v.refExt), int(v.refInt)
}

// memory returns the size in bytes of the buffer a materialized variable
// carries (or would carry).
func (v *Variable) memory() int64 {
	return int64(v.count) * int64(v.typ.Size())
}

// AttachComment sets a diagnostic comment shown in emitted PTX and Whos.
func (c *Context) AttachComment(idx Index, text string) {
	c.get(idx).comment = text
}

// SetCount overrides the lane count of a variable. Intended for input
// variables registered before their final size is known.
func (c *Context) SetCount(idx Index, n int) {
	c.get(idx).count = n
}

// Whos formats a human-readable table of all live trace variables and the
// total device memory they own.
func (c *Context) Whos() string {
	var b strings.Builder
	b.WriteString("\n  ID      Type       E/I Refs   Size      Memory    Ready    Label")
	b.WriteString("\n  =================================================================\n")
	var total int64
	for idx := reservedIndices; idx < len(c.vars); idx++ {
		v := c.vars[idx]
		if v == nil {
			continue
		}
		mem := "-"
		ready := " "
		if v.data != 0 {
			mem = humanize.IBytes(uint64(v.memory()))
			ready = "x"
			if v.ownsData {
				total += v.memory()
			}
		}
		flags := ""
		if v.dirty {
			flags += " [dirty]"
		}
		if v.sideEffect {
			flags += " [side-effect]"
		}
		fmt.Fprintf(&b, "  %-7d %-10s %d / %-6d %-9d %-9s [%s]      %s%s\n",
			idx, v.typ, v.refExt, v.refInt, v.count, mem, ready, v.comment, flags)
	}
	b.WriteString("  =================================================================\n")
	fmt.Fprintf(&b, "\n  Memory usage (device): %s\n", humanize.IBytes(uint64(total)))
	return b.String()
}
