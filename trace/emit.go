package trace

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/enokigo/enoki/cuda"
	"github.com/enokigo/enoki/ptx"
	"github.com/gomlx/exceptions"
)

// KernelName is the entry point every emitted module exports.
const KernelName = "enoki_kernel"

// Emitted PTX contract: one kernel per bucket, targeting sm_75 / PTX ISA 6.3,
// taking the device address of an argument pointer table and the element count.
// The body runs inside a grid-stride loop over %r2 (lane) with stride %r3.
// Register indices below reservedIndices have fixed preamble roles; scheduled
// variables get sequential indices from there on, in every register file.

const kernelHeader = `.version 6.3
.target sm_75
.address_size 64

.extern .func (.param .b32 rv) vprintf (.param .b64 fmt, .param .b64 buf);

`

const kernelEntry = `.visible .entry ` + KernelName + `(.param .u64 ptr,
                             .param .u32 size) {
`

const kernelLoopSetup = `
    // Grid-stride loop setup
    ld.param.u64 %rd0, [ptr];
    cvta.to.global.u64 %rd0, %rd0;
    ld.param.u32 %r1, [size];
    mov.u32 %r4, %tid.x;
    mov.u32 %r5, %ctaid.x;
    mov.u32 %r6, %ntid.x;
    mov.u32 %r7, %nctaid.x;
    mad.lo.u32 %r2, %r5, %r6, %r4;
    mul.lo.u32 %r3, %r6, %r7;
    setp.ge.u32 %p0, %r2, %r1;
    @%p0 bra L_done;

L_body:
`

const kernelEpilogue = `
    add.u32 %r2, %r2, %r3;
    setp.lt.u32 %p0, %r2, %r1;
    @%p0 bra L_body;

L_done:
    ret;

    // Unreachable; keeps the stride register alive through ptxas.
    st.global.u32 [%rd8], %r3;
    ret;
}
`

// assemble compiles one bucket's schedule into a PTX kernel. As a side effect
// it allocates output buffers for externally referenced full-width variables,
// fills in the launch argument table, and releases the scheduler's external
// reference on side-effect variables (they are sinks; once emitted, the
// schedule no longer needs them pinned).
func (c *Context) assemble(b *bucket) (source []byte, args []cuda.DevicePtr) {
	reg := make(map[Index]int, reservedIndices+len(b.schedule))
	for i := 0; i < reservedIndices; i++ {
		reg[Index(i)] = i
	}
	for pos, idx := range b.schedule {
		reg[idx] = reservedIndices + pos
	}
	regCount := reservedIndices + len(b.schedule)

	var body, decls strings.Builder
	for _, idx := range b.schedule {
		v := c.vars[idx]
		if v == nil {
			exceptions.Panicf("trace: schedule names collected variable %d", idx)
		}
		if v.count != 1 && v.count != b.size {
			exceptions.Panicf("trace: variable %d has %d elements, incompatible with %d-element kernel",
				idx, v.count, b.size)
		}
		if v.comment != "" {
			fmt.Fprintf(&body, "    // %s\n", v.comment)
		}
		if v.decl != "" {
			decls.WriteString(v.decl)
		}
		isInput := v.data != 0
		switch {
		case isInput:
			c.emitLoad(&body, v, reg[idx], len(args))
			args = append(args, v.data)
		case v.stmt != "":
			c.expand(&body, v, idx, reg)
		default:
			exceptions.Panicf("trace: variable %d has neither an instruction nor data", idx)
		}
		if v.sideEffect {
			c.DecRefExt(idx)
			if c.vars[idx] == nil {
				continue
			}
		}
		if !isInput && v.refExt > 0 && v.count == b.size {
			bytes := v.memory()
			ptr, err := c.driver.MemAlloc(bytes)
			if err != nil {
				exceptions.Panicf("trace: allocating %d-byte output buffer for variable %d: %+v",
					bytes, idx, err)
			}
			v.data = ptr
			v.ownsData = true
			c.usedDeviceBytes += bytes
			c.emitStore(&body, v, reg[idx], len(args))
			args = append(args, ptr)
		}
	}

	var out strings.Builder
	out.Grow(len(kernelHeader) + len(kernelEntry) + decls.Len() + len(kernelLoopSetup) + body.Len() + len(kernelEpilogue) + 512)
	out.WriteString(kernelHeader)
	out.WriteString(decls.String())
	out.WriteString(kernelEntry)
	for _, f := range ptx.RegisterFiles {
		fmt.Fprintf(&out, "    .reg.%s %s<%d>;\n", f.Decl, f.Prefix, regCount)
	}
	out.WriteString(kernelLoopSetup)
	out.WriteString(body.String())
	out.WriteString(kernelEpilogue)
	return []byte(out.String()), args
}

// emitLoad emits the typed global load of an input variable from argument
// table slot. Broadcast scalars (count 1) ignore the lane index; Bool is
// stored as u8 and converted into the predicate file with setp.
func (c *Context) emitLoad(out *strings.Builder, v *Variable, r, slot int) {
	info := ptx.Lookup(v.typ)
	fmt.Fprintf(out, "    ld.global.u64 %%rd8, [%%rd0 + %d];\n", slot*8)
	if v.count != 1 {
		fmt.Fprintf(out, "    mul.wide.u32 %%rd9, %%r2, %d;\n", info.Size)
		out.WriteString("    add.u64 %rd8, %rd8, %rd9;\n")
	}
	switch v.typ {
	case ptx.Bool:
		fmt.Fprintf(out, "    ld.global.u8 %%rs0, [%%rd8];\n")
		fmt.Fprintf(out, "    setp.ne.u16 %%p%d, %%rs0, 0;\n", r)
	case ptx.F16:
		fmt.Fprintf(out, "    ld.global.u16 %%h%d, [%%rd8];\n", r)
	default:
		fmt.Fprintf(out, "    ld.global.%s %s%d, [%%rd8];\n", info.Name, info.RegPrefix, r)
	}
}

// emitStore mirrors emitLoad for a freshly allocated output buffer.
func (c *Context) emitStore(out *strings.Builder, v *Variable, r, slot int) {
	info := ptx.Lookup(v.typ)
	fmt.Fprintf(out, "    ld.global.u64 %%rd8, [%%rd0 + %d];\n", slot*8)
	fmt.Fprintf(out, "    mul.wide.u32 %%rd9, %%r2, %d;\n", info.Size)
	out.WriteString("    add.u64 %rd8, %rd8, %rd9;\n")
	switch v.typ {
	case ptx.Bool:
		fmt.Fprintf(out, "    selp.u16 %%rs0, 1, 0, %%p%d;\n", r)
		out.WriteString("    st.global.u8 [%rd8], %rs0;\n")
	case ptx.F16:
		fmt.Fprintf(out, "    st.global.u16 [%%rd8], %%h%d;\n", r)
	default:
		fmt.Fprintf(out, "    st.global.%s [%%rd8], %s%d;\n", info.Name, info.RegPrefix, r)
	}
}

// expand resolves the $-placeholders of v's instruction template against the
// register assignment and writes the finished PTX to out. A '$' must be
// followed by 't', 'b' or 'r' and an operand digit 1..4: 1 is the variable
// itself, 2..4 its operands in declared order. Templates not ending in a
// newline get ";\n" appended.
func (c *Context) expand(out *strings.Builder, v *Variable, self Index, reg map[Index]int) {
	stmt := v.stmt
	out.WriteString("    ")
	for i := 0; i < len(stmt); i++ {
		ch := stmt[i]
		if ch != '$' {
			out.WriteByte(ch)
			continue
		}
		if i+2 >= len(stmt) {
			exceptions.Panicf("trace: truncated placeholder at end of template %q", stmt)
		}
		kind, digit := stmt[i+1], stmt[i+2]
		i += 2
		if digit < '1' || digit > '4' {
			exceptions.Panicf("trace: malformed placeholder $%c%c in template %q", kind, digit, stmt)
		}
		operand := self
		if digit != '1' {
			operand = v.deps[digit-'2']
			if operand == 0 {
				exceptions.Panicf("trace: template %q references unset operand %c", stmt, digit)
			}
		}
		ov := c.vars[operand]
		if ov == nil {
			exceptions.Panicf("trace: template %q references collected variable %d", stmt, operand)
		}
		info := ptx.Lookup(ov.typ)
		switch kind {
		case 't':
			out.WriteString(info.Name)
		case 'b':
			out.WriteString(info.BinName)
		case 'r':
			r, ok := reg[operand]
			if !ok {
				exceptions.Panicf("trace: operand %d of template %q is not in the schedule", operand, stmt)
			}
			out.WriteString(info.RegPrefix)
			out.WriteString(strconv.Itoa(r))
		default:
			exceptions.Panicf("trace: unsupported placeholder $%c%c in template %q", kind, digit, stmt)
		}
	}
	if !strings.HasSuffix(stmt, "\n") {
		out.WriteString(";\n")
	}
}
