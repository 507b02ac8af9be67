package trace

import (
	"fmt"
	"strings"

	"github.com/enokigo/enoki/ptx"
	"github.com/gomlx/exceptions"
)

// Printf appends a device-side formatted print over up to three trace
// variables. The format string follows the device vprintf conventions: every
// integer argument is widened to 64 bits and every float to double, so use
// %llu/%lld/%f style conversions. The print is a side effect: it is pinned
// into the next kernel even if the returned index is dropped immediately, and
// fires once per lane.
func (c *Context) Printf(format string, args ...Index) Index {
	if len(args) > 3 {
		exceptions.Panicf("trace: Printf takes at most 3 arguments, got %d", len(args))
	}

	sym := fmt.Sprintf("__pbuf_fmt_%d", len(c.vars))
	var stmt strings.Builder
	stmt.WriteString("{\n")
	if len(args) > 0 {
		fmt.Fprintf(&stmt, "        .local .align 8 .b8 pbuf[%d];\n", 8*len(args))
	}
	stmt.WriteString("        .param .b64 fmt_p;\n")
	stmt.WriteString("        .param .b64 buf_p;\n")
	stmt.WriteString("        .param .b32 rv_p;\n")
	for i, arg := range args {
		place := fmt.Sprintf("$r%d", i+2)
		offset := 8 * i
		switch typ := c.get(arg).typ; typ {
		case ptx.F64:
			fmt.Fprintf(&stmt, "        st.local.f64 [pbuf+%d], %s;\n", offset, place)
		case ptx.F32:
			fmt.Fprintf(&stmt, "        cvt.f64.f32 %%d0, %s;\n", place)
			fmt.Fprintf(&stmt, "        st.local.f64 [pbuf+%d], %%d0;\n", offset)
		case ptx.F16:
			fmt.Fprintf(&stmt, "        cvt.f32.f16 %%f0, %s;\n", place)
			stmt.WriteString("        cvt.f64.f32 %d0, %f0;\n")
			fmt.Fprintf(&stmt, "        st.local.f64 [pbuf+%d], %%d0;\n", offset)
		case ptx.Bool:
			fmt.Fprintf(&stmt, "        selp.u32 %%r0, 1, 0, %s;\n", place)
			stmt.WriteString("        cvt.u64.u32 %rd9, %r0;\n")
			fmt.Fprintf(&stmt, "        st.local.u64 [pbuf+%d], %%rd9;\n", offset)
		case ptx.I64, ptx.U64, ptx.Pointer:
			fmt.Fprintf(&stmt, "        st.local.%s [pbuf+%d], %s;\n", ptx.Lookup(typ).Name, offset, place)
		default:
			fmt.Fprintf(&stmt, "        cvt.%s64.$t%d %%rd9, %s;\n", ptx.Lookup(typ).Name[:1], i+2, place)
			fmt.Fprintf(&stmt, "        st.local.s64 [pbuf+%d], %%rd9;\n", offset)
		}
	}
	fmt.Fprintf(&stmt, "        mov.u64 %%rd8, %s;\n", sym)
	stmt.WriteString("        cvta.global.u64 %rd8, %rd8;\n")
	stmt.WriteString("        st.param.b64 [fmt_p], %rd8;\n")
	if len(args) > 0 {
		stmt.WriteString("        mov.u64 %rd8, pbuf;\n")
		stmt.WriteString("        cvta.local.u64 %rd8, %rd8;\n")
		stmt.WriteString("        st.param.b64 [buf_p], %rd8;\n")
	} else {
		stmt.WriteString("        mov.u64 %rd8, 0;\n")
		stmt.WriteString("        st.param.b64 [buf_p], %rd8;\n")
	}
	stmt.WriteString("        call.uni (rv_p), vprintf, (fmt_p, buf_p);\n")
	stmt.WriteString("    }\n")

	idx := c.Append(ptx.U32, stmt.String(), args...)
	c.get(idx).decl = formatDecl(sym, format)
	c.MarkSideEffect(idx)
	return idx
}

// formatDecl renders the format string as a NUL-terminated module-scope byte
// array.
func formatDecl(sym, format string) string {
	var b strings.Builder
	fmt.Fprintf(&b, ".global .align 1 .b8 %s[%d] = {", sym, len(format)+1)
	for i := 0; i < len(format); i++ {
		fmt.Fprintf(&b, "%d, ", format[i])
	}
	b.WriteString("0};\n")
	return b.String()
}
