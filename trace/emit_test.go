package trace

import (
	"fmt"
	"strings"
	"testing"

	"github.com/enokigo/enoki/ptx"
	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// evaluateOne runs Evaluate and returns the source of the single kernel it
// launched.
func evaluateOne(t *testing.T, c *Context, d *fakeDriver) string {
	t.Helper()
	before := len(d.launches)
	c.Evaluate()
	require.Len(t, d.launches, before+1)
	return d.launches[before].source
}

func TestKernelShape(t *testing.T) {
	c, d := newTest(t)
	a := UploadSlice(c, []float32{1, 2, 3, 4})
	c.Append(ptx.F32, "add.f32 $r1, $r2, $r2", a)

	var hooked []byte
	c.KernelHook = func(source []byte) { hooked = source }
	source := evaluateOne(t, c, d)
	assert.Equal(t, string(hooked), source, "the hook sees the launched kernel")

	assert.True(t, strings.HasPrefix(source, ".version 6.3\n"))
	assert.Contains(t, source, ".target sm_75")
	assert.Contains(t, source, ".address_size 64")
	assert.Contains(t, source, ".visible .entry "+KernelName+"(.param .u64 ptr,")
	assert.Contains(t, source, ".param .u32 size)")
	assert.Equal(t, KernelName, d.launches[0].kernel)

	// Grid-stride preamble and loop.
	assert.Contains(t, source, "mad.lo.u32 %r2, %r5, %r6, %r4;")
	assert.Contains(t, source, "mul.lo.u32 %r3, %r6, %r7;")
	assert.Contains(t, source, "add.u32 %r2, %r2, %r3;")
	assert.Contains(t, source, "@%p0 bra L_body;")

	// The trailing store keeps the stride register alive; it sits after ret.
	assert.Contains(t, source, "st.global.u32 [%rd8], %r3;")

	assert.Equal(t, 4, d.launches[0].size)
	assert.Equal(t, defaultBlocks, d.launches[0].blocks)
	assert.Equal(t, defaultThreads, d.launches[0].threads)
}

func TestRegisterDeclarations(t *testing.T) {
	c, d := newTest(t)
	a := UploadSlice(c, []float32{1, 2})
	c.Append(ptx.F32, "add.f32 $r1, $r2, $r2", a)

	source := evaluateOne(t, c, d)
	// Two scheduled variables on top of the reserved indices, in every file.
	for _, f := range ptx.RegisterFiles {
		assert.Contains(t, source, fmt.Sprintf(".reg.%s %s<%d>;", f.Decl, f.Prefix, reservedIndices+2))
	}
}

func TestPlaceholderExpansion(t *testing.T) {
	c, d := newTest(t)
	a := UploadSlice(c, []float32{1, 2, 3, 4})
	c.Append(ptx.F32, "fma.rn.$t1 $r1, $r2, $r2, $r2", a)

	source := evaluateOne(t, c, d)
	// The input gets register 10, the result register 11.
	assert.Contains(t, source, "ld.global.f32 %f10, [%rd8];")
	assert.Contains(t, source, "fma.rn.f32 %f11, %f10, %f10, %f10;")
	assert.Contains(t, source, "st.global.f32 [%rd8], %f11;")
}

func TestPlaceholderErrors(t *testing.T) {
	for _, stmt := range []string{
		"add.f32 $r1, $r2, $", // truncated
		"add.f32 $r1, $r9",    // operand digit out of range
		"add.f32 $r1, $r3",    // slot 3 names no operand
		"add.f32 $x1, $r2",    // unknown placeholder kind
	} {
		c, _ := newTest(t)
		a := UploadSlice(c, []float32{1})
		c.Append(ptx.F32, stmt, a)
		err := exceptions.TryCatch[error](func() { c.Evaluate() })
		require.Error(t, err, "template %q must fail to compile", stmt)
	}
}

func TestBroadcastScalarLoad(t *testing.T) {
	c, d := newTest(t)
	k := UploadSlice(c, []float32{7})
	a := UploadSlice(c, []float32{1, 2, 3, 4})
	c.Append(ptx.F32, "add.f32 $r1, $r2, $r3", a, k)

	source := evaluateOne(t, c, d)
	// The wide input is indexed by lane, the scalar is not.
	assert.Contains(t, source, "mul.wide.u32 %rd9, %r2, 4;")
	loads := strings.Count(source, "ld.global.f32 %f")
	scaled := strings.Count(source, "mul.wide.u32 %rd9, %r2, 4;")
	assert.Equal(t, 2, loads)
	assert.Equal(t, 2, scaled, "one scaled load for the wide input, one scaled store for the result")
}

func TestBoolLoadStore(t *testing.T) {
	c, d := newTest(t)
	b := UploadBool(c, []bool{true, false, true, false})
	c.Append(ptx.Bool, "not.pred $r1, $r2", b)

	source := evaluateOne(t, c, d)
	assert.Contains(t, source, "ld.global.u8 %rs0, [%rd8];")
	assert.Contains(t, source, "setp.ne.u16 %p10, %rs0, 0;")
	assert.Contains(t, source, "not.pred %p11, %p10;")
	assert.Contains(t, source, "selp.u16 %rs0, 1, 0, %p11;")
	assert.Contains(t, source, "st.global.u8 [%rd8], %rs0;")
}

func TestFloat16LoadStore(t *testing.T) {
	c, d := newTest(t)
	h := UploadFloat16(c, []float32{1, 2, 3, 4})
	c.Append(ptx.F16, "add.f16 $r1, $r2, $r2", h)

	source := evaluateOne(t, c, d)
	assert.Contains(t, source, "ld.global.u16 %h10, [%rd8];")
	assert.Contains(t, source, "add.f16 %h11, %h10, %h10;")
	assert.Contains(t, source, "st.global.u16 [%rd8], %h11;")
}

func TestCommentsAppearInKernel(t *testing.T) {
	c, d := newTest(t)
	a := UploadSlice(c, []float32{1, 2})
	r := c.Append(ptx.F32, "add.f32 $r1, $r2, $r2", a)
	c.AttachComment(r, "doubled")

	source := evaluateOne(t, c, d)
	assert.Contains(t, source, "// doubled")
}

func TestPrintfKernel(t *testing.T) {
	c, d := newTest(t)
	a := UploadSlice(c, []float32{1, 2, 3, 4})
	c.Printf("lane value %f\n", a)

	source := evaluateOne(t, c, d)
	assert.Contains(t, source, ".extern .func (.param .b32 rv) vprintf")
	assert.Contains(t, source, ".global .align 1 .b8 __pbuf_fmt_")
	assert.Contains(t, source, "cvt.f64.f32 %d0, %f10;")
	assert.Contains(t, source, "st.local.f64 [pbuf+0], %d0;")
	assert.Contains(t, source, "call.uni (rv_p), vprintf, (fmt_p, buf_p);")

	// The format declaration sits at module scope, before the kernel entry.
	declPos := strings.Index(source, "__pbuf_fmt_")
	entryPos := strings.Index(source, ".visible .entry")
	assert.Less(t, declPos, entryPos)
}

func TestBucketOrderLargestFirst(t *testing.T) {
	c, d := newTest(t)
	a := UploadSlice(c, []float32{1, 2, 3, 4})
	b := UploadSlice(c, []float32{1, 2})
	c.Append(ptx.F32, "add.f32 $r1, $r2, $r2", a)
	c.Append(ptx.F32, "add.f32 $r1, $r2, $r2", b)

	c.Evaluate()
	require.Len(t, d.launches, 2)
	assert.Equal(t, 4, d.launches[0].size)
	assert.Equal(t, 2, d.launches[1].size)
}

func TestShapeMismatchFatal(t *testing.T) {
	c, _ := newTest(t)
	a := UploadSlice(c, []float32{1, 2, 3, 4})
	b := UploadSlice(c, []float32{1, 2, 3})
	c.Append(ptx.F32, "add.f32 $r1, $r2, $r3", a, b)

	err := exceptions.TryCatch[error](func() { c.Evaluate() })
	require.Error(t, err, "mismatched non-scalar counts are a bucket shape error")
}
