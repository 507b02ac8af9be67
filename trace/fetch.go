package trace

import (
	"unsafe"

	"github.com/enokigo/enoki/cuda"
	"github.com/enokigo/enoki/ptx"
	"github.com/gomlx/exceptions"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// FetchBytes copies size elements of idx, starting at element offset, to the
// host as raw bytes. A variable without data is re-activated and the trace
// evaluated first; a dirty variable forces an evaluation so the pending
// scatter lands before the copy.
func (c *Context) FetchBytes(idx Index, offset, size int) []byte {
	v := c.get(idx)
	if v.data == 0 || v.dirty {
		if v.data == 0 {
			// Re-pin it as an evaluation root in case every handle-side
			// reference already left the active set.
			c.active[idx] = struct{}{}
		}
		c.Evaluate()
		v = c.get(idx)
	}
	if v.data == 0 {
		exceptions.Panicf("trace: variable %d still has no data after evaluation", idx)
	}
	if offset < 0 || size < 0 || offset+size > v.count {
		exceptions.Panicf("trace: fetching elements [%d, %d) of %d-element variable %d",
			offset, offset+size, v.count, idx)
	}
	elem := v.typ.Size()
	out := make([]byte, size*elem)
	src := v.data + cuda.DevicePtr(offset*elem)
	if err := c.driver.MemcpyDtoH(out, src); err != nil {
		exceptions.Panicf("trace: copying %d bytes of variable %d to host: %+v", len(out), idx, err)
	}
	return out
}

// Fetch copies the contents of idx into a freshly allocated slice of the
// requested numeric type. The type parameter must match the variable's element
// type size; the reinterpretation is bitwise.
func Fetch[T constraints.Integer | constraints.Float](c *Context, idx Index) []T {
	v := c.get(idx)
	var zero T
	if int(unsafe.Sizeof(zero)) != v.typ.Size() {
		exceptions.Panicf("trace: fetching %d-byte elements from variable %d of type %s",
			unsafe.Sizeof(zero), idx, v.typ)
	}
	raw := c.FetchBytes(idx, 0, v.count)
	out := make([]T, v.count)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&out[0])), len(raw)), raw)
	return out
}

// FetchFloat16 decodes a half-precision variable into float32 values.
func FetchFloat16(c *Context, idx Index) []float32 {
	v := c.get(idx)
	if v.typ != ptx.F16 {
		exceptions.Panicf("trace: FetchFloat16 on variable %d of type %s", idx, v.typ)
	}
	raw := Fetch[uint16](c, idx)
	out := make([]float32, len(raw))
	for i, bits := range raw {
		out[i] = float16.Frombits(bits).Float32()
	}
	return out
}

// FetchBool decodes a predicate variable from its u8 storage form.
func FetchBool(c *Context, idx Index) []bool {
	v := c.get(idx)
	if v.typ != ptx.Bool {
		exceptions.Panicf("trace: FetchBool on variable %d of type %s", idx, v.typ)
	}
	raw := c.FetchBytes(idx, 0, v.count)
	out := make([]bool, len(raw))
	for i, b := range raw {
		out[i] = b != 0
	}
	return out
}
