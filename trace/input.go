package trace

import (
	"unsafe"

	"github.com/enokigo/enoki/ptx"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
)

// UploadSlice copies a host slice to a fresh device buffer and registers it as
// an input variable owning that buffer. The element type is derived from the
// Go type.
func UploadSlice[T dtypes.Supported](c *Context, values []T) Index {
	if len(values) == 0 {
		exceptions.Panicf("trace: UploadSlice with empty slice")
	}
	typ := ptx.FromDType(dtypes.FromGenericsType[T]())
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&values[0])), len(values)*int(unsafe.Sizeof(values[0])))
	return uploadBytes(c, typ, len(values), raw)
}

// UploadFloat16 encodes float32 host values as half precision before upload.
func UploadFloat16(c *Context, values []float32) Index {
	if len(values) == 0 {
		exceptions.Panicf("trace: UploadFloat16 with empty slice")
	}
	enc := make([]uint16, len(values))
	for i, f := range values {
		enc[i] = float16.Fromfloat32(f).Bits()
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&enc[0])), len(enc)*2)
	return uploadBytes(c, ptx.F16, len(enc), raw)
}

// UploadBool uploads predicate values in their u8 storage form.
func UploadBool(c *Context, values []bool) Index {
	if len(values) == 0 {
		exceptions.Panicf("trace: UploadBool with empty slice")
	}
	raw := make([]byte, len(values))
	for i, b := range values {
		if b {
			raw[i] = 1
		}
	}
	return uploadBytes(c, ptx.Bool, len(values), raw)
}

func uploadBytes(c *Context, typ ptx.Type, count int, raw []byte) Index {
	ptr, err := c.driver.MemAlloc(int64(len(raw)))
	if err != nil {
		exceptions.Panicf("trace: allocating %d-byte upload buffer: %+v", len(raw), err)
	}
	if err := c.driver.MemcpyHtoD(ptr, raw); err != nil {
		_ = c.driver.MemFree(ptr)
		exceptions.Panicf("trace: uploading %d bytes: %+v", len(raw), err)
	}
	return c.RegisterInput(typ, count, ptr, 0, true)
}

// Literal records a broadcast scalar constant directly in the instruction
// stream, with no device buffer behind it. The value must be a PTX immediate
// in the type's syntax (e.g. "0f40000000" for a 2.0 float).
func (c *Context) Literal(typ ptx.Type, value string) Index {
	return c.Append(typ, "mov.$t1 $r1, "+value)
}

// Counter returns a variable holding each lane's index, the device-side
// equivalent of an arange.
func (c *Context) Counter(count int) Index {
	idx := c.Append(ptx.U32, "mov.u32 $r1, $r2", Lane)
	c.get(idx).count = count
	return idx
}
