package trace

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enokigo/enoki/cuda"
	"github.com/enokigo/enoki/ptx"
)

// newGPU creates a context on the real device, skipping the test when the
// binary was built without CUDA support.
func newGPU(t *testing.T) *Context {
	t.Helper()
	if !cuda.Available() {
		t.Skip("no CUDA support in this build")
	}
	driver := must.M1(cuda.New(0))
	t.Cleanup(func() { must.M(driver.Close()) })
	c := New(driver)
	t.Cleanup(c.Finalize)
	return c
}

func fetchElement(t *testing.T, c *Context, idx Index, i int) float32 {
	t.Helper()
	raw := c.FetchBytes(idx, i, 1)
	require.Len(t, raw, 4)
	return math.Float32frombits(binary.LittleEndian.Uint32(raw))
}

func TestGPUDouble(t *testing.T) {
	c := newGPU(t)
	a := UploadSlice(c, []float32{1, 2, 3, 4})
	r := c.Append(ptx.F32, "add.f32 $r1, $r2, $r2", a)
	c.Evaluate()
	assert.Equal(t, float32(2), fetchElement(t, c, r, 0))
	assert.Equal(t, float32(8), fetchElement(t, c, r, 3))
}

func TestGPUSharedSubexpression(t *testing.T) {
	c := newGPU(t)
	a := UploadSlice(c, []float32{1, 2, 3, 4})
	b := c.Append(ptx.F32, "mul.f32 $r1, $r2, $r2", a)
	r := c.Append(ptx.F32, "add.f32 $r1, $r2, $r3", a, b)
	assert.Equal(t, float32(12), fetchElement(t, c, r, 2))
}

func TestGPUBroadcastScalar(t *testing.T) {
	c := newGPU(t)
	a := UploadSlice(c, []float32{1, 2, 3, 4})
	k := c.Literal(ptx.F32, "0f40000000")
	r := c.Append(ptx.F32, "add.f32 $r1, $r2, $r3", a, k)
	assert.Equal(t, []float32{3, 4, 5, 6}, Fetch[float32](c, r))
}

func TestGPUPrintf(t *testing.T) {
	c := newGPU(t)
	a := UploadSlice(c, []float32{42})
	c.Printf("value %f\n", a)
	c.Evaluate()
	c.Sync()
}
