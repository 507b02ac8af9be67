package trace

import (
	"github.com/enokigo/enoki/cuda"
	"github.com/pkg/errors"
)

// fakeDriver implements cuda.Driver without a device. Buffers live in host
// memory, so uploads read back intact; launches are recorded but do not
// execute. Enough to test everything up to, but excluding, the numeric results
// of a kernel.
type fakeDriver struct {
	buffers  map[cuda.DevicePtr][]byte
	next     cuda.DevicePtr
	allocs   int
	frees    int
	launches []launch
}

type launch struct {
	source  string
	kernel  string
	args    []cuda.DevicePtr
	size    int
	blocks  int
	threads int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		buffers: make(map[cuda.DevicePtr][]byte),
		next:    0x10000,
	}
}

func (d *fakeDriver) MemAlloc(size int64) (cuda.DevicePtr, error) {
	ptr := d.next
	d.next += cuda.DevicePtr(size + 0xff)
	d.next &^= 0xff
	d.buffers[ptr] = make([]byte, size)
	d.allocs++
	return ptr, nil
}

func (d *fakeDriver) MemAllocManaged(size int64) (cuda.DevicePtr, error) {
	return d.MemAlloc(size)
}

func (d *fakeDriver) MemFree(ptr cuda.DevicePtr) error {
	if _, ok := d.buffers[ptr]; !ok {
		return errors.Errorf("fake driver: MemFree of unknown pointer %#x", uint64(ptr))
	}
	delete(d.buffers, ptr)
	d.frees++
	return nil
}

// locate resolves an address possibly interior to an allocation.
func (d *fakeDriver) locate(ptr cuda.DevicePtr) ([]byte, int, error) {
	for base, buf := range d.buffers {
		if ptr >= base && ptr < base+cuda.DevicePtr(len(buf)) {
			return buf, int(ptr - base), nil
		}
	}
	return nil, 0, errors.Errorf("fake driver: address %#x is not allocated", uint64(ptr))
}

func (d *fakeDriver) MemcpyHtoD(dst cuda.DevicePtr, src []byte) error {
	buf, off, err := d.locate(dst)
	if err != nil {
		return err
	}
	copy(buf[off:], src)
	return nil
}

func (d *fakeDriver) MemcpyDtoH(dst []byte, src cuda.DevicePtr) error {
	buf, off, err := d.locate(src)
	if err != nil {
		return err
	}
	copy(dst, buf[off:])
	return nil
}

func (d *fakeDriver) LaunchPTX(ptx []byte, kernel string, args []cuda.DevicePtr, size, blocks, threads int) error {
	d.launches = append(d.launches, launch{
		source:  string(ptx),
		kernel:  kernel,
		args:    append([]cuda.DevicePtr(nil), args...),
		size:    size,
		blocks:  blocks,
		threads: threads,
	})
	return nil
}

func (d *fakeDriver) Synchronize() error { return nil }
func (d *fakeDriver) Close() error       { return nil }
