//go:build cuda

package cuda

/*
#cgo LDFLAGS: -lcuda
#include <cuda.h>
#include <stdlib.h>
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// driver talks to one CUDA device through its primary context.
type driver struct {
	device  C.CUdevice
	context C.CUcontext
}

var _ Driver = (*driver)(nil)

var (
	initOnce sync.Once
	initErr  error
)

func cuInit() error {
	initOnce.Do(func() {
		initErr = status(C.cuInit(0), "cuInit")
	})
	return initErr
}

// Available reports whether the CUDA driver initialized successfully.
func Available() bool {
	return cuInit() == nil
}

// New creates a Driver bound to the given device ordinal, retaining its
// primary context.
func New(device int) (Driver, error) {
	if err := cuInit(); err != nil {
		return nil, err
	}
	d := &driver{}
	if err := status(C.cuDeviceGet(&d.device, C.int(device)), "cuDeviceGet"); err != nil {
		return nil, err
	}
	if err := status(C.cuDevicePrimaryCtxRetain(&d.context, d.device), "cuDevicePrimaryCtxRetain"); err != nil {
		return nil, err
	}
	if err := status(C.cuCtxSetCurrent(d.context), "cuCtxSetCurrent"); err != nil {
		return nil, err
	}
	var name [256]C.char
	if C.cuDeviceGetName(&name[0], 256, d.device) == C.CUDA_SUCCESS {
		klog.V(1).Infof("cuda: using device %d (%s)", device, C.GoString(&name[0]))
	}
	return d, nil
}

// status converts a CUresult into an error carrying the driver's own
// description of the failure.
func status(res C.CUresult, op string) error {
	if res == C.CUDA_SUCCESS {
		return nil
	}
	var msg *C.char
	if C.cuGetErrorString(res, &msg) != C.CUDA_SUCCESS || msg == nil {
		return errors.Errorf("cuda: %s failed with status %d", op, int(res))
	}
	return errors.Errorf("cuda: %s failed: %s (status %d)", op, C.GoString(msg), int(res))
}

func (d *driver) MemAlloc(size int64) (DevicePtr, error) {
	var ptr C.CUdeviceptr
	if err := status(C.cuMemAlloc(&ptr, C.size_t(size)), "cuMemAlloc"); err != nil {
		return 0, err
	}
	return DevicePtr(ptr), nil
}

func (d *driver) MemAllocManaged(size int64) (DevicePtr, error) {
	var ptr C.CUdeviceptr
	if err := status(C.cuMemAllocManaged(&ptr, C.size_t(size), C.CU_MEM_ATTACH_GLOBAL), "cuMemAllocManaged"); err != nil {
		return 0, err
	}
	return DevicePtr(ptr), nil
}

func (d *driver) MemFree(ptr DevicePtr) error {
	return status(C.cuMemFree(C.CUdeviceptr(ptr)), "cuMemFree")
}

func (d *driver) MemcpyHtoD(dst DevicePtr, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	return status(C.cuMemcpyHtoD(C.CUdeviceptr(dst), unsafe.Pointer(&src[0]), C.size_t(len(src))), "cuMemcpyHtoD")
}

func (d *driver) MemcpyDtoH(dst []byte, src DevicePtr) error {
	if len(dst) == 0 {
		return nil
	}
	return status(C.cuMemcpyDtoH(unsafe.Pointer(&dst[0]), C.CUdeviceptr(src), C.size_t(len(dst))), "cuMemcpyDtoH")
}

const linkLogSize = 8192

func (d *driver) LaunchPTX(ptx []byte, kernel string, args []DevicePtr, size int, blocks, threads int) error {
	infoLog := make([]byte, linkLogSize)
	errorLog := make([]byte, linkLogSize)
	options := []C.CUjit_option{
		C.CU_JIT_INFO_LOG_BUFFER,
		C.CU_JIT_INFO_LOG_BUFFER_SIZE_BYTES,
		C.CU_JIT_ERROR_LOG_BUFFER,
		C.CU_JIT_ERROR_LOG_BUFFER_SIZE_BYTES,
	}
	optionValues := []unsafe.Pointer{
		unsafe.Pointer(&infoLog[0]),
		unsafe.Pointer(uintptr(linkLogSize)),
		unsafe.Pointer(&errorLog[0]),
		unsafe.Pointer(uintptr(linkLogSize)),
	}

	var link C.CUlinkState
	if err := status(C.cuLinkCreate(C.uint(len(options)), &options[0], &optionValues[0], &link), "cuLinkCreate"); err != nil {
		return err
	}
	defer C.cuLinkDestroy(link)

	// The linker wants a NUL-terminated buffer.
	source := append(append([]byte{}, ptx...), 0)
	name := C.CString(kernel)
	defer C.free(unsafe.Pointer(name))
	if res := C.cuLinkAddData(link, C.CU_JIT_INPUT_PTX, unsafe.Pointer(&source[0]),
		C.size_t(len(source)), name, 0, nil, nil); res != C.CUDA_SUCCESS {
		return errors.WithMessagef(status(res, "cuLinkAddData"),
			"linker log:\n%s", cString(errorLog))
	}

	var cubin unsafe.Pointer
	var cubinSize C.size_t
	if res := C.cuLinkComplete(link, &cubin, &cubinSize); res != C.CUDA_SUCCESS {
		return errors.WithMessagef(status(res, "cuLinkComplete"),
			"linker log:\n%s", cString(errorLog))
	}
	if log := cString(infoLog); log != "" {
		klog.V(2).Infof("cuda: linker info log:\n%s", log)
	}

	var module C.CUmodule
	if err := status(C.cuModuleLoadData(&module, cubin), "cuModuleLoadData"); err != nil {
		return err
	}
	defer C.cuModuleUnload(module)

	kernelName := C.CString(kernel)
	defer C.free(unsafe.Pointer(kernelName))
	var fn C.CUfunction
	if err := status(C.cuModuleGetFunction(&fn, module, kernelName), "cuModuleGetFunction"); err != nil {
		return err
	}

	// Argument pointer table lives on the device for the duration of the launch.
	var table C.CUdeviceptr
	if len(args) > 0 {
		if err := status(C.cuMemAlloc(&table, C.size_t(len(args)*8)), "cuMemAlloc"); err != nil {
			return err
		}
		defer C.cuMemFree(table)
		if err := status(C.cuMemcpyHtoD(table, unsafe.Pointer(&args[0]), C.size_t(len(args)*8)), "cuMemcpyHtoD"); err != nil {
			return err
		}
	}

	count := C.uint(size)
	params := []unsafe.Pointer{
		unsafe.Pointer(&table),
		unsafe.Pointer(&count),
	}
	if err := status(C.cuLaunchKernel(fn,
		C.uint(blocks), 1, 1,
		C.uint(threads), 1, 1,
		0, nil, &params[0], nil), "cuLaunchKernel"); err != nil {
		return err
	}
	// The module may not be unloaded while the kernel is in flight.
	return d.Synchronize()
}

func (d *driver) Synchronize() error {
	return status(C.cuCtxSynchronize(), "cuCtxSynchronize")
}

func (d *driver) Close() error {
	return status(C.cuDevicePrimaryCtxRelease(d.device), "cuDevicePrimaryCtxRelease")
}

// cString interprets buf as a NUL-terminated C string.
func cString(buf []byte) string {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}
