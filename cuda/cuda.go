// Package cuda wraps the subset of the NVIDIA driver API the tracer needs:
// device memory management, host/device copies, and JIT-linking plus launching
// of PTX kernels on the default stream.
//
// The real implementation binds the driver through cgo and is selected with the
// "cuda" build tag (it requires libcuda and the CUDA headers installed). Without
// the tag, New returns an error and Available reports false, so that everything
// above this package still compiles and tests on machines without a GPU.
package cuda

// DevicePtr is a device memory address (CUdeviceptr). The zero value means
// "no buffer".
type DevicePtr uint64

// Driver is the device interface consumed by the tracer.
//
// All calls are synchronous with respect to the host. LaunchPTX launches on the
// default stream and, since it unloads the module before returning, waits for
// the kernel to finish; Synchronize blocks until the device drained.
type Driver interface {
	// MemAlloc allocates size bytes of device memory.
	MemAlloc(size int64) (DevicePtr, error)

	// MemAllocManaged allocates size bytes of unified memory visible to both
	// host and device.
	MemAllocManaged(size int64) (DevicePtr, error)

	// MemFree releases memory obtained from MemAlloc or MemAllocManaged.
	MemFree(ptr DevicePtr) error

	// MemcpyHtoD copies len(src) bytes from host to device.
	MemcpyHtoD(dst DevicePtr, src []byte) error

	// MemcpyDtoH copies len(dst) bytes from device to host.
	MemcpyDtoH(dst []byte, src DevicePtr) error

	// LaunchPTX JIT-links the given PTX source, resolves kernel, uploads the
	// argument pointer table, and launches with the given geometry. The kernel
	// receives two parameters: the device address of the argument table and
	// size as a 32-bit element count. The link state, argument table, and
	// module are all released before LaunchPTX returns.
	LaunchPTX(ptx []byte, kernel string, args []DevicePtr, size int, blocks, threads int) error

	// Synchronize blocks until all work on the default stream completed.
	Synchronize() error

	// Close releases the device context. The Driver is invalid afterwards.
	Close() error
}
