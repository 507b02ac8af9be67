// enoki-trace is a small driver around the tracing JIT: it records a demo
// computation, prints the PTX kernels the trace compiles to, and -- with --run,
// when built with CUDA support (-tags cuda) -- runs them on the GPU and prints
// the results.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/janpfeifer/must"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/enokigo/enoki/cuda"
	"github.com/enokigo/enoki/ptx"
	"github.com/enokigo/enoki/trace"
)

var (
	flagSize    int
	flagDevice  int
	flagBlocks  int
	flagThreads int
	flagRun     bool
)

func main() {
	klog.InitFlags(nil)
	root := &cobra.Command{
		Use:   "enoki-trace",
		Short: "Inspect the kernels emitted by the enoki tracing JIT",
	}
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	root.PersistentFlags().IntVarP(&flagSize, "size", "n", 1024, "number of elements in the demo arrays")
	root.PersistentFlags().IntVar(&flagBlocks, "blocks", 0, "launch grid size (0 selects the default)")
	root.PersistentFlags().IntVar(&flagThreads, "threads", 0, "threads per block (0 selects the default)")
	root.PersistentFlags().IntVar(&flagDevice, "device", 0, "CUDA device ordinal")
	root.PersistentFlags().BoolVar(&flagRun, "run", false, "launch the kernels on the GPU instead of dry-running")

	root.AddCommand(&cobra.Command{
		Use:   "demo",
		Short: "Trace a fused multiply-add over two uploaded arrays and dump its kernel",
		Run:   func(*cobra.Command, []string) { demo() },
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newDriver() cuda.Driver {
	if flagRun {
		if !cuda.Available() {
			fmt.Fprintln(os.Stderr, "enoki-trace: no CUDA support in this build, rebuild with -tags cuda")
			os.Exit(1)
		}
		return must.M1(cuda.New(flagDevice))
	}
	return &dryDriver{}
}

func demo() {
	driver := newDriver()
	defer driver.Close()
	c := trace.NewWithOptions(driver, trace.Options{Blocks: flagBlocks, Threads: flagThreads})
	defer c.Finalize()
	c.KernelHook = func(source []byte) { fmt.Printf("%s\n", source) }

	xs := make([]float32, flagSize)
	ys := make([]float32, flagSize)
	for i := range xs {
		xs[i] = float32(i)
		ys[i] = 0.5 * float32(i)
	}
	x := trace.UploadSlice(c, xs)
	y := trace.UploadSlice(c, ys)
	c.AttachComment(x, "x")
	c.AttachComment(y, "y")
	a := c.Literal(ptx.F32, "0f40000000") // 2.0
	fma := c.Append(ptx.F32, "fma.rn.$t1 $r1, $r2, $r3, $r4", a, x, y)
	c.AttachComment(fma, "a*x + y")

	fmt.Println(c.Whos())
	if !flagRun {
		c.Evaluate()
		return
	}
	out := trace.Fetch[float32](c, fma)
	for i := 0; i < len(out) && i < 8; i++ {
		fmt.Printf("  [%4d] %g\n", i, out[i])
	}
	c.DecRefExt(fma)
	c.DecRefExt(a)
	c.DecRefExt(x)
	c.DecRefExt(y)
}

// dryDriver satisfies cuda.Driver without a device: allocations hand out fake
// addresses, copies to the host read back zeros, launches succeed silently.
// Good enough to drive the compiler for kernel inspection.
type dryDriver struct {
	next cuda.DevicePtr
}

func (d *dryDriver) MemAlloc(bytes int64) (cuda.DevicePtr, error) {
	d.next += 0x1000
	return d.next, nil
}

func (d *dryDriver) MemAllocManaged(bytes int64) (cuda.DevicePtr, error) {
	return d.MemAlloc(bytes)
}

func (d *dryDriver) MemFree(cuda.DevicePtr) error { return nil }

func (d *dryDriver) MemcpyHtoD(cuda.DevicePtr, []byte) error { return nil }

func (d *dryDriver) MemcpyDtoH(dst []byte, _ cuda.DevicePtr) error {
	clear(dst)
	return nil
}

func (d *dryDriver) LaunchPTX([]byte, string, []cuda.DevicePtr, int, int, int) error { return nil }
func (d *dryDriver) Synchronize() error                                              { return nil }
func (d *dryDriver) Close() error                                                    { return nil }
