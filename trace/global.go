package trace

import (
	"github.com/enokigo/enoki/cuda"
	"github.com/gomlx/exceptions"
)

// The package-level default context, for programs that trace against a single
// device and do not want to thread a *Context through every call site.

var defaultContext *Context

// Init installs driver as the default context's device. It must be called once
// before Default.
func Init(driver cuda.Driver, opts Options) {
	if defaultContext != nil {
		exceptions.Panicf("trace: Init called twice without Shutdown")
	}
	defaultContext = NewWithOptions(driver, opts)
}

// Default returns the context installed by Init.
func Default() *Context {
	if defaultContext == nil {
		exceptions.Panicf("trace: Default used before Init")
	}
	return defaultContext
}

// Shutdown finalizes the default context and releases its device buffers. The
// driver passed to Init is not closed.
func Shutdown() {
	if defaultContext == nil {
		return
	}
	defaultContext.Finalize()
	defaultContext = nil
}
