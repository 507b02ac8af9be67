//go:build !cuda

package cuda

// Dummy implementation used without the "cuda" build tag: this allows the
// dependency on libcuda and the CUDA headers to be dropped.

import (
	"github.com/pkg/errors"
)

// Available reports whether the CUDA driver initialized successfully.
// Always false without the "cuda" build tag.
func Available() bool {
	return false
}

// New always fails without the "cuda" build tag.
func New(device int) (Driver, error) {
	return nil, errors.Errorf("cuda: built without CUDA support (rebuild with -tags cuda)")
}
