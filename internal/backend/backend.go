// Package backend defines the execution interface shared by the CPU and
// WebGPU reduction backends.
package backend

import (
	"fmt"

	"github.com/symkern-ml/symkern/internal/engine"
	"github.com/symkern-ml/symkern/internal/tensor"
)

// Backend evaluates compiled kernels over argument buffers.
type Backend interface {
	// Name identifies the backend for diagnostics.
	Name() string
	// Device returns the compute device the backend runs on.
	Device() tensor.Device
	// Reduce evaluates the kernel and returns a freshly allocated output
	// buffer of shape [rows, outputDim].
	Reduce(k *engine.Kernel, data []*tensor.RawTensor) (*tensor.RawTensor, error)
}

// UnavailableError reports that a requested backend cannot run on this
// system. The CPU path is unaffected; callers may fall back explicitly.
type UnavailableError struct {
	Backend string
	Reason  string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("backend %s unavailable: %s", e.Backend, e.Reason)
}
