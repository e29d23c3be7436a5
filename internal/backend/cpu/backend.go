// Package cpu implements the tiled reduction backend on host memory, with
// tiles of the non-reduced axis spread across worker goroutines.
package cpu

import (
	"fmt"

	"github.com/symkern-ml/symkern/internal/engine"
	"github.com/symkern-ml/symkern/internal/tensor"
)

// Backend evaluates kernels on the CPU.
type Backend struct {
	cfg engine.Config
}

// New creates a CPU backend with the given evaluation configuration.
func New(cfg engine.Config) *Backend {
	return &Backend{cfg: cfg}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (b *Backend) Device() tensor.Device {
	return tensor.CPU
}

// Reduce validates the argument buffers, allocates the output and runs the
// tiled evaluation in the dtype of the inputs.
func (b *Backend) Reduce(k *engine.Kernel, data []*tensor.RawTensor) (*tensor.RawTensor, error) {
	m, n, dtype, err := k.CheckArgs(data)
	if err != nil {
		return nil, err
	}

	out, err := tensor.NewRaw(k.OutputShape(m, n), k.OutputDType(dtype), tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("cpu: allocating output: %w", err)
	}

	switch dtype {
	case tensor.Float32:
		engine.Reduce[float32](k, data, m, n, out, b.cfg)
	case tensor.Float64:
		engine.Reduce[float64](k, data, m, n, out, b.cfg)
	default:
		return nil, fmt.Errorf("cpu: unsupported dtype %s", dtype)
	}
	return out, nil
}
