// Package webgpu implements the reduction backend on GPU compute shaders.
// Kernels are translated to WGSL, one thread per output row, using
// go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/symkern-ml/symkern/internal/backend"
	"github.com/symkern-ml/symkern/internal/engine"
	"github.com/symkern-ml/symkern/internal/tensor"
)

// Backend evaluates kernels on the GPU via WebGPU compute pipelines.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Shader and pipeline cache, keyed by the canonical formula string.
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	adapterInfo *wgpu.AdapterInfoGo
}

// New creates a WebGPU backend, returning *backend.UnavailableError when no
// usable adapter exists or the native library cannot be loaded.
func New() (b *Backend, err error) {
	// Recover from panic if the wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			b = nil
			err = &backend.UnavailableError{Backend: "WebGPU", Reason: fmt.Sprintf("native library not available: %v", r)}
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, &backend.UnavailableError{Backend: "WebGPU", Reason: "failed to create instance: " + instanceErr.Error()}
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, &backend.UnavailableError{Backend: "WebGPU", Reason: "failed to request adapter: " + adapterErr.Error()}
	}

	adapterInfo, _ := adapter.GetInfo()

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, &backend.UnavailableError{Backend: "WebGPU", Reason: "failed to request device: " + deviceErr.Error()}
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, &backend.UnavailableError{Backend: "WebGPU", Reason: "failed to get queue"}
	}

	return &Backend{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		shaders:     make(map[string]*wgpu.ShaderModule),
		pipelines:   make(map[string]*wgpu.ComputePipeline),
		adapterInfo: adapterInfo,
	}, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// Release releases all WebGPU resources. Must be called when the backend is
// no longer needed.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.pipelines {
		p.Release()
	}
	b.pipelines = nil

	for _, s := range b.shaders {
		s.Release()
	}
	b.shaders = nil

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	if b.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", b.adapterInfo.Device, b.adapterInfo.Vendor)
	}
	return "WebGPU"
}

// Device returns the compute device.
func (b *Backend) Device() tensor.Device {
	return tensor.WebGPU
}

// AdapterInfo returns information about the GPU adapter.
func (b *Backend) AdapterInfo() *wgpu.AdapterInfoGo {
	return b.adapterInfo
}

// Reduce evaluates the kernel on the GPU. Only float32 buffers are
// supported; the CPU backend covers float64.
func (b *Backend) Reduce(k *engine.Kernel, data []*tensor.RawTensor) (*tensor.RawTensor, error) {
	m, n, dtype, err := k.CheckArgs(data)
	if err != nil {
		return nil, err
	}
	if dtype != tensor.Float32 {
		return nil, fmt.Errorf("webgpu: only float32 is supported, got %s", dtype)
	}
	return b.runReduce(k, data, m, n)
}
