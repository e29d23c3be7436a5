package webgpu

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/symkern-ml/symkern/internal/engine"
	"github.com/symkern-ml/symkern/internal/tensor"
)

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached in the Backend's shaders map.
func (b *Backend) compileShader(name, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	if shader, exists := b.shaders[name]; exists {
		b.mu.RUnlock()
		return shader
	}
	b.mu.RUnlock()

	shader := b.device.CreateShaderModuleWGSL(code)

	b.mu.Lock()
	b.shaders[name] = shader
	b.mu.Unlock()

	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates a new one.
func (b *Backend) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	b.mu.RLock()
	if pipeline, exists := b.pipelines[name]; exists {
		b.mu.RUnlock()
		return pipeline
	}
	b.mu.RUnlock()

	pipeline := b.device.CreateComputePipelineSimple(nil, shader, "main")

	b.mu.Lock()
	b.pipelines[name] = pipeline
	b.mu.Unlock()

	return pipeline
}

// createBuffer creates a GPU buffer and uploads initial data.
func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// createUniformBuffer creates a uniform buffer with 16-byte alignment.
func (b *Backend) createUniformBuffer(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	alignedSize := (size + 15) &^ 15

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             alignedSize,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, alignedSize)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), alignedSize)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// readBuffer reads data back from a GPU buffer to CPU memory.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (b *Backend) readBuffer(srcBuffer *wgpu.Buffer, size uint64) ([]byte, error) {
	stagingBuffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer stagingBuffer.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(srcBuffer, 0, stagingBuffer, 0, size)
	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)

	err := stagingBuffer.MapAsync(b.device, wgpu.MapModeRead, 0, size)
	if err != nil {
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}

	mappedPtr := stagingBuffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)

	stagingBuffer.Unmap()

	return result, nil
}

// runReduce uploads the argument buffers, dispatches one thread per output
// row and reads the result back.
func (b *Backend) runReduce(k *engine.Kernel, data []*tensor.RawTensor, m, n int) (*tensor.RawTensor, error) {
	key := k.Formula.String()
	shader := b.compileShader(key, generateWGSL(k))
	pipeline := b.getOrCreatePipeline(key, shader)

	outer, inner := m, n
	if k.Formula.Red.Axis == 1 {
		outer, inner = n, m
	}

	entries := make([]wgpu.BindGroupEntry, 0, len(data)+2)
	for slot, buf := range data {
		gpuBuf := b.createBuffer(buf.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
		defer gpuBuf.Release()
		//nolint:gosec // G115: ByteSize() returns a non-negative int
		entries = append(entries, wgpu.BufferBindingEntry(uint32(slot), gpuBuf, 0, uint64(buf.ByteSize())))
	}

	out, err := tensor.NewRaw(k.OutputShape(m, n), k.OutputDType(tensor.Float32), tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	//nolint:gosec // G115: ByteSize() returns a non-negative int
	outSize := uint64(out.ByteSize())
	bufferOut := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  outSize,
	})
	defer bufferOut.Release()
	//nolint:gosec // G115: len(data) fits in uint32
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(data)), bufferOut, 0, outSize))

	params := make([]byte, 16)
	//nolint:gosec // G115: axis lengths are non-negative
	binary.LittleEndian.PutUint32(params[0:4], uint32(outer))
	//nolint:gosec // G115: axis lengths are non-negative
	binary.LittleEndian.PutUint32(params[4:8], uint32(inner))
	bufferParams := b.createUniformBuffer(params)
	defer bufferParams.Release()
	//nolint:gosec // G115: len(data)+1 fits in uint32
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(data)+1), bufferParams, 0, 16))

	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := b.device.CreateBindGroupSimple(bindGroupLayout, entries)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)

	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)

	//nolint:gosec // G115: workgroup count is non-negative
	workgroups := uint32((outer + workgroupSize - 1) / workgroupSize)
	computePass.DispatchWorkgroups(workgroups, 1, 1)
	computePass.End()

	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)

	resultData, err := b.readBuffer(bufferOut, outSize)
	if err != nil {
		return nil, err
	}

	copy(out.Data(), resultData)
	return out, nil
}
