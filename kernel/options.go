// Copyright 2026 The symkern Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package kernel

// Mode selects the execution backend for a compiled operator.
type Mode int

// Execution modes. There is no silent fallback at evaluation time: the
// backend is fixed when the operator is compiled.
const (
	// ModeAuto picks the GPU at compile time when an adapter is available,
	// the CPU otherwise.
	ModeAuto Mode = iota
	// ModeCPU always runs the tiled engine on the worker pool.
	ModeCPU
	// ModeGPU requires a WebGPU adapter; compilation fails without one.
	ModeGPU
)

// String returns the mode's name.
func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeCPU:
		return "cpu"
	case ModeGPU:
		return "gpu"
	default:
		return "unknown"
	}
}

type options struct {
	mode     Mode
	workers  int
	tileSize int
	deviceID int
}

// Option configures a compiled operator.
type Option func(*options)

// WithMode selects the execution backend.
func WithMode(m Mode) Option {
	return func(o *options) { o.mode = m }
}

// WithWorkers pins the CPU worker count. Zero keeps the default (one worker
// per CPU); one disables parallelism.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithTileSize sets the inner-axis block size of the CPU engine. Results do
// not depend on it; zero keeps the default.
func WithTileSize(n int) Option {
	return func(o *options) { o.tileSize = n }
}

// WithDeviceID selects the GPU device. Only device 0, the default adapter,
// exists under WebGPU; any other id makes GPU compilation fail.
func WithDeviceID(id int) Option {
	return func(o *options) { o.deviceID = id }
}
