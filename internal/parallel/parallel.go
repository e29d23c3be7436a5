// Package parallel distributes tiles of the non-reduced axis across worker
// goroutines. Workers own disjoint output slices, so no synchronization is
// needed beyond the final join.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled     bool // Whether parallel execution is enabled.
	NumWorkers  int  // Number of worker goroutines to use.
	MinTileSize int  // Minimum outer indices per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:     n > 1,
		NumWorkers:  n,
		MinTileSize: 64,
	}
}

// WithWorkers returns a config pinned to the given worker count.
// A count of 1 disables parallelism; 0 keeps the default.
func WithWorkers(workers int) Config {
	cfg := DefaultConfig()
	if workers > 0 {
		cfg.NumWorkers = workers
		cfg.Enabled = workers > 1
	}
	return cfg
}

// ForTiles executes f(start, end) over contiguous index tiles covering
// [0, n), with one goroutine per tile when parallelism is enabled. Each
// invocation owns its tile exclusively, so f may allocate per-tile scratch
// and write its output rows without locking.
func ForTiles(n int, f func(start, end int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinTileSize {
		// Sequential fallback.
		f(0, n)
		return
	}

	var wg sync.WaitGroup
	tile := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinTileSize)

	for start := 0; start < n; start += tile {
		end := min(start+tile, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(start, end)
	}
	wg.Wait()
}
