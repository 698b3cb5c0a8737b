// Package parallel runs independent pieces of work, such as scoring the batches
// of an evaluation set, on several goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine.
}

// DefaultConfig uses one worker per CPU. Work items are whole batches, so a
// goroutine is worth starting for a single item.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 1,
	}
}

func (cfg Config) sequential(n int) bool {
	return !cfg.Enabled || cfg.NumWorkers <= 1 || n < 2*max(cfg.MinChunkSize, 1)
}

// For executes f(i) for i in [0, n), splitting the indices into at most
// NumWorkers contiguous chunks. It runs f in order on the calling goroutine
// when parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	if cfg.sequential(n) {
		for i := range n {
			f(i)
		}
		return
	}

	chunk := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)
	var wg sync.WaitGroup
	for _, r := range Ranges(n, chunk) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := r.Start; i < r.End; i++ {
				f(i)
			}
		}()
	}
	wg.Wait()
}

// Batches splits [0, n) into batches of at most size items and calls f for
// each of them with the batch number, as For does. It returns the error of the
// lowest numbered failing batch.
func Batches(n, size int, f func(batch int, r Range) error, cfg Config) error {
	ranges := Ranges(n, size)
	errs := make([]error, len(ranges))
	For(len(ranges), func(i int) {
		errs[i] = f(i, ranges[i])
	}, cfg)
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Range is the half-open index interval [Start, End).
type Range struct {
	Start, End int
}

// Len returns End - Start.
func (r Range) Len() int {
	return r.End - r.Start
}

// Indices returns Start, Start+1, ..., End-1.
func (r Range) Indices() []int {
	idx := make([]int, r.Len())
	for i := range idx {
		idx[i] = r.Start + i
	}
	return idx
}

// Ranges splits [0, n) into consecutive ranges of at most size items.
// The last range may be shorter.
func Ranges(n, size int) []Range {
	if n <= 0 {
		return nil
	}
	size = max(size, 1)
	out := make([]Range, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		out = append(out, Range{Start: start, End: min(start+size, n)})
	}
	return out
}
