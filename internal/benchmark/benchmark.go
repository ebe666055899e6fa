// Package benchmark measures decode throughput and memory use.
package benchmark

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"
)

// Timer provides simple timing utilities for benchmarking.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer creates a new timer with the given name.
func NewTimer(name string) *Timer {
	return &Timer{
		name:  name,
		start: time.Now(),
	}
}

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// String returns a formatted string representation of the timer.
func (t *Timer) String() string {
	return fmt.Sprintf("%s: %v", t.name, t.duration)
}

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64  // Currently allocated bytes
	TotalAllocBytes uint64  // Total allocated bytes (cumulative)
	SysBytes        uint64  // Total bytes from system
	NumGC           uint32  // Number of GC runs
	GCCPUFraction   float64 // Fraction of CPU time spent in GC
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
		GCCPUFraction:   m.GCCPUFraction,
	}
}

// String returns a formatted string representation of memory stats.
func (m MemoryStats) String() string {
	return fmt.Sprintf("Alloc: %d KB, Total: %d KB, Sys: %d KB, GC: %d (%.2f%% CPU)",
		m.AllocBytes/1024,
		m.TotalAllocBytes/1024,
		m.SysBytes/1024,
		m.NumGC,
		m.GCCPUFraction*100)
}

// Result holds the outcome of one benchmark run.
type Result struct {
	Name         string
	Duration     time.Duration
	MemoryBefore MemoryStats
	MemoryAfter  MemoryStats
	Iterations   int
	Error        error
}

// Average is the mean duration of one iteration.
func (r Result) Average() time.Duration {
	if r.Iterations <= 0 {
		return 0
	}
	return r.Duration / time.Duration(r.Iterations)
}

// AllocatedKB is the growth of the live heap across the run. It is
// negative when a collection ran in between.
func (r Result) AllocatedKB() int64 {
	return (int64(r.MemoryAfter.AllocBytes) - int64(r.MemoryBefore.AllocBytes)) / 1024 //nolint:gosec // G115: display only
}

// String returns a formatted string representation of the benchmark result.
func (r Result) String() string {
	if r.Error != nil {
		return fmt.Sprintf("%s: ERROR - %v", r.Name, r.Error)
	}
	return fmt.Sprintf("%s: %d iterations, avg: %v, total: %v, mem: %+d KB",
		r.Name, r.Iterations, r.Average(), r.Duration, r.AllocatedKB())
}

// Benchmark is a named function run once per iteration.
type Benchmark struct {
	Name string
	Func func() error
}

// Suite manages multiple benchmarks.
type Suite struct {
	benchmarks []Benchmark
	results    []Result
	mu         sync.Mutex
}

// NewSuite creates an empty suite.
func NewSuite() *Suite {
	return &Suite{
		benchmarks: make([]Benchmark, 0),
		results:    make([]Result, 0),
	}
}

// Add adds a benchmark to the suite.
func (s *Suite) Add(name string, fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.benchmarks = append(s.benchmarks, Benchmark{Name: name, Func: fn})
}

// Run runs a single benchmark with the specified number of iterations.
func (s *Suite) Run(name string, iterations int) Result {
	s.mu.Lock()
	var (
		bench Benchmark
		found bool
	)
	for _, b := range s.benchmarks {
		if b.Name == name {
			bench, found = b, true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return Result{Name: name, Error: fmt.Errorf("benchmark '%s' not found", name)}
	}
	return runBenchmark(bench, iterations)
}

// RunAll runs all benchmarks in the order they were added.
func (s *Suite) RunAll(iterations int) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = make([]Result, 0, len(s.benchmarks))
	for _, b := range s.benchmarks {
		s.results = append(s.results, runBenchmark(b, iterations))
	}
	return s.results
}

// Results returns the results of the last RunAll.
func (s *Suite) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// WriteResults prints the results of the last RunAll to w.
func (s *Suite) WriteResults(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Benchmark Results:")
	_, _ = fmt.Fprintln(w, "==================")
	for _, r := range s.Results() {
		_, _ = fmt.Fprintln(w, r.String())
	}
}

func runBenchmark(b Benchmark, iterations int) Result {
	runtime.GC()
	memBefore := GetMemoryStats()

	timer := NewTimer(b.Name)
	var err error
	for range iterations {
		if e := b.Func(); e != nil {
			err = e
			break
		}
	}
	duration := timer.Stop()

	return Result{
		Name:         b.Name,
		Duration:     duration,
		MemoryBefore: memBefore,
		MemoryAfter:  GetMemoryStats(),
		Iterations:   iterations,
		Error:        err,
	}
}
