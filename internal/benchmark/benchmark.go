// Package benchmark times target layer forward passes. Conversion and
// validation happen outside the measured loop.
package benchmark

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/MeKo-Tech/caffebridge/internal/common"
	"github.com/MeKo-Tech/caffebridge/internal/target"
)

// Result holds the timings of one benchmark.
type Result struct {
	Name         string             `json:"name" yaml:"name"`
	Iterations   int                `json:"iterations" yaml:"iterations"`
	Warmup       int                `json:"warmup" yaml:"warmup"`
	Total        time.Duration      `json:"total" yaml:"total"`
	Min          time.Duration      `json:"min" yaml:"min"`
	Max          time.Duration      `json:"max" yaml:"max"`
	MemoryBefore common.MemoryStats `json:"memory_before" yaml:"memory_before"`
	MemoryAfter  common.MemoryStats `json:"memory_after" yaml:"memory_after"`
	Err          error              `json:"-" yaml:"-"`
}

// Mean returns the average duration per completed iteration.
func (r Result) Mean() time.Duration {
	if r.Iterations == 0 {
		return 0
	}
	return r.Total / time.Duration(r.Iterations)
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: ERROR - %v", r.Name, r.Err)
	}
	return fmt.Sprintf("%s: %d iterations, avg: %v, min: %v, max: %v, total: %v, alloc: +%d KB",
		r.Name, r.Iterations, r.Mean(), r.Min, r.Max, r.Total,
		r.MemoryAfter.AllocatedSince(r.MemoryBefore)/1024)
}

// Options controls a measured loop.
type Options struct {
	Iterations int
	Warmup     int
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{Iterations: 10, Warmup: 1}
}

// Measure runs fn Warmup times untimed and then Iterations times timed.
// Cancellation is checked between iterations; the partial result is
// returned together with ctx.Err().
func Measure(ctx context.Context, name string, fn func() error, opts Options) (Result, error) {
	if opts.Iterations < 1 {
		return Result{Name: name}, fmt.Errorf("iterations must be >= 1, got %d", opts.Iterations)
	}
	res := Result{Name: name, Warmup: opts.Warmup}
	for range opts.Warmup {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res, err
		}
		if err := fn(); err != nil {
			res.Err = err
			return res, err
		}
	}

	runtime.GC()
	res.MemoryBefore = common.GetMemoryStats()
	for range opts.Iterations {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		timer := common.NewNamedTimer(name)
		err := fn()
		d := timer.Stop()
		if err != nil {
			res.Err = err
			break
		}
		if res.Iterations == 0 || d < res.Min {
			res.Min = d
		}
		res.Max = max(res.Max, d)
		res.Total += d
		res.Iterations++
	}
	res.MemoryAfter = common.GetMemoryStats()
	return res, res.Err
}

// MeasureForward times l.Forward(). The layer must already hold its input.
func MeasureForward(ctx context.Context, l target.Layer, opts Options) (Result, error) {
	return Measure(ctx, l.Type(), l.Forward, opts)
}

// PrintResults writes one line per result to w.
func PrintResults(w io.Writer, results []Result) {
	_, _ = fmt.Fprintln(w, "\nBenchmark Results:")
	_, _ = fmt.Fprintln(w, "==================")
	var total time.Duration
	for _, r := range results {
		_, _ = fmt.Fprintln(w, r.String())
		total += r.Mean()
	}
	_, _ = fmt.Fprintf(w, "%d layers, summed mean forward: %v\n", len(results), total)
}
