package common

import (
	"fmt"
	"runtime"
)

// MemoryStats is the subset of runtime.MemStats reported around timed loops.
type MemoryStats struct {
	Alloc         uint64  `json:"alloc" yaml:"alloc"`
	TotalAlloc    uint64  `json:"total_alloc" yaml:"total_alloc"`
	Sys           uint64  `json:"sys" yaml:"sys"`
	Mallocs       uint64  `json:"mallocs" yaml:"mallocs"`
	HeapObjects   uint64  `json:"heap_objects" yaml:"heap_objects"`
	NumGC         uint32  `json:"num_gc" yaml:"num_gc"`
	GCCPUFraction float64 `json:"gc_cpu_fraction" yaml:"gc_cpu_fraction"`
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		Alloc:         m.Alloc,
		TotalAlloc:    m.TotalAlloc,
		Sys:           m.Sys,
		Mallocs:       m.Mallocs,
		HeapObjects:   m.HeapObjects,
		NumGC:         m.NumGC,
		GCCPUFraction: m.GCCPUFraction,
	}
}

// AllocatedSince returns bytes allocated between before and m. The counter
// is cumulative, so the result is never negative.
func (m MemoryStats) AllocatedSince(before MemoryStats) uint64 {
	if m.TotalAlloc < before.TotalAlloc {
		return 0
	}
	return m.TotalAlloc - before.TotalAlloc
}

func (m MemoryStats) String() string {
	return fmt.Sprintf("Alloc: %d KB, Total: %d KB, Sys: %d KB, GC: %d (%.2f%% CPU)",
		m.Alloc/1024,
		m.TotalAlloc/1024,
		m.Sys/1024,
		m.NumGC,
		m.GCCPUFraction*100)
}
