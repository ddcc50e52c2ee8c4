package runtimefacade

import "runtime"

// ResourceProbe samples current memory consumption. It is pluggable so a
// richer implementation (reading cgroup accounting, or a per-process
// sampler) can be swapped in without the supervisor package knowing the
// difference; it also lets tests feed the monitor deterministic numbers
// instead of real OS counters.
type ResourceProbe interface {
	// SampleMemory returns allocated bytes for the calling process. Go has
	// no per-goroutine resource accounting, so this is a process-wide
	// figure shared by every task in the tree, sufficient for the
	// monitor's "did something blow past its ceiling" checks.
	SampleMemory() int64
}

type processResourceProbe struct{}

// NewProcessResourceProbe returns the default probe.
func NewProcessResourceProbe() ResourceProbe { return processResourceProbe{} }

func (processResourceProbe) SampleMemory() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.Alloc)
}
