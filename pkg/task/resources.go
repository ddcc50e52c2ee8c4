package task

import "time"

// ResourceStats is what a task has consumed so far. Counters only grow:
// PeakMemoryBytes is the high-water mark across monitor samples, IOOps and
// NetworkCalls are incremented by the task as it performs them, and
// TotalRuntime advances while the task runs and freezes on terminal entry.
type ResourceStats struct {
	PeakMemoryBytes int64
	IOOps           int64
	NetworkCalls    int64
	ChildCount      int
	TotalRuntime    time.Duration
	LastUpdated     time.Time
}

// ResourceLimits are optional ceilings. A nil pointer means "unbounded" for
// that dimension; the monitor only compares dimensions that are set.
type ResourceLimits struct {
	MaxMemoryBytes  *int64
	MaxRuntime      *time.Duration
	MaxIOOps        *int64
	MaxNetworkCalls *int64
	MaxChildren     *int
}

// Exceeded reports the first dimension that stats violates, if any.
func (l *ResourceLimits) Exceeded(stats ResourceStats) (which string, value, limit int64, ok bool) {
	if l == nil {
		return "", 0, 0, false
	}
	if l.MaxRuntime != nil && stats.TotalRuntime > *l.MaxRuntime {
		return "runtime", stats.TotalRuntime.Milliseconds(), l.MaxRuntime.Milliseconds(), true
	}
	if l.MaxMemoryBytes != nil && stats.PeakMemoryBytes > *l.MaxMemoryBytes {
		return "memory", stats.PeakMemoryBytes, *l.MaxMemoryBytes, true
	}
	if l.MaxIOOps != nil && stats.IOOps > *l.MaxIOOps {
		return "io_ops", stats.IOOps, *l.MaxIOOps, true
	}
	if l.MaxNetworkCalls != nil && stats.NetworkCalls > *l.MaxNetworkCalls {
		return "network_calls", stats.NetworkCalls, *l.MaxNetworkCalls, true
	}
	if l.MaxChildren != nil && stats.ChildCount > *l.MaxChildren {
		return "children", int64(stats.ChildCount), int64(*l.MaxChildren), true
	}
	return "", 0, 0, false
}
