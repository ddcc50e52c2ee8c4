package task

import "time"

// Info is the record a Supervisor handle owns. It is not safe for
// concurrent use on its own: callers must hold the owning handle's mutex
// while touching any field. Every mutable field lives behind that single
// per-task lock, not a lock per field.
type Info struct {
	Name     string
	State    State
	Priority Priority

	StartTime time.Time
	EndTime   time.Time

	// LastActive is stamped every time the task enters RUNNING or BLOCKED,
	// the reference point the monitor measures starvation against.
	LastActive time.Time

	Stats  ResourceStats
	Limits ResourceLimits

	// CancelReason is set by Cancel and surfaced to callers inspecting a
	// CANCELLED or BLOCKED task after the fact.
	CancelReason string

	// DebugInfo holds freeform annotations, including the "blocked_reason"
	// key set when a dependency cancellation transitions this task to
	// BLOCKED, and any keys pushed by WithDebug.
	DebugInfo map[string]any
}

// NewInfo builds the zero-value record for a freshly created task.
func NewInfo(name string, priority Priority) *Info {
	return &Info{
		Name:       name,
		State:      Pending,
		Priority:   priority,
		DebugInfo:  make(map[string]any),
		LastActive: time.Now(),
	}
}
