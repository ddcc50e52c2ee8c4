package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStateTerminal(t *testing.T) {
	terminal := []State{Completed, Cancelled, Failed}
	nonTerminal := []State{Pending, Running, Blocked}

	for _, s := range terminal {
		assert.True(t, s.Terminal(), s.String())
	}
	for _, s := range nonTerminal {
		assert.False(t, s.Terminal(), s.String())
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "PENDING", Pending.String())
	assert.Equal(t, "RUNNING", Running.String())
	assert.Equal(t, "BLOCKED", Blocked.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}

func TestPriorityString(t *testing.T) {
	assert.Equal(t, "LOW", Low.String())
	assert.Equal(t, "CRITICAL", Critical.String())
	assert.Equal(t, "UNKNOWN", Priority(99).String())
}

func TestNewInfoStartsPending(t *testing.T) {
	info := NewInfo("task1", High)
	assert.Equal(t, "task1", info.Name)
	assert.Equal(t, Pending, info.State)
	assert.Equal(t, High, info.Priority)
	assert.NotNil(t, info.DebugInfo)
	assert.False(t, info.LastActive.IsZero())
}

func TestResourceLimitsExceeded_NoLimitsUnbounded(t *testing.T) {
	var limits ResourceLimits
	_, _, _, ok := limits.Exceeded(ResourceStats{PeakMemoryBytes: 1 << 40})
	assert.False(t, ok)
}

func TestResourceLimitsExceeded_Runtime(t *testing.T) {
	max := 100 * time.Millisecond
	limits := ResourceLimits{MaxRuntime: &max}

	which, value, limit, ok := limits.Exceeded(ResourceStats{TotalRuntime: 200 * time.Millisecond})
	assert.True(t, ok)
	assert.Equal(t, "runtime", which)
	assert.Equal(t, int64(200), value)
	assert.Equal(t, int64(100), limit)
}

func TestResourceLimitsExceeded_Memory(t *testing.T) {
	max := int64(1024)
	limits := ResourceLimits{MaxMemoryBytes: &max}

	which, value, limit, ok := limits.Exceeded(ResourceStats{PeakMemoryBytes: 2048})
	assert.True(t, ok)
	assert.Equal(t, "memory", which)
	assert.Equal(t, int64(2048), value)
	assert.Equal(t, int64(1024), limit)
}

func TestResourceLimitsExceeded_IOOps(t *testing.T) {
	max := int64(100)
	limits := ResourceLimits{MaxIOOps: &max}

	which, value, limit, ok := limits.Exceeded(ResourceStats{IOOps: 150})
	assert.True(t, ok)
	assert.Equal(t, "io_ops", which)
	assert.Equal(t, int64(150), value)
	assert.Equal(t, int64(100), limit)
}

func TestResourceLimitsExceeded_NetworkCalls(t *testing.T) {
	max := int64(10)
	limits := ResourceLimits{MaxNetworkCalls: &max}

	which, value, limit, ok := limits.Exceeded(ResourceStats{NetworkCalls: 11})
	assert.True(t, ok)
	assert.Equal(t, "network_calls", which)
	assert.Equal(t, int64(11), value)
	assert.Equal(t, int64(10), limit)
}

func TestResourceLimitsExceeded_Children(t *testing.T) {
	max := 2
	limits := ResourceLimits{MaxChildren: &max}

	which, value, limit, ok := limits.Exceeded(ResourceStats{ChildCount: 5})
	assert.True(t, ok)
	assert.Equal(t, "children", which)
	assert.Equal(t, int64(5), value)
	assert.Equal(t, int64(2), limit)
}

func TestResourceLimitsExceeded_PrefersRuntimeOverOthers(t *testing.T) {
	maxRuntime := 10 * time.Millisecond
	maxMem := int64(1 << 30)
	limits := ResourceLimits{MaxRuntime: &maxRuntime, MaxMemoryBytes: &maxMem}

	which, _, _, ok := limits.Exceeded(ResourceStats{TotalRuntime: time.Second, PeakMemoryBytes: 1})
	assert.True(t, ok)
	assert.Equal(t, "runtime", which)
}
