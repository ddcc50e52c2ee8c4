// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package reslock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquire_Exclusive(t *testing.T) {
	registry := NewMemoryRegistry()

	result, err := registry.Acquire(Request{Resource: "db:accounts", Holder: "task1", Exclusive: true, TTL: time.Hour})
	assert.NoError(t, err)
	assert.True(t, result.Granted)

	locks := registry.Check("db:accounts")
	assert.Len(t, locks, 1)
	assert.True(t, locks[0].Exclusive)
	assert.Equal(t, "task1", locks[0].Holder)

	result, err = registry.Acquire(Request{Resource: "db:accounts", Holder: "task2", Exclusive: true, TTL: time.Hour})
	assert.Error(t, err)
	assert.False(t, result.Granted)
	assert.IsType(t, &ConflictError{}, err)

	result, err = registry.Acquire(Request{Resource: "db:accounts", Holder: "task3", Exclusive: false, TTL: time.Hour})
	assert.Error(t, err)
	assert.False(t, result.Granted)
	assert.IsType(t, &ConflictError{}, err)
}

func TestAcquire_Shared(t *testing.T) {
	registry := NewMemoryRegistry()

	for _, holder := range []string{"task1", "task2", "task3"} {
		result, err := registry.Acquire(Request{Resource: "api:quota", Holder: holder, Exclusive: false, TTL: time.Hour})
		assert.NoError(t, err)
		assert.True(t, result.Granted)
	}

	locks := registry.Check("api:quota")
	assert.Len(t, locks, 3)
	for _, l := range locks {
		assert.False(t, l.Exclusive)
	}
}

func TestRelease(t *testing.T) {
	registry := NewMemoryRegistry()

	result, err := registry.Acquire(Request{Resource: "db:accounts", Holder: "task1", Exclusive: true, TTL: time.Hour})
	assert.NoError(t, err)
	assert.True(t, result.Granted)

	assert.NoError(t, registry.Release("db:accounts", "task1"))
	assert.Len(t, registry.Check("db:accounts"), 0)

	err = registry.Release("db:accounts", "task1")
	assert.Error(t, err)
}

func TestExpiration(t *testing.T) {
	registry := NewMemoryRegistry()

	_, err := registry.Acquire(Request{Resource: "r1", Holder: "task1", TTL: time.Millisecond})
	assert.NoError(t, err)
	_, err = registry.Acquire(Request{Resource: "r2", Holder: "task2", TTL: time.Hour})
	assert.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	assert.Len(t, registry.Check("r1"), 0)
	assert.Len(t, registry.Check("r2"), 1)

	count := registry.CleanupExpired()
	assert.Greater(t, count, 0)
	assert.Len(t, registry.Check("r1"), 0)
	assert.Len(t, registry.Check("r2"), 1)
}

func TestConcurrentAcquire(t *testing.T) {
	registry := NewMemoryRegistry()

	const goroutines = 10
	var wg sync.WaitGroup
	var successCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			result, err := registry.Acquire(Request{Resource: "shared", Holder: "task", TTL: time.Hour})
			if err == nil && result.Granted {
				successCount.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Greater(t, int(successCount.Load()), 0)
}

func TestGlobPatterns(t *testing.T) {
	registry := NewMemoryRegistry()

	result, err := registry.Acquire(Request{Resource: "queue:*", Holder: "task1", Exclusive: true, TTL: time.Hour})
	assert.NoError(t, err)
	assert.True(t, result.Granted)

	result, err = registry.Acquire(Request{Resource: "queue:default", Holder: "task2", Exclusive: false, TTL: time.Hour})
	assert.Error(t, err)
	assert.False(t, result.Granted)

	result, err = registry.Acquire(Request{Resource: "topic:default", Holder: "task2", Exclusive: false, TTL: time.Hour})
	assert.NoError(t, err)
	assert.True(t, result.Granted)
}

func TestRenewLock(t *testing.T) {
	registry := NewMemoryRegistry()

	_, err := registry.Acquire(Request{Resource: "r1", Holder: "task1", TTL: 100 * time.Millisecond})
	assert.NoError(t, err)

	original := registry.Check("r1")[0].ExpiresAt

	assert.NoError(t, registry.RenewLock("r1", "task1", 2*time.Hour))
	renewed := registry.Check("r1")
	assert.Len(t, renewed, 1)
	assert.True(t, renewed[0].ExpiresAt.After(original.Add(time.Hour)))

	err = registry.RenewLock("r1", "nonexistent", time.Hour)
	assert.Error(t, err)

	registry2 := NewMemoryRegistry()
	registry2.Acquire(Request{Resource: "expired", Holder: "task1", TTL: time.Millisecond})
	time.Sleep(20 * time.Millisecond)
	err = registry2.RenewLock("expired", "task1", time.Hour)
	assert.Error(t, err)
}
