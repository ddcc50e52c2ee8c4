package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasksup/internal/reslock"
	"tasksup/pkg/task"
)

// A reservation acquired at task start and released from a cleanup
// callback is freed on every exit path, including cancellation.
func TestCleanupReleasesReservation(t *testing.T) {
	registry := reslock.NewMemoryRegistry()

	root := New("holder", task.Normal, testConfig())
	res, err := registry.Acquire(reslock.Request{
		Resource:  "db:accounts",
		Holder:    root.Name(),
		Exclusive: true,
		TTL:       time.Hour,
	})
	require.NoError(t, err)
	require.True(t, res.Granted)

	require.NoError(t, root.RegisterCleanup(AsyncCallback(func(ctx context.Context) error {
		return registry.Release("db:accounts", root.Name())
	})))

	go func() {
		_, _ = root.Run(func(ctx context.Context) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, root.Cancel("shutting down"))
	<-root.Done()

	assert.Empty(t, registry.Check("db:accounts"))

	// the resource is genuinely free again
	res, err = registry.Acquire(reslock.Request{
		Resource:  "db:accounts",
		Holder:    "next-task",
		Exclusive: true,
		TTL:       time.Hour,
	})
	require.NoError(t, err)
	assert.True(t, res.Granted)
}

// Offload through the tree's runtime runs the function on the pool and
// returns its result.
func TestRuntimeOffload(t *testing.T) {
	root := New("root", task.Normal, testConfig())

	val, err := root.Runtime().Offload(context.Background(), func() (any, error) {
		return 40 + 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
}

// Offload respects a cancelled caller context even if the offloaded
// function never returns in time.
func TestRuntimeOffloadHonorsContext(t *testing.T) {
	root := New("root", task.Normal, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := root.Runtime().Offload(ctx, func() (any, error) {
		time.Sleep(time.Second)
		return nil, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// An installed task factory observes every child spawn and the children
// still run to completion.
func TestTaskFactoryObservesSpawns(t *testing.T) {
	root := New("root", task.Normal, testConfig())

	var mu sync.Mutex
	var spawned []string
	root.Runtime().SetTaskFactory(func(name string, run func()) {
		mu.Lock()
		spawned = append(spawned, name)
		mu.Unlock()
		go run()
	})
	defer root.Runtime().SetTaskFactory(nil)

	child, err := root.CreateTask("factory-made", task.Normal, func(ctx context.Context) (any, error) {
		return "made", nil
	})
	require.NoError(t, err)
	<-child.Done()

	val, err := child.Result()
	require.NoError(t, err)
	assert.Equal(t, "made", val)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"factory-made"}, spawned)
}

// An installed exception handler sees cleanup-callback failures in
// addition to the ERROR log record.
func TestExceptionHandlerSeesCallbackFailures(t *testing.T) {
	root := New("root", task.Normal, testConfig())

	var mu sync.Mutex
	var seen []error
	root.Runtime().SetExceptionHandler(func(err error) {
		mu.Lock()
		seen = append(seen, err)
		mu.Unlock()
	})
	defer root.Runtime().SetExceptionHandler(nil)

	boom := errors.New("release failed")
	require.NoError(t, root.RegisterCleanup(AsyncCallback(func(ctx context.Context) error {
		return boom
	})))

	_, err := root.Run(func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.ErrorIs(t, seen[0], boom)
}

// The slow-callback threshold survives a round trip through the façade.
func TestSlowCallbackDurationRoundTrip(t *testing.T) {
	root := New("root", task.Normal, testConfig())
	root.Runtime().SetSlowCallbackDuration(125 * time.Millisecond)
	assert.Equal(t, 125*time.Millisecond, root.Runtime().SlowCallbackDuration())
	root.Runtime().SetSlowCallbackDuration(0)
}
