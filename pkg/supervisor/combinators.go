package supervisor

import (
	"context"
	"time"

	"tasksup/pkg/task"
)

// GatherTask names one unit of work handed to Gather.
type GatherTask struct {
	Name string
	Fn   TaskFunc
}

// Gather runs each task concurrently as a child of s, waits for all of
// them, and returns their results in input order, the Go analogue of
// asyncio.gather(*aws). With returnExceptions false, the first
// non-cancellation failure cancels the remaining children via their
// handles and Gather reports an AggregateError of every non-cancel
// failure; with returnExceptions true, nothing is cancelled and a failed
// slot carries its error as the result value.
func Gather(s *Supervisor, returnExceptions bool, tasks ...GatherTask) ([]any, error) {
	children := make([]*Supervisor, len(tasks))
	for i, gt := range tasks {
		child, err := s.CreateTask(gt.Name, PriorityOf(s), gt.Fn)
		if err != nil {
			for _, started := range children[:i] {
				started.Cancel("gather aborted")
			}
			return nil, err
		}
		children[i] = child
	}

	if !returnExceptions {
		for _, c := range children {
			go func(c *Supervisor) {
				<-c.Done()
				if _, err := c.Result(); err != nil && c.State() != task.Cancelled {
					for _, sib := range children {
						if sib != c {
							sib.Cancel("sibling failed in gather")
						}
					}
				}
			}(c)
		}
	}

	results := make([]any, len(tasks))
	var causes []error
	for i, c := range children {
		<-c.Done()
		val, err := c.Result()
		switch {
		case err == nil:
			results[i] = val
		case returnExceptions:
			results[i] = err
		case c.State() != task.Cancelled:
			causes = append(causes, err)
		}
	}

	if len(causes) > 0 {
		return results, &AggregateError{Causes: causes}
	}
	return results, nil
}

func (s *Supervisor) runErrSnapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// PriorityOf returns the priority a derived task should default to: the
// same as its creator.
func PriorityOf(s *Supervisor) task.Priority {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Priority
}

// Wait blocks until every given handle reaches a terminal state, or ctx is
// done, mirroring asyncio.wait with return_when=ALL_COMPLETED.
func Wait(ctx context.Context, handles ...*Supervisor) error {
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// AsCompleted returns a channel that yields each handle as it completes, in
// completion order rather than the order handles were given, the Go
// analogue of asyncio.as_completed. One goroutine per handle waits on its
// Done channel and forwards it; the output channel closes once every
// handle has been forwarded or ctx is done.
func AsCompleted(ctx context.Context, handles ...*Supervisor) <-chan *Supervisor {
	out := make(chan *Supervisor, len(handles))
	go func() {
		defer close(out)
		remaining := len(handles)
		forwarded := make(chan *Supervisor, len(handles))
		for _, h := range handles {
			go func(h *Supervisor) {
				select {
				case <-h.Done():
					forwarded <- h
				case <-ctx.Done():
				}
			}(h)
		}
		for remaining > 0 {
			select {
			case h := <-forwarded:
				out <- h
				remaining--
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// shielded is a read-only view of an existing handle. It has no Cancel
// method, so nothing can be cancelled through it. It does NOT register a
// new node in the dependency graph or parent/child tree: shielding observes
// an existing task, it doesn't create one.
type shielded struct {
	inner *Supervisor
}

// Shield returns a view whose Done/State/Err reflect inner. It does not
// detach inner from its parent: a cancellation cascade from inner's parent
// or any ancestor still reaches inner.
func Shield(inner *Supervisor) *shielded {
	return &shielded{inner: inner}
}

func (sh *shielded) Done() <-chan struct{} { return sh.inner.Done() }
func (sh *shielded) State() task.State     { return sh.inner.State() }
func (sh *shielded) Err() error            { return sh.inner.runErrSnapshot() }

// WaitFor runs fn to completion as a child of s, cancelling it if timeout
// elapses first, the Go analogue of asyncio.wait_for.
func WaitFor(s *Supervisor, name string, timeout time.Duration, fn TaskFunc) (any, error) {
	return TimeoutAt(s, name, time.Now().Add(timeout), fn)
}

// Timeout runs fn to completion as a child of s, cancelling it if it does
// not finish within d, the Go analogue of asyncio.timeout used as a
// context manager around a single task.
func Timeout(s *Supervisor, name string, d time.Duration, fn TaskFunc) (any, error) {
	return TimeoutAt(s, name, time.Now().Add(d), fn)
}

// TimeoutAt runs fn to completion as a child of s, cancelling it if the
// wall-clock deadline passes first, the Go analogue of asyncio.timeout_at.
// Built on a plain one-shot timer that is always stopped on exit.
func TimeoutAt(s *Supervisor, name string, deadline time.Time, fn TaskFunc) (any, error) {
	child, err := s.CreateTask(name, PriorityOf(s), fn)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-child.Done():
		return child.Result()
	case <-timer.C:
		child.Cancel("deadline exceeded")
		<-child.Done()
		return nil, &TimeoutError{Operation: name}
	}
}
