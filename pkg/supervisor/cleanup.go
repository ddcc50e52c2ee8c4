package supervisor

import (
	"context"
	"sync"
	"time"

	"tasksup/internal/telemetry"
	"tasksup/pkg/task"
)

// Cancel requests that this task (and everything it owns) stop. It is
// idempotent: calling it twice, or calling it on an already-terminal task,
// is a no-op. The cascade to children and the notification of dependents
// happen synchronously inside Cancel, independent of whether this task's
// own body ever observes ctx and returns: a body that ignores its
// context cannot hold the rest of the tree hostage.
func (s *Supervisor) Cancel(reason string) error {
	s.mu.Lock()
	if s.closed() {
		s.mu.Unlock()
		return nil
	}
	if s.info.CancelReason != "" {
		s.mu.Unlock()
		return nil
	}
	s.info.CancelReason = reason
	s.info.DebugInfo["cancel_reason"] = reason
	state := s.info.State
	neverStarted := s.info.StartTime.IsZero()
	s.mu.Unlock()

	spanCtx, span := telemetry.StartSpan(context.Background(), s.tree.cfg.TracerName, "supervisor.cancel")
	telemetry.AddAttributes(spanCtx, telemetry.CancelAttrs(s.Name(), reason)...)
	defer span.End()

	s.logger.Info("cancelling task", "reason", reason)

	s.cancelChildrenCascade("Parent cancelled: " + reason)
	s.cancelFn()
	s.notifyDependents("dependency cancelled: " + s.Name())

	if neverStarted && !state.Terminal() {
		// The body never started (and now never will), so nothing else
		// is going to call finish/cleanup on our behalf. Covers both a
		// PENDING task and one parked BLOCKED before it ever ran.
		return s.finish(nil, context.Canceled)
	}
	return nil
}

// cancelChildrenCascade fans out cancellation to every child concurrently
// and waits, bounded by CancelTimeout, for each to actually reach a
// terminal state, not just for the cancel request to be issued. Children
// are snapshotted under lock, then the lock is released before recursing
// so a slow cancellation never holds it; children that miss the deadline
// are logged and left behind.
func (s *Supervisor) cancelChildrenCascade(reason string) {
	children := s.Children()
	if len(children) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.tree.cfg.CancelTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, child := range children {
		wg.Add(1)
		go func(c *Supervisor) {
			defer wg.Done()
			c.Cancel(reason)
			select {
			case <-c.Done():
			case <-ctx.Done():
			}
		}(child)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("timed out waiting for children to cancel, proceeding anyway", "timeout", s.tree.cfg.CancelTimeout)
	}
}

// notifyDependents moves every task that depends on s into BLOCKED,
// recording why. Dependents are not cancelled automatically; the caller
// decides what a broken dependency means for them.
func (s *Supervisor) notifyDependents(reason string) {
	for _, dependent := range s.tree.graph.Dependents(s) {
		dependent.mu.Lock()
		if !dependent.closed() && !dependent.info.State.Terminal() {
			_ = dependent.setState(task.Blocked)
			dependent.info.DebugInfo["blocked_reason"] = reason
		}
		dependent.mu.Unlock()
	}
}

// cleanup is the deterministic, single-shot teardown that runs on every
// exit path (normal completion, cancellation, or failure), in the order:
// stop monitor, cancel children (a no-op if Cancel already did it), cancel
// self, run registered callbacks, finalize stats, detach. The outcome is
// classified by finish before cleanup starts.
func (s *Supervisor) cleanup(runErr error) {
	s.cleanupOnce.Do(func() {
		spanCtx, span := telemetry.StartSpan(context.Background(), s.tree.cfg.TracerName, "supervisor.cleanup")
		telemetry.AddAttributes(spanCtx, telemetry.TaskAttrs(s.Name(), s.State().String(), s.info.Priority.String())...)
		if runErr != nil {
			telemetry.RecordError(spanCtx, runErr)
		}
		defer span.End()

		s.stopMonitor()
		s.cancelChildrenCascade(s.cancelReasonOrDefault())
		s.cancelFn()
		s.runCallbacks()
		s.refreshStats()
		s.detachFromParent()
		close(s.done)
	})
}

func (s *Supervisor) cancelReasonOrDefault() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info.CancelReason == "" {
		return "parent exiting"
	}
	return s.info.CancelReason
}

func (s *Supervisor) runCallbacks() {
	s.mu.Lock()
	callbacks := s.callbacks
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.tree.cfg.CancelTimeout)
	defer cancel()

	slowAfter := s.tree.cfg.Runtime.SlowCallbackDuration()
	for _, cb := range callbacks {
		started := time.Now()
		if err := cb.invoke(ctx); err != nil {
			s.logger.Error("cleanup callback failed", "error", err)
			s.tree.cfg.Runtime.HandleException(err)
		}
		if slowAfter > 0 {
			if elapsed := time.Since(started); elapsed > slowAfter {
				s.logger.Warn("slow cleanup callback", "elapsed", elapsed, "threshold", slowAfter)
			}
		}
	}
}

func (s *Supervisor) detachFromParent() {
	s.tree.graph.Forget(s)
	if s.parent != nil {
		s.parent.forgetChild(s)
	}
}
