package supervisor

import (
	"context"
	"time"

	"tasksup/pkg/task"
)

// startMonitor launches the periodic sweep goroutine for this task: stats
// refresh, zombie collection among children, starvation flagging,
// resource-limit enforcement, and (for roots only, to avoid redundant
// whole-graph scans from every task) a deadlock scan. It is idempotent:
// calling it twice on an already-monitored task is a no-op.
func (s *Supervisor) startMonitor() {
	s.mu.Lock()
	if s.monitorCancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.monitorCancel = cancel
	s.monitorDone = make(chan struct{})
	s.mu.Unlock()

	go s.monitorLoop(ctx)
}

func (s *Supervisor) stopMonitor() {
	s.mu.Lock()
	cancel := s.monitorCancel
	done := s.monitorDone
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

func (s *Supervisor) monitorLoop(ctx context.Context) {
	defer close(s.monitorDone)

	ticker := time.NewTicker(s.tree.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.monitorTick()
		}
	}
}

func (s *Supervisor) monitorTick() {
	s.refreshStats()
	s.checkZombies()
	s.checkStarvation()
	s.checkResourceLimits()
	if s.parent == nil {
		s.checkDeadlock()
	}
}

func (s *Supervisor) refreshStats() {
	mem := s.tree.cfg.Probe.SampleMemory()

	s.mu.Lock()
	if mem > s.info.Stats.PeakMemoryBytes {
		s.info.Stats.PeakMemoryBytes = mem
	}
	s.info.Stats.ChildCount = len(s.children)
	if s.info.State == task.Running && !s.info.StartTime.IsZero() {
		s.info.Stats.TotalRuntime = time.Since(s.info.StartTime)
	}
	s.info.Stats.LastUpdated = time.Now()
	s.mu.Unlock()
}

// checkZombies finds children that have been terminal longer than
// ZombieMaxAge and are still registered (their goroutine returned but they
// were never forgotten from the tree. The cleanup protocol should have
// removed them, so this is a backstop, not the primary removal path).
func (s *Supervisor) checkZombies() {
	now := time.Now()
	for _, child := range s.Children() {
		child.mu.Lock()
		isZombie := child.info.State.Terminal() && !child.info.EndTime.IsZero() &&
			now.Sub(child.info.EndTime) > s.tree.cfg.ZombieMaxAge
		name := child.info.Name
		child.mu.Unlock()

		if isZombie {
			s.logger.Warn("zombie child detected, forgetting", "child", name)
			s.forgetChild(child)
		}
	}
}

// checkStarvation flags a BLOCKED task that hasn't progressed within
// StarvationThreshold. It also warns (without the debug_info flag) about
// a RUNNING task that has sat past the same threshold without completing,
// so the advisory priority metadata is actually observable somewhere
// besides a task that's stuck waiting on a dependency.
func (s *Supervisor) checkStarvation() {
	s.mu.Lock()
	state := s.info.State
	lastActive := s.info.LastActive
	priority := s.info.Priority.String()
	s.mu.Unlock()

	idle := time.Since(lastActive)
	if idle <= s.tree.cfg.StarvationThreshold {
		return
	}

	switch state {
	case task.Blocked:
		s.mu.Lock()
		s.info.DebugInfo["starving"] = true
		s.mu.Unlock()
		s.logger.Warn("task starvation suspected", "blocked_for", idle, "priority", priority)
	case task.Running:
		s.logger.Warn("task running far longer than expected", "running_for", idle, "priority", priority)
	}
}

func (s *Supervisor) checkResourceLimits() {
	s.mu.Lock()
	which, value, limit, exceeded := s.info.Limits.Exceeded(s.info.Stats)
	priority := s.info.Priority.String()
	s.mu.Unlock()

	if exceeded {
		s.logger.Error("resource limit exceeded", "which", which, "value", value, "limit", limit, "priority", priority)
		go s.Cancel("Resource exceeded: " + which)
	}
}

// checkDeadlock scans the shared dependency graph for a cycle and cancels
// every task on it with reason "Deadlock": a cycle can never resolve on
// its own since every member is waiting on another member that will never
// reach a terminal state.
func (s *Supervisor) checkDeadlock() {
	path, found := s.tree.graph.DetectCycle()
	if !found {
		return
	}
	names := make([]string, len(path))
	for i, n := range path {
		names[i] = n.Name()
	}
	s.logger.Error("dependency deadlock detected", "cycle", names)
	for _, member := range path {
		go member.Cancel("Deadlock")
	}
}

func (s *Supervisor) forgetChild(child *Supervisor) {
	s.mu.Lock()
	delete(s.children, child)
	s.mu.Unlock()
	s.tree.graph.Forget(child)
}
