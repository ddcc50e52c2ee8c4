// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package supervisor implements a tree of named, supervised goroutines:
// strict lifecycle states, parent-owns-children cancellation cascades, a
// dependency graph with deadlock detection, resource-limit enforcement via
// a periodic monitor, and a deterministic single-shot cleanup protocol on
// every exit path.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tasksup/internal/durable"
	"tasksup/internal/runtimefacade"
	"tasksup/internal/telemetry"
	"tasksup/pkg/graph"
	"tasksup/pkg/task"
)

// Config tunes the monitor and cleanup protocol for an entire tree. It is
// supplied once, at the root, and shared by every descendant.
type Config struct {
	MonitorInterval     time.Duration
	ZombieMaxAge        time.Duration
	StarvationThreshold time.Duration
	CancelTimeout       time.Duration
	Probe               runtimefacade.ResourceProbe
	Runtime             runtimefacade.Runtime
	Logger              *slog.Logger
	TracerName          string
}

func (c *Config) setDefaults() {
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 60 * time.Second
	}
	if c.ZombieMaxAge <= 0 {
		c.ZombieMaxAge = 300 * time.Second
	}
	if c.StarvationThreshold <= 0 {
		c.StarvationThreshold = 120 * time.Second
	}
	if c.CancelTimeout <= 0 {
		c.CancelTimeout = 5 * time.Second
	}
	if c.Probe == nil {
		c.Probe = runtimefacade.NewProcessResourceProbe()
	}
	if c.Runtime == nil {
		c.Runtime = runtimefacade.NewDefault()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.TracerName == "" {
		c.TracerName = "tasksup"
	}
}

// tree is the state every Supervisor in a task tree shares: the
// dependency graph (edges can cross branches), tuning config, and
// collaborators. It outlives any individual task.
type tree struct {
	graph *graph.Graph[*Supervisor]
	cfg   Config
}

// TaskFunc is a task body: it runs under the handle's context and
// produces the task's result.
type TaskFunc func(context.Context) (any, error)

// Supervisor is a single supervised task: a name, a lifecycle state, a
// position in the parent/child tree, and everything needed to cancel and
// clean it up exactly once.
type Supervisor struct {
	mu sync.Mutex

	info *task.Info
	sm   *durable.StateMachine

	tree   *tree
	parent *Supervisor

	children map[*Supervisor]struct{}

	ctx      context.Context
	cancelFn context.CancelFunc
	done     chan struct{}
	result   any
	runErr   error

	cleanupOnce   sync.Once
	callbacks     []Callback
	monitorCancel context.CancelFunc
	monitorDone   chan struct{}

	logger *slog.Logger
}

// New creates the root of a new task tree in the PENDING state. It does
// not start running until Run is called.
func New(name string, priority task.Priority, cfg Config) *Supervisor {
	cfg.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Supervisor{
		info:     task.NewInfo(name, priority),
		sm:       durable.New(),
		tree:     &tree{graph: graph.New[*Supervisor](), cfg: cfg},
		children: make(map[*Supervisor]struct{}),
		ctx:      ctx,
		cancelFn: cancel,
		done:     make(chan struct{}),
		logger:   cfg.Logger.With("task", name),
	}
	return s
}

// Name returns the task's name. Safe to call on any task regardless of
// state.
func (s *Supervisor) Name() string { return s.info.Name }

// State returns the task's current lifecycle state.
func (s *Supervisor) State() task.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.State
}

// Parent returns the owning task, or nil for a root.
func (s *Supervisor) Parent() *Supervisor { return s.parent }

// Runtime returns the external runtime this tree was built with. Sockets,
// subprocess launches, signal registration, timers, and executor offload
// all go through it rather than through ambient globals, so an alternate
// backend (containerized subprocesses, a fake clock) swaps in at the root
// and every descendant sees it.
func (s *Supervisor) Runtime() runtimefacade.Runtime { return s.tree.cfg.Runtime }

// Children returns a snapshot of the task's current children.
func (s *Supervisor) Children() []*Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Supervisor, 0, len(s.children))
	for c := range s.children {
		out = append(out, c)
	}
	return out
}

// Done returns a channel closed once the task reaches a terminal state and
// its cleanup protocol has finished.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Result returns the value and error the task's body produced. Both are
// zero until the task is terminal; callers normally read them after Done.
func (s *Supervisor) Result() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.runErr
}

// AddIOOps counts n I/O operations against this task. Tasks report their
// own I/O; the monitor enforces MaxIOOps against the accumulated total.
func (s *Supervisor) AddIOOps(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.Stats.IOOps += n
}

// AddNetworkCalls counts n network calls against this task, enforced by
// the monitor against MaxNetworkCalls.
func (s *Supervisor) AddNetworkCalls(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.Stats.NetworkCalls += n
}

// setState drives the task's internal state machine and mirrors the
// result onto task.Info, logging every transition at DEBUG.
func (s *Supervisor) setState(to task.State) error {
	if err := s.sm.Transition(durable.TaskState(to)); err != nil {
		return ErrInvalidTransition
	}
	s.info.State = to
	if to == task.Running || to == task.Blocked {
		s.info.LastActive = time.Now()
	}
	s.logger.Debug("state transition", "to", to.String())
	return nil
}

func (s *Supervisor) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// spawnChild builds a child Supervisor registered under s, sharing s's
// tree. It does not start the child's goroutine; callers decide whether to
// leave it for the caller to run (NewChild) or start it at once (CreateTask).
func (s *Supervisor) spawnChild(name string, priority task.Priority) *Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(s.ctx)
	child := &Supervisor{
		info:     task.NewInfo(name, priority),
		sm:       durable.New(),
		tree:     s.tree,
		parent:   s,
		children: make(map[*Supervisor]struct{}),
		ctx:      ctx,
		cancelFn: cancel,
		done:     make(chan struct{}),
		logger:   s.logger.With("task", name),
	}
	s.children[child] = struct{}{}
	s.info.Stats.ChildCount = len(s.children)
	return child
}

// NewChild creates a child handle in the PENDING state without starting
// it: the caller decides when (and on which goroutine) to call Run. This
// is the handle-construction half of CreateTask, exposed for callers that
// want to wire dependencies between children before any of them start.
func (s *Supervisor) NewChild(name string, priority task.Priority) (*Supervisor, error) {
	if s.closed() {
		return nil, ErrClosedScope
	}
	return s.spawnChild(name, priority), nil
}

// CreateTask spawns a child task and starts it running fn immediately,
// mirroring asyncio's create_task: the caller gets a handle back without
// waiting for fn to finish. The child goroutine is launched through the
// runtime's task factory, so an installed factory observes every spawn.
func (s *Supervisor) CreateTask(name string, priority task.Priority, fn TaskFunc) (*Supervisor, error) {
	if s.closed() {
		return nil, ErrClosedScope
	}
	child := s.spawnChild(name, priority)
	s.tree.cfg.Runtime.Spawn(name, func() { child.Run(fn) })
	return child, nil
}

// Run executes fn as this task's body: transitions PENDING -> RUNNING,
// awaits fn, classifies the outcome, and runs the cleanup protocol exactly
// once before returning fn's result. Run is meant to be called once per
// Supervisor.
func (s *Supervisor) Run(fn TaskFunc) (any, error) {
	spanCtx, span := telemetry.StartSpan(s.ctx, s.tree.cfg.TracerName, "supervisor.run")
	telemetry.AddAttributes(spanCtx, telemetry.TaskAttrs(s.Name(), task.Running.String(), s.info.Priority.String())...)
	defer span.End()

	s.mu.Lock()
	if err := s.setState(task.Running); err != nil {
		s.mu.Unlock()
		telemetry.RecordError(spanCtx, err)
		return nil, err
	}
	s.info.StartTime = time.Now()
	s.mu.Unlock()

	s.startMonitor()

	type outcome struct {
		val any
		err error
	}
	outCh := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outCh <- outcome{err: &panicError{value: r}}
			}
		}()
		val, err := fn(spanCtx)
		outCh <- outcome{val: val, err: err}
	}()

	var out outcome
	select {
	case out = <-outCh:
	case <-s.ctx.Done():
		out = <-outCh // fn must still observe cancellation and return
		if out.err == nil {
			out.err = s.ctx.Err()
		}
	}

	if out.err != nil {
		telemetry.RecordError(spanCtx, out.err)
	}
	return out.val, s.finish(out.val, out.err)
}

// Enter begins the handle's scope without a body function: the task
// transitions PENDING -> RUNNING and its monitor starts. Callers pair it
// with a deferred Exit so cleanup runs on every exit path; work done
// between the two belongs to this task the same way a Run body would.
func (s *Supervisor) Enter() error {
	s.mu.Lock()
	if err := s.setState(task.Running); err != nil {
		s.mu.Unlock()
		return err
	}
	s.info.StartTime = time.Now()
	s.mu.Unlock()

	s.startMonitor()
	return nil
}

// Exit ends a scope opened with Enter, classifying the outcome from err
// (nil for COMPLETED, a cancellation for CANCELLED, anything else for
// FAILED) and running the cleanup protocol exactly once. It returns err
// unchanged so callers can write `return sup.Exit(err)`.
func (s *Supervisor) Exit(err error) error {
	return s.finish(nil, err)
}

// Context returns the context this task's body observes; it is cancelled
// when the task or any ancestor is cancelled.
func (s *Supervisor) Context() context.Context { return s.ctx }

type panicError struct{ value any }

func (p *panicError) Error() string { return "task panicked" }

// finish classifies the outcome of fn and runs cleanup. It is called by
// Run when the body returns, by Exit, and by Cancel for a task whose body
// never started.
func (s *Supervisor) finish(result any, runErr error) error {
	s.mu.Lock()
	s.result = result
	s.runErr = runErr
	// Classification follows what the body actually produced: a body that
	// swallowed cancellation and returned its own error still FAILED; Run
	// substitutes ctx.Err() for a nil error when the context was the
	// reason the body unwound, so cancellation classifies through the
	// returned error alone.
	var target task.State
	switch {
	case runErr == nil:
		target = task.Completed
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		target = task.Cancelled
	default:
		target = task.Failed
	}
	if err := s.setState(target); err != nil && s.info.State == task.Blocked {
		// A body that finished while the task sat BLOCKED must still end
		// terminal; route through RUNNING, which is always legal from
		// BLOCKED.
		_ = s.setState(task.Running)
		_ = s.setState(target)
	}
	s.info.EndTime = time.Now()
	if !s.info.StartTime.IsZero() {
		s.info.Stats.TotalRuntime = s.info.EndTime.Sub(s.info.StartTime)
	}
	s.mu.Unlock()

	if target != task.Completed {
		s.notifyDependents("dependency cancelled: " + s.Name())
	}

	s.cleanup(runErr)
	return runErr
}

// WithDebug pushes a debug annotation for the duration of fn, then removes
// it, letting a caller annotate a specific critical section without the
// annotation leaking past it.
func (s *Supervisor) WithDebug(key string, value any, fn func()) {
	s.mu.Lock()
	s.info.DebugInfo[key] = value
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.info.DebugInfo, key)
		s.mu.Unlock()
	}()
	fn()
}

// RegisterCleanup appends a callback to be invoked, in registration order,
// during the cleanup protocol.
func (s *Supervisor) RegisterCleanup(cb Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return ErrClosedScope
	}
	s.callbacks = append(s.callbacks, cb)
	return nil
}

// SetResourceLimit updates one or more limit dimensions. Passing nil for a
// field leaves that dimension unchanged.
func (s *Supervisor) SetResourceLimit(limits task.ResourceLimits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limits.MaxMemoryBytes != nil {
		s.info.Limits.MaxMemoryBytes = limits.MaxMemoryBytes
	}
	if limits.MaxRuntime != nil {
		s.info.Limits.MaxRuntime = limits.MaxRuntime
	}
	if limits.MaxIOOps != nil {
		s.info.Limits.MaxIOOps = limits.MaxIOOps
	}
	if limits.MaxNetworkCalls != nil {
		s.info.Limits.MaxNetworkCalls = limits.MaxNetworkCalls
	}
	if limits.MaxChildren != nil {
		s.info.Limits.MaxChildren = limits.MaxChildren
	}
}

// AddDependency records that s depends on dep: s will be moved to BLOCKED
// if dep is cancelled or fails, and WaitDependencies will wait on dep.
func (s *Supervisor) AddDependency(dep *Supervisor) error {
	if err := s.tree.graph.AddDependency(s, dep, s.Name(), dep.Name()); err != nil {
		if cycleErr := fromGraphCycle(err); cycleErr != err {
			return cycleErr
		}
		return &DuplicateDependencyError{From: s.Name(), To: dep.Name()}
	}
	return nil
}

// RemoveDependency deletes the s-depends-on-dep edge, failing with a
// MissingDependencyError if it was never added.
func (s *Supervisor) RemoveDependency(dep *Supervisor) error {
	if err := s.tree.graph.RemoveDependency(s, dep); err != nil {
		return &MissingDependencyError{From: s.Name(), To: dep.Name()}
	}
	return nil
}

// WaitDependencies blocks until every current dependency reaches a
// terminal state, or ctx is done.
func (s *Supervisor) WaitDependencies(ctx context.Context) error {
	deps := s.tree.graph.Dependencies(s)
	for _, dep := range deps {
		select {
		case <-dep.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Every dependency resolved; a task parked in BLOCKED by a dependent
	// notification goes back to RUNNING.
	s.mu.Lock()
	if s.info.State == task.Blocked {
		_ = s.setState(task.Running)
	}
	s.mu.Unlock()
	return nil
}

// WaitForChildren blocks until every current child is in a terminal
// state, not merely until its goroutine has returned, since a child's
// cleanup can still be running after its body function returns.
func (s *Supervisor) WaitForChildren(ctx context.Context) error {
	for _, child := range s.Children() {
		select {
		case <-child.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// TaskTreeNode is a point-in-time, acyclic snapshot of a task and its
// children, the Go equivalent of get_task_tree's recursive dict.
type TaskTreeNode struct {
	Name     string
	State    string
	Priority string
	Children []TaskTreeNode
}

// TaskTree recursively dumps s and its descendants.
func (s *Supervisor) TaskTree() TaskTreeNode {
	s.mu.Lock()
	node := TaskTreeNode{
		Name:     s.info.Name,
		State:    s.info.State.String(),
		Priority: s.info.Priority.String(),
	}
	children := make([]*Supervisor, 0, len(s.children))
	for c := range s.children {
		children = append(children, c)
	}
	s.mu.Unlock()

	for _, c := range children {
		node.Children = append(node.Children, c.TaskTree())
	}
	return node
}
