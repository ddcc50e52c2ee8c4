package supervisor

import (
	"context"
	"sync"

	"tasksup/pkg/task"
)

// Group is a scoped fan-out/fan-in container: Enter activates it,
// CreateTask spawns supervised children under it, and Exit awaits every
// spawned child, cancelling the remaining siblings the moment one fails
// and aggregating every non-cancel failure into a single AggregateError.
type Group struct {
	mu       sync.Mutex
	parent   *Supervisor
	active   bool
	children []*Supervisor
	failed   bool
}

// NewGroup builds a Group whose children are spawned as children of
// parent. It is not active until Enter is called.
func NewGroup(parent *Supervisor) *Group {
	return &Group{parent: parent}
}

// Enter activates the group. Calling CreateTask before Enter fails with
// ErrClosedScope, mirroring a TaskGroup used outside its `async with` block.
func (g *Group) Enter() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = true
}

// CreateTask spawns a supervised child running fn under the group's
// parent. It fails if the group has not been entered or has already
// exited.
func (g *Group) CreateTask(name string, priority task.Priority, fn TaskFunc) (*Supervisor, error) {
	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return nil, ErrClosedScope
	}
	g.mu.Unlock()

	child, err := g.parent.CreateTask(name, priority, fn)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.children = append(g.children, child)
	g.mu.Unlock()

	go g.watch(child)
	return child, nil
}

// watch cancels every other active sibling the moment one child fails with
// a non-cancellation error, so a single failure doesn't let the rest of the
// group run to completion before the group unwinds.
func (g *Group) watch(child *Supervisor) {
	<-child.Done()

	err := child.runErrSnapshot()
	if err == nil || child.State() == task.Cancelled {
		return
	}

	g.mu.Lock()
	alreadyFailed := g.failed
	g.failed = true
	siblings := make([]*Supervisor, len(g.children))
	copy(siblings, g.children)
	g.mu.Unlock()

	if alreadyFailed {
		return
	}
	for _, sib := range siblings {
		if sib != child {
			sib.Cancel("sibling failed in task group")
		}
	}
}

// Exit awaits every child spawned by the group and returns an
// AggregateError containing every non-cancellation failure, or nil if
// every child completed successfully. CANCELLED children (including those
// cancelled by the group itself after a sibling failure) do not contribute
// to the aggregate. Exit deactivates the group: a later CreateTask fails.
func (g *Group) Exit(ctx context.Context) error {
	g.mu.Lock()
	g.active = false
	children := make([]*Supervisor, len(g.children))
	copy(children, g.children)
	g.mu.Unlock()

	var causes []error
	for _, child := range children {
		select {
		case <-child.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := child.runErrSnapshot(); err != nil && child.State() != task.Cancelled {
			causes = append(causes, err)
		}
	}

	if len(causes) > 0 {
		return &AggregateError{Causes: causes}
	}
	return nil
}
