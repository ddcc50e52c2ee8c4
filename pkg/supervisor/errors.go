// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package supervisor

import (
	"errors"
	"fmt"

	"tasksup/pkg/graph"
)

var (
	// ErrClosedScope is returned by any operation attempted on a
	// Supervisor whose cleanup protocol has already run.
	ErrClosedScope = errors.New("supervisor: scope already closed")

	// ErrInvalidTransition is returned when a caller (directly or via
	// Cancel/Run) attempts a lifecycle move the state machine rejects.
	ErrInvalidTransition = errors.New("supervisor: invalid state transition")
)

// CycleDetectedError reports a dependency cycle AddDependency refused to
// create, naming every task on the cycle in dependency order.
type CycleDetectedError struct {
	Path []*Supervisor
}

func (e *CycleDetectedError) Error() string {
	names := make([]string, len(e.Path))
	for i, s := range e.Path {
		names[i] = s.Name()
	}
	return fmt.Sprintf("dependency cycle detected: %v", names)
}

func fromGraphCycle(err error) error {
	var cycleErr *graph.CycleError[*Supervisor]
	if errors.As(err, &cycleErr) {
		return &CycleDetectedError{Path: cycleErr.Path}
	}
	return err
}

// DuplicateDependencyError is returned by AddDependency when the edge
// already exists.
type DuplicateDependencyError struct {
	From, To string
}

func (e *DuplicateDependencyError) Error() string {
	return fmt.Sprintf("supervisor: %q already depends on %q", e.From, e.To)
}

// MissingDependencyError is returned by RemoveDependency when the edge
// does not exist.
type MissingDependencyError struct {
	From, To string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("supervisor: %q does not depend on %q", e.From, e.To)
}

// ResourceExceededError reports which resource dimension crossed its limit.
type ResourceExceededError struct {
	Which        string
	Value, Limit int64
}

func (e *ResourceExceededError) Error() string {
	return fmt.Sprintf("resource exceeded: %s at %d (limit %d)", e.Which, e.Value, e.Limit)
}

// AggregateError collects every failure from a Group's member tasks into
// one error raised at Exit, the Go analogue of an ExceptionGroup.
type AggregateError struct {
	Causes []error
}

func (e *AggregateError) Error() string {
	if len(e.Causes) == 1 {
		return fmt.Sprintf("1 task failed: %v", e.Causes[0])
	}
	return fmt.Sprintf("%d tasks failed: %v (and %d more)", len(e.Causes), e.Causes[0], len(e.Causes)-1)
}

func (e *AggregateError) Unwrap() []error { return e.Causes }

// TimeoutError is returned by WaitFor, Timeout, and TimeoutAt when the
// deadline elapses before the watched operation completes.
type TimeoutError struct {
	Operation string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("supervisor: %s timed out", e.Operation)
}
