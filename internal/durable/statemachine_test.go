// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package durable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_LegalTransitions(t *testing.T) {
	m := New()
	assert.Equal(t, Pending, m.CurrentState())

	require.NoError(t, m.Transition(Running))
	assert.Equal(t, Running, m.CurrentState())

	require.NoError(t, m.Transition(Blocked))
	assert.Equal(t, Blocked, m.CurrentState())

	require.NoError(t, m.Transition(Running))
	require.NoError(t, m.Transition(Completed))
	assert.True(t, m.IsTerminal())
}

func TestStateMachine_RejectsIllegalTransition(t *testing.T) {
	m := New()
	err := m.Transition(Completed)
	require.Error(t, err)
	assert.Equal(t, Pending, m.CurrentState())
}

func TestStateMachine_NoTransitionOutOfTerminal(t *testing.T) {
	m := New()
	require.NoError(t, m.Transition(Running))
	require.NoError(t, m.Transition(Failed))
	assert.True(t, m.IsTerminal())

	err := m.Transition(Running)
	assert.Error(t, err)
}

func TestStateMachine_CanTransitionToDoesNotCommit(t *testing.T) {
	m := New()
	assert.True(t, m.CanTransitionTo(Running))
	assert.False(t, m.CanTransitionTo(Completed))
	assert.Equal(t, Pending, m.CurrentState())
}

func TestStateMachine_Reset(t *testing.T) {
	m := New()
	require.NoError(t, m.Transition(Running))
	require.NoError(t, m.Transition(Completed))
	m.Reset()
	assert.Equal(t, Pending, m.CurrentState())
	assert.False(t, m.IsTerminal())
}
