// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fsm provides a small transition-table state machine used by
// the connection, checkpoint, and switch lifecycles.
//
// # Description
//
// A Machine holds the set of legal (from, to) transitions and the
// current state. Lifecycle owners declare their graph once and route
// every state change through Step, which rejects transitions the graph
// does not allow. This keeps "how did we get into this state"
// answerable from one table instead of scattered assignments.
//
// # Thread Safety
//
// Machine is safe for concurrent use.
package fsm

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned when a requested transition is not
// in the machine's table.
var ErrInvalidTransition = errors.New("invalid state transition")

// Machine tracks a current state and its legal transitions.
type Machine[S comparable] struct {
	mu sync.RWMutex

	current     S
	transitions map[S]map[S]bool
}

// New creates a Machine starting at initial with the given transition
// table. The table maps each source state to its legal target states.
func New[S comparable](initial S, table map[S][]S) *Machine[S] {
	m := &Machine[S]{
		current:     initial,
		transitions: make(map[S]map[S]bool, len(table)),
	}
	for from, tos := range table {
		set := make(map[S]bool, len(tos))
		for _, to := range tos {
			set[to] = true
		}
		m.transitions[from] = set
	}
	return m
}

// Current returns the current state.
func (m *Machine[S]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Is reports whether the current state equals s.
func (m *Machine[S]) Is(s S) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current == s
}

// CanStep reports whether a transition from the current state to
// target is legal.
func (m *Machine[S]) CanStep(target S) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.canStepLocked(target)
}

func (m *Machine[S]) canStepLocked(target S) bool {
	if toSet, ok := m.transitions[m.current]; ok {
		return toSet[target]
	}
	return false
}

// Step transitions to target, returning ErrInvalidTransition (wrapped
// with the offending pair) when the table does not allow it.
func (m *Machine[S]) Step(target S) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.canStepLocked(target) {
		return fmt.Errorf("%w: %v -> %v", ErrInvalidTransition, m.current, target)
	}
	m.current = target
	return nil
}

// Force sets the current state without consulting the table. Reserved
// for reset paths (a manual reconnect from the exhausted state) where
// the caller owns the invariant.
func (m *Machine[S]) Force(target S) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = target
}

// ValidFrom returns all legal target states from the given state.
func (m *Machine[S]) ValidFrom(from S) []S {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []S
	if toSet, ok := m.transitions[from]; ok {
		for state, valid := range toSet {
			if valid {
				result = append(result, state)
			}
		}
	}
	return result
}
