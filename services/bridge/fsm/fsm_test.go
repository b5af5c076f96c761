// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fsm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine() *Machine[string] {
	return New("idle", map[string][]string{
		"idle":    {"pending"},
		"pending": {"waiting", "idle"},
		"waiting": {"pending", "idle"},
	})
}

func TestMachine_Step(t *testing.T) {
	t.Run("legal transition advances state", func(t *testing.T) {
		m := newTestMachine()
		require.NoError(t, m.Step("pending"))
		assert.Equal(t, "pending", m.Current())
	})

	t.Run("illegal transition is rejected", func(t *testing.T) {
		m := newTestMachine()
		err := m.Step("waiting")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Contains(t, err.Error(), "idle -> waiting")
		assert.Equal(t, "idle", m.Current(), "state must not move on rejection")
	})

	t.Run("unknown source state has no transitions", func(t *testing.T) {
		m := New("orphan", map[string][]string{"idle": {"pending"}})
		assert.ErrorIs(t, m.Step("pending"), ErrInvalidTransition)
	})
}

func TestMachine_CanStep(t *testing.T) {
	m := newTestMachine()
	assert.True(t, m.CanStep("pending"))
	assert.False(t, m.CanStep("waiting"))
	assert.False(t, m.CanStep("idle"), "self transition not in table")
}

func TestMachine_Force(t *testing.T) {
	m := newTestMachine()
	m.Force("waiting")
	assert.Equal(t, "waiting", m.Current())

	// Table still applies after a force.
	require.NoError(t, m.Step("idle"))
}

func TestMachine_ValidFrom(t *testing.T) {
	m := newTestMachine()
	assert.ElementsMatch(t, []string{"waiting", "idle"}, m.ValidFrom("pending"))
	assert.Empty(t, m.ValidFrom("unknown"))
}

func TestMachine_ConcurrentUse(t *testing.T) {
	m := newTestMachine()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.Step("pending")
				_ = m.Step("idle")
				_ = m.Current()
				_ = m.CanStep("waiting")
			}
		}()
	}
	wg.Wait()

	cur := m.Current()
	assert.Contains(t, []string{"idle", "pending"}, cur)
}
