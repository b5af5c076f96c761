// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_CoalescesBurst(t *testing.T) {
	var flushes atomic.Int64
	n := newNotifier(40*time.Millisecond, func() { flushes.Add(1) })
	defer n.stop()

	for i := 0; i < 10; i++ {
		n.poke()
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return flushes.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), flushes.Load(), "quiet period must not produce more flushes")
}

func TestNotifier_TrailingEdge(t *testing.T) {
	var flushes atomic.Int64
	window := 50 * time.Millisecond
	n := newNotifier(window, func() { flushes.Add(1) })
	defer n.stop()

	n.poke()
	time.Sleep(window / 2)
	assert.Zero(t, flushes.Load(), "flush must wait out the full window")

	// A fresh poke inside the window pushes the deadline out.
	n.poke()
	time.Sleep(window / 2)
	assert.Zero(t, flushes.Load())

	require.Eventually(t, func() bool {
		return flushes.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNotifier_SeparateBurstsFlushSeparately(t *testing.T) {
	var flushes atomic.Int64
	n := newNotifier(20*time.Millisecond, func() { flushes.Add(1) })
	defer n.stop()

	n.poke()
	require.Eventually(t, func() bool { return flushes.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	n.poke()
	require.Eventually(t, func() bool { return flushes.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestNotifier_StopDeliversPendingFlush(t *testing.T) {
	var flushes atomic.Int64
	n := newNotifier(10*time.Second, func() { flushes.Add(1) })

	n.poke()
	n.stop()

	assert.Equal(t, int64(1), flushes.Load(), "stop must not drop an owed flush")
}

func TestNotifier_StopIdempotent(t *testing.T) {
	n := newNotifier(time.Millisecond, func() {})
	n.stop()
	n.stop()
}
