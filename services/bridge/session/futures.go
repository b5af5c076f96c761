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

import "time"

// futureKind classifies correlated request/response pairs.
type futureKind string

const (
	futureSwitch  futureKind = "switch"
	futureRestore futureKind = "restore"
)

type futureKey struct {
	kind      futureKind
	projectID string
}

// future is one outbound request awaiting its correlated response.
// Waiter channels are buffered so resolution never blocks on a caller
// that already gave up.
type future struct {
	key     futureKey
	timer   *time.Timer
	waiters []chan error
}

// futureTable tracks pending futures. It is owned by the Engine
// dispatcher and must only be touched from that goroutine.
type futureTable struct {
	pending map[futureKey]*future
}

func newFutureTable() *futureTable {
	return &futureTable{pending: make(map[futureKey]*future)}
}

// get returns the pending future for key, if any.
func (t *futureTable) get(key futureKey) (*future, bool) {
	f, ok := t.pending[key]
	return f, ok
}

// add creates the future for key, or returns the existing one.
func (t *futureTable) add(key futureKey) *future {
	if f, ok := t.pending[key]; ok {
		return f
	}
	f := &future{key: key}
	t.pending[key] = f
	return f
}

// resolve completes the future for key, delivering err (nil for
// success) to every waiter, and reports whether one was pending.
func (t *futureTable) resolve(key futureKey, err error) bool {
	f, ok := t.pending[key]
	if !ok {
		return false
	}
	delete(t.pending, key)
	if f.timer != nil {
		f.timer.Stop()
	}
	for _, w := range f.waiters {
		w <- err
	}
	return true
}

// resolveAll fails every pending future with err.
func (t *futureTable) resolveAll(err error) {
	for key := range t.pending {
		t.resolve(key, err)
	}
}

// len reports how many futures are pending.
func (t *futureTable) len() int {
	return len(t.pending)
}
