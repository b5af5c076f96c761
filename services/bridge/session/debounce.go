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
	"sync"
	"sync/atomic"
	"time"
)

// notifier coalesces change bursts into a trailing flush: the callback
// runs once the window passes without a new poke. A flush is never
// lost; stop delivers any pending one before returning.
type notifier struct {
	window atomic.Int64 // time.Duration; settable while running
	fn     func()

	pokes    chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

func newNotifier(window time.Duration, fn func()) *notifier {
	n := &notifier{
		fn:      fn,
		pokes:   make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	n.window.Store(int64(window))
	go n.loop()
	return n
}

// setWindow changes the coalescing window. Takes effect from the next
// poke; a window already counting down finishes at its old length.
func (n *notifier) setWindow(window time.Duration) {
	if window > 0 {
		n.window.Store(int64(window))
	}
}

// poke marks work pending. Never blocks: a full channel already means
// a flush is owed.
func (n *notifier) poke() {
	select {
	case n.pokes <- struct{}{}:
	default:
	}
}

// stop flushes any pending notification and shuts the loop down.
func (n *notifier) stop() {
	n.stopOnce.Do(func() { close(n.done) })
	<-n.stopped
}

func (n *notifier) loop() {
	defer close(n.stopped)

	var timer *time.Timer
	var timerC <-chan time.Time
	dirty := false

	flush := func() {
		if dirty {
			n.fn()
			dirty = false
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-n.done:
			// Collect a poke that raced the shutdown.
			select {
			case <-n.pokes:
				dirty = true
			default:
			}
			flush()
			return
		case <-n.pokes:
			dirty = true
			window := time.Duration(n.window.Load())
			if timer == nil {
				timer = time.NewTimer(window)
				timerC = timer.C
			} else {
				timer.Reset(window)
			}
		case <-timerC:
			flush()
		}
	}
}
