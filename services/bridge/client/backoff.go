// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package client

import (
	"math"
	"math/rand"
	"time"
)

// backoff computes reconnect delays with exponential growth, a hard
// cap, and additive jitter to spread simultaneous reconnect storms.
type backoff struct {
	base   time.Duration
	cap    time.Duration
	growth float64
	jitter float64
}

// delayFor returns the pre-jitter delay for the given attempt.
// Attempt 1 waits the base duration; each further attempt grows by
// the configured factor until the cap.
func (b backoff) delayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.base) * math.Pow(b.growth, float64(attempt-1))
	if d >= float64(b.cap) {
		return b.cap
	}
	return time.Duration(d)
}

// next returns the jittered delay for the given attempt. Jitter is
// uniform in [0, jitter) of the capped delay, so the result never
// undershoots the schedule.
func (b backoff) next(attempt int) time.Duration {
	d := b.delayFor(attempt)
	if b.jitter <= 0 {
		return d
	}
	return d + time.Duration(rand.Float64()*b.jitter*float64(d))
}
