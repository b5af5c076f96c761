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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Schedule(t *testing.T) {
	b := backoff{
		base:   1 * time.Second,
		cap:    15 * time.Second,
		growth: 1.5,
		jitter: 0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 1500 * time.Millisecond},
		{3, 2250 * time.Millisecond},
		{4, 3375 * time.Millisecond},
		{5, 5062500 * time.Microsecond},
		{8, 15 * time.Second},
		{20, 15 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.delayFor(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoff_ZeroJitterPassesThrough(t *testing.T) {
	b := backoff{base: 100 * time.Millisecond, cap: time.Second, growth: 1.5}
	assert.Equal(t, b.delayFor(2), b.next(2))
}

func TestBackoff_AttemptFloor(t *testing.T) {
	b := backoff{base: time.Second, cap: 15 * time.Second, growth: 1.5}
	assert.Equal(t, time.Second, b.delayFor(0))
	assert.Equal(t, time.Second, b.delayFor(-3))
}
