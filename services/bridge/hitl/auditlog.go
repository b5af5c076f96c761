// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hitl

import (
	"sync"
	"sync/atomic"

	"github.com/AleutianAI/AleutianBridge/services/bridge/protocol"
)

// Record is one entry in the interrupt audit log. Every arrival
// attempt lands here, valid or not; response fields fill in later as
// the request progresses.
type Record struct {
	RequestID      string                  `json:"request_id"`
	CheckpointName string                  `json:"checkpoint_name"`
	NodeID         string                  `json:"node_id"`
	CurrentAttempt int                     `json:"current_attempt"`
	ReceivedAtMs   int64                   `json:"received_at_ms"`
	Valid          bool                    `json:"valid"`
	Error          string                  `json:"error,omitempty"`
	Action         protocol.ResponseAction `json:"action,omitempty"`
	RespondedAtMs  int64                   `json:"responded_at_ms,omitempty"`
	Superseded     bool                    `json:"superseded"`
}

// auditLog is a fixed-size circular buffer of interrupt records.
// When full, the oldest record is overwritten; drops are counted.
//
// Records are held by pointer so the handler can fill in response
// outcomes after the fact without re-scanning the ring.
type auditLog struct {
	mu       sync.Mutex
	buffer   []*Record
	head     int
	tail     int
	size     int
	capacity int
	dropped  atomic.Int64
}

func newAuditLog(capacity int) *auditLog {
	if capacity <= 0 {
		capacity = 64
	}
	return &auditLog{
		buffer:   make([]*Record, capacity),
		capacity: capacity,
	}
}

// push appends a record, overwriting the oldest when full. Returns
// true if a record was dropped to make room.
func (l *auditLog) push(rec *Record) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := false
	if l.size == l.capacity {
		l.buffer[l.head] = nil // Clear reference for GC
		l.head = (l.head + 1) % l.capacity
		l.size--
		l.dropped.Add(1)
		dropped = true
	}

	l.buffer[l.tail] = rec
	l.tail = (l.tail + 1) % l.capacity
	l.size++
	return dropped
}

// snapshot returns copies of all records, oldest first.
func (l *auditLog) snapshot() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size == 0 {
		return nil
	}

	out := make([]Record, 0, l.size)
	idx := l.head
	for i := 0; i < l.size; i++ {
		out = append(out, *l.buffer[idx])
		idx = (idx + 1) % l.capacity
	}
	return out
}

func (l *auditLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

func (l *auditLog) droppedCount() int64 {
	return l.dropped.Load()
}
