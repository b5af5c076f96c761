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

import "sync"

// Binding is the single source of truth for which project is current.
// The Graph State Store carries a derived copy refreshed on each
// rebind; the reconciler receives the bound id per call. Only the
// Engine dispatcher writes it.
type Binding struct {
	mu      sync.RWMutex
	current string
}

// NewBinding starts unbound.
func NewBinding() *Binding {
	return &Binding{}
}

// Current returns the bound project id, or "" when unbound.
func (b *Binding) Current() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Bound reports whether a project is bound.
func (b *Binding) Bound() bool {
	return b.Current() != ""
}

func (b *Binding) bind(projectID string) {
	b.mu.Lock()
	b.current = projectID
	b.mu.Unlock()
}
