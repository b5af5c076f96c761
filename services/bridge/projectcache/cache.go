// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package projectcache keeps one graph snapshot per project so that
// switching projects renders instantly from local state while the
// backend replays authoritative history.
//
// The in-memory map is the authority for the session: entries leave it
// only on explicit project deletion or an explicit prune. The durable
// tier underneath is best effort and bounded; its failures degrade the
// cache to memory-only without surfacing to callers.
package projectcache

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianBridge/services/bridge/storage/badger"
	"github.com/AleutianAI/AleutianBridge/services/bridge/taskgraph"
)

// Persister is the narrow durable tier under the cache. Implemented by
// badger.SnapshotStore; tests substitute fakes.
type Persister interface {
	Save(ctx context.Context, snap *taskgraph.Snapshot) error
	Load(ctx context.Context, projectID string) (*taskgraph.Snapshot, error)
	Delete(ctx context.Context, projectID string) error
}

// persistTimeout bounds each best-effort durable operation so a stuck
// disk cannot stall the session dispatcher.
const persistTimeout = 2 * time.Second

// Stats reports cache effectiveness counters.
type Stats struct {
	Entries          int   `json:"entries"`
	DurableBacked    int   `json:"durable_backed"`
	Hits             int64 `json:"hits"`
	Misses           int64 `json:"misses"`
	DurableEvictions int64 `json:"durable_evictions"`
	PersistSkips     int64 `json:"persist_skips"`
	PersistFailures  int64 `json:"persist_failures"`
}

type cacheEntry struct {
	projectID string
	snap      *taskgraph.Snapshot
	durable   bool
}

// Cache is the hot tier of project persistence.
//
// Description:
//
//	Keyed by project id, ordered by recency (front = most recent) so
//	quota pressure can pick the coldest durable backup to drop. The
//	current project is pinned: it is never chosen as an eviction
//	victim.
//
// Thread Safety: All methods are safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]*list.Element
	order     *list.List // Front = most recent, Back = least recent
	current   string
	persister Persister
	logger    *slog.Logger

	hits             atomic.Int64
	misses           atomic.Int64
	durableEvictions atomic.Int64
	persistSkips     atomic.Int64
	persistFailures  atomic.Int64
}

// New creates a cache over an optional durable tier. A nil persister
// means memory-only operation; a nil logger falls back to the default.
func New(persister Persister, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries:   make(map[string]*list.Element),
		order:     list.New(),
		persister: persister,
		logger:    logger,
	}
}

// SetCurrent pins a project against eviction. The session calls this
// on every binding change.
func (c *Cache) SetCurrent(projectID string) {
	c.mu.Lock()
	c.current = projectID
	c.mu.Unlock()
}

// Get returns a copy of the project's snapshot, consulting the durable
// tier on a memory miss. Recency is refreshed on every hit.
func (c *Cache) Get(ctx context.Context, projectID string) (*taskgraph.Snapshot, bool) {
	c.mu.Lock()
	if elem, ok := c.entries[projectID]; ok {
		c.order.MoveToFront(elem)
		snap := elem.Value.(*cacheEntry).snap.Clone()
		c.mu.Unlock()
		c.hits.Add(1)
		return snap, true
	}
	c.mu.Unlock()

	if c.persister != nil {
		loadCtx, cancel := context.WithTimeout(ctx, persistTimeout)
		defer cancel()

		snap, err := c.persister.Load(loadCtx, projectID)
		if err == nil && snap != nil {
			c.hits.Add(1)
			c.insert(projectID, snap, true)
			return snap.Clone(), true
		}
		if err != nil && !errors.Is(err, badger.ErrSnapshotNotFound) {
			c.logger.Warn("durable snapshot load failed",
				"project_id", projectID, "error", err)
		}
	}

	c.misses.Add(1)
	return nil, false
}

// Put stores a copy of the snapshot under the given project id and
// refreshes recency. The durable write behind it is best effort: an
// oversized snapshot is skipped, a quota rejection evicts the coldest
// non-current durable backup and retries once, and any remaining
// failure leaves the entry memory-only.
func (c *Cache) Put(ctx context.Context, projectID string, snap *taskgraph.Snapshot) {
	if projectID == "" || snap == nil {
		return
	}

	stored := snap.Clone()
	stored.ProjectID = projectID
	c.insert(projectID, stored, false)
	c.persist(ctx, projectID, stored)
}

// insert adds or replaces the in-memory entry, moving it to the front.
func (c *Cache) insert(projectID string, snap *taskgraph.Snapshot, durable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[projectID]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.snap = snap
		entry.durable = durable || entry.durable
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheEntry{projectID: projectID, snap: snap, durable: durable})
	c.entries[projectID] = elem
}

func (c *Cache) persist(ctx context.Context, projectID string, snap *taskgraph.Snapshot) {
	if c.persister == nil {
		return
	}

	saveCtx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	err := c.persister.Save(saveCtx, snap)
	if errors.Is(err, badger.ErrQuotaExceeded) {
		if victim, ok := c.dropColdestDurable(saveCtx, projectID); ok {
			c.logger.Debug("evicted durable snapshot under quota pressure",
				"victim", victim, "for", projectID)
			err = c.persister.Save(saveCtx, snap)
		}
	}

	switch {
	case err == nil:
		c.markDurable(projectID, true)
	case errors.Is(err, badger.ErrSnapshotTooLarge):
		c.persistSkips.Add(1)
		c.markDurable(projectID, false)
		c.logger.Debug("snapshot too large for durable tier, memory only",
			"project_id", projectID)
	default:
		c.persistFailures.Add(1)
		c.markDurable(projectID, false)
		c.logger.Debug("durable snapshot write abandoned",
			"project_id", projectID, "error", err)
	}
}

func (c *Cache) markDurable(projectID string, durable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[projectID]; ok {
		elem.Value.(*cacheEntry).durable = durable
	}
}

// dropColdestDurable deletes the least recently used durable backup,
// skipping the current project and the project being written. The
// in-memory entry stays.
func (c *Cache) dropColdestDurable(ctx context.Context, saving string) (string, bool) {
	c.mu.Lock()
	var victim *cacheEntry
	for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
		entry := elem.Value.(*cacheEntry)
		if !entry.durable || entry.projectID == c.current || entry.projectID == saving {
			continue
		}
		victim = entry
		break
	}
	c.mu.Unlock()

	if victim == nil {
		return "", false
	}
	if err := c.persister.Delete(ctx, victim.projectID); err != nil {
		c.logger.Debug("durable eviction failed", "victim", victim.projectID, "error", err)
		return "", false
	}

	c.markDurable(victim.projectID, false)
	c.durableEvictions.Add(1)
	return victim.projectID, true
}

// Delete removes a project from both tiers. Used when the project
// itself is deleted upstream.
func (c *Cache) Delete(ctx context.Context, projectID string) {
	c.mu.Lock()
	if elem, ok := c.entries[projectID]; ok {
		c.order.Remove(elem)
		delete(c.entries, projectID)
	}
	c.mu.Unlock()

	if c.persister != nil {
		delCtx, cancel := context.WithTimeout(ctx, persistTimeout)
		defer cancel()
		if err := c.persister.Delete(delCtx, projectID); err != nil {
			c.logger.Warn("durable snapshot delete failed",
				"project_id", projectID, "error", err)
		}
	}
}

// EvictOldest prunes cold entries from both tiers until at most keep
// remain, never touching the current project. Returns the number
// evicted. This runs only on explicit operator request; routine
// operation never sheds entries for being cold.
func (c *Cache) EvictOldest(ctx context.Context, keep int) int {
	if keep < 0 {
		keep = 0
	}

	c.mu.Lock()
	var victims []string
	for elem := c.order.Back(); elem != nil && len(c.entries)-len(victims) > keep; elem = elem.Prev() {
		entry := elem.Value.(*cacheEntry)
		if entry.projectID == c.current {
			continue
		}
		victims = append(victims, entry.projectID)
	}
	for _, id := range victims {
		if elem, ok := c.entries[id]; ok {
			c.order.Remove(elem)
			delete(c.entries, id)
		}
	}
	c.mu.Unlock()

	for _, id := range victims {
		if c.persister == nil {
			continue
		}
		delCtx, cancel := context.WithTimeout(ctx, persistTimeout)
		if err := c.persister.Delete(delCtx, id); err != nil {
			c.logger.Debug("durable prune failed", "project_id", id, "error", err)
		}
		cancel()
	}
	return len(victims)
}

// Projects returns cached project ids in most-recently-used order.
func (c *Cache) Projects() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(*cacheEntry).projectID)
	}
	return out
}

// Len returns the number of cached projects.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a point-in-time view of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := len(c.entries)
	durable := 0
	for _, elem := range c.entries {
		if elem.Value.(*cacheEntry).durable {
			durable++
		}
	}
	c.mu.Unlock()

	return Stats{
		Entries:          entries,
		DurableBacked:    durable,
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		DurableEvictions: c.durableEvictions.Load(),
		PersistSkips:     c.persistSkips.Load(),
		PersistFailures:  c.persistFailures.Load(),
	}
}
