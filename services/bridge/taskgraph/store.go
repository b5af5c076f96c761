// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package taskgraph

import (
	"sync"
)

// =============================================================================
// Change Notification
// =============================================================================

// ChangeKind identifies which aspect of the Store mutated.
type ChangeKind string

const (
	ChangeBinding      ChangeKind = "binding"
	ChangeNodes        ChangeKind = "nodes"
	ChangeSelection    ChangeKind = "selection"
	ChangeFilters      ChangeKind = "filters"
	ChangeConnectivity ChangeKind = "connectivity"
)

// Change describes one Store mutation for downstream consumers.
type Change struct {
	Kind      ChangeKind
	ProjectID string
}

// Regression records an apparent backwards status move observed while
// merging. The merge still applies (arrival order wins); the caller
// decides how loudly to report it.
type Regression struct {
	NodeID string
	From   NodeStatus
	To     NodeStatus
}

// =============================================================================
// Store
// =============================================================================

// Store is the single source of truth for the currently displayed
// project: its nodes, derived edges, selection, filters, overall goal,
// and the connection flag the UI renders.
//
// # Description
//
// Exactly one project is bound at a time. BindProject atomically
// replaces the whole display state from a cached snapshot; ApplyNodes
// merges incremental updates last-write-wins. Derived views
// (FilteredNodes, SelectionStats, Edges) are computed on read from the
// primary node map, never maintained separately.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Mutations are expected to
// arrive from the single session dispatcher; readers (gateway, TUI)
// may call concurrently and always receive copies.
type Store struct {
	mu sync.RWMutex

	projectID   string
	overallGoal string
	connected   bool

	nodes     map[string]TaskNode
	selection map[string]bool
	filters   Filters

	onChange func(Change)
}

// NewStore returns an empty Store with no bound project.
func NewStore() *Store {
	return &Store{
		nodes:     make(map[string]TaskNode),
		selection: make(map[string]bool),
	}
}

// OnChange registers the change callback. The callback fires after the
// mutation completes and outside the Store's lock; it must be fast or
// hand off to its own goroutine. Only one callback is supported: the
// session dispatcher fans out from there.
func (s *Store) OnChange(fn func(Change)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) notify(c Change) {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn(c)
	}
}

// =============================================================================
// Binding
// =============================================================================

// ProjectID returns the currently bound project id ("" when nothing is
// bound).
func (s *Store) ProjectID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectID
}

// OverallGoal returns the bound project's mission goal.
func (s *Store) OverallGoal() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overallGoal
}

// BindProject atomically replaces the display state with the target
// project's snapshot, or with empty state when snap is nil.
//
// Selection handling: rebinding the same project (a restore) keeps the
// part of the selection whose ids survived; binding a different
// project clears it, since every selected id referenced the previous
// project. Filters reset on a project change and persist across a
// same-project refresh.
func (s *Store) BindProject(projectID string, snap *Snapshot) {
	s.mu.Lock()

	sameProject := projectID == s.projectID && projectID != ""

	s.projectID = projectID
	if snap != nil {
		s.nodes = CloneNodes(snap.Nodes)
		s.overallGoal = snap.OverallGoal
	} else {
		s.nodes = make(map[string]TaskNode)
		s.overallGoal = ""
	}
	if s.nodes == nil {
		s.nodes = make(map[string]TaskNode)
	}

	if sameProject {
		for id := range s.selection {
			if _, ok := s.nodes[id]; !ok {
				delete(s.selection, id)
			}
		}
	} else {
		s.selection = make(map[string]bool)
		s.filters = Filters{}
	}

	s.mu.Unlock()
	s.notify(Change{Kind: ChangeBinding, ProjectID: projectID})
}

// =============================================================================
// Node Mutation
// =============================================================================

// ApplyNodes merges incoming nodes last-write-wins and updates the
// overall goal when one is supplied. It returns any apparent status
// regressions so the caller can report them; the incoming values are
// applied regardless, because arrival order is the ordering primitive.
// Selected ids that disappear are not possible here (merge never
// deletes), so selection is left untouched.
func (s *Store) ApplyNodes(nodes map[string]TaskNode, overallGoal string) []Regression {
	if len(nodes) == 0 && overallGoal == "" {
		return nil
	}

	s.mu.Lock()
	var regressions []Regression
	for id, incoming := range nodes {
		if prev, ok := s.nodes[id]; ok && IsRegression(prev.Status, incoming.Status) {
			regressions = append(regressions, Regression{
				NodeID: id,
				From:   prev.Status,
				To:     incoming.Status,
			})
		}
		s.nodes[id] = incoming.Clone()
	}
	if overallGoal != "" {
		s.overallGoal = overallGoal
	}
	projectID := s.projectID
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeNodes, ProjectID: projectID})
	return regressions
}

// =============================================================================
// Reads
// =============================================================================

// Node returns a copy of one node.
func (s *Store) Node(id string) (TaskNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return TaskNode{}, false
	}
	return n.Clone(), true
}

// Nodes returns a deep copy of the bound project's node map.
func (s *Store) Nodes() map[string]TaskNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CloneNodes(s.nodes)
}

// NodeCount returns the number of nodes without copying.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Edges derives the current edge list from the node map.
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return DeriveEdges(s.nodes)
}

// Snapshot returns a deep-copied snapshot of the current display
// state, suitable for handing to the project cache.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return NewSnapshot(s.projectID, s.overallGoal, s.nodes)
}

// =============================================================================
// Connectivity
// =============================================================================

// SetConnected records the transport's connectivity for UI display.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	changed := s.connected != connected
	s.connected = connected
	projectID := s.projectID
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: ChangeConnectivity, ProjectID: projectID})
	}
}

// Connected reports the last recorded transport connectivity.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// =============================================================================
// Selection
// =============================================================================

// Select replaces the selection with the single given node. Selecting
// an id that is not in the store is a no-op returning false.
func (s *Store) Select(id string) bool {
	s.mu.Lock()
	if _, ok := s.nodes[id]; !ok {
		s.mu.Unlock()
		return false
	}
	s.selection = map[string]bool{id: true}
	projectID := s.projectID
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeSelection, ProjectID: projectID})
	return true
}

// ToggleSelect adds the node to the multi-selection, or removes it if
// already selected. Unknown ids are ignored.
func (s *Store) ToggleSelect(id string) bool {
	s.mu.Lock()
	if _, ok := s.nodes[id]; !ok {
		s.mu.Unlock()
		return false
	}
	if s.selection[id] {
		delete(s.selection, id)
	} else {
		s.selection[id] = true
	}
	projectID := s.projectID
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeSelection, ProjectID: projectID})
	return true
}

// ClearSelection empties the selection set.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	had := len(s.selection) > 0
	s.selection = make(map[string]bool)
	projectID := s.projectID
	s.mu.Unlock()

	if had {
		s.notify(Change{Kind: ChangeSelection, ProjectID: projectID})
	}
}

// SelectedIDs returns the selected node ids (unordered).
func (s *Store) SelectedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.selection))
	for id := range s.selection {
		out = append(out, id)
	}
	return out
}

// SelectedNodes returns copies of the selected nodes.
func (s *Store) SelectedNodes() []TaskNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TaskNode, 0, len(s.selection))
	for id := range s.selection {
		if n, ok := s.nodes[id]; ok {
			out = append(out, n.Clone())
		}
	}
	return out
}

// =============================================================================
// Filters
// =============================================================================

// SetFilters replaces the active filters.
func (s *Store) SetFilters(f Filters) {
	s.mu.Lock()
	s.filters = f.Clone()
	projectID := s.projectID
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeFilters, ProjectID: projectID})
}

// Filters returns a copy of the active filters.
func (s *Store) Filters() Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters.Clone()
}

// FilteredNodes applies every active predicate and returns matching
// node copies. Empty filters return all nodes.
func (s *Store) FilteredNodes() []TaskNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TaskNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		if s.filters.Match(n) {
			out = append(out, n.Clone())
		}
	}
	return out
}

// =============================================================================
// Selection Statistics
// =============================================================================

// SelectionStats aggregates the multi-selection set: counts by status,
// node type, task type and layer, plus success rate over finished work
// and mean execution duration where timing is known. Recomputed on
// every call.
type SelectionStats struct {
	Count          int                `json:"count"`
	StatusCounts   map[NodeStatus]int `json:"status_counts"`
	NodeTypeCounts map[NodeType]int   `json:"node_type_counts"`
	TaskTypeCounts map[TaskType]int   `json:"task_type_counts"`
	LayerCounts    map[int]int        `json:"layer_counts"`
	SuccessRate    float64            `json:"success_rate"`
	AvgDurationMs  float64            `json:"avg_duration_ms"`
}

// SelectionStats computes aggregate statistics over the selected
// nodes. With an empty selection all counts are zero and rates are 0.
func (s *Store) SelectionStats() SelectionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := SelectionStats{
		StatusCounts:   make(map[NodeStatus]int),
		NodeTypeCounts: make(map[NodeType]int),
		TaskTypeCounts: make(map[TaskType]int),
		LayerCounts:    make(map[int]int),
	}

	var done, failed int
	var durTotal int64
	var durCount int

	for id := range s.selection {
		n, ok := s.nodes[id]
		if !ok {
			continue
		}
		stats.Count++
		stats.StatusCounts[n.Status]++
		if n.NodeType != "" {
			stats.NodeTypeCounts[n.NodeType]++
		}
		if n.TaskType != "" {
			stats.TaskTypeCounts[n.TaskType]++
		}
		stats.LayerCounts[n.Layer]++

		switch n.Status {
		case StatusDone:
			done++
		case StatusFailed:
			failed++
		}
		if d := n.Metadata.DurationMs(); d > 0 {
			durTotal += d
			durCount++
		}
	}

	if done+failed > 0 {
		stats.SuccessRate = float64(done) / float64(done+failed)
	}
	if durCount > 0 {
		stats.AvgDurationMs = float64(durTotal) / float64(durCount)
	}
	return stats
}
