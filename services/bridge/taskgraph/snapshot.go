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

import "time"

// Snapshot is the last reconciled state of one project: its node map
// and overall goal plus the save timestamp. Edges are derived from the
// nodes and deliberately not stored.
//
// Snapshots are owned by the project cache. Everything crossing a
// package boundary is a deep copy; holding a Snapshot never grants
// access to live Store or cache state.
type Snapshot struct {
	ProjectID   string              `json:"project_id"`
	OverallGoal string              `json:"overall_goal,omitempty"`
	Nodes       map[string]TaskNode `json:"nodes"`
	SavedAtMs   int64               `json:"saved_at_ms"`
}

// NewSnapshot builds a snapshot over a deep copy of nodes, stamped
// with the current time.
func NewSnapshot(projectID, overallGoal string, nodes map[string]TaskNode) *Snapshot {
	return &Snapshot{
		ProjectID:   projectID,
		OverallGoal: overallGoal,
		Nodes:       CloneNodes(nodes),
		SavedAtMs:   time.Now().UnixMilli(),
	}
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	return &Snapshot{
		ProjectID:   s.ProjectID,
		OverallGoal: s.OverallGoal,
		Nodes:       CloneNodes(s.Nodes),
		SavedAtMs:   s.SavedAtMs,
	}
}

// NodeCount returns the number of nodes in the snapshot.
func (s *Snapshot) NodeCount() int {
	if s == nil {
		return 0
	}
	return len(s.Nodes)
}

// Merge overwrites or inserts the given nodes and, when non-empty,
// replaces the overall goal. Incoming nodes are deep-copied. The save
// timestamp is refreshed.
func (s *Snapshot) Merge(nodes map[string]TaskNode, overallGoal string) {
	if s.Nodes == nil {
		s.Nodes = make(map[string]TaskNode, len(nodes))
	}
	for id, n := range nodes {
		s.Nodes[id] = n.Clone()
	}
	if overallGoal != "" {
		s.OverallGoal = overallGoal
	}
	s.SavedAtMs = time.Now().UnixMilli()
}
