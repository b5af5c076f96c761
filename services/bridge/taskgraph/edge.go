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

import "sort"

// EdgeKind classifies a derived edge.
type EdgeKind string

const (
	// EdgeHierarchy links a PLAN node to each of its children, in
	// child order.
	EdgeHierarchy EdgeKind = "hierarchy"

	// EdgeDependency links a prerequisite node to the node that
	// declared it in DependsOn.
	EdgeDependency EdgeKind = "dependency"

	// EdgeContextFlow links a context source to the node that consumes
	// its output.
	EdgeContextFlow EdgeKind = "context_flow"
)

// Edge is a directed, derived relationship between two nodes. Edges
// are recomputed from the node map and never stored.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// DeriveEdges computes the renderable edge list for a node map.
//
// Hierarchy edges come from ChildIDs on PLAN nodes (preferring the
// parent's ordered list) plus any ParentID back-references whose
// parent did not list the child. Dependency and context-flow edges
// come from each node's DependsOn and ContextSources. Edges pointing
// at ids absent from the map are skipped: a weak reference to a node
// that has not arrived yet is normal mid-stream, not an error.
//
// The result is ordered deterministically (kind, then from, then to)
// so renderers and tests see stable output.
func DeriveEdges(nodes map[string]TaskNode) []Edge {
	if len(nodes) == 0 {
		return nil
	}

	edges := make([]Edge, 0, len(nodes))
	seen := make(map[Edge]bool, len(nodes))

	add := func(e Edge) {
		if seen[e] {
			return
		}
		seen[e] = true
		edges = append(edges, e)
	}

	for id, n := range nodes {
		for _, child := range n.ChildIDs {
			if _, ok := nodes[child]; ok {
				add(Edge{From: id, To: child, Kind: EdgeHierarchy})
			}
		}
		if n.ParentID != "" {
			if _, ok := nodes[n.ParentID]; ok {
				add(Edge{From: n.ParentID, To: id, Kind: EdgeHierarchy})
			}
		}
		for _, dep := range n.DependsOn {
			if _, ok := nodes[dep]; ok {
				add(Edge{From: dep, To: id, Kind: EdgeDependency})
			}
		}
		for _, src := range n.ContextSources {
			if _, ok := nodes[src]; ok {
				add(Edge{From: src, To: id, Kind: EdgeContextFlow})
			}
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Kind != edges[j].Kind {
			return edges[i].Kind < edges[j].Kind
		}
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})

	return edges
}
