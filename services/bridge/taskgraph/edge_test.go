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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveEdges_Hierarchy(t *testing.T) {
	nodes := map[string]TaskNode{
		"root":  {ID: "root", ChildIDs: []string{"a", "b"}},
		"a":     {ID: "a", ParentID: "root"},
		"b":     {ID: "b", ParentID: "root"},
		"stray": {ID: "stray", ParentID: "missing"},
	}

	edges := DeriveEdges(nodes)

	var hierarchy []Edge
	for _, e := range edges {
		if e.Kind == EdgeHierarchy {
			hierarchy = append(hierarchy, e)
		}
	}

	require.Len(t, hierarchy, 2, "parent/child declared on both sides must not duplicate, dangling refs must drop")
	assert.Contains(t, hierarchy, Edge{From: "root", To: "a", Kind: EdgeHierarchy})
	assert.Contains(t, hierarchy, Edge{From: "root", To: "b", Kind: EdgeHierarchy})
}

func TestDeriveEdges_DependencyAndContext(t *testing.T) {
	nodes := map[string]TaskNode{
		"a": {ID: "a"},
		"b": {ID: "b", DependsOn: []string{"a"}, ContextSources: []string{"a"}},
		"c": {ID: "c", DependsOn: []string{"a", "ghost"}},
	}

	edges := DeriveEdges(nodes)

	assert.Contains(t, edges, Edge{From: "a", To: "b", Kind: EdgeDependency})
	assert.Contains(t, edges, Edge{From: "a", To: "b", Kind: EdgeContextFlow})
	assert.Contains(t, edges, Edge{From: "a", To: "c", Kind: EdgeDependency})
	assert.NotContains(t, edges, Edge{From: "ghost", To: "c", Kind: EdgeDependency})
}

func TestDeriveEdges_Deterministic(t *testing.T) {
	nodes := map[string]TaskNode{
		"root": {ID: "root", ChildIDs: []string{"b", "a"}},
		"a":    {ID: "a", ParentID: "root", DependsOn: []string{"b"}},
		"b":    {ID: "b", ParentID: "root"},
	}

	first := DeriveEdges(nodes)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DeriveEdges(nodes), "edge order must be stable across map iteration")
	}
}

func TestDeriveEdges_Empty(t *testing.T) {
	assert.Empty(t, DeriveEdges(nil))
	assert.Empty(t, DeriveEdges(map[string]TaskNode{}))
}
