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
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestSnapshot(projectID string) *Snapshot {
	return NewSnapshot(projectID, "ship the dashboard", map[string]TaskNode{
		"n1": {ID: "n1", Goal: "plan work", NodeType: NodePlan, Status: StatusDone, Layer: 0, ChildIDs: []string{"n2", "n3"}},
		"n2": {ID: "n2", Goal: "search docs", NodeType: NodeExecute, TaskType: TaskSearch, Status: StatusRunning, Layer: 1, ParentID: "n1"},
		"n3": {ID: "n3", Goal: "write summary", NodeType: NodeExecute, TaskType: TaskWrite, Status: StatusPending, Layer: 1, ParentID: "n1", DependsOn: []string{"n2"}},
	})
}

func createBoundStore(t *testing.T, projectID string) *Store {
	t.Helper()
	s := NewStore()
	s.BindProject(projectID, createTestSnapshot(projectID))
	return s
}

func TestStore_BindProject(t *testing.T) {
	t.Run("binding replaces state", func(t *testing.T) {
		s := NewStore()
		s.BindProject("proj-1", createTestSnapshot("proj-1"))

		assert.Equal(t, "proj-1", s.ProjectID())
		assert.Equal(t, "ship the dashboard", s.OverallGoal())
		assert.Equal(t, 3, s.NodeCount())
	})

	t.Run("nil snapshot binds empty", func(t *testing.T) {
		s := createBoundStore(t, "proj-1")
		s.BindProject("proj-2", nil)

		assert.Equal(t, "proj-2", s.ProjectID())
		assert.Equal(t, 0, s.NodeCount())
		assert.Empty(t, s.OverallGoal())
	})

	t.Run("different project clears selection and filters", func(t *testing.T) {
		s := createBoundStore(t, "proj-1")
		require.True(t, s.Select("n1"))
		s.SetFilters(Filters{Statuses: []NodeStatus{StatusDone}})

		s.BindProject("proj-2", createTestSnapshot("proj-2"))

		assert.Empty(t, s.SelectedIDs())
		assert.True(t, s.Filters().IsEmpty())
	})

	t.Run("same project rebind keeps surviving selection", func(t *testing.T) {
		s := createBoundStore(t, "proj-1")
		require.True(t, s.ToggleSelect("n1"))
		require.True(t, s.ToggleSelect("n3"))

		// Restored snapshot no longer contains n3.
		restored := NewSnapshot("proj-1", "ship the dashboard", map[string]TaskNode{
			"n1": {ID: "n1", Status: StatusDone},
			"n2": {ID: "n2", Status: StatusDone},
		})
		s.BindProject("proj-1", restored)

		assert.ElementsMatch(t, []string{"n1"}, s.SelectedIDs())
	})

	t.Run("snapshot is copied not aliased", func(t *testing.T) {
		snap := createTestSnapshot("proj-1")
		s := NewStore()
		s.BindProject("proj-1", snap)

		snap.Nodes["n1"].ChildIDs[0] = "mutated"

		n, ok := s.Node("n1")
		require.True(t, ok)
		assert.Equal(t, "n2", n.ChildIDs[0])
	})
}

func TestStore_ApplyNodes(t *testing.T) {
	t.Run("merge is last write wins", func(t *testing.T) {
		s := createBoundStore(t, "proj-1")

		regs := s.ApplyNodes(map[string]TaskNode{
			"n2": {ID: "n2", Goal: "search docs", Status: StatusDone, Layer: 1},
			"n4": {ID: "n4", Goal: "new child", Status: StatusPending, Layer: 2},
		}, "")

		assert.Empty(t, regs)
		assert.Equal(t, 4, s.NodeCount())

		n2, ok := s.Node("n2")
		require.True(t, ok)
		assert.Equal(t, StatusDone, n2.Status)
	})

	t.Run("regression reported but applied", func(t *testing.T) {
		s := createBoundStore(t, "proj-1")

		regs := s.ApplyNodes(map[string]TaskNode{
			"n1": {ID: "n1", Status: StatusRunning},
		}, "")

		require.Len(t, regs, 1)
		assert.Equal(t, "n1", regs[0].NodeID)
		assert.Equal(t, StatusDone, regs[0].From)
		assert.Equal(t, StatusRunning, regs[0].To)

		n1, ok := s.Node("n1")
		require.True(t, ok)
		assert.Equal(t, StatusRunning, n1.Status, "arrival order wins despite regression")
	})

	t.Run("goal updated only when provided", func(t *testing.T) {
		s := createBoundStore(t, "proj-1")

		s.ApplyNodes(map[string]TaskNode{"n5": {ID: "n5"}}, "")
		assert.Equal(t, "ship the dashboard", s.OverallGoal())

		s.ApplyNodes(nil, "new mission")
		assert.Equal(t, "new mission", s.OverallGoal())
	})

	t.Run("merge never deletes", func(t *testing.T) {
		s := createBoundStore(t, "proj-1")
		s.ApplyNodes(map[string]TaskNode{"n2": {ID: "n2", Status: StatusDone}}, "")
		assert.Equal(t, 3, s.NodeCount())
	})
}

func TestStore_Selection(t *testing.T) {
	t.Run("select replaces", func(t *testing.T) {
		s := createBoundStore(t, "proj-1")
		require.True(t, s.Select("n1"))
		require.True(t, s.Select("n2"))
		assert.ElementsMatch(t, []string{"n2"}, s.SelectedIDs())
	})

	t.Run("toggle accumulates and removes", func(t *testing.T) {
		s := createBoundStore(t, "proj-1")
		require.True(t, s.ToggleSelect("n1"))
		require.True(t, s.ToggleSelect("n2"))
		assert.ElementsMatch(t, []string{"n1", "n2"}, s.SelectedIDs())

		require.True(t, s.ToggleSelect("n1"))
		assert.ElementsMatch(t, []string{"n2"}, s.SelectedIDs())
	})

	t.Run("unknown id rejected", func(t *testing.T) {
		s := createBoundStore(t, "proj-1")
		assert.False(t, s.Select("ghost"))
		assert.False(t, s.ToggleSelect("ghost"))
		assert.Empty(t, s.SelectedIDs())
	})

	t.Run("clear", func(t *testing.T) {
		s := createBoundStore(t, "proj-1")
		s.ToggleSelect("n1")
		s.ClearSelection()
		assert.Empty(t, s.SelectedIDs())
		assert.Empty(t, s.SelectedNodes())
	})
}

func TestStore_SelectionStats(t *testing.T) {
	s := NewStore()
	s.BindProject("proj-1", NewSnapshot("proj-1", "goal", map[string]TaskNode{
		"a": {ID: "a", NodeType: NodeExecute, TaskType: TaskSearch, Status: StatusDone, Layer: 1,
			Metadata: Metadata{StartedAtMs: 0, FinishedAtMs: 100}},
		"b": {ID: "b", NodeType: NodeExecute, TaskType: TaskThink, Status: StatusFailed, Layer: 1,
			Metadata: Metadata{StartedAtMs: 0, FinishedAtMs: 300}},
		"c": {ID: "c", NodeType: NodePlan, Status: StatusRunning, Layer: 0},
		"d": {ID: "d", NodeType: NodeExecute, TaskType: TaskWrite, Status: StatusDone, Layer: 2},
	}))

	for _, id := range []string{"a", "b", "c", "d"} {
		require.True(t, s.ToggleSelect(id))
	}

	stats := s.SelectionStats()

	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 2, stats.StatusCounts[StatusDone])
	assert.Equal(t, 1, stats.StatusCounts[StatusFailed])
	assert.Equal(t, 3, stats.NodeTypeCounts[NodeExecute])
	assert.Equal(t, 1, stats.TaskTypeCounts[TaskSearch])
	assert.Equal(t, 2, stats.LayerCounts[1])
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 1e-9, "success rate counts only DONE and FAILED")
	assert.InDelta(t, 200.0, stats.AvgDurationMs, 1e-9, "nodes without timing excluded from mean")
}

func TestStore_SelectionStats_Empty(t *testing.T) {
	s := createBoundStore(t, "proj-1")
	stats := s.SelectionStats()
	assert.Zero(t, stats.Count)
	assert.Zero(t, stats.SuccessRate)
	assert.Zero(t, stats.AvgDurationMs)
}

func TestStore_Filters(t *testing.T) {
	s := createBoundStore(t, "proj-1")

	t.Run("empty filters return all", func(t *testing.T) {
		assert.Len(t, s.FilteredNodes(), 3)
	})

	t.Run("status filter", func(t *testing.T) {
		s.SetFilters(Filters{Statuses: []NodeStatus{StatusRunning}})
		got := s.FilteredNodes()
		require.Len(t, got, 1)
		assert.Equal(t, "n2", got[0].ID)
	})

	t.Run("search filter matches goal", func(t *testing.T) {
		s.SetFilters(Filters{Search: "SUMMARY"})
		got := s.FilteredNodes()
		require.Len(t, got, 1)
		assert.Equal(t, "n3", got[0].ID)
	})

	t.Run("predicates combine with AND", func(t *testing.T) {
		s.SetFilters(Filters{NodeTypes: []NodeType{NodeExecute}, Statuses: []NodeStatus{StatusDone}})
		assert.Empty(t, s.FilteredNodes())
	})
}

func TestStore_Connectivity(t *testing.T) {
	s := NewStore()
	assert.False(t, s.Connected())

	s.SetConnected(true)
	assert.True(t, s.Connected())

	s.SetConnected(false)
	assert.False(t, s.Connected())
}

func TestStore_Snapshot_DeepCopy(t *testing.T) {
	s := createBoundStore(t, "proj-1")

	snap := s.Snapshot()
	require.Equal(t, "proj-1", snap.ProjectID)
	require.Equal(t, 3, snap.NodeCount())

	snap.Nodes["n1"].ChildIDs[0] = "mutated"
	n1, ok := s.Node("n1")
	require.True(t, ok)
	assert.Equal(t, "n2", n1.ChildIDs[0])
}

func TestStore_OnChange(t *testing.T) {
	s := NewStore()

	var mu sync.Mutex
	var kinds []ChangeKind
	s.OnChange(func(c Change) {
		mu.Lock()
		kinds = append(kinds, c.Kind)
		mu.Unlock()
	})

	s.BindProject("proj-1", createTestSnapshot("proj-1"))
	s.ApplyNodes(map[string]TaskNode{"n9": {ID: "n9"}}, "")
	s.Select("n1")
	s.SetFilters(Filters{Search: "plan"})
	s.SetConnected(true)
	s.SetConnected(true) // no-op, must not notify

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ChangeKind{
		ChangeBinding, ChangeNodes, ChangeSelection, ChangeFilters, ChangeConnectivity,
	}, kinds)
}

func TestStore_ConcurrentReadersAndWriter(t *testing.T) {
	s := createBoundStore(t, "proj-1")

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.ApplyNodes(map[string]TaskNode{
				fmt.Sprintf("w-%d", i): {ID: fmt.Sprintf("w-%d", i), Status: StatusPending},
			}, "")
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = s.Nodes()
			_ = s.Edges()
			_ = s.FilteredNodes()
			_ = s.SelectionStats()
		}
	}()

	wg.Wait()
	assert.Equal(t, 203, s.NodeCount())
}
