// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package taskgraph holds the client-side model of the backend's
// task-decomposition graph: nodes, derived edges, and the Store that
// owns the currently displayed project's state.
//
// # Description
//
// The backend decomposes a mission goal into a tree of PLAN and
// EXECUTE nodes and streams incremental node updates over the sync
// channel. This package models those nodes, derives the edge list the
// renderer consumes (hierarchy, dependency, context flow), and exposes
// the Store: the single source of truth for what is currently
// displayed.
//
// # Ownership
//
// Snapshots are owned by the project cache. The Store only ever holds
// deep copies; nothing handed out by this package aliases Store
// internals, which is what prevents cross-project mutation bleed.
//
// # Thread Safety
//
// Store is safe for concurrent readers. All mutations are expected to
// come from the session dispatcher; see the session package.
package taskgraph

import (
	"encoding/json"
)

// =============================================================================
// Enumerations
// =============================================================================

// NodeType distinguishes decomposition nodes from work nodes.
type NodeType string

const (
	// NodePlan nodes decompose a goal into ordered children.
	NodePlan NodeType = "PLAN"

	// NodeExecute nodes perform a unit of work.
	NodeExecute NodeType = "EXECUTE"
)

// TaskType is the backend's domain tag for what kind of work a node
// performs. The set is owned by the backend; unknown tags pass
// through untouched.
type TaskType string

const (
	TaskSearch TaskType = "SEARCH"
	TaskThink  TaskType = "THINK"
	TaskWrite  TaskType = "WRITE"
)

// NodeStatus is a node's position in its execution lifecycle.
//
// The backend advances status monotonically along
// PENDING -> READY -> RUNNING -> {DONE | FAILED | NEEDS_REPLAN}, with
// PLAN_DONE and AGGREGATING as PLAN-node intermediates and CANCELLED
// reachable from any non-terminal state. The client applies updates
// strictly last-write-wins in arrival order; Rank exists so an
// apparent regression can be flagged, not so it can be reordered.
type NodeStatus string

const (
	StatusPending     NodeStatus = "PENDING"
	StatusReady       NodeStatus = "READY"
	StatusRunning     NodeStatus = "RUNNING"
	StatusPlanDone    NodeStatus = "PLAN_DONE"
	StatusAggregating NodeStatus = "AGGREGATING"
	StatusDone        NodeStatus = "DONE"
	StatusFailed      NodeStatus = "FAILED"
	StatusNeedsReplan NodeStatus = "NEEDS_REPLAN"
	StatusCancelled   NodeStatus = "CANCELLED"
)

// statusRanks orders statuses along the lifecycle for regression
// detection. Terminal statuses share the top rank: DONE vs FAILED is
// an outcome difference, not an ordering one.
var statusRanks = map[NodeStatus]int{
	StatusPending:     0,
	StatusReady:       1,
	StatusRunning:     2,
	StatusPlanDone:    3,
	StatusAggregating: 4,
	StatusDone:        5,
	StatusFailed:      5,
	StatusNeedsReplan: 5,
	StatusCancelled:   5,
}

// Valid reports whether s is one of the known lifecycle statuses.
func (s NodeStatus) Valid() bool {
	_, ok := statusRanks[s]
	return ok
}

// Rank returns the status's position along the lifecycle, -1 for
// unknown statuses.
func (s NodeStatus) Rank() int {
	if r, ok := statusRanks[s]; ok {
		return r
	}
	return -1
}

// Terminal reports whether no further status change is expected for
// the current execution attempt.
func (s NodeStatus) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusNeedsReplan, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsRegression reports whether moving from old to next walks backwards
// along the lifecycle. Unknown statuses never count as regressions.
func IsRegression(old, next NodeStatus) bool {
	or, nr := old.Rank(), next.Rank()
	if or < 0 || nr < 0 {
		return false
	}
	return nr < or
}

// =============================================================================
// TaskNode
// =============================================================================

// ToolCall records one tool invocation made while executing a node.
type ToolCall struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Metadata carries execution details that arrive asynchronously,
// possibly in a later update than the status change that produced
// them. Every field is optional.
type Metadata struct {
	AgentName    string     `json:"agent_name,omitempty"`
	Model        string     `json:"model,omitempty"`
	StartedAtMs  int64      `json:"started_at_ms,omitempty"`
	FinishedAtMs int64      `json:"finished_at_ms,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
}

// DurationMs returns the execution duration when both timestamps are
// present, 0 otherwise.
func (m Metadata) DurationMs() int64 {
	if m.StartedAtMs > 0 && m.FinishedAtMs >= m.StartedAtMs {
		return m.FinishedAtMs - m.StartedAtMs
	}
	return 0
}

// TaskNode is one unit of work in the decomposition tree.
//
// ID is unique within a project. ParentID is a weak reference used for
// lookup only; ChildIDs is ordered and only populated on PLAN nodes.
// Result is large and arrives asynchronously, typically after the node
// reaches a terminal status.
type TaskNode struct {
	ID             string          `json:"id"`
	Goal           string          `json:"goal,omitempty"`
	NodeType       NodeType        `json:"node_type,omitempty"`
	TaskType       TaskType        `json:"task_type,omitempty"`
	Status         NodeStatus      `json:"status"`
	Layer          int             `json:"layer"`
	ParentID       string          `json:"parent_id,omitempty"`
	ChildIDs       []string        `json:"child_ids,omitempty"`
	DependsOn      []string        `json:"depends_on,omitempty"`
	ContextSources []string        `json:"context_sources,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Metadata       Metadata        `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the node. Slices and the raw result are
// duplicated so the copy never aliases the original.
func (n TaskNode) Clone() TaskNode {
	out := n
	if n.ChildIDs != nil {
		out.ChildIDs = append([]string(nil), n.ChildIDs...)
	}
	if n.DependsOn != nil {
		out.DependsOn = append([]string(nil), n.DependsOn...)
	}
	if n.ContextSources != nil {
		out.ContextSources = append([]string(nil), n.ContextSources...)
	}
	if n.Result != nil {
		out.Result = append(json.RawMessage(nil), n.Result...)
	}
	if n.Metadata.ToolCalls != nil {
		out.Metadata.ToolCalls = append([]ToolCall(nil), n.Metadata.ToolCalls...)
	}
	return out
}

// CloneNodes deep-copies a node map.
func CloneNodes(nodes map[string]TaskNode) map[string]TaskNode {
	if nodes == nil {
		return nil
	}
	out := make(map[string]TaskNode, len(nodes))
	for id, n := range nodes {
		out[id] = n.Clone()
	}
	return out
}
