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

import "strings"

// Filters narrows the node set the renderer sees. Populated fields
// combine with AND semantics; an empty Filters matches everything.
type Filters struct {
	// Statuses keeps nodes whose status is in the set.
	Statuses []NodeStatus `json:"statuses,omitempty"`

	// NodeTypes keeps PLAN or EXECUTE nodes.
	NodeTypes []NodeType `json:"node_types,omitempty"`

	// TaskTypes keeps nodes with one of the given domain tags.
	TaskTypes []TaskType `json:"task_types,omitempty"`

	// Layers keeps nodes at the given depths.
	Layers []int `json:"layers,omitempty"`

	// Agent keeps nodes executed by the named agent (exact match).
	Agent string `json:"agent,omitempty"`

	// Search keeps nodes whose id or goal contains the text,
	// case-insensitive.
	Search string `json:"search,omitempty"`
}

// IsEmpty reports whether no predicate is active.
func (f Filters) IsEmpty() bool {
	return len(f.Statuses) == 0 &&
		len(f.NodeTypes) == 0 &&
		len(f.TaskTypes) == 0 &&
		len(f.Layers) == 0 &&
		f.Agent == "" &&
		f.Search == ""
}

// Match reports whether the node passes every active predicate.
func (f Filters) Match(n TaskNode) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, n.Status) {
		return false
	}
	if len(f.NodeTypes) > 0 && !containsNodeType(f.NodeTypes, n.NodeType) {
		return false
	}
	if len(f.TaskTypes) > 0 && !containsTaskType(f.TaskTypes, n.TaskType) {
		return false
	}
	if len(f.Layers) > 0 && !containsInt(f.Layers, n.Layer) {
		return false
	}
	if f.Agent != "" && n.Metadata.AgentName != f.Agent {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(n.ID), needle) &&
			!strings.Contains(strings.ToLower(n.Goal), needle) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the filters.
func (f Filters) Clone() Filters {
	out := f
	if f.Statuses != nil {
		out.Statuses = append([]NodeStatus(nil), f.Statuses...)
	}
	if f.NodeTypes != nil {
		out.NodeTypes = append([]NodeType(nil), f.NodeTypes...)
	}
	if f.TaskTypes != nil {
		out.TaskTypes = append([]TaskType(nil), f.TaskTypes...)
	}
	if f.Layers != nil {
		out.Layers = append([]int(nil), f.Layers...)
	}
	return out
}

func containsStatus(set []NodeStatus, v NodeStatus) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsNodeType(set []NodeType, v NodeType) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsTaskType(set []TaskType, v TaskType) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
