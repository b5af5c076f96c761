// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/AleutianBridge/services/bridge/taskgraph"
)

// =============================================================================
// Graph Updates
// =============================================================================

// NodeError records one node entry dropped during a tolerant decode.
type NodeError struct {
	NodeID string
	Err    error
}

func (e NodeError) Error() string {
	return fmt.Sprintf("node %q: %v", e.NodeID, e.Err)
}

// GraphUpdate is a decoded graph_update frame. Nodes holds every entry
// that survived per-node validation; Dropped records the ones that did
// not, for diagnostics.
type GraphUpdate struct {
	ProjectID        string
	CurrentProjectID string
	OverallGoal      string
	Nodes            map[string]taskgraph.TaskNode
	Dropped          []NodeError
}

// HasNodes reports whether the update carries any usable node payload.
func (u *GraphUpdate) HasNodes() bool {
	return u != nil && len(u.Nodes) > 0
}

type rawGraphUpdate struct {
	ProjectID        string                     `json:"project_id"`
	CurrentProjectID string                     `json:"current_project_id"`
	OverallGoal      string                     `json:"overall_goal"`
	Nodes            map[string]json.RawMessage `json:"nodes"`
}

// ParseGraphUpdate decodes a graph_update payload. Malformed node
// entries are dropped individually and reported in Dropped; the frame
// itself only fails when the envelope is not the expected shape.
func ParseGraphUpdate(data []byte) (*GraphUpdate, error) {
	var raw rawGraphUpdate
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding graph update: %w", err)
	}

	update := &GraphUpdate{
		ProjectID:        raw.ProjectID,
		CurrentProjectID: raw.CurrentProjectID,
		OverallGoal:      raw.OverallGoal,
		Nodes:            make(map[string]taskgraph.TaskNode, len(raw.Nodes)),
	}

	for key, rawNode := range raw.Nodes {
		node, err := decodeNode(key, rawNode)
		if err != nil {
			update.Dropped = append(update.Dropped, NodeError{NodeID: key, Err: err})
			continue
		}
		update.Nodes[node.ID] = node
	}
	return update, nil
}

// decodeNode unmarshals and validates one node entry. The map key is
// the authoritative id: an empty embedded id inherits it, a
// conflicting one rejects the entry.
func decodeNode(key string, raw json.RawMessage) (taskgraph.TaskNode, error) {
	var node taskgraph.TaskNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return taskgraph.TaskNode{}, fmt.Errorf("unmarshaling: %w", err)
	}
	if node.ID == "" {
		node.ID = key
	}
	if node.ID == "" {
		return taskgraph.TaskNode{}, fmt.Errorf("missing id")
	}
	if key != "" && node.ID != key {
		return taskgraph.TaskNode{}, fmt.Errorf("id %q disagrees with map key", node.ID)
	}
	if node.Status == "" {
		return taskgraph.TaskNode{}, fmt.Errorf("missing status")
	}
	if node.Layer < 0 {
		return taskgraph.TaskNode{}, fmt.Errorf("negative layer %d", node.Layer)
	}
	// Unknown statuses and task types pass through: a newer backend may
	// speak values this build has not learned yet.
	return node, nil
}

// =============================================================================
// HITL Interrupts
// =============================================================================

// HITLInterrupt is a decoded hitl_interrupt frame: the backend paused
// at a checkpoint and wants a human decision before continuing.
type HITLInterrupt struct {
	RequestID      string          `json:"request_id"`
	CheckpointName string          `json:"checkpoint_name"`
	NodeID         string          `json:"node_id,omitempty"`
	CurrentAttempt int             `json:"current_attempt,omitempty"`
	ContextMessage string          `json:"context_message,omitempty"`
	DataForReview  json.RawMessage `json:"data_for_review,omitempty"`
	TimestampMs    int64           `json:"timestamp,omitempty"`
}

// ParseHITLInterrupt decodes a hitl_interrupt payload. A request id is
// mandatory; without it no response can ever be correlated.
func ParseHITLInterrupt(data []byte) (*HITLInterrupt, error) {
	var msg HITLInterrupt
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decoding hitl interrupt: %w", err)
	}
	if msg.RequestID == "" {
		return nil, fmt.Errorf("hitl interrupt missing request_id")
	}
	return &msg, nil
}

// =============================================================================
// Project Lifecycle Events
// =============================================================================

// ProjectEvent is a decoded project_switched, project_restored, or
// project_restore_failed frame. Switched and restored frames may embed
// a full graph payload for the target project; when they do, Update is
// populated with the tolerant node decode.
type ProjectEvent struct {
	Type      Type
	ProjectID string
	Error     string
	Update    *GraphUpdate
}

type rawProjectEvent struct {
	ProjectID string `json:"project_id"`
	Error     string `json:"error,omitempty"`
}

// ParseProjectEvent decodes one of the project lifecycle frames.
func ParseProjectEvent(typ Type, data []byte) (*ProjectEvent, error) {
	switch typ {
	case TypeProjectSwitched, TypeProjectRestored, TypeProjectRestoreFailed:
	default:
		return nil, fmt.Errorf("%w: %q is not a project event", ErrUnknownType, typ)
	}

	var raw rawProjectEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding project event: %w", err)
	}

	ev := &ProjectEvent{Type: typ, ProjectID: raw.ProjectID, Error: raw.Error}

	if typ != TypeProjectRestoreFailed {
		update, err := ParseGraphUpdate(data)
		if err == nil && (update.HasNodes() || update.OverallGoal != "") {
			if update.ProjectID == "" {
				update.ProjectID = raw.ProjectID
			}
			ev.Update = update
		}
	}
	return ev, nil
}
