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
	"time"
)

// =============================================================================
// HITL Responses
// =============================================================================

// ResponseAction is the human decision sent back for an interrupt.
type ResponseAction string

const (
	ActionApprove ResponseAction = "approve"
	ActionModify  ResponseAction = "modify"
	ActionAbort   ResponseAction = "abort"
)

// Valid reports whether the action is one the backend accepts.
func (a ResponseAction) Valid() bool {
	switch a {
	case ActionApprove, ActionModify, ActionAbort:
		return true
	}
	return false
}

// HITLResponse answers a hitl_interrupt.
type HITLResponse struct {
	Type                     Type           `json:"type"`
	RequestID                string         `json:"request_id"`
	Action                   ResponseAction `json:"action"`
	ModificationInstructions string         `json:"modification_instructions,omitempty"`
	TimestampMs              int64          `json:"timestamp"`
}

// NewHITLResponse builds a timestamped response for the given request.
func NewHITLResponse(requestID string, action ResponseAction, instructions string) HITLResponse {
	return HITLResponse{
		Type:                     TypeHITLResponse,
		RequestID:                requestID,
		Action:                   action,
		ModificationInstructions: instructions,
		TimestampMs:              time.Now().UnixMilli(),
	}
}

// =============================================================================
// Project Commands
// =============================================================================

// SwitchProject asks the backend to make another project current.
type SwitchProject struct {
	Type      Type   `json:"type"`
	ProjectID string `json:"project_id"`
}

// NewSwitchProject builds a switch command.
func NewSwitchProject(projectID string) SwitchProject {
	return SwitchProject{Type: TypeSwitchProject, ProjectID: projectID}
}

// RestoreProject asks the backend to replay the full graph for a
// project, typically after a reconnect.
type RestoreProject struct {
	Type      Type   `json:"type"`
	ProjectID string `json:"project_id"`
}

// NewRestoreProject builds a restore request.
func NewRestoreProject(projectID string) RestoreProject {
	return RestoreProject{Type: TypeRestoreProject, ProjectID: projectID}
}

// StartProject asks the backend to begin decomposing a new mission.
type StartProject struct {
	Type     Type   `json:"type"`
	Goal     string `json:"goal"`
	MaxSteps int    `json:"max_steps,omitempty"`
}

// NewStartProject builds a start command.
func NewStartProject(goal string, maxSteps int) StartProject {
	return StartProject{Type: TypeStartProject, Goal: goal, MaxSteps: maxSteps}
}
