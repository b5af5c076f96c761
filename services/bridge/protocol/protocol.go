// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package protocol defines the JSON wire messages exchanged with the
// orchestrator over the WebSocket, and the tolerant decoders that turn
// raw frames into typed payloads.
//
// # Description
//
// Every frame is a JSON object carrying a "type" discriminator. Sniff
// reads only the discriminator so the session can route a frame before
// paying for a full decode. Decoders are deliberately forgiving at the
// node level: a graph update with one mangled node entry still applies
// the rest, reporting the drops instead of failing the frame.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// =============================================================================
// Message Types
// =============================================================================

// Type discriminates wire messages.
type Type string

// Inbound message types.
const (
	TypeGraphUpdate          Type = "graph_update"
	TypeHITLInterrupt        Type = "hitl_interrupt"
	TypeProjectSwitched      Type = "project_switched"
	TypeProjectRestored      Type = "project_restored"
	TypeProjectRestoreFailed Type = "project_restore_failed"
)

// Outbound message types.
const (
	TypeHITLResponse   Type = "hitl_response"
	TypeSwitchProject  Type = "switch_project"
	TypeRestoreProject Type = "restore_project"
	TypeStartProject   Type = "start_project"
)

var (
	// ErrMissingType reports a frame without a type discriminator.
	ErrMissingType = errors.New("message missing type field")
	// ErrUnknownType reports a frame whose type this build does not speak.
	ErrUnknownType = errors.New("unknown message type")
)

var knownTypes = map[Type]bool{
	TypeGraphUpdate:          true,
	TypeHITLInterrupt:        true,
	TypeProjectSwitched:      true,
	TypeProjectRestored:      true,
	TypeProjectRestoreFailed: true,
	TypeHITLResponse:         true,
	TypeSwitchProject:        true,
	TypeRestoreProject:       true,
	TypeStartProject:         true,
}

// Known reports whether this build understands the type.
func (t Type) Known() bool {
	return knownTypes[t]
}

// Sniff extracts the type discriminator from a raw frame without
// decoding the payload.
func Sniff(data []byte) (Type, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("sniffing message type: %w", err)
	}
	if head.Type == "" {
		return "", ErrMissingType
	}
	if !head.Type.Known() {
		return head.Type, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
	return head.Type, nil
}
