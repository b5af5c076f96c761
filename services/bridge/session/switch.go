// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"time"

	"github.com/AleutianAI/AleutianBridge/services/bridge/fsm"
)

// SwitchPhase tracks one two-phase project switch: the binding is
// applied tentatively, then either confirmed by the backend or rolled
// back on failure or timeout.
type SwitchPhase string

const (
	SwitchPending    SwitchPhase = "PENDING"
	SwitchConfirmed  SwitchPhase = "CONFIRMED"
	SwitchRolledBack SwitchPhase = "ROLLED_BACK"
)

func newSwitchLifecycle() *fsm.Machine[SwitchPhase] {
	return fsm.New(SwitchPending, map[SwitchPhase][]SwitchPhase{
		SwitchPending: {SwitchConfirmed, SwitchRolledBack},
	})
}

// switchOp is the in-flight tentative switch. At most one exists;
// dispatcher-owned.
type switchOp struct {
	fromID    string
	toID      string
	phase     *fsm.Machine[SwitchPhase]
	startedAt time.Time
}

func newSwitchOp(fromID, toID string) *switchOp {
	return &switchOp{
		fromID:    fromID,
		toID:      toID,
		phase:     newSwitchLifecycle(),
		startedAt: time.Now(),
	}
}
