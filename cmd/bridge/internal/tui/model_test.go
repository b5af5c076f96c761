// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import (
	"context"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianBridge/services/bridge/hitl"
	"github.com/AleutianAI/AleutianBridge/services/bridge/protocol"
	"github.com/AleutianAI/AleutianBridge/services/bridge/taskgraph"
)

type stubController struct {
	mu        sync.Mutex
	responded []protocol.ResponseAction
}

func (s *stubController) CurrentProject() string { return "p1" }

func (s *stubController) RespondInterrupt(_ context.Context, action protocol.ResponseAction, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responded = append(s.responded, action)
	return nil
}

type nopSender struct{}

func (nopSender) Send(context.Context, any) error { return nil }

func createTestModel(t *testing.T) (Model, *taskgraph.Store, *hitl.Handler, *stubController) {
	t.Helper()
	store := taskgraph.NewStore()
	interrupts, err := hitl.NewHandler(nopSender{}, hitl.DefaultConfig(), nil)
	require.NoError(t, err)
	controller := &stubController{}
	return New(Deps{Store: store, Interrupts: interrupts, Controller: controller}),
		store, interrupts, controller
}

func TestModel_ViewShowsNodes(t *testing.T) {
	m, store, _, _ := createTestModel(t)
	store.BindProject("p1", nil)
	store.ApplyNodes(map[string]taskgraph.TaskNode{
		"n1": {ID: "n1", Goal: "analyze requirements", NodeType: taskgraph.NodePlan, Status: taskgraph.StatusRunning},
	}, "build the dashboard")

	updated, _ := m.Update(RefreshMsg{})
	view := updated.View()
	assert.Contains(t, view, "n1")
	assert.Contains(t, view, "RUNNING")
	assert.Contains(t, view, "p1")
}

func TestModel_ViewShowsPendingInterrupt(t *testing.T) {
	m, _, interrupts, _ := createTestModel(t)
	require.NoError(t, interrupts.OnInterrupt(&protocol.HITLInterrupt{
		RequestID:      "r1",
		CheckpointName: "PlanReview",
		NodeID:         "n1",
		CurrentAttempt: 1,
	}))

	view := m.View()
	assert.Contains(t, view, "PlanReview")
	assert.Contains(t, view, "awaiting your decision")
}

func TestModel_ApproveKeySubmitsDecision(t *testing.T) {
	m, _, interrupts, controller := createTestModel(t)
	require.NoError(t, interrupts.OnInterrupt(&protocol.HITLInterrupt{
		RequestID:      "r1",
		CheckpointName: "PlanReview",
		NodeID:         "n1",
	}))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}})
	require.NotNil(t, cmd)

	msg := cmd()
	result, ok := msg.(respondResultMsg)
	require.True(t, ok)
	assert.NoError(t, result.err)
	assert.Equal(t, []protocol.ResponseAction{protocol.ActionApprove}, controller.responded)
}

func TestModel_ModifyFlow(t *testing.T) {
	m, _, interrupts, controller := createTestModel(t)
	require.NoError(t, interrupts.OnInterrupt(&protocol.HITLInterrupt{
		RequestID:      "r1",
		CheckpointName: "PlanReview",
		NodeID:         "n1",
	}))

	// 'm' enters the instruction input.
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'m'}})
	model := next.(Model)
	require.Equal(t, modeModify, model.mode)

	// Submitting empty instructions is refused locally.
	next, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = next.(Model)
	assert.Nil(t, cmd)
	assert.NotEmpty(t, model.lastErr)

	// Type instructions, then submit.
	for _, r := range "split step two" {
		next, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		model = next.(Model)
	}
	_, cmd = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	result, ok := cmd().(respondResultMsg)
	require.True(t, ok)
	assert.NoError(t, result.err)
	assert.Equal(t, []protocol.ResponseAction{protocol.ActionModify}, controller.responded)
}

func TestModel_QuitKey(t *testing.T) {
	m, _, _, _ := createTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
