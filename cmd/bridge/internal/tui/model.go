// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui is the terminal dashboard for `bridge watch`.
//
// # Description
//
// A read-mostly view over the Graph State Store with inline checkpoint
// decisions: the node table and connection banner refresh on the
// engine's debounced notifications, and a pending interrupt can be
// approved, modified, or aborted without leaving the terminal.
//
// # Thread Safety
//
// The model runs single-threaded inside the bubbletea event loop.
// External goroutines communicate only through Program.Send.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/AleutianBridge/services/bridge/hitl"
	"github.com/AleutianAI/AleutianBridge/services/bridge/protocol"
	"github.com/AleutianAI/AleutianBridge/services/bridge/taskgraph"
)

// =============================================================================
// Messages
// =============================================================================

// RefreshMsg asks the model to re-read the store. Sent by the engine's
// debounced notification callback via Program.Send.
type RefreshMsg struct{}

// InterruptMsg carries a HITL lifecycle change into the event loop.
type InterruptMsg struct {
	Event hitl.Event
}

// respondResultMsg reports the outcome of a decision submission.
type respondResultMsg struct {
	action protocol.ResponseAction
	err    error
}

// =============================================================================
// Collaborators
// =============================================================================

// Controller is the slice of the session engine the dashboard drives.
type Controller interface {
	CurrentProject() string
	RespondInterrupt(ctx context.Context, action protocol.ResponseAction, instructions string) error
}

// Deps are the read and write surfaces the dashboard composes.
type Deps struct {
	Store      *taskgraph.Store
	Interrupts *hitl.Handler
	Controller Controller
}

// =============================================================================
// Styles
// =============================================================================

var (
	bannerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

	connectedStyle    = bannerStyle.Foreground(lipgloss.Color("42"))
	disconnectedStyle = bannerStyle.Foreground(lipgloss.Color("203"))

	interruptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().Faint(true)

	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// =============================================================================
// Model
// =============================================================================

// inputMode tracks whether the keyboard feeds the table or the modify
// instructions field.
type inputMode int

const (
	modeBrowse inputMode = iota
	modeModify
)

// Model is the bubbletea model for the dashboard.
type Model struct {
	deps Deps

	table   table.Model
	spin    spinner.Model
	input   textinput.Model
	mode    inputMode
	width   int
	height  int
	lastErr string
	notice  string
}

// New builds the dashboard model.
func New(deps Deps) Model {
	columns := []table.Column{
		{Title: "ID", Width: 14},
		{Title: "STATUS", Width: 12},
		{Title: "TYPE", Width: 8},
		{Title: "LAYER", Width: 5},
		{Title: "GOAL", Width: 48},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(16),
	)

	s := spinner.New()
	s.Spinner = spinner.Dot

	in := textinput.New()
	in.Placeholder = "modification instructions"
	in.CharLimit = 500

	m := Model{deps: deps, table: t, spin: s, input: in}
	m.reloadRows()
	return m
}

// Init starts the spinner tick.
func (m Model) Init() tea.Cmd {
	return m.spin.Tick
}

// Update handles one event.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(6, msg.Height-12))
		return m, nil

	case RefreshMsg:
		m.reloadRows()
		return m, nil

	case InterruptMsg:
		switch msg.Event.Kind {
		case hitl.EventReceived:
			m.notice = fmt.Sprintf("Checkpoint %q needs a decision", checkpointName(msg.Event))
		case hitl.EventWaitTimeout:
			m.lastErr = "no follow-up after modify; the backend may still be replanning"
		case hitl.EventSuperseded:
			m.notice = "previous checkpoint superseded"
		}
		return m, nil

	case respondResultMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		} else {
			m.lastErr = ""
			m.notice = fmt.Sprintf("Sent %s", msg.action)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode == modeModify {
		switch msg.String() {
		case "esc":
			m.mode = modeBrowse
			m.input.Blur()
			m.input.Reset()
			return m, nil
		case "enter":
			instructions := strings.TrimSpace(m.input.Value())
			if instructions == "" {
				m.lastErr = "instructions must not be empty"
				return m, nil
			}
			m.mode = modeBrowse
			m.input.Blur()
			m.input.Reset()
			return m, m.respond(protocol.ActionModify, instructions)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "a":
		return m, m.respond(protocol.ActionApprove, "")
	case "x":
		return m, m.respond(protocol.ActionAbort, "")
	case "m":
		if _, ok := m.deps.Interrupts.Active(); ok {
			m.mode = modeModify
			m.input.Focus()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// respond submits the decision off the event loop.
func (m Model) respond(action protocol.ResponseAction, instructions string) tea.Cmd {
	controller := m.deps.Controller
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := controller.RespondInterrupt(ctx, action, instructions)
		return respondResultMsg{action: action, err: err}
	}
}

// reloadRows re-reads the store into the table, stable-ordered by
// layer then id so refreshes do not shuffle rows.
func (m *Model) reloadRows() {
	nodes := m.deps.Store.Nodes()
	ordered := make([]taskgraph.TaskNode, 0, len(nodes))
	for _, n := range nodes {
		ordered = append(ordered, n)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Layer != ordered[j].Layer {
			return ordered[i].Layer < ordered[j].Layer
		}
		return ordered[i].ID < ordered[j].ID
	})

	rows := make([]table.Row, 0, len(ordered))
	for _, n := range ordered {
		rows = append(rows, table.Row{
			truncate(n.ID, 14),
			string(n.Status),
			string(n.NodeType),
			fmt.Sprintf("%d", n.Layer),
			truncate(n.Goal, 48),
		})
	}
	m.table.SetRows(rows)
}

// =============================================================================
// View
// =============================================================================

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.banner())
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")

	if section := m.interruptSection(); section != "" {
		b.WriteString(section)
		b.WriteString("\n")
	}
	if m.lastErr != "" {
		b.WriteString(errStyle.Render("error: " + m.lastErr))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(m.notice)
		b.WriteString("\n")
	}

	if m.mode == modeModify {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter submit - esc cancel"))
	} else {
		b.WriteString(helpStyle.Render("a approve - m modify - x abort - q quit"))
	}
	return b.String()
}

func (m Model) banner() string {
	project := m.deps.Controller.CurrentProject()
	if project == "" {
		project = "(no project bound)"
	}
	summary := statusSummary(m.deps.Store.Nodes())

	if m.deps.Store.Connected() {
		return connectedStyle.Render("CONNECTED") + bannerStyle.Render(project+"  "+summary)
	}
	return disconnectedStyle.Render(m.spin.View()+" DISCONNECTED") +
		bannerStyle.Render(project+"  "+summary)
}

func (m Model) interruptSection() string {
	active, ok := m.deps.Interrupts.Active()
	if !ok {
		return ""
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Checkpoint %q on node %s (attempt %d)",
		active.CheckpointName, active.NodeID, active.CurrentAttempt))
	if active.ContextMessage != "" {
		lines = append(lines, truncate(active.ContextMessage, 100))
	}
	switch m.deps.Interrupts.State() {
	case hitl.StateAnsweredWaiting:
		lines = append(lines, m.spin.View()+" waiting for the backend's revised plan...")
	case hitl.StatePending:
		lines = append(lines, "awaiting your decision")
	}
	return interruptStyle.Render(strings.Join(lines, "\n"))
}

// =============================================================================
// Helpers
// =============================================================================

func statusSummary(nodes map[string]taskgraph.TaskNode) string {
	var running, done, failed int
	for _, n := range nodes {
		switch n.Status {
		case taskgraph.StatusRunning:
			running++
		case taskgraph.StatusDone:
			done++
		case taskgraph.StatusFailed:
			failed++
		}
	}
	return fmt.Sprintf("%d nodes (%d running, %d done, %d failed)",
		len(nodes), running, done, failed)
}

func checkpointName(ev hitl.Event) string {
	if ev.Interrupt != nil {
		return ev.Interrupt.CheckpointName
	}
	return ev.RequestID
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
