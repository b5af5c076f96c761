// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianBridge/cmd/bridge/internal/tui"
	"github.com/AleutianAI/AleutianBridge/services/bridge/hitl"
)

// runWatch runs the bridge with the terminal dashboard. Without a TTY
// (or with --no-tui) it degrades to the headless daemon whose log
// stream is the view.
func runWatch(cmd *cobra.Command, args []string) error {
	if noTUI || !isatty.IsTerminal(os.Stdout.Fd()) {
		return runServe(cmd, args)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The dashboard owns the terminal; logs go to file only.
	rt, err := buildRuntime(ctx, cfg, buildOptions{withGateway: true, durable: true, quiet: true})
	if err != nil {
		return err
	}
	defer rt.close()

	model := tui.New(tui.Deps{
		Store:      rt.store,
		Interrupts: rt.interrupts,
		Controller: rt.engine,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())

	rt.engine.OnRefresh(func() {
		if rt.gw != nil {
			rt.gw.BroadcastState()
		}
		program.Send(tui.RefreshMsg{})
	})
	rt.interrupts.OnEvent(func(ev hitl.Event) {
		program.Send(tui.InterruptMsg{Event: ev})
	})

	runtimeDone := make(chan error, 1)
	daemonCtx, cancelDaemon := context.WithCancel(ctx)
	go func() { runtimeDone <- rt.run(daemonCtx, "") }()

	_, teaErr := program.Run()
	cancelDaemon()
	runErr := <-runtimeDone

	if teaErr != nil {
		return fmt.Errorf("dashboard: %w", teaErr)
	}
	return runErr
}
