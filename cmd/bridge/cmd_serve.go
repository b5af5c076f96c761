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
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianBridge/cmd/bridge/config"
)

// runServe runs the headless daemon: connection manager, session
// engine, gateway, and the config hot-reload watcher, until SIGINT or
// SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg, buildOptions{withGateway: true, durable: true})
	if err != nil {
		return err
	}
	defer rt.close()

	watchPath := configPath
	if watchPath == "" {
		if p, err := config.DefaultPath(); err == nil {
			watchPath = p
		}
	}

	rt.logger.Info("bridge daemon starting",
		"backend", cfg.Backend.WebsocketURL,
		"gateway", cfg.Gateway.Addr,
		"session_id", rt.engine.SessionID())
	return rt.run(ctx, watchPath)
}
