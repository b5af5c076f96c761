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
	"time"

	"github.com/spf13/cobra"
)

// oneShot runs fn against a short-lived memory-only session: connect,
// act, disconnect. Used by switch and start, which do not need the
// daemon's gateway or durable cache.
func oneShot(fn func(ctx context.Context, rt *runtime) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	rt, err := buildRuntime(ctx, cfg, buildOptions{})
	if err != nil {
		return err
	}
	defer rt.close()

	engineCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		_ = rt.engine.Run(engineCtx)
	}()

	if err := rt.manager.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to backend: %w", err)
	}

	err = fn(ctx, rt)
	rt.manager.Disconnect()
	stopEngine()
	<-engineDone
	return err
}

// runSwitch performs the two-phase switch and waits for confirmation.
func runSwitch(cmd *cobra.Command, args []string) error {
	projectID := args[0]
	return oneShot(func(ctx context.Context, rt *runtime) error {
		if err := rt.engine.SwitchProject(ctx, projectID); err != nil {
			return fmt.Errorf("switching to %s: %w", projectID, err)
		}
		fmt.Printf("Current project is now %s\n", projectID)
		return nil
	})
}

// runStart asks the backend to begin a new decomposition.
func runStart(cmd *cobra.Command, args []string) error {
	return oneShot(func(ctx context.Context, rt *runtime) error {
		if err := rt.engine.StartProject(ctx, startGoal, startSteps); err != nil {
			return fmt.Errorf("starting project: %w", err)
		}
		fmt.Printf("Start requested (goal: %q, max steps: %d)\n", startGoal, startSteps)
		return nil
	})
}
