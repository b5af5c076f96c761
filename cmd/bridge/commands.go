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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath   string
	noTUI        bool
	gatewayAddr  string
	startGoal    string
	startSteps   int
	respApprove  bool
	respAbort    bool
	respModify   string
	reportOutput string

	rootCmd = &cobra.Command{
		Use:   "bridge",
		Short: "Client-side sync bridge for the agent-orchestration backend",
		Long: `Bridge keeps a local task-decomposition graph consistent with the
backend over a websocket: reconnect with backoff, per-project caching
with durable fallback, ordered update reconciliation, and the
human-in-the-loop checkpoint protocol.`,
	}

	// --- Daemon ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the headless sync daemon with the local gateway API",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Run the bridge with an interactive terminal dashboard",
		RunE:  runWatch, // Defined in cmd_watch.go
	}

	// --- Projects ---
	projectsCmd = &cobra.Command{
		Use:   "projects",
		Short: "Manage projects through the backend's HTTP API",
	}
	projectsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List all projects known to the backend",
		RunE:  runProjectsList, // Defined in cmd_projects.go
	}
	projectsCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Create and start a new project",
		RunE:  runProjectsCreate, // Defined in cmd_projects.go
	}
	projectsDeleteCmd = &cobra.Command{
		Use:   "delete [project-id]",
		Short: "Delete a project and its backend state",
		Args:  cobra.ExactArgs(1),
		RunE:  runProjectsDelete, // Defined in cmd_projects.go
	}
	reportCmd = &cobra.Command{
		Use:   "report [project-id]",
		Short: "Download the generated report for a project",
		Args:  cobra.ExactArgs(1),
		RunE:  runReport, // Defined in cmd_projects.go
	}

	// --- Session operations ---
	switchCmd = &cobra.Command{
		Use:   "switch [project-id]",
		Short: "Switch the current project over a short-lived session",
		Args:  cobra.ExactArgs(1),
		RunE:  runSwitch, // Defined in cmd_session.go
	}
	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Ask the backend to start a new decomposition",
		RunE:  runStart, // Defined in cmd_session.go
	}

	// --- HITL ---
	respondCmd = &cobra.Command{
		Use:   "respond",
		Short: "Answer the pending checkpoint of a running daemon",
		RunE:  runRespond, // Defined in cmd_respond.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file path (default ~/.aleutian/bridge.yaml)")

	watchCmd.Flags().BoolVar(&noTUI, "no-tui", false,
		"stream events as logs instead of the terminal dashboard")

	projectsCreateCmd.Flags().StringVar(&startGoal, "goal", "", "overall goal for the new project")
	projectsCreateCmd.Flags().IntVar(&startSteps, "max-steps", 50, "decomposition step budget")
	_ = projectsCreateCmd.MarkFlagRequired("goal")

	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "",
		"write the report to a file instead of stdout")

	startCmd.Flags().StringVar(&startGoal, "goal", "", "overall goal for the new project")
	startCmd.Flags().IntVar(&startSteps, "max-steps", 50, "decomposition step budget")
	_ = startCmd.MarkFlagRequired("goal")

	respondCmd.Flags().BoolVar(&respApprove, "approve", false, "approve the pending checkpoint")
	respondCmd.Flags().BoolVar(&respAbort, "abort", false, "abort the pending checkpoint")
	respondCmd.Flags().StringVar(&respModify, "modify", "",
		"request modifications with the given instructions")
	respondCmd.Flags().StringVar(&gatewayAddr, "gateway", "",
		"gateway address of the running daemon (default from config)")

	projectsCmd.AddCommand(projectsListCmd, projectsCreateCmd, projectsDeleteCmd)
	rootCmd.AddCommand(serveCmd, watchCmd, projectsCmd, reportCmd, switchCmd, startCmd, respondCmd)
}
