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
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianBridge/services/bridge/restapi"
)

func projectsClient() (*restapi.Client, error) {
	apiCfg := restapi.DefaultConfig()
	apiCfg.BaseURL = cfg.Backend.APIURL
	return restapi.New(apiCfg, nil)
}

func apiContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func runProjectsList(cmd *cobra.Command, args []string) error {
	client, err := projectsClient()
	if err != nil {
		return err
	}
	ctx, cancel := apiContext()
	defer cancel()

	projects, err := client.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("listing projects: %w", err)
	}
	if len(projects) == 0 {
		fmt.Println("No projects.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tNODES\tTITLE")
	for _, p := range projects {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.ID, p.Status, p.NodeCount, p.Title)
	}
	return w.Flush()
}

func runProjectsCreate(cmd *cobra.Command, args []string) error {
	client, err := projectsClient()
	if err != nil {
		return err
	}
	ctx, cancel := apiContext()
	defer cancel()

	project, err := client.CreateProject(ctx, restapi.CreateProjectRequest{
		Goal:     startGoal,
		MaxSteps: startSteps,
	})
	if err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	fmt.Printf("Created project %s\n", project.ID)
	return nil
}

func runProjectsDelete(cmd *cobra.Command, args []string) error {
	client, err := projectsClient()
	if err != nil {
		return err
	}
	ctx, cancel := apiContext()
	defer cancel()

	if err := client.DeleteProject(ctx, args[0]); err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	fmt.Printf("Deleted project %s\n", args[0])
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	client, err := projectsClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	out := os.Stdout
	if reportOutput != "" {
		f, err := os.Create(reportOutput)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	n, err := client.DownloadReport(ctx, args[0], out)
	if err != nil {
		return fmt.Errorf("downloading report: %w", err)
	}
	if reportOutput != "" {
		fmt.Printf("Wrote %d bytes to %s\n", n, reportOutput)
	}
	return nil
}
