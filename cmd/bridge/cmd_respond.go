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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianBridge/services/bridge/gateway"
)

// runRespond answers the pending checkpoint of a running daemon
// through its gateway API. With no decision flags and a TTY, an
// interactive form collects the decision.
func runRespond(cmd *cobra.Command, args []string) error {
	addr := gatewayAddr
	if addr == "" {
		addr = cfg.Gateway.Addr
	}
	base := "http://" + addr
	httpClient := &http.Client{Timeout: 30 * time.Second}

	pending, err := fetchInterrupts(httpClient, base)
	if err != nil {
		return err
	}
	if pending.Active == nil {
		fmt.Println("No checkpoint is waiting for a decision.")
		return nil
	}

	action, instructions, err := resolveDecision(pending)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{
		"action":                    action,
		"modification_instructions": instructions,
	})
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}

	resp, err := httpClient.Post(base+"/api/v1/interrupts/respond", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("reaching daemon at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("daemon rejected the response: %s", strings.TrimSpace(string(data)))
	}
	fmt.Printf("Sent %s for checkpoint %s (request %s)\n",
		action, pending.Active.CheckpointName, pending.Active.RequestID)
	return nil
}

func fetchInterrupts(client *http.Client, base string) (*gateway.InterruptsResponse, error) {
	resp, err := client.Get(base + "/api/v1/interrupts")
	if err != nil {
		return nil, fmt.Errorf("reaching daemon: %w (is `bridge serve` running?)", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon returned %s", resp.Status)
	}

	var out gateway.InterruptsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding interrupts: %w", err)
	}
	return &out, nil
}

// resolveDecision maps flags to a decision, falling back to an
// interactive form on a TTY.
func resolveDecision(pending *gateway.InterruptsResponse) (action, instructions string, err error) {
	switch {
	case respApprove:
		return "approve", "", nil
	case respAbort:
		return "abort", "", nil
	case respModify != "":
		return "modify", respModify, nil
	}

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return "", "", fmt.Errorf("no decision given; pass --approve, --abort, or --modify")
	}

	active := pending.Active
	title := fmt.Sprintf("Checkpoint %q on node %s (attempt %d)",
		active.CheckpointName, active.NodeID, active.CurrentAttempt)
	if active.ContextMessage != "" {
		title += "\n\n" + active.ContextMessage
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(title).
				Options(
					huh.NewOption("Approve and continue", "approve"),
					huh.NewOption("Request modifications", "modify"),
					huh.NewOption("Abort this checkpoint", "abort"),
				).
				Value(&action),
		),
		huh.NewGroup(
			huh.NewText().
				Title("Modification instructions").
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("instructions must not be empty")
					}
					return nil
				}).
				Value(&instructions),
		).WithHideFunc(func() bool { return action != "modify" }),
	)
	if err := form.Run(); err != nil {
		return "", "", fmt.Errorf("collecting decision: %w", err)
	}
	return action, instructions, nil
}
