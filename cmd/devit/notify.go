// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/n-engine/devit/internal/config"
	"github.com/n-engine/devit/internal/errors"
	"github.com/n-engine/devit/pkg/wire"
)

// NotifyResult is notify's StdResponse payload: devitd's ACK of the external
// completion report.
type NotifyResult struct {
	Status string `json:"status"`
}

func runNotify(args []string, g GlobalFlags, cli *config.CLIConfig) {
	result, err := doNotify(args, g, cli)
	errors.PrintResponse(result, err, jsonMode(g), func(v any) {
		fmt.Println(v.(NotifyResult).Status)
	})
	if err != nil {
		os.Exit(1)
	}
}

func doNotify(args []string, g GlobalFlags, cli *config.CLIConfig) (NotifyResult, error) {
	fs := flag.NewFlagSet("notify", flag.ContinueOnError)
	taskID := fs.String("task", "", "Task id this notification reports on")
	status := fs.String("status", "", "completed|failed|cancelled")
	summary := fs.String("summary", "", "One-line human summary of the outcome")
	details := fs.String("details", "", "Longer free-form detail string")
	evidence := fs.StringArray("evidence", nil, "Path to supporting evidence, repeatable")
	if err := fs.Parse(args); err != nil {
		return NotifyResult{}, errors.NewInvalidFormat(err.Error())
	}
	if *taskID == "" {
		return NotifyResult{}, errors.NewInvalidFormat("--task is required")
	}
	if *status == "" {
		return NotifyResult{}, errors.NewInvalidFormat("--status is required")
	}

	artifacts, err := json.Marshal(struct {
		Summary  string   `json:"summary,omitempty"`
		Details  string   `json:"details,omitempty"`
		Evidence []string `json:"evidence,omitempty"`
	}{Summary: *summary, Details: *details, Evidence: *evidence})
	if err != nil {
		return NotifyResult{}, errors.NewInternal("cannot marshal notify artifacts", err)
	}

	payload := struct {
		TaskID    string          `json:"task_id"`
		Status    string          `json:"status"`
		Artifacts json.RawMessage `json:"artifacts,omitempty"`
	}{TaskID: *taskID, Status: *status, Artifacts: artifacts}

	client := newDaemonClient(cli)
	resp, err := client.roundtrip(wire.Notify, "cli", "daemon", payload)
	if err != nil {
		return NotifyResult{}, err
	}

	var ack struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Payload, &ack); err != nil {
		return NotifyResult{}, errors.NewInternal("cannot decode devitd NOTIFY ack", err)
	}
	return NotifyResult{Status: ack.Status}, nil
}
