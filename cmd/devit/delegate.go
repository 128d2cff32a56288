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

// DelegateResult is delegate's StdResponse payload: devitd's ACK/pending
// decision for the submitted task.
type DelegateResult struct {
	Status     string `json:"status"`
	TaskID     string `json:"task_id"`
	ApprovalID string `json:"approval_id,omitempty"`
}

func runDelegate(args []string, g GlobalFlags, cli *config.CLIConfig) {
	result, err := doDelegate(args, g, cli)
	errors.PrintResponse(result, err, jsonMode(g), func(v any) {
		r := v.(DelegateResult)
		fmt.Printf("%s: task_id=%s\n", r.Status, r.TaskID)
		if r.ApprovalID != "" {
			fmt.Printf("  approval_id: %s\n", r.ApprovalID)
		}
	})
	if err != nil {
		os.Exit(1)
	}
}

func doDelegate(args []string, g GlobalFlags, cli *config.CLIConfig) (DelegateResult, error) {
	fs := flag.NewFlagSet("delegate", flag.ContinueOnError)
	goal := fs.String("goal", "", "Natural-language description of the delegated task")
	delegatedTo := fs.String("delegated-to", "", "Name of the worker to delegate to (action/tool)")
	model := fs.String("model", "", "Override the worker's configured model")
	timeoutSecs := fs.Int("timeout", 0, "Task timeout, in seconds")
	watch := fs.StringArray("watch", nil, "Glob pattern to watch for activity (repeatable)")
	contextJSON := fs.String("context", "", "Extra JSON context handed to the worker")
	workdir := fs.String("workdir", "", "Working directory, relative to the workspace root")
	format := fs.String("format", "", "Response format requested of the worker")
	if err := fs.Parse(args); err != nil {
		return DelegateResult{}, errors.NewInvalidFormat(err.Error())
	}
	if *goal == "" {
		return DelegateResult{}, errors.NewInvalidFormat("--goal is required")
	}
	if *delegatedTo == "" {
		return DelegateResult{}, errors.NewInvalidFormat("--delegated-to is required")
	}

	var rawContext json.RawMessage
	if *contextJSON != "" {
		if !json.Valid([]byte(*contextJSON)) {
			return DelegateResult{}, errors.NewInvalidFormat("--context is not valid JSON")
		}
		rawContext = json.RawMessage(*contextJSON)
	}

	payload := struct {
		Task struct {
			Action        string          `json:"action,omitempty"`
			Goal          string          `json:"goal"`
			Timeout       int             `json:"timeout,omitempty"`
			Context       json.RawMessage `json:"context,omitempty"`
			WatchPatterns []string        `json:"watch_patterns,omitempty"`
			WorkingDir    string          `json:"working_dir,omitempty"`
			Format        string          `json:"format,omitempty"`
			Model         string          `json:"model,omitempty"`
		} `json:"task"`
	}{}
	payload.Task.Action = *delegatedTo
	payload.Task.Goal = *goal
	payload.Task.Timeout = *timeoutSecs
	payload.Task.Context = rawContext
	payload.Task.WatchPatterns = *watch
	payload.Task.WorkingDir = *workdir
	payload.Task.Format = *format
	payload.Task.Model = *model

	client := newDaemonClient(cli)
	resp, err := client.roundtrip(wire.Delegate, "cli", "daemon", payload)
	if err != nil {
		return DelegateResult{}, err
	}

	var ack struct {
		Status     string `json:"status"`
		TaskID     string `json:"task_id"`
		ApprovalID string `json:"approval_id,omitempty"`
	}
	if err := json.Unmarshal(resp.Payload, &ack); err != nil {
		return DelegateResult{}, errors.NewInternal("cannot decode devitd DELEGATE ack", err)
	}
	return DelegateResult{Status: ack.Status, TaskID: ack.TaskID, ApprovalID: ack.ApprovalID}, nil
}
