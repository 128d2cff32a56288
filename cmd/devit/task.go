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
	"github.com/n-engine/devit/pkg/orchestration"
	"github.com/n-engine/devit/pkg/worker"
)

// TaskResult is task's StdResponse payload: one delegated task's full
// record plus the worker telemetry from its last notification, when present.
type TaskResult struct {
	Task     orchestration.DelegatedTask `json:"task"`
	Metadata *worker.Metadata            `json:"metadata,omitempty"`
}

func runTask(args []string, g GlobalFlags, cli *config.CLIConfig) {
	result, err := doTask(args, cli)
	errors.PrintResponse(result, err, jsonMode(g), func(v any) {
		r := v.(TaskResult)
		fmt.Printf("id:          %s\n", r.Task.ID)
		fmt.Printf("status:      %s\n", r.Task.Status)
		fmt.Printf("delegated_to: %s\n", r.Task.DelegatedTo)
		fmt.Printf("goal:        %s\n", r.Task.Goal)
		if r.Task.Summary != "" {
			fmt.Printf("summary:     %s\n", r.Task.Summary)
		}
		if r.Metadata != nil {
			fmt.Println("--- worker telemetry ---")
			if r.Metadata.ExitCode != nil {
				fmt.Printf("exit_code:   %d (%s)\n", *r.Metadata.ExitCode, r.Metadata.ExitReason)
			}
			if r.Metadata.ModelUsed != "" {
				fmt.Printf("model:       %s (requested %s)\n", r.Metadata.ModelUsed, r.Metadata.ModelRequested)
			}
			if r.Metadata.TotalTokens > 0 {
				fmt.Printf("tokens:      %d in / %d out / %d reasoning = %d total\n",
					r.Metadata.InputTokens, r.Metadata.OutputTokens, r.Metadata.ReasoningToks, r.Metadata.TotalTokens)
			}
			if r.Metadata.CostUSD > 0 {
				fmt.Printf("cost_usd:    %.4f\n", r.Metadata.CostUSD)
			}
		}
	})
	if err != nil {
		os.Exit(1)
	}
}

func doTask(args []string, cli *config.CLIConfig) (TaskResult, error) {
	fs := flag.NewFlagSet("task", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return TaskResult{}, errors.NewInvalidFormat(err.Error())
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return TaskResult{}, errors.NewInvalidFormat("task requires a TASK_ID argument")
	}
	taskID := rest[0]

	status, err := doStatus(cli, "")
	if err != nil {
		return TaskResult{}, err
	}

	for _, t := range append(status.ActiveTasks, status.CompletedTasks...) {
		if t.ID != taskID {
			continue
		}
		result := TaskResult{Task: t}
		if n := lastArtifactNotification(t.Notifications); n != nil {
			var a worker.Artifacts
			if err := json.Unmarshal(n.Artifacts, &a); err == nil {
				result.Metadata = a.Metadata
			}
		}
		return result, nil
	}
	return TaskResult{}, errors.NewInternal("no task found with id "+taskID, nil)
}

func lastArtifactNotification(notifications []orchestration.Notification) *orchestration.Notification {
	for i := len(notifications) - 1; i >= 0; i-- {
		if len(notifications[i].Artifacts) > 0 {
			return &notifications[i]
		}
	}
	return nil
}
