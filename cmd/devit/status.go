// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/n-engine/devit/internal/config"
	"github.com/n-engine/devit/internal/errors"
	"github.com/n-engine/devit/pkg/orchestration"
	"github.com/n-engine/devit/pkg/wire"
)

// StatusResult is status's StdResponse payload: the daemon's active and
// completed task tables plus the summary counters.
type StatusResult struct {
	ActiveTasks    []orchestration.DelegatedTask `json:"active_tasks"`
	CompletedTasks []orchestration.DelegatedTask `json:"completed_tasks"`
	Summary        orchestration.Summary         `json:"summary"`
}

func runStatus(args []string, g GlobalFlags, cli *config.CLIConfig) {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	filter := fs.String("filter", "", "Only show tasks delegated to this worker name")
	format := fs.String("format", "table", "Output format: json|compact|table")
	if err := fs.Parse(args); err != nil {
		errors.FatalError(errors.NewInvalidFormat(err.Error()), jsonMode(g))
	}

	result, err := doStatus(cli, *filter)
	errors.PrintResponse(result, err, jsonMode(g), func(v any) {
		renderStatus(v.(StatusResult), *format)
	})
	if err != nil {
		os.Exit(1)
	}
}

func doStatus(cli *config.CLIConfig, filter string) (StatusResult, error) {
	client := newDaemonClient(cli)
	resp, err := client.roundtrip(wire.StatusRequest, "cli", "daemon", struct{}{})
	if err != nil {
		return StatusResult{}, err
	}

	var r StatusResult
	if err := json.Unmarshal(resp.Payload, &r); err != nil {
		return StatusResult{}, errors.NewInternal("cannot decode devitd STATUS_RESPONSE", err)
	}
	if filter != "" {
		r.ActiveTasks = filterByWorker(r.ActiveTasks, filter)
		r.CompletedTasks = filterByWorker(r.CompletedTasks, filter)
	}
	return r, nil
}

func filterByWorker(tasks []orchestration.DelegatedTask, worker string) []orchestration.DelegatedTask {
	var out []orchestration.DelegatedTask
	for _, t := range tasks {
		if t.DelegatedTo == worker {
			out = append(out, t)
		}
	}
	return out
}

func renderStatus(r StatusResult, format string) {
	if format == "compact" {
		fmt.Printf("active=%d completed=%d failed=%d\n", r.Summary.TotalActive, r.Summary.TotalCompleted, r.Summary.TotalFailed)
		for _, t := range r.ActiveTasks {
			fmt.Printf("%s\t%s\t%s\t%s\n", t.ID, t.DelegatedTo, t.Status, t.Goal)
		}
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tWORKER\tSTATUS\tGOAL\n")
	for _, t := range r.ActiveTasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.DelegatedTo, t.Status, truncate(t.Goal, 60))
	}
	for _, t := range r.CompletedTasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.DelegatedTo, t.Status, truncate(t.Goal, 60))
	}
	w.Flush()
	fmt.Printf("\n%d active, %d completed, %d failed\n", r.Summary.TotalActive, r.Summary.TotalCompleted, r.Summary.TotalFailed)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
