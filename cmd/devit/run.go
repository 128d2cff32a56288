// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/n-engine/devit/internal/config"
	"github.com/n-engine/devit/internal/errors"
	"github.com/n-engine/devit/pkg/lifecycle"
	"github.com/n-engine/devit/pkg/policy"
)

// RunResult is `devit run`'s StdResponse payload: the suggested diff plus
// the patch lifecycle outcome it was fed into.
type RunResult struct {
	Diff  string                `json:"diff"`
	Patch lifecycle.PatchResult `json:"patch"`
}

func runRun(args []string, g GlobalFlags, cli *config.CLIConfig, ws string) {
	result, err := doRun(args, g, ws)
	errors.PrintResponse(result, err, jsonMode(g), func(v any) {
		r := v.(RunResult)
		fmt.Println("--- suggested diff ---")
		fmt.Println(r.Diff)
		fmt.Println("--- patch result ---")
		printApplyResult(r.Patch)
	})
	if err != nil {
		os.Exit(1)
	}
}

func doRun(args []string, g GlobalFlags, ws string) (RunResult, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	goal := fs.String("goal", "", "Natural-language description of the desired change")
	delegatedTo := fs.String("delegated-to", "suggest", "Worker definition to invoke for the diff")
	approvalStr := fs.String("approval", "moderate", "Approval level for the resulting apply")
	if err := fs.Parse(args); err != nil {
		return RunResult{}, errors.NewInvalidFormat(err.Error())
	}
	if *goal == "" {
		return RunResult{}, errors.NewInvalidFormat("--goal is required")
	}

	suggestion, err := doSuggest([]string{"--goal", *goal, "--delegated-to", *delegatedTo}, g, ws)
	if err != nil {
		return RunResult{}, err
	}
	if suggestion.Diff == "" {
		return RunResult{}, errors.NewInvalidDiff("worker returned an empty diff", nil)
	}

	patch, err := applyDiff(g, ws, suggestion.Diff, *approvalStr, policy.Strict, false, true, "")
	if err != nil {
		return RunResult{Diff: suggestion.Diff}, err
	}
	return RunResult{Diff: suggestion.Diff, Patch: patch}, nil
}
