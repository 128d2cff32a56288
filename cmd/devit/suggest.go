// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/n-engine/devit/internal/config"
	"github.com/n-engine/devit/internal/errors"
	"github.com/n-engine/devit/pkg/worker"
)

// SuggestResult is suggest's StdResponse payload: the proposed diff plus
// the worker telemetry that produced it.
type SuggestResult struct {
	Diff     string           `json:"diff"`
	Metadata *worker.Metadata `json:"metadata,omitempty"`
}

func runSuggest(args []string, g GlobalFlags, cli *config.CLIConfig, ws string) {
	result, err := doSuggest(args, g, ws)
	errors.PrintResponse(result, err, jsonMode(g), func(v any) {
		r := v.(SuggestResult)
		fmt.Println(r.Diff)
	})
	if err != nil {
		os.Exit(1)
	}
}

func doSuggest(args []string, g GlobalFlags, ws string) (SuggestResult, error) {
	fs := flag.NewFlagSet("suggest", flag.ContinueOnError)
	goal := fs.String("goal", "", "Natural-language description of the desired change")
	delegatedTo := fs.String("delegated-to", "suggest", "Worker definition (in devit.core.toml [workers]) to invoke")
	timeoutSecs := fs.Int("timeout", 0, "Override the worker's configured timeout, in seconds")
	if err := fs.Parse(args); err != nil {
		return SuggestResult{}, errors.NewInvalidFormat(err.Error())
	}
	var scope string
	if rest := fs.Args(); len(rest) > 0 {
		scope = rest[0]
	}
	if *goal == "" {
		return SuggestResult{}, errors.NewInvalidFormat("--goal is required")
	}

	engineCfg, err := config.LoadEngineConfig(g.CoreConfig)
	if err != nil {
		return SuggestResult{}, err
	}
	def, ok := engineCfg.Workers[*delegatedTo]
	if !ok {
		return SuggestResult{}, errors.NewInternal("no worker named \""+*delegatedTo+"\" configured in devit.core.toml [workers]", nil)
	}

	task := worker.Task{
		Action:     "suggest",
		Goal:       *goal,
		WorkingDir: scope,
		Format:     worker.FormatJSON,
		QueuedAt:   time.Now(),
	}
	if *timeoutSecs > 0 {
		task.Timeout = time.Duration(*timeoutSecs) * time.Second
	}

	res, err := worker.Dispatch(context.Background(), def, task, ws)
	if err != nil {
		return SuggestResult{}, err
	}
	if res.Status == "failed" {
		return SuggestResult{}, errors.NewInternal("suggest worker failed: "+res.ErrMsg, nil)
	}

	return SuggestResult{Diff: res.Artifacts.Summary, Metadata: res.Artifacts.Metadata}, nil
}
