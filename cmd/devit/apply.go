// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/n-engine/devit/internal/config"
	"github.com/n-engine/devit/internal/errors"
	"github.com/n-engine/devit/pkg/lifecycle"
	"github.com/n-engine/devit/pkg/policy"
	"github.com/n-engine/devit/pkg/testexec"
)

func runApply(args []string, g GlobalFlags, cli *config.CLIConfig, ws string) {
	result, err := doApply(args, g, ws)
	errors.PrintResponse(result, err, jsonMode(g), func(v any) {
		r := v.(lifecycle.PatchResult)
		printApplyResult(r)
	})
	if err != nil {
		os.Exit(1)
	}
}

func doApply(args []string, g GlobalFlags, ws string) (lifecycle.PatchResult, error) {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	patchFile := fs.String("patch-file", "", "Path to the unified diff to apply")
	approvalStr := fs.String("approval", "moderate", "Approval level: untrusted|ask|moderate|trusted|privileged")
	sandboxStr := fs.String("sandbox", "", "Sandbox profile: strict|permissive")
	dryRun := fs.Bool("dry-run", false, "Validate without writing")
	runTests := fs.Bool("run-tests", false, "Run tests after applying and auto-revert on failure")
	idemKey := fs.String("idempotency-key", "", "Idempotency key for replay-safe retries")
	if err := fs.Parse(args); err != nil {
		return lifecycle.PatchResult{}, errors.NewInvalidFormat(err.Error())
	}

	if *patchFile == "" {
		return lifecycle.PatchResult{}, errors.NewInvalidDiff("--patch-file is required", nil)
	}
	diffBytes, err := os.ReadFile(*patchFile)
	if err != nil {
		return lifecycle.PatchResult{}, errors.NewIO("cannot read patch file "+*patchFile, err)
	}

	sandbox := policy.Strict
	if *sandboxStr != "" {
		sandbox, err = policy.ParseSandboxProfile(*sandboxStr)
		if err != nil {
			return lifecycle.PatchResult{}, errors.NewInvalidFormat(err.Error())
		}
	}

	return applyDiff(g, ws, string(diffBytes), *approvalStr, sandbox, *dryRun, *runTests, *idemKey)
}

// applyDiff wires a fresh lifecycle.Engine for ws and runs patch_apply,
// shared by `devit apply` (diff read from --patch-file) and `devit run`
// (diff produced in-process by suggest).
func applyDiff(g GlobalFlags, ws, diff, approvalStr string, sandbox policy.SandboxProfile, dryRun, runTests bool, idemKey string) (lifecycle.PatchResult, error) {
	lvl, err := policy.ParseLevel(approvalStr)
	if err != nil {
		return lifecycle.PatchResult{}, errors.NewInvalidFormat(err.Error())
	}

	engineCfg, err := config.LoadEngineConfig(g.CoreConfig)
	if err != nil {
		return lifecycle.PatchResult{}, err
	}

	eng, j, err := buildEngine(ws, engineCfg)
	if err != nil {
		return lifecycle.PatchResult{}, err
	}
	defer j.Close()

	req := lifecycle.Request{
		Diff:           diff,
		Approval:       policy.New(lvl),
		DryRun:         dryRun,
		Idempotency:    idemKey,
		RunTests:       runTests,
		TestOptions:    testexec.Options{},
		TestTimeout:    engineCfg.TestTimeout(),
		SandboxProfile: sandbox,
	}
	return eng.Apply(context.Background(), req)
}

func printApplyResult(r lifecycle.PatchResult) {
	if r.DryRun {
		fmt.Println("Dry run succeeded.")
	} else {
		fmt.Println("Patch applied.")
	}
	fmt.Printf("  request_id: %s\n", r.RequestID)
	fmt.Printf("  modified_files: %d\n", len(r.ModifiedFiles))
	if r.SnapshotID != "" {
		fmt.Printf("  snapshot_id: %s\n", r.SnapshotID)
	}
	if r.CommitSHA != "" {
		fmt.Printf("  commit_sha: %s\n", r.CommitSHA)
	}
	if r.RollbackCmd != "" {
		fmt.Printf("  rollback hint: git %s\n", r.RollbackCmd)
	}
	if r.Warning != "" {
		fmt.Printf("  warning: %s\n", r.Warning)
	}
	if r.TestSummary != nil {
		fmt.Printf("  tests: %d/%d passed (%s)\n", r.TestSummary.Passed, r.TestSummary.Total, r.TestSummary.Framework)
	}
	if r.AutoReverted {
		fmt.Printf("  auto-reverted to %s\n", r.RevertedSHA)
	}
}
