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
	"github.com/n-engine/devit/pkg/policy"
	"github.com/n-engine/devit/pkg/testexec"
)

func runTest(args []string, g GlobalFlags, ws string) {
	result, err := doTest(args, g, ws)
	errors.PrintResponse(result, err, jsonMode(g), func(v any) {
		s := v.(testexec.Summary)
		status := "PASS"
		if !s.Success {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s: %d/%d passed, %d failed, %d skipped\n", status, s.Framework, s.Passed, s.Total, s.Failed, s.Skipped)
	})
	if err != nil {
		os.Exit(1)
	}
}

func doTest(args []string, g GlobalFlags, ws string) (testexec.Summary, error) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	stack := fs.String("stack", "", "Force a test framework instead of auto-detecting: cargo|npm|pytest")
	sandboxStr := fs.String("sandbox", "", "Sandbox profile: strict|permissive")
	timeoutSecs := fs.Int("timeout", 120, "Test run timeout, in seconds")
	parallel := fs.Bool("parallel", false, "Run tests in parallel where the framework supports it")
	verbose := fs.Bool("verbose", false, "Verbose test output")
	if err := fs.Parse(args); err != nil {
		return testexec.Summary{}, errors.NewInvalidFormat(err.Error())
	}

	engineCfg, err := config.LoadEngineConfig(g.CoreConfig)
	if err != nil {
		return testexec.Summary{}, err
	}

	sandbox, err := policy.ParseSandboxProfile(*sandboxStr)
	if err != nil {
		return testexec.Summary{}, errors.NewInvalidFormat(err.Error())
	}
	if *sandboxStr == "" {
		sandbox, _ = policy.ParseSandboxProfile(engineCfg.SandboxProfileDefault)
	}

	opts := testexec.Options{Patterns: fs.Args(), Parallel: *parallel, Verbose: *verbose}
	fw := resolveFramework(*stack, ws)

	return testexec.RunFramework(context.Background(), ws, fw, opts, sandbox, time.Duration(*timeoutSecs)*time.Second)
}

func resolveFramework(stack, ws string) testexec.Framework {
	switch stack {
	case "cargo":
		return testexec.FrameworkCargo
	case "npm":
		return testexec.FrameworkNPM
	case "pytest":
		return testexec.FrameworkPytest
	default:
		return testexec.Detect(ws)
	}
}
