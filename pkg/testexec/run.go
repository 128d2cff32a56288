// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package testexec

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/n-engine/devit/internal/errors"
	"github.com/n-engine/devit/pkg/policy"
)

// Summary is the output-parsing result for a completed test run.
type Summary struct {
	Framework Framework `json:"framework"`
	Total     int       `json:"total"`
	Passed    int       `json:"passed"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Success   bool      `json:"success"`
	Stdout    string    `json:"-"`
	Stderr    string    `json:"-"`
}

// Run detects the framework, assembles its command, wraps it in the
// sandbox when available, and executes it under timeout.
func Run(ctx context.Context, workspace string, opts Options, profile policy.SandboxProfile, timeout time.Duration) (Summary, error) {
	return RunFramework(ctx, workspace, Detect(workspace), opts, profile, timeout)
}

// RunFramework is Run with an explicit framework, for callers (like the CLI's
// --stack override) that want to bypass auto-detection.
func RunFramework(ctx context.Context, workspace string, fw Framework, opts Options, profile policy.SandboxProfile, timeout time.Duration) (Summary, error) {
	cmd := Command(fw, opts)
	if cmd == nil {
		return Summary{Framework: FrameworkUnknown, Success: true}, nil
	}

	wrapped := SandboxWrap(cmd, workspace, profile)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(runCtx, wrapped[0], wrapped[1:]...)
	c.Dir = workspace

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	runErr := c.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return Summary{}, errors.NewTestTimeout("test run exceeded configured timeout")
	}

	summary := Parse(fw, stdout.String())
	summary.Stdout = stdout.String()
	summary.Stderr = stderr.String()
	if runErr != nil {
		summary.Success = false
	}
	return summary, nil
}
