// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/n-engine/devit/internal/config"
	"github.com/n-engine/devit/internal/errors"
)

// jsonMode reports whether output should be the StdResponse JSON envelope.
// Per the CLI surface, JSON is the default; --pretty switches to human text.
func jsonMode(g GlobalFlags) bool { return !g.Pretty }

// fatal prints err as a StdResponse/StdError and exits 1.
func fatal(err error, g GlobalFlags) {
	errors.FatalError(err, jsonMode(g))
}

// resolveWorkspace implements the resolution order from the supplemented
// cd/pwd feature: --workspace flag > DEVIT_SANDBOX_ROOT > devit.toml
// sandbox_root > persisted state file > process CWD.
func resolveWorkspace(g GlobalFlags, cli *config.CLIConfig) (string, error) {
	if g.Workspace != "" {
		return g.Workspace, nil
	}
	if v := os.Getenv("DEVIT_SANDBOX_ROOT"); v != "" {
		return v, nil
	}
	if cli.SandboxRoot != "" {
		return cli.SandboxRoot, nil
	}
	statePath, err := config.StatePath()
	if err == nil {
		if st, err := config.LoadState(statePath); err == nil && st.Workspace != "" {
			return st.Workspace, nil
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.NewIO("cannot determine current working directory", err)
	}
	return cwd, nil
}

func runCd(args []string, g GlobalFlags, _ string) {
	if len(args) == 0 {
		fatal(errors.NewInvalidFormat("cd requires a PATH argument"), g)
	}
	path := args[0]
	abs, err := resolveAbs(path)
	if err != nil {
		fatal(errors.NewIO("cannot resolve workspace path", err), g)
	}
	if _, err := os.Stat(abs); err != nil {
		fatal(errors.NewIO("workspace path does not exist: "+abs, err), g)
	}

	statePath, err := config.StatePath()
	if err != nil {
		fatal(errors.NewIO("cannot determine state file path", err), g)
	}
	if err := config.SaveState(statePath, &config.State{Workspace: abs}); err != nil {
		fatal(errors.NewIO("cannot persist workspace state", err), g)
	}

	errors.PrintResponse(map[string]any{"workspace": abs}, nil, jsonMode(g), func(any) {
		fmt.Println(abs)
	})
}

func runPwd(_ []string, g GlobalFlags, ws string) {
	errors.PrintResponse(map[string]any{"workspace": ws}, nil, jsonMode(g), func(any) {
		fmt.Println(ws)
	})
}

func resolveAbs(path string) (string, error) {
	if path == "" {
		return os.Getwd()
	}
	return filepath.Abs(path)
}
