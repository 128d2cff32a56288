// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	flag "github.com/spf13/pflag"

	"github.com/n-engine/devit/internal/config"
	"github.com/n-engine/devit/internal/errors"
)

// InitResult is init's StdResponse payload: the two config files written.
type InitResult struct {
	CLIConfigPath    string `json:"cli_config_path"`
	EngineConfigPath string `json:"engine_config_path"`
}

func runInit(args []string, g GlobalFlags, ws string) {
	result, err := doInit(args, g, ws)
	errors.PrintResponse(result, err, jsonMode(g), func(v any) {
		r := v.(InitResult)
		fmt.Printf("wrote %s\n", r.CLIConfigPath)
		fmt.Printf("wrote %s\n", r.EngineConfigPath)
	})
	if err != nil {
		os.Exit(1)
	}
}

func doInit(args []string, g GlobalFlags, ws string) (InitResult, error) {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	sandboxRoot := fs.String("sandbox", "", "Sandbox root directory (defaults to the current workspace)")
	allow := fs.StringArray("allow", nil, "Path prefix a Privileged-level apply may touch (plain prefix match, not a glob), repeatable")
	defaultProject := fs.String("default-project", "", "Default project name recorded for this workspace")
	if err := fs.Parse(args); err != nil {
		return InitResult{}, errors.NewInvalidFormat(err.Error())
	}

	root := *sandboxRoot
	if root == "" {
		root = ws
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return InitResult{}, errors.NewIO("cannot resolve sandbox root "+root, err)
	}

	cli := &config.CLIConfig{
		OrchestrationMode:    "auto",
		OrchestrationTimeout: 30_000_000_000, // 30s, in time.Duration nanoseconds
		DaemonSocket:         filepath.Join(abs, ".devit", "devitd.sock"),
		SandboxRoot:          abs,
		TimeoutSecs:          300,
	}
	engine := &config.EngineConfig{
		DefaultApproval:        "Moderate",
		SandboxProfileDefault:  "strict",
		IdempotencyTTLSecs:     300,
		JournalMaxFileSizeMB:   10,
		JournalMaxRotatedFiles: 5,
		TestTimeoutSecs:        120,
		PrivilegedAllowedPaths: *allow,
	}

	cliPath := filepath.Join(abs, "devit.toml")
	enginePath := filepath.Join(abs, "devit.core.toml")

	if err := writeTOML(cliPath, cliConfigDoc{cli, *defaultProject}); err != nil {
		return InitResult{}, err
	}
	if err := writeTOML(enginePath, engine); err != nil {
		return InitResult{}, err
	}

	if err := os.MkdirAll(filepath.Join(abs, ".devit"), 0o755); err != nil {
		return InitResult{}, errors.NewIO("cannot create .devit directory", err)
	}

	return InitResult{CLIConfigPath: cliPath, EngineConfigPath: enginePath}, nil
}

// cliConfigDoc adds the one field (default_project) that belongs in
// devit.toml but isn't part of config.CLIConfig itself, since it's read
// by `devit init`/humans, not consulted by the runtime.
type cliConfigDoc struct {
	*config.CLIConfig
	DefaultProject string `toml:"default_project,omitempty"`
}

func writeTOML(path string, v any) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return errors.NewInternal("cannot encode "+filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.NewIO("cannot write "+path, err)
	}
	return nil
}
