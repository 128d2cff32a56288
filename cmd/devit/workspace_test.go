// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"path/filepath"
	"testing"

	"github.com/n-engine/devit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWorkspacePrefersFlagOverEverything(t *testing.T) {
	t.Setenv("DEVIT_SANDBOX_ROOT", "/from/env")
	cli := &config.CLIConfig{SandboxRoot: "/from/config"}
	ws, err := resolveWorkspace(GlobalFlags{Workspace: "/from/flag"}, cli)
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", ws)
}

func TestResolveWorkspaceFallsBackToEnvThenConfig(t *testing.T) {
	t.Setenv("DEVIT_SANDBOX_ROOT", "/from/env")
	cli := &config.CLIConfig{SandboxRoot: "/from/config"}
	ws, err := resolveWorkspace(GlobalFlags{}, cli)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", ws)

	t.Setenv("DEVIT_SANDBOX_ROOT", "")
	cli2 :=&config.CLIConfig{SandboxRoot: "/from/config"}
	ws2, err := resolveWorkspace(GlobalFlags{}, cli2)
	require.NoError(t, err)
	assert.Equal(t, "/from/config", ws2)
}

func TestResolveWorkspaceFallsBackToCWDWhenNothingElseSet(t *testing.T) {
	cwd := t.TempDir()
	t.Chdir(cwd)

	ws, err := resolveWorkspace(GlobalFlags{}, &config.CLIConfig{})
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(ws)
	require.NoError(t, err)
	wantResolved, err := filepath.EvalSymlinks(cwd)
	require.NoError(t, err)
	assert.Equal(t, wantResolved, resolved)
}

func TestResolveAbsDefaultsToCWD(t *testing.T) {
	cwd := t.TempDir()
	t.Chdir(cwd)

	abs, err := resolveAbs("")
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(abs)
	require.NoError(t, err)
	wantResolved, err := filepath.EvalSymlinks(cwd)
	require.NoError(t, err)
	assert.Equal(t, wantResolved, resolved)
}

func TestResolveAbsResolvesRelativePath(t *testing.T) {
	abs, err := resolveAbs("some/relative/path")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))
}

func TestJSONModeDefaultsToJSONUnlessPretty(t *testing.T) {
	assert.True(t, jsonMode(GlobalFlags{}))
	assert.False(t, jsonMode(GlobalFlags{Pretty: true}))
}
