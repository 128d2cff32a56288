// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/n-engine/devit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoInitWritesBothConfigFiles(t *testing.T) {
	ws := t.TempDir()

	result, err := doInit([]string{"--allow", "docs/**", "--allow", "vendor/**"}, GlobalFlags{}, ws)
	require.NoError(t, err)

	assert.FileExists(t, result.CLIConfigPath)
	assert.FileExists(t, result.EngineConfigPath)

	var cli config.CLIConfig
	_, err = toml.DecodeFile(result.CLIConfigPath, &cli)
	require.NoError(t, err)
	assert.Equal(t, "auto", cli.OrchestrationMode)
	absWS, err := filepath.Abs(ws)
	require.NoError(t, err)
	assert.Equal(t, absWS, cli.SandboxRoot)
	assert.Equal(t, filepath.Join(absWS, ".devit", "devitd.sock"), cli.DaemonSocket)

	var engine config.EngineConfig
	_, err = toml.DecodeFile(result.EngineConfigPath, &engine)
	require.NoError(t, err)
	assert.Equal(t, "Moderate", engine.DefaultApproval)
	assert.ElementsMatch(t, []string{"docs/**", "vendor/**"}, engine.PrivilegedAllowedPaths)
}

func TestDoInitCreatesDevitDirectory(t *testing.T) {
	ws := t.TempDir()
	_, err := doInit([]string{}, GlobalFlags{}, ws)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(ws, ".devit"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDoInitDefaultsSandboxToWorkspace(t *testing.T) {
	ws := t.TempDir()
	result, err := doInit([]string{}, GlobalFlags{}, ws)
	require.NoError(t, err)

	absWS, err := filepath.Abs(ws)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(absWS, "devit.toml"), result.CLIConfigPath)
}

func TestDoInitHonorsExplicitSandboxFlag(t *testing.T) {
	ws := t.TempDir()
	other := t.TempDir()
	result, err := doInit([]string{"--sandbox", other}, GlobalFlags{}, ws)
	require.NoError(t, err)

	absOther, err := filepath.Abs(other)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(absOther, "devit.toml"), result.CLIConfigPath)
}
