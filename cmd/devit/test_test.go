// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/n-engine/devit/pkg/testexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFrameworkHonorsExplicitStackOverride(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "package.json"), []byte("{}"), 0o644))

	assert.Equal(t, testexec.FrameworkCargo, resolveFramework("cargo", ws))
	assert.Equal(t, testexec.FrameworkNPM, resolveFramework("npm", ws))
	assert.Equal(t, testexec.FrameworkPytest, resolveFramework("pytest", ws))
}

func TestResolveFrameworkFallsBackToDetection(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "Cargo.toml"), []byte(""), 0o644))

	assert.Equal(t, testexec.FrameworkCargo, resolveFramework("", ws))
}

func TestResolveFrameworkUnknownStackFallsBackToDetection(t *testing.T) {
	ws := t.TempDir()
	assert.Equal(t, testexec.FrameworkUnknown, resolveFramework("something-else", ws))
}
