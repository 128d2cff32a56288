// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoApplyRequiresPatchFile(t *testing.T) {
	_, err := doApply([]string{}, GlobalFlags{}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--patch-file")
}

func TestDoApplyRejectsMissingPatchFile(t *testing.T) {
	_, err := doApply([]string{"--patch-file", filepath.Join(t.TempDir(), "nope.diff")}, GlobalFlags{}, t.TempDir())
	require.Error(t, err)
}

func TestDoApplyRejectsUnknownApprovalLevel(t *testing.T) {
	dir := t.TempDir()
	patchPath := filepath.Join(dir, "x.diff")
	require.NoError(t, os.WriteFile(patchPath, []byte("diff --git a/x b/x\n"), 0o644))

	_, err := doApply([]string{"--patch-file", patchPath, "--approval", "bogus"}, GlobalFlags{}, dir)
	require.Error(t, err)
}

func TestDoApplyRejectsUnknownSandboxProfile(t *testing.T) {
	dir := t.TempDir()
	patchPath := filepath.Join(dir, "x.diff")
	require.NoError(t, os.WriteFile(patchPath, []byte("diff --git a/x b/x\n"), 0o644))

	_, err := doApply([]string{"--patch-file", patchPath, "--sandbox", "bogus"}, GlobalFlags{}, dir)
	require.Error(t, err)
}
