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

	"github.com/n-engine/devit/pkg/snapshot"
)

func TestDoRestoreRequiresID(t *testing.T) {
	ws := t.TempDir()
	_, err := doRestore([]string{}, GlobalFlags{}, ws)
	assert.Error(t, err)
}

func TestDoRestoreRewritesFileFromSnapshot(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.txt"), []byte("original"), 0o644))

	store, err := snapshot.Open(ws)
	require.NoError(t, err)
	m, err := store.Create([]string{"a.txt"}, snapshot.CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.txt"), []byte("corrupted"), 0o644))

	paths, err := doRestore([]string{"--id", m.ID}, GlobalFlags{}, ws)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, paths)

	b, err := os.ReadFile(filepath.Join(ws, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(b))
}

func TestDoRestoreDryRunReportsPathsWithoutWriting(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.txt"), []byte("original"), 0o644))

	store, err := snapshot.Open(ws)
	require.NoError(t, err)
	m, err := store.Create([]string{"a.txt"}, snapshot.CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.txt"), []byte("corrupted"), 0o644))

	paths, err := doRestore([]string{"--id", m.ID, "--dry-run"}, GlobalFlags{}, ws)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, paths)

	b, err := os.ReadFile(filepath.Join(ws, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "corrupted", string(b))
}
