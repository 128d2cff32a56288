// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRunRequiresGoal(t *testing.T) {
	_, err := doRun([]string{}, GlobalFlags{}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--goal")
}

func TestDoSuggestRequiresGoal(t *testing.T) {
	_, err := doSuggest([]string{}, GlobalFlags{}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--goal")
}

func TestDoSuggestRejectsUnknownWorker(t *testing.T) {
	ws := t.TempDir()
	_, err := doSuggest([]string{"--goal", "add a test", "--delegated-to", "nope"}, GlobalFlags{}, ws)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}
