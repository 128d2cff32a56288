// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"testing"

	"github.com/n-engine/devit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoDelegateRequiresGoal(t *testing.T) {
	_, err := doDelegate([]string{"--delegated-to", "worker-a"}, GlobalFlags{}, &config.CLIConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--goal")
}

func TestDoDelegateRequiresDelegatedTo(t *testing.T) {
	_, err := doDelegate([]string{"--goal", "fix the bug"}, GlobalFlags{}, &config.CLIConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--delegated-to")
}

func TestDoDelegateRejectsInvalidContextJSON(t *testing.T) {
	_, err := doDelegate([]string{
		"--goal", "fix the bug",
		"--delegated-to", "worker-a",
		"--context", "{not json",
	}, GlobalFlags{}, &config.CLIConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--context")
}
