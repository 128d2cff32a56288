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

func TestDoNotifyRequiresTask(t *testing.T) {
	_, err := doNotify([]string{"--status", "completed"}, GlobalFlags{}, &config.CLIConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--task")
}

func TestDoNotifyRequiresStatus(t *testing.T) {
	_, err := doNotify([]string{"--task", "t-1"}, GlobalFlags{}, &config.CLIConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--status")
}
