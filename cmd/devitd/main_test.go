// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevelMapping(t *testing.T) {
	cases := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, c := range cases {
		logger := newLogger(false, c.level)
		assert.True(t, logger.Enabled(nil, c.want))
		if c.want != slog.LevelDebug {
			assert.False(t, logger.Enabled(nil, c.want-1))
		}
	}
}

func TestNewLoggerProducesNonNilHandlerForBothModes(t *testing.T) {
	assert.NotNil(t, newLogger(true, "info"))
	assert.NotNil(t, newLogger(false, "info"))
}
