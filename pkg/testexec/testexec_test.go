// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package testexec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPrefersCargoOverOthers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0o644))
	assert.Equal(t, FrameworkCargo, Detect(dir))
}

func TestDetectFallsBackToPytestMarkers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte(""), 0o644))
	assert.Equal(t, FrameworkPytest, Detect(dir))
}

func TestDetectUnknownWithNoMarkers(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, FrameworkUnknown, Detect(dir))
}

func TestCommandUnknownFrameworkIsNil(t *testing.T) {
	assert.Nil(t, Command(FrameworkUnknown, Options{}))
}

func TestCommandCargoIncludesPatterns(t *testing.T) {
	cmd := Command(FrameworkCargo, Options{Patterns: []string{"foo::bar"}})
	assert.Equal(t, []string{"cargo", "test", "foo::bar"}, cmd)
}

func TestParseCargoOutput(t *testing.T) {
	out := "running 3 tests\ntest result: ok. 2 passed; 1 failed; 0 ignored; 0 measured\n"
	s := Parse(FrameworkCargo, out)
	assert.Equal(t, 2, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 3, s.Total)
	assert.False(t, s.Success)
}

func TestParsePytestOutput(t *testing.T) {
	out := "===== 5 passed, 1 failed, 2 skipped in 1.23s ====="
	s := Parse(FrameworkPytest, out)
	assert.Equal(t, 5, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2, s.Skipped)
	assert.False(t, s.Success)
}

func TestParseUnknownFrameworkReportsSuccessOnly(t *testing.T) {
	s := Parse(FrameworkUnknown, "anything")
	assert.True(t, s.Success)
	assert.Zero(t, s.Total)
}

func TestSandboxWrapFallsBackWithoutBwrap(t *testing.T) {
	t.Setenv("PATH", "")
	cmd := []string{"echo", "hi"}
	assert.Equal(t, cmd, SandboxWrap(cmd, t.TempDir(), 0))
}
