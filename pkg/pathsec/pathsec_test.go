// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pathsec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsTraversal(t *testing.T) {
	v, err := NewValidator(t.TempDir())
	require.NoError(t, err)
	err = v.Validate("../etc/passwd", false)
	assert.Error(t, err)
}

func TestValidateRejectsAbsolute(t *testing.T) {
	v, err := NewValidator(t.TempDir())
	require.NoError(t, err)
	err = v.Validate("/etc/passwd", false)
	assert.Error(t, err)
}

func TestValidateAllowsNestedRelative(t *testing.T) {
	v, err := NewValidator(t.TempDir())
	require.NoError(t, err)
	err = v.Validate("src/main.go", false)
	assert.NoError(t, err)
}

func TestValidateSymlinkTargetEscape(t *testing.T) {
	v, err := NewValidator(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, v.ValidateSymlinkTarget("link", "/etc/passwd"))
	assert.NoError(t, v.ValidateSymlinkTarget("link", "sibling.txt"))
}
