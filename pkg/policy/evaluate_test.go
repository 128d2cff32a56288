// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n-engine/devit/pkg/diffclass"
)

func simpleChange(path string, added, deleted int) diffclass.FileChange {
	return diffclass.FileChange{Path: path, Kind: diffclass.Modify, LinesAdded: added, LinesDeleted: deleted}
}

func TestEnvAlwaysDenied(t *testing.T) {
	e := NewEngine()
	for _, lvl := range []Level{Untrusted, Ask, Moderate, Trusted} {
		ctx := Context{
			Changes:        []diffclass.FileChange{simpleChange(".env", 1, 0)},
			RequestedLevel: New(lvl),
			DefaultLevel:   New(Privileged),
		}
		d := e.Evaluate(ctx)
		assert.False(t, d.Allow, "level %s should deny .env", lvl)
	}
}

func TestGitmodulesDeniedExceptPrivileged(t *testing.T) {
	e := NewEngine()
	ctx := Context{
		Changes:        []diffclass.FileChange{{Path: ".gitmodules", Kind: diffclass.Modify, TouchesGitmodules: true}},
		RequestedLevel: New(Trusted),
		DefaultLevel:   New(Trusted),
	}
	d := e.Evaluate(ctx)
	require.False(t, d.Allow)

	ctxPriv := Context{
		Changes:        []diffclass.FileChange{{Path: ".gitmodules", Kind: diffclass.Modify, TouchesGitmodules: true}},
		RequestedLevel: NewPrivileged([]string{"."}),
		DefaultLevel:   NewPrivileged([]string{"."}),
	}
	dPriv := e.Evaluate(ctxPriv)
	assert.True(t, dPriv.Allow)
}

func TestDangerousSymlinkDenied(t *testing.T) {
	e := NewEngine()
	ctx := Context{
		Changes: []diffclass.FileChange{{
			Path: "link", Kind: diffclass.Create, IsSymlink: true, SymlinkTarget: "/etc/passwd",
		}},
		RequestedLevel: New(Trusted),
		DefaultLevel:   New(Trusted),
	}
	d := e.Evaluate(ctx)
	assert.False(t, d.Allow)
}

func TestAskSimpleVsComplex(t *testing.T) {
	e := NewEngine()
	simple := Context{
		Changes:        []diffclass.FileChange{simpleChange("a.go", 5, 2)},
		RequestedLevel: New(Ask),
		DefaultLevel:   New(Ask),
	}
	d := e.Evaluate(simple)
	assert.True(t, d.Allow)
	assert.False(t, d.RequiresConfirmation)

	complex := Context{
		Changes:        []diffclass.FileChange{simpleChange("a.go", 15, 10), simpleChange("b.go", 1, 1), simpleChange("c.go", 1, 1)},
		RequestedLevel: New(Ask),
		DefaultLevel:   New(Ask),
	}
	d2 := e.Evaluate(complex)
	assert.True(t, d2.Allow)
	assert.True(t, d2.RequiresConfirmation)
}

func TestModerateDowngradesOnExecBit(t *testing.T) {
	e := NewEngine()
	ctx := Context{
		Changes:        []diffclass.FileChange{{Path: "run.sh", Kind: diffclass.Create, AddsExecBit: true}},
		RequestedLevel: New(Moderate),
		DefaultLevel:   New(Moderate),
	}
	d := e.Evaluate(ctx)
	require.True(t, d.Allow)
	require.True(t, d.RequiresConfirmation)
	require.NotNil(t, d.DowngradedTo)
	assert.Equal(t, Ask, *d.DowngradedTo)
}

func TestTrustedBinaryWhitelist(t *testing.T) {
	e := NewEngine()
	size := int64(100)
	cfg := Config{SmallBinaryWhitelist: []string{".png"}, SmallBinaryMaxSizeBytes: 1000}
	ctx := Context{
		Changes:        []diffclass.FileChange{{Path: "a.png", Kind: diffclass.Create, IsBinary: true, FileSize: &size}},
		RequestedLevel: New(Trusted),
		DefaultLevel:   New(Trusted),
		Config:         cfg,
	}
	d := e.Evaluate(ctx)
	assert.True(t, d.Allow)
	assert.False(t, d.RequiresConfirmation)

	ctx.Changes[0].Path = "a.exe"
	d2 := e.Evaluate(ctx)
	assert.True(t, d2.Allow)
	assert.True(t, d2.RequiresConfirmation)
}

func TestPrivilegedPathScope(t *testing.T) {
	e := NewEngine()
	ctx := Context{
		Changes:        []diffclass.FileChange{simpleChange("allowed/a.go", 1, 0)},
		RequestedLevel: NewPrivileged([]string{"allowed"}),
		DefaultLevel:   NewPrivileged([]string{"allowed"}),
	}
	d := e.Evaluate(ctx)
	assert.True(t, d.Allow)

	ctx.Changes[0].Path = "other/a.go"
	d2 := e.Evaluate(ctx)
	assert.False(t, d2.Allow)
}

func TestMinCapsRequestedLevel(t *testing.T) {
	got := Min(NewPrivileged([]string{"x"}), New(Moderate))
	assert.Equal(t, Moderate, got.Rank)

	got2 := Min(NewPrivileged([]string{"x"}), NewPrivileged([]string{"y"}))
	assert.Equal(t, Privileged, got2.Rank)
	assert.Equal(t, []string{"x"}, got2.AllowedPaths)
}
