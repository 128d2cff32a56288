// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package patcher

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n-engine/devit/pkg/pathsec"
	"github.com/n-engine/devit/pkg/vcs"
)

func newRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run())
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("line1\nline2\n"), 0o644))
	run("add", "-A")
	run("commit", "-q", "-m", "initial")
	return dir
}

const sampleDiff = `diff --git a/a.txt b/a.txt
index 1234567..89abcde 100644
--- a/a.txt
+++ b/a.txt
@@ -1,2 +1,3 @@
 line1
 line2
+line3
`

func newPatcher(t *testing.T, dir string) *Patcher {
	t.Helper()
	v, err := pathsec.NewValidator(dir)
	require.NoError(t, err)
	runner, err := vcs.NewExecutor(dir)
	require.NoError(t, err)
	return New(dir, v, runner, false)
}

func TestDryRunDoesNotModifyWorkingTree(t *testing.T) {
	dir := newRepo(t)
	p := newPatcher(t, dir)

	res, err := p.DryRun(context.Background(), sampleDiff)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.False(t, res.Applied)

	b, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\n", string(b))
}

func TestApplyWritesChanges(t *testing.T) {
	dir := newRepo(t)
	p := newPatcher(t, dir)

	res, err := p.Apply(context.Background(), sampleDiff)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	require.Len(t, res.Changes, 1)

	b, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\nline3\n", string(b))
}

func TestApplyRejectsPathEscapingWorkspace(t *testing.T) {
	dir := newRepo(t)
	p := newPatcher(t, dir)

	escaping := `diff --git a/../outside.txt b/../outside.txt
new file mode 100644
index 0000000..e69de29
--- /dev/null
+++ b/../outside.txt
@@ -0,0 +1 @@
+oops
`
	_, err := p.Apply(context.Background(), escaping)
	assert.Error(t, err)
}
