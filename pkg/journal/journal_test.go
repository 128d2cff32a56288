// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	dir := t.TempDir()
	j, err := Open(Config{
		Path:            filepath.Join(dir, "journal.jsonl"),
		KeyPath:         filepath.Join(dir, "hmac.key"),
		MaxFileSizeMB:   0,
		MaxRotatedFiles: 3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendChainsAndVerifies(t *testing.T) {
	j := newTestJournal(t)

	r1, err := j.Append("patch_apply", "req-1", map[string]any{"files": 2}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, r1.HMAC)

	r2, err := j.Append("patch_apply", "req-2", nil, "idem-1")
	require.NoError(t, err)
	assert.NotEqual(t, r1.HMAC, r2.HMAC)

	ok, badSeq, err := j.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, badSeq)
}

func TestAppendGeneratesRequestIDWhenEmpty(t *testing.T) {
	j := newTestJournal(t)
	r, err := j.Append("snapshot_create", "", nil, "")
	require.NoError(t, err)
	assert.NotEmpty(t, r.RequestID)
}

func TestVerifyDetectsTamperedFile(t *testing.T) {
	j := newTestJournal(t)
	_, err := j.Append("patch_apply", "req-1", nil, "")
	require.NoError(t, err)
	require.NoError(t, j.Close())

	data, err := os.ReadFile(j.cfg.Path)
	require.NoError(t, err)
	tampered := []byte(strings.Replace(string(data), `"op":"patch_apply"`, `"op":"patch_tampered"`, 1))
	require.NoError(t, os.WriteFile(j.cfg.Path, tampered, 0o600))

	ok, badSeq, err := j.Verify()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), badSeq)

	j2, err := Open(Config{Path: j.cfg.Path, KeyPath: j.cfg.KeyPath})
	require.Error(t, err)
	_ = j2
}

func TestRecoverRestoresChainAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Path: filepath.Join(dir, "journal.jsonl"), KeyPath: filepath.Join(dir, "hmac.key")}

	j1, err := Open(cfg)
	require.NoError(t, err)
	r1, err := j1.Append("patch_apply", "req-1", nil, "")
	require.NoError(t, err)
	require.NoError(t, j1.Close())

	j2, err := Open(cfg)
	require.NoError(t, err)
	r2, err := j2.Append("patch_apply", "req-2", nil, "")
	require.NoError(t, err)
	require.NotEqual(t, r1.HMAC, r2.HMAC)

	ok, _, err := j2.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
}
