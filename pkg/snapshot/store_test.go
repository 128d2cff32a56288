// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorkspaceFile(t *testing.T, ws, rel, content string) {
	t.Helper()
	full := filepath.Join(ws, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "a.txt", "hello")
	writeWorkspaceFile(t, ws, "sub/b.txt", "world")

	s, err := Open(ws)
	require.NoError(t, err)

	m, err := s.Create([]string{"a.txt", "sub/b.txt"}, CreateOptions{})
	require.NoError(t, err)
	assert.True(t, len(m.ID) > len("snap-") && m.ID[:5] == "snap-")
	assert.Len(t, m.Files, 2)
	assert.Equal(t, int64(len("hello")+len("world")), m.TotalSize)
	assert.NotEmpty(t, m.IntegrityHash)

	got, err := s.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
}

func TestCreateIsDeterministicForIdenticalContent(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "a.txt", "same")
	s, err := Open(ws)
	require.NoError(t, err)

	m1, err := s.Create([]string{"a.txt"}, CreateOptions{})
	require.NoError(t, err)
	m2, err := s.Create([]string{"a.txt"}, CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, m1.ID, m2.ID)
}

func TestCreateRecordsParentOfPriorSnapshot(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "a.txt", "v1")
	s, err := Open(ws)
	require.NoError(t, err)

	first, err := s.Create([]string{"a.txt"}, CreateOptions{})
	require.NoError(t, err)
	assert.Empty(t, first.Parent)

	writeWorkspaceFile(t, ws, "a.txt", "v2")
	second, err := s.Create([]string{"a.txt"}, CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.Parent)
}

func TestCreateHonoursExcludePatterns(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "keep.txt", "a")
	writeWorkspaceFile(t, ws, "secret.env", "b")
	s, err := Open(ws)
	require.NoError(t, err)

	m, err := s.Create([]string{"keep.txt", "secret.env"}, CreateOptions{ExcludePatterns: []string{"*.env"}})
	require.NoError(t, err)
	require.Len(t, m.Files, 1)
	assert.Equal(t, "keep.txt", m.Files[0].Path)
}

func TestCreateSkipsOversizedFilesAsExternal(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "big.bin", "0123456789")
	s, err := Open(ws)
	require.NoError(t, err)

	m, err := s.Create([]string{"big.bin"}, CreateOptions{MaxFileSize: 4})
	require.NoError(t, err)
	require.Len(t, m.Files, 1)
	assert.Equal(t, StorageExternal, m.Files[0].Storage)
}

func TestCreateDetectsBinaryAndExcludesByDefault(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "bin.dat", "a\x00b")
	s, err := Open(ws)
	require.NoError(t, err)

	m, err := s.Create([]string{"bin.dat"}, CreateOptions{})
	require.NoError(t, err)
	require.Len(t, m.Files, 1)
	assert.True(t, m.Files[0].IsBinary)
	assert.Equal(t, StorageExternal, m.Files[0].Storage)

	m2, err := s.Create([]string{"bin.dat"}, CreateOptions{IncludeBinaryFiles: true})
	require.NoError(t, err)
	assert.Equal(t, StorageInline, m2.Files[0].Storage)
}

func TestCreateCompressesWhenRequested(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "a.txt", "hello")
	s, err := Open(ws)
	require.NoError(t, err)

	m, err := s.Create([]string{"a.txt"}, CreateOptions{CompressContents: true})
	require.NoError(t, err)
	assert.Equal(t, StorageCompressed, m.Files[0].Storage)
}

func TestCreateMarksRepeatedContentDeduplicated(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "a.txt", "same")
	writeWorkspaceFile(t, ws, "b.txt", "same")
	s, err := Open(ws)
	require.NoError(t, err)

	m, err := s.Create([]string{"a.txt", "b.txt"}, CreateOptions{})
	require.NoError(t, err)
	require.Len(t, m.Files, 2)
	assert.Equal(t, StorageInline, m.Files[0].Storage)
	assert.Equal(t, StorageDeduplicated, m.Files[1].Storage)
}

func TestCompareDetectsModificationAndMissing(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "a.txt", "v1")
	writeWorkspaceFile(t, ws, "b.txt", "v1")
	s, err := Open(ws)
	require.NoError(t, err)
	m, err := s.Create([]string{"a.txt", "b.txt"}, CreateOptions{})
	require.NoError(t, err)

	writeWorkspaceFile(t, ws, "a.txt", "v2")
	require.NoError(t, os.Remove(filepath.Join(ws, "b.txt")))

	diffs, err := s.Compare(m, nil)
	require.NoError(t, err)
	require.Len(t, diffs, 2)
	kinds := map[string]DiffKind{}
	for _, d := range diffs {
		kinds[d.Path] = d.Kind
	}
	assert.Equal(t, DiffModified, kinds["a.txt"])
	assert.Equal(t, DiffMissing, kinds["b.txt"])
}

func TestCompareReportsHashPairOnModification(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "a.txt", "v1")
	s, err := Open(ws)
	require.NoError(t, err)
	m, err := s.Create([]string{"a.txt"}, CreateOptions{})
	require.NoError(t, err)

	writeWorkspaceFile(t, ws, "a.txt", "v2")
	diffs, err := s.Compare(m, nil)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, m.Files[0].Hash, diffs[0].SnapshotHash)
	assert.Equal(t, hashBytes([]byte("v2")), diffs[0].CurrentHash)
}

func TestCompareReportsAddedForExtraPaths(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "a.txt", "v1")
	s, err := Open(ws)
	require.NoError(t, err)
	m, err := s.Create([]string{"a.txt"}, CreateOptions{})
	require.NoError(t, err)

	writeWorkspaceFile(t, ws, "new.txt", "new")
	diffs, err := s.Compare(m, []string{"a.txt", "new.txt"})
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, DiffAdded, diffs[0].Kind)
	assert.Equal(t, "new.txt", diffs[0].Path)
}

func TestRestoreRewritesModifiedFile(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "a.txt", "original")
	s, err := Open(ws)
	require.NoError(t, err)
	m, err := s.Create([]string{"a.txt"}, CreateOptions{})
	require.NoError(t, err)

	writeWorkspaceFile(t, ws, "a.txt", "corrupted")
	written, err := s.Restore(m, nil, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, written)

	b, err := os.ReadFile(filepath.Join(ws, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(b))
}

func TestRestoreDryRunTouchesNothing(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "a.txt", "original")
	s, err := Open(ws)
	require.NoError(t, err)
	m, err := s.Create([]string{"a.txt"}, CreateOptions{})
	require.NoError(t, err)

	writeWorkspaceFile(t, ws, "a.txt", "corrupted")
	written, err := s.Restore(m, nil, RestoreOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, written)

	b, err := os.ReadFile(filepath.Join(ws, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "corrupted", string(b))
}

func TestRestoreWritesBackupWhenRequested(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "a.txt", "original")
	s, err := Open(ws)
	require.NoError(t, err)
	m, err := s.Create([]string{"a.txt"}, CreateOptions{})
	require.NoError(t, err)

	writeWorkspaceFile(t, ws, "a.txt", "corrupted")
	_, err = s.Restore(m, nil, RestoreOptions{Backup: true})
	require.NoError(t, err)

	backup, err := os.ReadFile(filepath.Join(ws, "a.txt.backup"))
	require.NoError(t, err)
	assert.Equal(t, "corrupted", string(backup))
}

func TestRestoreRejectsUnknownTarget(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "a.txt", "v1")
	s, err := Open(ws)
	require.NoError(t, err)
	m, err := s.Create([]string{"a.txt"}, CreateOptions{})
	require.NoError(t, err)

	_, err = s.Restore(m, []string{"missing.txt"}, RestoreOptions{})
	assert.Error(t, err)
}

func TestPruneRemovesOldManifestsAndOrphanBlobs(t *testing.T) {
	ws := t.TempDir()
	s, err := Open(ws)
	require.NoError(t, err)

	writeWorkspaceFile(t, ws, "a.txt", "v1")
	_, err = s.Create([]string{"a.txt"}, CreateOptions{})
	require.NoError(t, err)

	writeWorkspaceFile(t, ws, "a.txt", "v2")
	_, err = s.Create([]string{"a.txt"}, CreateOptions{})
	require.NoError(t, err)

	removed, err := s.Prune(1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	ids, err := s.List()
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestValidateAllDetectsNoErrorsOnFreshStore(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "a.txt", "hello")
	s, err := Open(ws)
	require.NoError(t, err)
	_, err = s.Create([]string{"a.txt"}, CreateOptions{})
	require.NoError(t, err)

	broken, err := s.ValidateAll()
	require.NoError(t, err)
	assert.Empty(t, broken)
}

type fakeGitRunner struct {
	head       string
	porcelain  string
	submodules string
	inProgress bool
}

func (f *fakeGitRunner) Run(ctx context.Context, args ...string) (string, error) {
	if len(args) > 0 && args[0] == "submodule" {
		return f.submodules, nil
	}
	return f.porcelain, nil
}

func (f *fakeGitRunner) HeadState(ctx context.Context) (string, error) { return f.head, nil }

func (f *fakeGitRunner) MergeOrRebaseInProgress() (bool, error) { return f.inProgress, nil }

func (f *fakeGitRunner) IsClean(ctx context.Context) (bool, error) { return f.porcelain == "", nil }

func TestSnapshotGetIsStableForUnchangedState(t *testing.T) {
	ws := t.TempDir()
	s, err := Open(ws)
	require.NoError(t, err)
	repo := &fakeGitRunner{head: "deadbeef"}

	id1, err := s.SnapshotGet(context.Background(), repo)
	require.NoError(t, err)
	id2, err := s.SnapshotGet(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Contains(t, id1, "snap-")
}

func TestSnapshotGetChangesWithPorcelainStatus(t *testing.T) {
	ws := t.TempDir()
	s, err := Open(ws)
	require.NoError(t, err)
	repo := &fakeGitRunner{head: "deadbeef"}

	clean, err := s.SnapshotGet(context.Background(), repo)
	require.NoError(t, err)

	repo.porcelain = " M a.txt\n"
	dirty, err := s.SnapshotGet(context.Background(), repo)
	require.NoError(t, err)
	assert.NotEqual(t, clean, dirty)
}

func TestSnapshotGetFailsDuringMergeOrRebase(t *testing.T) {
	ws := t.TempDir()
	s, err := Open(ws)
	require.NoError(t, err)
	repo := &fakeGitRunner{head: "deadbeef", inProgress: true}

	_, err = s.SnapshotGet(context.Background(), repo)
	assert.Error(t, err)
}

func TestCreateRecordsGitInfoWhenRepoSupplied(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "a.txt", "v1")
	s, err := Open(ws)
	require.NoError(t, err)

	m, err := s.Create([]string{"a.txt"}, CreateOptions{Repo: &fakeGitRunner{head: "cafebabe"}})
	require.NoError(t, err)
	require.NotNil(t, m.GitInfo)
	assert.Equal(t, "cafebabe", m.GitInfo.HeadState)
	assert.False(t, m.GitInfo.Dirty)
}
