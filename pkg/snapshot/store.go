// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package snapshot

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"

	"github.com/n-engine/devit/internal/errors"
)

const (
	lightCacheSize    = 128
	gitStateCacheSize = 128
	binaryProbeBytes  = 8192
)

// Store is the on-disk snapshot store rooted at <workspace>/.devit/snapshots.
// Blobs are deduplicated by content hash across every manifest; each
// manifest records only which blobs it references.
type Store struct {
	root      string
	workspace string

	mu       sync.Mutex
	light    *lru.Cache[string, *Manifest]
	gitState *lru.Cache[string, string]
}

// Open roots a Store at workspace/.devit/snapshots, creating it on first use.
func Open(workspace string) (*Store, error) {
	root := filepath.Join(workspace, ".devit", "snapshots")
	if err := os.MkdirAll(filepath.Join(root, "blobs"), 0o700); err != nil {
		return nil, errors.NewIO("cannot create snapshot store directory", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "manifests"), 0o700); err != nil {
		return nil, errors.NewIO("cannot create snapshot manifest directory", err)
	}
	manifests, err := lru.New[string, *Manifest](lightCacheSize)
	if err != nil {
		return nil, errors.NewInternal("cannot create snapshot LRU cache", err)
	}
	gitCache, err := lru.New[string, string](gitStateCacheSize)
	if err != nil {
		return nil, errors.NewInternal("cannot create git-state LRU cache", err)
	}
	return &Store{root: root, workspace: workspace, light: manifests, gitState: gitCache}, nil
}

func (s *Store) blobPath(hash string) string {
	return filepath.Join(s.root, "blobs", hash[:2], hash)
}

func (s *Store) manifestPath(id string) string {
	return filepath.Join(s.root, "manifests", id+".json")
}

// hashBytes returns the hex BLAKE3 digest of content.
func hashBytes(content []byte) string {
	h := blake3.Sum256(content)
	return hex.EncodeToString(h[:])
}

// snapshotID turns a full hex digest into the spec's "snap-<hex16>" form.
func snapshotID(fullHexDigest string) string {
	if len(fullHexDigest) > 16 {
		fullHexDigest = fullHexDigest[:16]
	}
	return "snap-" + fullHexDigest
}

// looksBinary applies the zero-byte-in-first-8KiB heuristic.
func looksBinary(content []byte) bool {
	probe := content
	if len(probe) > binaryProbeBytes {
		probe = probe[:binaryProbeBytes]
	}
	return bytes.IndexByte(probe, 0) >= 0
}

// excluded reports whether rel matches any of patterns (filepath.Match
// semantics, evaluated against the whole relative path).
func excluded(rel string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, err := filepath.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// writeBlobAtomic stores raw (possibly already-compressed) bytes under hash
// if not already present, using a tmp-file-plus-rename for durability.
func (s *Store) writeBlobAtomic(hash string, raw []byte) error {
	dest := s.blobPath(hash)
	if _, err := os.Stat(dest); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return errors.NewIO("cannot create blob shard directory", err)
	}

	tmp := dest + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.NewIO("cannot open blob tmp file", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return errors.NewIO("cannot write blob tmp file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.NewIO("cannot fsync blob tmp file", err)
	}
	if err := f.Close(); err != nil {
		return errors.NewIO("cannot close blob tmp file", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return errors.NewIO("cannot install blob file", err)
	}
	return nil
}

func compressBytes(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(content); err != nil {
		return nil, errors.NewIO("cannot compress blob", err)
	}
	if err := zw.Close(); err != nil {
		return nil, errors.NewIO("cannot finalize blob compression", err)
	}
	return buf.Bytes(), nil
}

func (s *Store) readBlob(hash string, storage StorageKind) ([]byte, error) {
	raw, err := os.ReadFile(s.blobPath(hash))
	if err != nil {
		return nil, errors.NewIO("cannot read blob", err)
	}
	if storage != StorageCompressed {
		return raw, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.NewInternal("blob zlib stream corrupt", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.NewInternal("cannot decompress blob", err)
	}
	return out, nil
}

// integrityHash is the BLAKE3 hex digest over the sorted, JSON-encoded file
// record list, making two snapshots of identical content share an ID.
func integrityHash(files []FileRecord) string {
	sorted := append([]FileRecord(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	b, _ := json.Marshal(sorted)
	return hashBytes(b)
}

// Create walks relPaths under the workspace honouring opts, hashing and
// storing each file's content as a deduplicated blob, and persists the
// resulting manifest.
func (s *Store) Create(relPaths []string, opts CreateOptions) (*Manifest, error) {
	files := make([]FileRecord, 0, len(relPaths))
	seenHashes := map[string]bool{}
	var totalSize int64

	for _, rel := range relPaths {
		if excluded(rel, opts.ExcludePatterns) {
			continue
		}
		full := filepath.Join(s.workspace, rel)
		info, err := os.Lstat(full)
		if err != nil {
			return nil, errors.NewIO("cannot stat file for snapshot: "+rel, err)
		}

		rec := FileRecord{Path: rel, Mode: uint32(info.Mode().Perm()), Mtime: info.ModTime()}

		if info.Mode()&os.ModeSymlink != 0 && !opts.FollowSymlinks {
			target, err := os.Readlink(full)
			if err != nil {
				return nil, errors.NewIO("cannot read symlink for snapshot: "+rel, err)
			}
			rec.IsSymlink = true
			rec.LinkTarget = target
			rec.Hash = hashBytes([]byte(target))
			storage, err := s.writeRecordBlob(rec.Hash, []byte(target), false, seenHashes, opts)
			if err != nil {
				return nil, err
			}
			rec.Storage = storage
			files = append(files, rec)
			continue
		}

		content, err := os.ReadFile(full)
		if err != nil {
			return nil, errors.NewIO("cannot read file for snapshot: "+rel, err)
		}
		rec.Hash = hashBytes(content)
		rec.Size = int64(len(content))

		if opts.MaxFileSize > 0 && rec.Size > opts.MaxFileSize {
			rec.Storage = StorageExternal
			files = append(files, rec)
			totalSize += rec.Size
			continue
		}

		rec.IsBinary = looksBinary(content)
		storage, err := s.writeRecordBlob(rec.Hash, content, rec.IsBinary, seenHashes, opts)
		if err != nil {
			return nil, err
		}
		rec.Storage = storage
		files = append(files, rec)
		totalSize += rec.Size
	}

	digest := integrityHash(files)
	m := &Manifest{
		ID:            snapshotID(digest),
		Description:   opts.Description,
		CreatedAt:     time.Now().UTC(),
		Workspace:     s.workspace,
		Files:         files,
		IntegrityHash: digest,
		TotalSize:     totalSize,
	}

	if opts.Repo != nil {
		m.GitInfo = s.gitInfo(opts.Repo)
	}
	if parents, err := s.List(); err == nil && len(parents) > 0 {
		m.Parent = parents[0]
	}

	if err := s.persistManifest(m); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.light.Add(m.ID, m)
	s.mu.Unlock()
	return m, nil
}

func (s *Store) gitInfo(repo gitStater) *GitInfo {
	ctx := context.Background()
	head, err := repo.HeadState(ctx)
	if err != nil {
		return nil
	}
	dirty := false
	if clean, err := repo.IsClean(ctx); err == nil {
		dirty = !clean
	}
	return &GitInfo{HeadState: head, Dirty: dirty}
}

// writeRecordBlob chooses Inline/Compressed/External/Deduplicated per opts
// and isBinary, writing the blob unless the variant says not to.
func (s *Store) writeRecordBlob(hash string, content []byte, isBinary bool, seen map[string]bool, opts CreateOptions) (StorageKind, error) {
	if seen[hash] {
		return StorageDeduplicated, nil
	}
	seen[hash] = true

	if isBinary && !opts.IncludeBinaryFiles {
		return StorageExternal, nil
	}

	raw := content
	storage := StorageInline
	if opts.CompressContents && !isBinary {
		compressed, err := compressBytes(content)
		if err != nil {
			return "", err
		}
		raw = compressed
		storage = StorageCompressed
	}
	if err := s.writeBlobAtomic(hash, raw); err != nil {
		return "", err
	}
	return storage, nil
}

func (s *Store) persistManifest(m *Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.NewInternal("cannot marshal snapshot manifest", err)
	}
	dest := s.manifestPath(m.ID)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return errors.NewIO("cannot write manifest tmp file", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return errors.NewIO("cannot install manifest file", err)
	}
	if dir, err := os.Open(filepath.Dir(dest)); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}

// Get loads a manifest by ID, consulting the light LRU before touching disk.
func (s *Store) Get(id string) (*Manifest, error) {
	s.mu.Lock()
	if m, ok := s.light.Get(id); ok {
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()

	b, err := os.ReadFile(s.manifestPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewSnapshotRequired("no snapshot with id " + id)
		}
		return nil, errors.NewIO("cannot read snapshot manifest", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.NewInternal("snapshot manifest corrupt", err)
	}
	s.mu.Lock()
	s.light.Add(m.ID, &m)
	s.mu.Unlock()
	return &m, nil
}

// vcsRunner is the subset of vcs.Runner that SnapshotGet needs.
type vcsRunner interface {
	Run(ctx context.Context, args ...string) (string, error)
	HeadState(ctx context.Context) (string, error)
	MergeOrRebaseInProgress() (bool, error)
}

// SnapshotGet computes a light SnapshotId for repo's current git state
// without walking the file tree: callers use it to cheaply detect whether
// the workspace has drifted since a prior full snapshot. It persists
// nothing. A merge or rebase in progress is a hard VcsConflict, per the
// invariant that no SnapshotId may be produced in that state.
func (s *Store) SnapshotGet(ctx context.Context, repo vcsRunner) (string, error) {
	inProgress, err := repo.MergeOrRebaseInProgress()
	if err != nil {
		return "", err
	}
	if inProgress {
		return "", errors.NewVCSConflict("merge or rebase in progress; refusing to compute snapshot_get")
	}

	head, err := repo.HeadState(ctx)
	if err != nil {
		return "", err
	}
	porcelain, err := repo.Run(ctx, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	submodules, _ := repo.Run(ctx, "submodule", "status")

	cacheKey := head + "\x00" + porcelain
	s.mu.Lock()
	if id, ok := s.gitState.Get(cacheKey); ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	h := blake3.New()
	h.Write([]byte(head))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimRight(porcelain, "\n")))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimRight(submodules, "\n")))
	id := snapshotID(hex.EncodeToString(h.Sum(nil)))

	s.mu.Lock()
	s.gitState.Add(cacheKey, id)
	s.mu.Unlock()
	return id, nil
}

// List returns every manifest ID present in the store, newest first.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "manifests"))
	if err != nil {
		return nil, errors.NewIO("cannot list snapshot manifests", err)
	}
	type stamped struct {
		id string
		t  time.Time
	}
	var ids []stamped
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		ids = append(ids, stamped{id: strings.TrimSuffix(e.Name(), ".json"), t: info.ModTime()})
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].t.After(ids[j].t) })
	out := make([]string, len(ids))
	for i, s := range ids {
		out[i] = s.id
	}
	return out, nil
}

// Delete removes a manifest. Referenced blobs are left in place; they are
// reclaimed only by retention pruning (Prune), which is aware of every
// remaining manifest's references.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	s.light.Remove(id)
	s.mu.Unlock()
	if err := os.Remove(s.manifestPath(id)); err != nil {
		if os.IsNotExist(err) {
			return errors.NewSnapshotRequired("no snapshot with id " + id)
		}
		return errors.NewIO("cannot delete snapshot manifest", err)
	}
	return nil
}

// Prune deletes manifests beyond keep most-recent, then removes any blob no
// longer referenced by a remaining manifest.
func (s *Store) Prune(keep int) (int, error) {
	ids, err := s.List()
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(ids) <= keep {
		return 0, nil
	}
	toRemove := ids[keep:]
	for _, id := range toRemove {
		if err := s.Delete(id); err != nil {
			return 0, err
		}
	}

	remaining := ids[:keep]
	live := map[string]bool{}
	for _, id := range remaining {
		m, err := s.Get(id)
		if err != nil {
			continue
		}
		for _, f := range m.Files {
			live[f.Hash] = true
		}
	}
	shards, err := os.ReadDir(filepath.Join(s.root, "blobs"))
	if err != nil {
		return len(toRemove), nil
	}
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		blobs, err := os.ReadDir(filepath.Join(s.root, "blobs", shard.Name()))
		if err != nil {
			continue
		}
		for _, b := range blobs {
			if !live[b.Name()] {
				os.Remove(filepath.Join(s.root, "blobs", shard.Name(), b.Name()))
			}
		}
	}
	return len(toRemove), nil
}

// ValidateAll checks every blob referenced by every manifest still exists
// and rehashes to its recorded digest, and that every Deduplicated record
// resolves to a peer sharing its hash in the same manifest.
func (s *Store) ValidateAll() ([]string, error) {
	ids, err := s.List()
	if err != nil {
		return nil, err
	}
	var broken []string
	for _, id := range ids {
		m, err := s.Get(id)
		if err != nil {
			broken = append(broken, id+": "+err.Error())
			continue
		}
		for _, f := range m.Files {
			if !isHex(f.Hash) {
				broken = append(broken, id+"/"+f.Path+": malformed hash")
				continue
			}
			switch f.Storage {
			case StorageExternal:
				continue
			case StorageDeduplicated:
				if !hasPeerHash(m.Files, f.Hash, f.Path) {
					broken = append(broken, id+"/"+f.Path+": deduplicated record has no peer")
				}
				continue
			}
			content, err := s.readBlob(f.Hash, f.Storage)
			if err != nil {
				broken = append(broken, id+"/"+f.Path+": blob unreadable")
				continue
			}
			if !f.IsSymlink && hashBytes(content) != f.Hash {
				broken = append(broken, id+"/"+f.Path+": hash mismatch")
			}
		}
	}
	return broken, nil
}

func hasPeerHash(files []FileRecord, hash, exceptPath string) bool {
	for _, f := range files {
		if f.Hash == hash && f.Path != exceptPath && f.Storage != StorageDeduplicated {
			return true
		}
	}
	return false
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}
