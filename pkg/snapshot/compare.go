// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package snapshot

import (
	"os"
	"path/filepath"

	"github.com/n-engine/devit/internal/errors"
)

// Compare reports how the live workspace differs from manifest m. When
// paths is non-empty, any of those paths missing from m but present on disk
// surface as DiffAdded; pass nil to compare only the manifest's own files.
// Compare never mutates the workspace; Restore does that.
func (s *Store) Compare(m *Manifest, paths []string) ([]FileDifference, error) {
	known := make(map[string]bool, len(m.Files))
	var diffs []FileDifference

	for _, rec := range m.Files {
		known[rec.Path] = true
		d, err := s.compareOne(rec)
		if err != nil {
			return nil, err
		}
		if d != nil {
			diffs = append(diffs, *d)
		}
	}

	for _, p := range paths {
		if known[p] {
			continue
		}
		if _, err := os.Lstat(filepath.Join(s.workspace, p)); err == nil {
			diffs = append(diffs, FileDifference{Path: p, Kind: DiffAdded})
		}
	}
	return diffs, nil
}

func (s *Store) compareOne(rec FileRecord) (*FileDifference, error) {
	full := filepath.Join(s.workspace, rec.Path)
	info, err := os.Lstat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileDifference{Path: rec.Path, Kind: DiffMissing}, nil
		}
		return nil, errors.NewIO("cannot stat workspace file during compare: "+rec.Path, err)
	}

	if rec.IsSymlink {
		if info.Mode()&os.ModeSymlink == 0 {
			return &FileDifference{Path: rec.Path, Kind: DiffModified, SnapshotHash: rec.Hash}, nil
		}
		target, err := os.Readlink(full)
		if err != nil {
			return nil, errors.NewIO("cannot read symlink during compare: "+rec.Path, err)
		}
		if target == rec.LinkTarget {
			return nil, nil
		}
		return &FileDifference{Path: rec.Path, Kind: DiffModified, SnapshotHash: rec.Hash, CurrentHash: hashBytes([]byte(target))}, nil
	}

	if uint32(info.Mode().Perm()) != rec.Mode {
		return &FileDifference{Path: rec.Path, Kind: DiffPermissionsChanged}, nil
	}
	if !rec.Mtime.IsZero() && !info.ModTime().Equal(rec.Mtime) && info.Size() == rec.Size {
		// Same size, different mtime: confirm with content before reporting
		// a real modification, since touch-without-edit is common.
		content, err := os.ReadFile(full)
		if err != nil {
			return nil, errors.NewIO("cannot read workspace file during compare: "+rec.Path, err)
		}
		current := hashBytes(content)
		if current == rec.Hash {
			return &FileDifference{Path: rec.Path, Kind: DiffTimestampChanged}, nil
		}
		return &FileDifference{Path: rec.Path, Kind: DiffModified, SnapshotHash: rec.Hash, CurrentHash: current}, nil
	}
	if info.Size() != rec.Size {
		return &FileDifference{Path: rec.Path, Kind: DiffModified, SnapshotHash: rec.Hash}, nil
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return nil, errors.NewIO("cannot read workspace file during compare: "+rec.Path, err)
	}
	current := hashBytes(content)
	if current != rec.Hash {
		return &FileDifference{Path: rec.Path, Kind: DiffModified, SnapshotHash: rec.Hash, CurrentHash: current}, nil
	}
	return nil, nil
}

// Restore writes files from m back into the workspace. targets, when
// non-empty, restricts the operation to those paths (and is an error if one
// names a path absent from m). It returns every path that was (or, under
// opts.DryRun, would be) written.
func (s *Store) Restore(m *Manifest, targets []string, opts RestoreOptions) ([]string, error) {
	records, err := s.selectRecords(m, targets)
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(records))
	for _, rec := range records {
		full := filepath.Join(s.workspace, rec.Path)
		written = append(written, rec.Path)
		if opts.DryRun {
			continue
		}
		if err := s.restoreOne(m, rec, full, opts); err != nil {
			return nil, err
		}
	}
	return written, nil
}

func (s *Store) selectRecords(m *Manifest, targets []string) ([]FileRecord, error) {
	if len(targets) == 0 {
		return m.Files, nil
	}
	byPath := make(map[string]FileRecord, len(m.Files))
	for _, rec := range m.Files {
		byPath[rec.Path] = rec
	}
	out := make([]FileRecord, 0, len(targets))
	for _, t := range targets {
		rec, ok := byPath[t]
		if !ok {
			return nil, errors.NewSnapshotRequired("restore target not present in snapshot: " + t)
		}
		out = append(out, rec)
	}
	return out, nil
}

// restoreOne writes a single record atomically (tmp file + rename) so a
// crash mid-write never leaves a half-restored file in place.
func (s *Store) restoreOne(m *Manifest, rec FileRecord, full string, opts RestoreOptions) error {
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.NewIO("cannot create directory for restore: "+rec.Path, err)
	}

	if opts.Backup {
		if _, statErr := os.Lstat(full); statErr == nil {
			if err := copyFile(full, full+".backup"); err != nil {
				return err
			}
		}
	}

	if rec.IsSymlink {
		os.Remove(full)
		if err := os.Symlink(rec.LinkTarget, full); err != nil {
			return errors.NewIO("cannot restore symlink: "+rec.Path, err)
		}
		return nil
	}

	storage := rec.Storage
	hash := rec.Hash
	if storage == StorageDeduplicated {
		peer, ok := findDedupPeer(m.Files, hash, rec.Path)
		if !ok {
			return errors.NewSnapshotStale("deduplicated record " + rec.Path + " has no resolvable peer")
		}
		storage = peer.Storage
	}
	if storage == StorageExternal {
		return errors.NewSnapshotStale("record " + rec.Path + " has no stored content (external)")
	}

	content, err := s.readBlob(hash, storage)
	if err != nil {
		return err
	}

	mode := os.FileMode(0o644)
	if opts.RestorePermissions {
		mode = os.FileMode(rec.Mode)
	}

	tmp := full + ".devit-restore.tmp"
	if err := os.WriteFile(tmp, content, mode); err != nil {
		return errors.NewIO("cannot write restore tmp file: "+rec.Path, err)
	}
	if opts.RestorePermissions {
		if err := os.Chmod(tmp, mode); err != nil {
			return errors.NewIO("cannot chmod restore tmp file: "+rec.Path, err)
		}
	}
	if err := os.Rename(tmp, full); err != nil {
		return errors.NewIO("cannot install restored file: "+rec.Path, err)
	}
	return nil
}

// findDedupPeer resolves a Deduplicated record to the file in the same
// manifest that actually carries hash's content.
func findDedupPeer(files []FileRecord, hash, exceptPath string) (FileRecord, bool) {
	for _, f := range files {
		if f.Hash == hash && f.Path != exceptPath && f.Storage != StorageDeduplicated {
			return f, true
		}
	}
	return FileRecord{}, false
}

func copyFile(src, dst string) error {
	content, err := os.ReadFile(src)
	if err != nil {
		return errors.NewIO("cannot read file for backup: "+src, err)
	}
	if err := os.WriteFile(dst, content, 0o644); err != nil {
		return errors.NewIO("cannot write backup file: "+dst, err)
	}
	return nil
}
