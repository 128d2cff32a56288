// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package snapshot implements the content-addressed snapshot store: BLAKE3
// hashed file blobs persisted atomically under .devit/snapshots, with a
// lightweight LRU for repeated light snapshot_get calls and difference
// computation against the live workspace.
package snapshot

import (
	"context"
	"time"
)

// StorageKind records how a FileRecord's content is held.
type StorageKind string

const (
	// StorageInline means the content lives in the blob store under its
	// own hash, uncompressed.
	StorageInline StorageKind = "inline"
	// StorageCompressed is the same as Inline but zlib-compressed on disk.
	StorageCompressed StorageKind = "compressed"
	// StorageExternal means no blob was written for this record (e.g. a
	// binary file excluded by CreateOptions.IncludeBinaryFiles); only its
	// metadata is known.
	StorageExternal StorageKind = "external"
	// StorageDeduplicated means the content is identical to an earlier
	// record in the same snapshot and was not written again.
	StorageDeduplicated StorageKind = "deduplicated"
)

// FileRecord is one file's state inside a snapshot.
type FileRecord struct {
	Path       string      `json:"path"`
	Hash       string      `json:"hash"` // hex BLAKE3 of the uncompressed content
	Mode       uint32      `json:"mode"`
	Size       int64       `json:"size"`
	Mtime      time.Time   `json:"mtime"`
	IsBinary   bool        `json:"is_binary"`
	IsSymlink  bool        `json:"is_symlink"`
	LinkTarget string      `json:"link_target,omitempty"`
	Storage    StorageKind `json:"storage"`
}

// GitInfo pins a snapshot to the repository state it was taken against, when
// the caller supplies a vcs.Runner via CreateOptions.Repo.
type GitInfo struct {
	HeadState string `json:"head_state"` // commit SHA, or "nohead" for an unborn HEAD
	Dirty     bool   `json:"dirty"`
}

// Manifest is the metadata persisted alongside a snapshot's blob store.
type Manifest struct {
	ID            string       `json:"id"` // "snap-" + 16 hex chars of IntegrityHash
	Description   string       `json:"description,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	Workspace     string       `json:"workspace"`
	Files         []FileRecord `json:"files"`
	GitInfo       *GitInfo     `json:"git_info,omitempty"`
	IntegrityHash string       `json:"integrity_hash"`
	TotalSize     int64        `json:"total_size"`
	Parent        string       `json:"parent,omitempty"`
}

// CreateOptions controls how Store.Create walks and stores the given paths.
type CreateOptions struct {
	Description string
	// ExcludePatterns are filepath.Match globs evaluated against each
	// relative path; a match drops the file from the snapshot entirely.
	ExcludePatterns []string
	// MaxFileSize, if positive, skips files larger than this many bytes
	// (recorded as StorageExternal instead of failing the whole snapshot).
	MaxFileSize int64
	// FollowSymlinks stores the link target's content instead of the link
	// itself.
	FollowSymlinks bool
	// IncludeBinaryFiles controls whether a file with a zero byte in its
	// first 8 KiB gets its content stored at all.
	IncludeBinaryFiles bool
	// CompressContents zlib-compresses non-binary blobs instead of storing
	// them inline.
	CompressContents bool
	// Repo, if set, is consulted for GitInfo.
	Repo gitStater
}

// gitStater is the subset of vcs.Runner Create needs; kept narrow so the
// snapshot package does not otherwise depend on vcs's full surface.
type gitStater interface {
	HeadState(ctx context.Context) (string, error)
	IsClean(ctx context.Context) (bool, error)
}

// RestoreOptions controls how Store.Restore writes files back to disk.
type RestoreOptions struct {
	// DryRun lists the paths that would be written without touching the
	// filesystem.
	DryRun bool
	// Backup copies the current on-disk file to "<path>.backup" before
	// overwriting it, when that file exists.
	Backup bool
	// RestorePermissions chmods the restored file to the recorded mode;
	// otherwise the file is written with a safe default.
	RestorePermissions bool
}

// DiffKind enumerates how a path differs between a snapshot baseline and a
// comparison target (typically the live workspace).
type DiffKind string

const (
	DiffMissing            DiffKind = "missing"
	DiffAdded              DiffKind = "added"
	DiffModified           DiffKind = "modified"
	DiffPermissionsChanged DiffKind = "permissions_changed"
	DiffTimestampChanged   DiffKind = "timestamp_changed"
)

// FileDifference describes one path's delta between a snapshot baseline and
// a comparison target. SnapshotHash/CurrentHash are populated for
// DiffModified only.
type FileDifference struct {
	Path         string   `json:"path"`
	Kind         DiffKind `json:"kind"`
	SnapshotHash string   `json:"snapshot_hash,omitempty"`
	CurrentHash  string   `json:"current_hash,omitempty"`
}
