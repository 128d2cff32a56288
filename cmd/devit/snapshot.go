// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"
	"github.com/schollz/progressbar/v3"

	"github.com/n-engine/devit/internal/errors"
	"github.com/n-engine/devit/pkg/snapshot"
)

func runSnapshot(args []string, g GlobalFlags, ws string) {
	result, err := doSnapshot(args, g, ws)
	errors.PrintResponse(result, err, jsonMode(g), func(v any) {
		m := v.(*snapshot.Manifest)
		fmt.Println(m.ID)
	})
	if err != nil {
		os.Exit(1)
	}
}

func doSnapshot(args []string, g GlobalFlags, ws string) (*snapshot.Manifest, error) {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return nil, errors.NewInvalidFormat(err.Error())
	}

	paths, err := walkWorkspaceFiles(ws)
	if err != nil {
		return nil, err
	}

	store, err := snapshot.Open(ws)
	if err != nil {
		return nil, err
	}

	var bar *progressbar.ProgressBar
	if g.Pretty {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("Snapshotting workspace"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
	}

	// snapshot.Store.Create hashes/compresses every path in one pass; the
	// bar advances to completion rather than per-file, since Create has no
	// progress callback of its own. The CLI snapshot keeps binary content
	// (unlike a targeted pre-apply snapshot) since it exists to let the
	// whole workspace be restored later.
	m, err := store.Create(paths, snapshot.CreateOptions{IncludeBinaryFiles: true})
	if bar != nil {
		_ = bar.Set(len(paths))
		_ = bar.Finish()
	}
	return m, err
}

// walkWorkspaceFiles lists every regular file or symlink under ws, relative
// to ws, excluding .git and .devit — the store's own bookkeeping and the
// VCS metadata it snapshots separately via commit SHAs.
func walkWorkspaceFiles(ws string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(ws, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(ws, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if rel == ".git" || rel == ".devit" {
				return filepath.SkipDir
			}
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, errors.NewIO("cannot walk workspace tree", err)
	}
	return paths, nil
}
