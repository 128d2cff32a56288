// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/n-engine/devit/internal/errors"
	"github.com/n-engine/devit/pkg/snapshot"
)

func runRestore(args []string, g GlobalFlags, ws string) {
	result, err := doRestore(args, g, ws)
	errors.PrintResponse(result, err, jsonMode(g), func(v any) {
		paths := v.([]string)
		for _, p := range paths {
			fmt.Println(p)
		}
	})
	if err != nil {
		os.Exit(1)
	}
}

func doRestore(args []string, g GlobalFlags, ws string) ([]string, error) {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	id := fs.String("id", "", "Snapshot id to restore")
	targets := fs.StringSlice("path", nil, "Restrict restore to this path (repeatable); default is every file in the snapshot")
	dryRun := fs.Bool("dry-run", false, "List the paths that would be written without touching the filesystem")
	backup := fs.Bool("backup", false, "Copy each overwritten file to <path>.backup first")
	restorePerms := fs.Bool("restore-permissions", false, "Restore each file's recorded mode instead of the default")
	if err := fs.Parse(args); err != nil {
		return nil, errors.NewInvalidFormat(err.Error())
	}
	if *id == "" {
		return nil, errors.NewInvalidFormat("--id is required")
	}

	store, err := snapshot.Open(ws)
	if err != nil {
		return nil, err
	}
	m, err := store.Get(*id)
	if err != nil {
		return nil, err
	}
	return store.Restore(m, *targets, snapshot.RestoreOptions{
		DryRun:             *dryRun,
		Backup:             *backup,
		RestorePermissions: *restorePerms,
	})
}
