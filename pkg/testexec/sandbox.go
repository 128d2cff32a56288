// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package testexec

import (
	"os/exec"

	"github.com/n-engine/devit/pkg/policy"
)

const bubblewrapBinary = "bwrap"

// SandboxWrap prepends a bubblewrap invocation to cmd's argv when bwrap is
// on PATH, matching the isolation profile. Without bwrap available it
// returns cmd unchanged (direct execution fallback).
func SandboxWrap(cmd []string, workspace string, profile policy.SandboxProfile) []string {
	bwrap, err := exec.LookPath(bubblewrapBinary)
	if err != nil {
		return cmd
	}

	args := []string{bwrap,
		"--unshare-all", "--die-with-parent",
		"--ro-bind", "/usr", "/usr",
		"--ro-bind", "/lib", "/lib",
		"--ro-bind-try", "/lib64", "/lib64",
		"--ro-bind", "/bin", "/bin",
		"--ro-bind-try", "/sbin", "/sbin",
		"--bind", workspace, workspace,
		"--bind", "/tmp", "/tmp",
		"--chdir", workspace,
	}
	if profile == policy.Permissive {
		args = append(args, "--share-net", "--bind", "/home", "/home")
	}
	args = append(args, "--")
	args = append(args, cmd...)
	return args
}
