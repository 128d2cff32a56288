// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// State is the CLI's persisted workspace-directory state, read/written by
// `devit cd`/`devit pwd` so the chosen workspace survives across
// invocations (the CLI itself is stateless per-process).
type State struct {
	Workspace string `yaml:"workspace"`
}

// StatePath returns the default state file location, $HOME/.devit/state.yaml.
func StatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".devit", "state.yaml"), nil
}

// LoadState reads the persisted state, returning a zero-value State if the
// file does not exist yet.
func LoadState(path string) (*State, error) {
	st := &State{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, st); err != nil {
		return nil, err
	}
	return st, nil
}

// SaveState writes the state atomically-ish (truncate+write; single writer
// per workspace is assumed, matching the CLI's one-shot-per-invocation
// model).
func SaveState(path string, st *State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
