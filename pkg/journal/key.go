// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package journal

import (
	"crypto/rand"
	"os"
	"path/filepath"

	"github.com/n-engine/devit/internal/errors"
)

const keyLen = 32

// LoadOrCreateKey reads the 32-byte HMAC key at keyPath, generating a fresh
// CSPRNG key on first use. The key file is written with mode 0600 and its
// parent directory with 0700, matching the journal's confidentiality
// requirement (the key must never be group- or world-readable).
func LoadOrCreateKey(keyPath string) ([]byte, error) {
	b, err := os.ReadFile(keyPath)
	if err == nil {
		if len(b) != keyLen {
			return nil, errors.NewIO("hmac key file has unexpected length", nil)
		}
		return b, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.NewIO("cannot read hmac key file", err)
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, errors.NewIO("cannot create journal directory", err)
	}

	key := make([]byte, keyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.NewInternal("cannot generate hmac key", err)
	}

	tmp := keyPath + ".tmp"
	if err := os.WriteFile(tmp, key, 0o600); err != nil {
		return nil, errors.NewIO("cannot write hmac key file", err)
	}
	if err := os.Rename(tmp, keyPath); err != nil {
		return nil, errors.NewIO("cannot install hmac key file", err)
	}
	return key, nil
}
