// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package journal implements the append-only, HMAC-chained audit log every
// mutating operation writes to before it touches the workspace. Each entry
// signs over the previous entry's HMAC, so truncating or editing history
// breaks the chain at the point of tampering.
package journal

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/n-engine/devit/internal/errors"
)

const genesisHMAC = "genesis"

// Entry is one journal line. PrevHMAC chains to the prior entry; HMAC signs
// over every other field including PrevHMAC.
type Entry struct {
	Seq         int64          `json:"seq"`
	Timestamp   string         `json:"timestamp"`
	Op          string         `json:"op"`
	RequestID   string         `json:"request_id"`
	Idempotency string         `json:"idempotency_key,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	PrevHMAC    string         `json:"prev_hmac"`
	HMAC        string         `json:"hmac"`
}

// AppendResult is returned to the caller after a successful append, so the
// caller can embed the proof in its own response envelope.
type AppendResult struct {
	HMAC      string `json:"hmac"`
	Offset    int64  `json:"offset"`
	File      string `json:"file"`
	RequestID string `json:"request_id"`
}

// Config controls rotation behaviour.
type Config struct {
	Path            string
	KeyPath         string
	MaxFileSizeMB   int64
	MaxRotatedFiles int
}

// Journal is the process-wide append target. All writes are serialized
// through mu; the HMAC chain is only meaningful under strict ordering.
type Journal struct {
	mu       sync.Mutex
	cfg      Config
	key      []byte
	file     *os.File
	seq      int64
	lastHMAC string
}

// Open loads (or creates) the HMAC key and the journal file, replaying any
// existing entries to recover seq and lastHMAC.
func Open(cfg Config) (*Journal, error) {
	key, err := LoadOrCreateKey(cfg.KeyPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, errors.NewIO("cannot create journal directory", err)
	}

	j := &Journal{cfg: cfg, key: key, lastHMAC: genesisHMAC}
	if err := j.recover(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errors.NewIO("cannot open journal file", err)
	}
	j.file = f
	return j, nil
}

// recover replays the journal file (if any) to establish seq/lastHMAC
// continuity across process restarts.
func (j *Journal) recover() error {
	f, err := os.Open(j.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewIO("cannot read journal for recovery", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return errors.New(errors.CodeInternal, "journal corrupt", "cannot parse entry during recovery: "+err.Error(), "", err)
		}
		if e.PrevHMAC != j.lastHMAC {
			return errors.New(errors.CodeInternal, "journal chain broken", fmt.Sprintf("seq %d prev_hmac mismatch", e.Seq), "", nil)
		}
		if j.sign(e) != e.HMAC {
			return errors.New(errors.CodeInternal, "journal chain broken", fmt.Sprintf("seq %d hmac mismatch", e.Seq), "", nil)
		}
		j.seq = e.Seq
		j.lastHMAC = e.HMAC
	}
	return scanner.Err()
}

// Append writes one new chained, signed entry and returns its proof.
func (j *Journal) Append(op, requestID string, details map[string]any, idempotencyKey string) (AppendResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.rotateIfNeeded(); err != nil {
		return AppendResult{}, err
	}

	j.seq++
	e := Entry{
		Seq:         j.seq,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		Op:          op,
		RequestID:   requestID,
		Idempotency: idempotencyKey,
		Details:     details,
		PrevHMAC:    j.lastHMAC,
	}
	if e.RequestID == "" {
		e.RequestID = uuid.NewString()
	}
	e.HMAC = j.sign(e)

	line, err := json.Marshal(e)
	if err != nil {
		return AppendResult{}, errors.NewInternal("cannot marshal journal entry", err)
	}
	line = append(line, '\n')

	off, err := j.file.Seek(0, os.SEEK_CUR)
	if err != nil {
		off = -1
	}
	if _, err := j.file.Write(line); err != nil {
		return AppendResult{}, errors.NewIO("cannot write journal entry", err)
	}
	if err := j.file.Sync(); err != nil {
		return AppendResult{}, errors.NewIO("cannot fsync journal entry", err)
	}
	j.lastHMAC = e.HMAC

	return AppendResult{HMAC: e.HMAC, Offset: off, File: j.cfg.Path, RequestID: e.RequestID}, nil
}

// sign computes the HMAC over every entry field except HMAC itself, in a
// fixed field order so recomputation during verification is unambiguous.
func (j *Journal) sign(e Entry) string {
	detailsJSON, _ := json.Marshal(e.Details)
	body := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s", e.Seq, e.Timestamp, e.Op, e.RequestID, e.Idempotency, string(detailsJSON), e.PrevHMAC)
	mac := hmac.New(sha256.New, j.key)
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// rotateIfNeeded renames the active file to journal.log.<N> when it exceeds
// MaxFileSizeMB, retaining at most MaxRotatedFiles prior generations. It
// must be called with mu held.
func (j *Journal) rotateIfNeeded() error {
	if j.cfg.MaxFileSizeMB <= 0 || j.file == nil {
		return nil
	}
	info, err := j.file.Stat()
	if err != nil {
		return errors.NewIO("cannot stat journal file", err)
	}
	if info.Size() < j.cfg.MaxFileSizeMB*1024*1024 {
		return nil
	}
	if err := j.file.Close(); err != nil {
		return errors.NewIO("cannot close journal file before rotation", err)
	}

	for n := j.cfg.MaxRotatedFiles; n >= 1; n-- {
		src := fmt.Sprintf("%s.%d", j.cfg.Path, n)
		dst := fmt.Sprintf("%s.%d", j.cfg.Path, n+1)
		if n == j.cfg.MaxRotatedFiles {
			os.Remove(src)
			continue
		}
		if _, err := os.Stat(src); err == nil {
			os.Rename(src, dst)
		}
	}
	if err := os.Rename(j.cfg.Path, j.cfg.Path+".1"); err != nil {
		return errors.NewIO("cannot rotate journal file", err)
	}

	f, err := os.OpenFile(j.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.NewIO("cannot reopen journal file after rotation", err)
	}
	j.file = f
	return nil
}

// Verify replays the on-disk journal and recomputes every HMAC in the
// chain, returning the offending seq on the first mismatch.
func (j *Journal) Verify() (bool, int64, error) {
	f, err := os.Open(j.cfg.Path)
	if err != nil {
		return false, 0, errors.NewIO("cannot open journal for verification", err)
	}
	defer f.Close()

	prev := genesisHMAC
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return false, 0, errors.NewInternal("journal entry unparsable during verification", err)
		}
		if e.PrevHMAC != prev {
			return false, e.Seq, nil
		}
		if j.sign(e) != e.HMAC {
			return false, e.Seq, nil
		}
		prev = e.HMAC
	}
	return true, 0, scanner.Err()
}

// Close flushes and closes the underlying file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	return j.file.Close()
}
