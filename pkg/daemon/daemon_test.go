// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n-engine/devit/pkg/journal"
	"github.com/n-engine/devit/pkg/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEvaluateToolDefaultsToAllow(t *testing.T) {
	cfg := Config{ToolPolicy: map[string]string{"dangerous": "deny", "sensitive": "need_approval"}}
	assert.Equal(t, 0, int(evaluateTool("run", cfg)))       // Allow
	assert.Equal(t, 1, int(evaluateTool("dangerous", cfg))) // Deny
	assert.Equal(t, 2, int(evaluateTool("sensitive", cfg))) // NeedApproval
}

func TestAckRegistryFiresMarkerOnce(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ack-marker")
	r := newAckRegistry()
	r.register("t-1", ackChannel{marker: marker})

	assert.True(t, r.fire("t-1"))
	_, err := os.Stat(marker)
	require.NoError(t, err)

	assert.False(t, r.fire("t-1"))
}

func TestScreenshotLimiterEnforcesSlidingWindow(t *testing.T) {
	l := newScreenshotLimiter()
	fixed := time.Now()
	l.now = func() time.Time { return fixed }

	assert.True(t, l.allow(2, time.Minute))
	assert.True(t, l.allow(2, time.Minute))
	assert.False(t, l.allow(2, time.Minute))

	l.now = func() time.Time { return fixed.Add(2 * time.Minute) }
	assert.True(t, l.allow(2, time.Minute))
}

func TestValidateScreenshotDirRejectsOutsideWorkspace(t *testing.T) {
	ws := t.TempDir()
	assert.NoError(t, validateScreenshotDir(filepath.Join(ws, "shots"), ws))
	assert.Error(t, validateScreenshotDir("/etc/somewhere", ws))
}

func TestHumanSizeFormatsBytes(t *testing.T) {
	assert.Equal(t, "512B", humanSize(512))
	assert.Contains(t, humanSize(2048), "KiB")
}

func newTestBroker(t *testing.T) (*Broker, string) {
	t.Helper()
	dir := t.TempDir()
	j, err := journal.Open(journal.Config{
		Path:    filepath.Join(dir, "journal.jsonl"),
		KeyPath: filepath.Join(dir, "hmac.key"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	sock := filepath.Join(dir, "devitd.sock")
	cfg := Config{
		SocketPath:    sock,
		Secret:        []byte("test-secret"),
		DaemonVersion: "1.0.0",
		Workspace:     dir,
	}
	b := New(cfg, j, testLogger())
	return b, sock
}

func TestRegisterHeartbeatRoundTripOverSocket(t *testing.T) {
	b, sock := newTestBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.Serve(ctx)
	waitForSocket(t, sock)

	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()

	reg := signedMessage(b.cfg.Secret, wire.Register, "cli-1", "daemon", `{"caps":["x"],"version":""}`)
	line, err := wire.EncodeStandard(reg)
	require.NoError(t, err)
	_, err = conn.Write(append(line, '\n'))
	require.NoError(t, err)

	resp := readLine(t, conn)
	msg, _, err := wire.Decode(resp)
	require.NoError(t, err)
	assert.Equal(t, wire.Ack, msg.MsgType)
}

func TestBadHMACIsDroppedSilently(t *testing.T) {
	b, sock := newTestBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.Serve(ctx)
	waitForSocket(t, sock)

	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))

	reg := signedMessage([]byte("wrong-secret"), wire.Register, "cli-1", "daemon", `{"caps":[]}`)
	line, err := wire.EncodeStandard(reg)
	require.NoError(t, err)
	_, err = conn.Write(append(line, '\n'))
	require.NoError(t, err)

	buf := make([]byte, 1024)
	_, err = conn.Read(buf)
	assert.Error(t, err) // read times out: no response was sent
}

func signedMessage(secret []byte, msgType wire.MsgType, from, to, payload string) wire.Message {
	m := wire.Message{
		MsgType: msgType,
		MsgID:   uuid.NewString(),
		From:    from,
		To:      to,
		TS:      time.Now().UnixMilli(),
		Nonce:   uuid.NewString(),
		Payload: json.RawMessage(payload),
	}
	m.HMAC = wire.Sign(secret, m)
	return m
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s never appeared", path)
}

func readLine(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)
	line, err := r.ReadBytes('\n')
	require.NoError(t, err)
	return line
}
