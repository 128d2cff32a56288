// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	key := []byte("test-key-0123456789")
	m := Message{
		MsgType: Delegate,
		MsgID:   "m-1",
		From:    "cli",
		To:      "daemon",
		TS:      1700000000,
		Nonce:   "n-1",
		Payload: json.RawMessage(`{"task":"build"}`),
	}
	m.HMAC = Sign(key, m)
	assert.True(t, Verify(key, m))

	tampered := m
	tampered.To = "someone-else"
	assert.False(t, Verify(key, tampered))
}

func TestCanonicalBodyFieldOrder(t *testing.T) {
	m := Message{MsgType: Register, MsgID: "id", From: "a", To: "b", TS: 5, Nonce: "n", Payload: json.RawMessage(`{}`)}
	assert.Equal(t, "REGISTER|id|a|b|5|n|{}", CanonicalBody(m))
}

func TestEncodeDecodeStandardRoundTrip(t *testing.T) {
	key := []byte("k")
	m := Message{MsgType: Heartbeat, MsgID: "h-1", From: "cli", To: "daemon", TS: 10, Nonce: "n", Payload: json.RawMessage(`{}`)}
	m.HMAC = Sign(key, m)

	line, err := EncodeStandard(m)
	require.NoError(t, err)

	decoded, form, err := Decode(line)
	require.NoError(t, err)
	assert.Equal(t, FormStandard, form)
	assert.Equal(t, m, decoded)
	assert.True(t, Verify(key, decoded))
}

func TestEncodeDecodeCompactRoundTrip(t *testing.T) {
	key := []byte("k")
	m := Message{MsgType: Ack, MsgID: "a-1", From: "daemon", To: "cli", TS: 20, Nonce: "n2", Payload: json.RawMessage(`{"ok":true}`)}
	m.HMAC = Sign(key, m)

	line, err := EncodeCompact(m)
	require.NoError(t, err)

	decoded, form, err := Decode(line)
	require.NoError(t, err)
	assert.Equal(t, FormCompact, form)
	assert.Equal(t, m, decoded)
	assert.True(t, Verify(key, decoded))
}

func TestEncodeMirrorsDetectedForm(t *testing.T) {
	m := Message{MsgType: Poll, MsgID: "p-1", From: "cli", To: "daemon", TS: 1, Nonce: "n", Payload: json.RawMessage(`{}`)}
	line, err := EncodeCompact(m)
	require.NoError(t, err)
	decoded, form, err := Decode(line)
	require.NoError(t, err)
	out, err := Encode(decoded, form)
	require.NoError(t, err)
	var probe map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &probe))
	_, hasCompactKey := probe["t"]
	assert.True(t, hasCompactKey)
}
