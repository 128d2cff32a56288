// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package wire implements the daemon's authenticated line protocol: one
// JSON object per line, HMAC-SHA256 signed over a fixed pipe-joined
// canonical body. Both the standard (long-key) and compact (short-key)
// encodings are supported on input; the daemon mirrors whichever form it
// received on output.
package wire

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// MsgType enumerates the daemon's message kinds.
type MsgType string

const (
	Register         MsgType = "REGISTER"
	Heartbeat        MsgType = "HEARTBEAT"
	Delegate         MsgType = "DELEGATE"
	Notify           MsgType = "NOTIFY"
	Ack              MsgType = "ACK"
	Poll             MsgType = "POLL"
	StatusRequest    MsgType = "STATUS_REQUEST"
	StatusResponse   MsgType = "STATUS_RESPONSE"
	Approval         MsgType = "APPROVAL"
	ApprovalDecision MsgType = "APPROVAL_DECISION"
	Screenshot       MsgType = "SCREENSHOT"
	Err              MsgType = "ERR"
)

// Message is the canonical in-memory wire message. Encode/Decode translate
// to and from either the standard or compact JSON line forms.
type Message struct {
	MsgType MsgType         `json:"msg_type"`
	MsgID   string          `json:"msg_id"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	TS      int64           `json:"ts"`
	Nonce   string          `json:"nonce"`
	HMAC    string          `json:"hmac"`
	Payload json.RawMessage `json:"payload"`
}

// compactMessage is the structurally-equivalent short-key wire form.
type compactMessage struct {
	T string          `json:"t"`
	I string          `json:"i"`
	F string          `json:"f"`
	O string          `json:"o"`
	S int64           `json:"s"`
	N string          `json:"n"`
	H string          `json:"h"`
	P json.RawMessage `json:"p"`
}

func (m Message) toCompact() compactMessage {
	return compactMessage{T: string(m.MsgType), I: m.MsgID, F: m.From, O: m.To, S: m.TS, N: m.Nonce, H: m.HMAC, P: m.Payload}
}

func (c compactMessage) toMessage() Message {
	return Message{MsgType: MsgType(c.T), MsgID: c.I, From: c.F, To: c.O, TS: c.S, Nonce: c.N, HMAC: c.H, Payload: c.P}
}

// CanonicalBody builds the exact seven-field pipe-joined string that is
// the sole HMAC input. Field order is load-bearing and MUST NOT change
// without a wire format version bump.
func CanonicalBody(m Message) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d|%s|%s", m.MsgType, m.MsgID, m.From, m.To, m.TS, m.Nonce, string(m.Payload))
}

// Sign computes base64(HMAC-SHA256(key, CanonicalBody(m))).
func Sign(key []byte, m Message) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(CanonicalBody(m)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether m.HMAC matches Sign(key, m) using a
// constant-time comparison.
func Verify(key []byte, m Message) bool {
	expected := Sign(key, m)
	return hmac.Equal([]byte(expected), []byte(m.HMAC))
}

// EncodeStandard renders m as a standard-form NDJSON line.
func EncodeStandard(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// EncodeCompact renders m as a compact-form NDJSON line.
func EncodeCompact(m Message) ([]byte, error) {
	return json.Marshal(m.toCompact())
}

// Form identifies which on-the-wire encoding a line used, so the daemon
// can mirror it in the reply.
type Form int

const (
	FormStandard Form = iota
	FormCompact
)

// Decode accepts either encoding and reports which form it detected by
// checking for the presence of the standard "msg_type" key.
func Decode(line []byte) (Message, Form, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(line, &probe); err != nil {
		return Message{}, FormStandard, fmt.Errorf("decode wire line: %w", err)
	}
	if _, ok := probe["msg_type"]; ok {
		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			return Message{}, FormStandard, fmt.Errorf("decode standard message: %w", err)
		}
		return m, FormStandard, nil
	}
	var c compactMessage
	if err := json.Unmarshal(line, &c); err != nil {
		return Message{}, FormCompact, fmt.Errorf("decode compact message: %w", err)
	}
	return c.toMessage(), FormCompact, nil
}

// Encode mirrors the form a message was received in.
func Encode(m Message, form Form) ([]byte, error) {
	if form == FormCompact {
		return EncodeCompact(m)
	}
	return EncodeStandard(m)
}
