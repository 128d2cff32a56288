// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"bufio"
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/n-engine/devit/internal/config"
	"github.com/n-engine/devit/internal/errors"
	"github.com/n-engine/devit/pkg/wire"
)

// daemonClient is a one-shot connection to devitd: dial, send exactly one
// signed request, read exactly one signed response, close. The daemon
// protocol is line-oriented so a fresh connection per CLI invocation is
// simplest and matches the CLI's one-shot-per-process lifecycle.
type daemonClient struct {
	cfg *config.CLIConfig
}

func newDaemonClient(cfg *config.CLIConfig) *daemonClient {
	return &daemonClient{cfg: cfg}
}

// roundtrip builds, signs, and sends a Message of msgType, then waits for
// the daemon's reply (or the configured orchestration timeout).
func (d *daemonClient) roundtrip(msgType wire.MsgType, from, to string, payload any) (wire.Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return wire.Message{}, errors.NewInternal("cannot marshal daemon request payload", err)
	}

	msg := wire.Message{
		MsgType: msgType,
		MsgID:   uuid.NewString(),
		From:    from,
		To:      to,
		TS:      time.Now().UnixMilli(),
		Nonce:   uuid.NewString(),
		Payload: raw,
	}
	msg.HMAC = wire.Sign([]byte(d.cfg.Secret), msg)

	timeout := d.cfg.OrchestrationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	conn, err := net.DialTimeout("unix", d.cfg.DaemonSocket, timeout)
	if err != nil {
		return wire.Message{}, errors.NewIO("cannot connect to devitd at "+d.cfg.DaemonSocket, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(timeout))

	line, err := wire.EncodeStandard(msg)
	if err != nil {
		return wire.Message{}, errors.NewInternal("cannot encode wire message", err)
	}
	line = append(line, '\n')
	if _, err := conn.Write(line); err != nil {
		return wire.Message{}, errors.NewIO("cannot write to devitd socket", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return wire.Message{}, errors.NewIO("devitd connection closed before replying", err)
		}
		return wire.Message{}, errors.NewIO("devitd closed the connection without a reply", nil)
	}

	resp, _, err := wire.Decode(scanner.Bytes())
	if err != nil {
		return wire.Message{}, errors.NewInternal("cannot decode devitd reply", err)
	}
	if !wire.Verify([]byte(d.cfg.Secret), resp) {
		return wire.Message{}, errors.NewInternal("devitd reply failed HMAC verification", nil)
	}
	if resp.MsgType == wire.Err {
		var ep struct {
			Code   errors.Code `json:"code"`
			Detail string      `json:"detail"`
		}
		_ = json.Unmarshal(resp.Payload, &ep)
		return resp, errors.New(ep.Code, "devitd refused the request", ep.Detail, "", nil)
	}
	return resp, nil
}
