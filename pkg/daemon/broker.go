// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package daemon

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/n-engine/devit/pkg/journal"
	"github.com/n-engine/devit/pkg/orchestration"
	"github.com/n-engine/devit/pkg/wire"
)

// Broker is the daemon's single shared-state holder: the orchestration
// Manager, the audit journal, ACK channel registry, and screenshot rate
// limiter. It is safe for concurrent use — each accepted connection runs
// its own read loop and calls back into the Manager, which is itself
// mutex-guarded.
type Broker struct {
	cfg     Config
	manager *orchestration.Manager
	journal *journal.Journal
	log     *slog.Logger

	acks      *ackRegistry
	shotLimit *screenshotLimiter

	listener net.Listener
	shutdown atomic.Bool

	wg sync.WaitGroup
}

// New constructs a Broker bound to an already-open journal and a fresh
// Manager.
func New(cfg Config, j *journal.Journal, log *slog.Logger) *Broker {
	return &Broker{
		cfg:       cfg,
		manager:   orchestration.NewManager(),
		journal:   j,
		log:       log,
		acks:      newAckRegistry(),
		shotLimit: newScreenshotLimiter(),
	}
}

// Serve opens the transport listener and runs the accept loop until ctx is
// cancelled or Shutdown is called. It also starts the sweep and
// idle-shutdown background goroutines.
func (b *Broker) Serve(ctx context.Context) error {
	_ = os.Remove(b.cfg.SocketPath)
	l, err := net.Listen("unix", b.cfg.SocketPath)
	if err != nil {
		return err
	}
	b.listener = l

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.sweepLoop(sweepCtx)
	}()

	if b.cfg.IdleShutdown > 0 {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.idleShutdownLoop(sweepCtx)
		}()
	}

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if b.shutdown.Load() || ctx.Err() != nil {
				break
			}
			return err
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.handleConn(ctx, conn)
		}()
	}
	b.wg.Wait()
	return nil
}

// Shutdown flips the one-shot flag, closes the listener, and waits up to
// 200ms for log flush per the graceful-shutdown contract.
func (b *Broker) Shutdown() {
	if b.shutdown.Swap(true) {
		return
	}
	active, completed, summary := b.manager.Status()
	b.log.Info("devitd shutting down",
		"active_tasks", len(active), "completed_tasks", len(completed),
		"total_failed", summary.TotalFailed)
	if b.listener != nil {
		_ = b.listener.Close()
	}
	time.Sleep(200 * time.Millisecond)
}

func (b *Broker) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)

		msg, form, err := wire.Decode(cp)
		if err != nil {
			b.log.Warn("dropping unparseable line", "error", err)
			continue
		}

		if !wire.Verify(b.cfg.Secret, msg) {
			expected := wire.Sign(b.cfg.Secret, msg)
			b.log.Warn("dropping message with bad HMAC",
				"msg_type", msg.MsgType,
				"provided_prefix", safePrefix(msg.HMAC, 12),
				"expected_prefix", safePrefix(expected, 12))
			continue
		}

		resp, ok := b.dispatch(ctx, msg)
		if !ok {
			continue
		}
		resp.HMAC = wire.Sign(b.cfg.Secret, resp)
		out, err := wire.Encode(resp, form)
		if err != nil {
			b.log.Warn("cannot encode response", "error", err)
			continue
		}
		out = append(out, '\n')
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

func safePrefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
