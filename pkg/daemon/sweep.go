// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package daemon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/n-engine/devit/pkg/metrics"
	"github.com/n-engine/devit/pkg/orchestration"
)

// sweepLoop ticks roughly every 10s, acquiring the Manager's lock only to
// drain expired leases/clients, then launching hook goroutines without
// holding it — mirroring the cleanup-loop discipline from the concurrency
// model.
func (b *Broker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.sweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.runSweep()
		}
	}
}

func (b *Broker) updateGauges() {
	active, completed, _ := b.manager.Status()
	clients, leases, _ := b.manager.Gauges()
	metrics.RegisteredClients.Set(float64(clients))
	metrics.ActiveLeases.Set(float64(leases))
	metrics.ActiveTasks.Set(float64(len(active)))
	metrics.CompletedTasks.Set(float64(len(completed)))
}

func (b *Broker) runSweep() {
	defer b.updateGauges()
	expired := b.manager.SweepExpiredLeases()
	for _, e := range expired {
		n := orchestration.Notification{Status: "failed", At: time.Now()}
		b.journal.Append("LEASE_EXPIRED", e.Lease.TaskID, map[string]any{
			"assigned_to": e.Lease.AssignedTo,
		}, "")

		returnTo := e.Lease.ReturnTo
		if returnTo == "" {
			returnTo = e.Lease.OriginalFrom
		}
		if returnTo != "" {
			b.manager.Enqueue(returnTo, n)
		}

		summary := "Task lease expired after 900s without completion"
		marker := filepath.Join(b.cfg.Workspace, ".devit", "ack-"+e.Lease.TaskID)
		b.acks.register(e.Lease.TaskID, ackChannel{marker: marker})
		fireNotificationHook(b.log, hookPayload{
			TaskID:    e.Lease.TaskID,
			Status:    "failed",
			Worker:    e.Lease.AssignedTo,
			ReturnTo:  returnTo,
			Summary:   summary,
			Timestamp: nowISO8601Zulu(),
		}, marker)
	}
}

// idleShutdownLoop watches Manager.IsIdle() and triggers Shutdown once the
// idle condition has held continuously for cfg.IdleShutdown.
func (b *Broker) idleShutdownLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	var idleSince time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !b.manager.IsIdle() {
				idleSince = time.Time{}
				continue
			}
			if idleSince.IsZero() {
				idleSince = time.Now()
				continue
			}
			if time.Since(idleSince) >= b.cfg.IdleShutdown {
				b.log.Info("idle timeout reached, shutting down")
				b.Shutdown()
				return
			}
		}
	}
}
