// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics registers the process-wide Prometheus collectors the
// patch lifecycle and orchestration daemon update: patch-apply/auto-revert
// counters and lease/task gauges, exposed by cmd/devitd's /metrics endpoint.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PatchApplyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devit",
		Subsystem: "lifecycle",
		Name:      "patch_apply_total",
		Help:      "Total patch_apply attempts, labeled by outcome (success|denied|error).",
	}, []string{"outcome"})

	AutoRevertTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "devit",
		Subsystem: "lifecycle",
		Name:      "auto_revert_total",
		Help:      "Total patches automatically reverted after a failing post-apply test run.",
	})

	ActiveLeases = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "devit",
		Subsystem: "daemon",
		Name:      "active_leases",
		Help:      "Leases currently outstanding (delegated tasks awaiting NOTIFY).",
	})

	ActiveTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "devit",
		Subsystem: "daemon",
		Name:      "active_tasks",
		Help:      "Delegated tasks currently in Pending or InProgress state.",
	})

	CompletedTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "devit",
		Subsystem: "daemon",
		Name:      "completed_tasks",
		Help:      "Delegated tasks in the LRU-bounded completed table.",
	})

	RegisteredClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "devit",
		Subsystem: "daemon",
		Name:      "registered_clients",
		Help:      "Clients with a live heartbeat (within the 30s TTL).",
	})
)

func init() {
	prometheus.MustRegister(PatchApplyTotal, AutoRevertTotal, ActiveLeases, ActiveTasks, CompletedTasks, RegisteredClients)
}
