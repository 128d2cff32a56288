// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestration

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// HeartbeatTTL is the maximum time a client may go without a heartbeat
	// before it is considered dead and evicted.
	HeartbeatTTL = 30 * time.Second
	// LeaseTTL is the default deadline window for a freshly delegated task.
	LeaseTTL = 900 * time.Second
	// MaxCompletedTasks bounds the completed task table; the
	// least-recently-used entry is evicted once this is exceeded.
	MaxCompletedTasks = 1000
)

// Manager is the daemon's single mutex-guarded state: client table, lease
// table, active/completed task tables, pending approvals, and per-client
// notification queues.
type Manager struct {
	mu sync.RWMutex

	clients   map[string]*Client
	leases    map[string]*Lease
	active    map[string]*DelegatedTask
	completed *lru.Cache[string, *DelegatedTask]
	approvals map[string]*PendingApproval
	queues    map[string][]Notification
	now       func() time.Time
}

// NewManager constructs an empty Manager. The completed-task table is a
// bounded LRU: once MaxCompletedTasks is reached, the task least recently
// added (or re-added) by CompleteTask or SweepExpiredLeases is evicted.
// Status reads the table with Peek, so lookups do not change that order.
func NewManager() *Manager {
	completed, _ := lru.New[string, *DelegatedTask](MaxCompletedTasks)
	return &Manager{
		clients:   make(map[string]*Client),
		leases:    make(map[string]*Lease),
		active:    make(map[string]*DelegatedTask),
		completed: completed,
		approvals: make(map[string]*PendingApproval),
		queues:    make(map[string][]Notification),
		now:       time.Now,
	}
}

// Register adds or replaces a Client row.
func (m *Manager) Register(c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.LastHeartbeat = m.now()
	m.clients[c.Ident] = &c
}

// Heartbeat refreshes a client's last_heartbeat and pops its oldest queued
// notification, if any.
func (m *Manager) Heartbeat(ident string) (*Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clients[ident]; ok {
		c.LastHeartbeat = m.now()
	}
	return m.popQueueLocked(ident)
}

// Poll returns the oldest queued notification for ident without requiring
// the client to be registered (a polling worker may never REGISTER).
func (m *Manager) Poll(ident string) (*Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.popQueueLocked(ident)
}

func (m *Manager) popQueueLocked(ident string) (*Notification, bool) {
	q := m.queues[ident]
	if len(q) == 0 {
		return nil, false
	}
	n := q[0]
	m.queues[ident] = q[1:]
	return &n, true
}

// Enqueue appends a notification to ident's pending queue (delivered on the
// next HEARTBEAT or POLL).
func (m *Manager) Enqueue(ident string, n Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[ident] = append(m.queues[ident], n)
}

// IsClientLive reports whether ident has heartbeated within HeartbeatTTL.
func (m *Manager) IsClientLive(ident string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[ident]
	if !ok {
		return false
	}
	return m.now().Sub(c.LastHeartbeat) <= HeartbeatTTL
}

// AddLease inserts a lease with the default TTL deadline.
func (m *Manager) AddLease(l Lease) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.Deadline.IsZero() {
		l.Deadline = m.now().Add(LeaseTTL)
	}
	m.leases[l.TaskID] = &l
}

// AddActiveTask inserts a task into the active table.
func (m *Manager) AddActiveTask(t DelegatedTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.LastActivity = m.now()
	m.active[t.ID] = &t
}

// GetActiveTask looks up a task in the active table.
func (m *Manager) GetActiveTask(id string) (*DelegatedTask, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.active[id]
	return t, ok
}

// CompleteTask removes the lease (if any) and moves the task from active to
// completed with the given terminal status, returning the task's ReturnTo
// (falling back to the lease's OriginalFrom when unset).
func (m *Manager) CompleteTask(id string, status TaskStatus, n Notification) (returnTo string, hadLease bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lease, hadLease := m.leases[id]
	delete(m.leases, id)

	t, ok := m.active[id]
	if !ok {
		t = &DelegatedTask{ID: id, CreatedAt: m.now()}
	} else {
		delete(m.active, id)
	}
	t.Status = status
	t.LastActivity = m.now()
	t.Notifications = append(t.Notifications, n)

	m.completed.Add(id, t)

	if t.ReturnTo != "" {
		return t.ReturnTo, hadLease
	}
	if hadLease && lease.ReturnTo != "" {
		return lease.ReturnTo, hadLease
	}
	if hadLease {
		return lease.OriginalFrom, hadLease
	}
	return "", hadLease
}

// AddApproval stores a PendingApproval awaiting a human decision.
func (m *Manager) AddApproval(a PendingApproval) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals[a.TaskID] = &a
}

// ResolveApproval removes and returns a pending approval.
func (m *Manager) ResolveApproval(taskID string) (*PendingApproval, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.approvals[taskID]
	if ok {
		delete(m.approvals, taskID)
	}
	return a, ok
}

// ExpiredLease is one lease the sweep found past its deadline.
type ExpiredLease struct {
	Lease Lease
	Task  *DelegatedTask
}

// SweepExpiredLeases moves every lease past its deadline to Failed,
// returning the expired set for the caller to notify and journal. It also
// evicts clients that have missed HeartbeatTTL, along with their queues.
func (m *Manager) SweepExpiredLeases() []ExpiredLease {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var expired []ExpiredLease
	for id, lease := range m.leases {
		if lease.Deadline.After(now) {
			continue
		}
		t, ok := m.active[id]
		if ok {
			delete(m.active, id)
			t.Status = StatusFailed
			t.Summary = "Task lease expired after 900s without completion"
			t.LastActivity = now
			m.completed.Add(id, t)
		}
		delete(m.leases, id)
		expired = append(expired, ExpiredLease{Lease: *lease, Task: t})
	}

	for ident, c := range m.clients {
		if now.Sub(c.LastHeartbeat) > HeartbeatTTL {
			delete(m.clients, ident)
			delete(m.queues, ident)
		}
	}
	return expired
}

// Summary is the STATUS_RESPONSE payload.
type Summary struct {
	TotalActive    int    `json:"total_active"`
	TotalCompleted int    `json:"total_completed"`
	TotalFailed    int    `json:"total_failed"`
	OldestActive   string `json:"oldest_active_task,omitempty"`
}

// Status snapshots the active/completed tables for STATUS_REQUEST.
func (m *Manager) Status() ([]DelegatedTask, []DelegatedTask, Summary) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := make([]DelegatedTask, 0, len(m.active))
	var oldest string
	var oldestAt time.Time
	for _, t := range m.active {
		active = append(active, *t)
		if oldest == "" || t.CreatedAt.Before(oldestAt) {
			oldest = t.ID
			oldestAt = t.CreatedAt
		}
	}
	keys := m.completed.Keys()
	completed := make([]DelegatedTask, 0, len(keys))
	failed := 0
	for _, k := range keys {
		t, ok := m.completed.Peek(k)
		if !ok {
			continue
		}
		completed = append(completed, *t)
		if t.Status == StatusFailed {
			failed++
		}
	}
	return active, completed, Summary{
		TotalActive:    len(active),
		TotalCompleted: len(completed),
		TotalFailed:    failed,
		OldestActive:   oldest,
	}
}

// IsIdle reports whether there are no live clients, no leases, no active
// tasks, and no pending approvals — the condition the auto-shutdown timer
// watches for.
func (m *Manager) IsIdle() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients) == 0 && len(m.leases) == 0 && len(m.active) == 0 && len(m.approvals) == 0
}

// Gauges snapshots the table sizes the daemon's sweep loop feeds into the
// Prometheus gauges: live clients, outstanding leases, and completed tasks.
func (m *Manager) Gauges() (clients, leases, completedTasks int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients), len(m.leases), m.completed.Len()
}
