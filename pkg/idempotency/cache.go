// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package idempotency implements the process-local idempotency cache used
// by patch_apply: a TTL-keyed map of opaque keys to the
// standard response envelope that was returned the first time that key was
// seen, so a retried request gets the identical result instead of
// re-executing a side-effecting operation.
package idempotency

import (
	"encoding/json"
	"sync"
	"time"
)

type entry struct {
	value     json.RawMessage
	expiresAt time.Time
}

// Cache is a process-local, TTL-expiring idempotency store. Safe for
// concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// New builds a Cache with the given default TTL for inserted entries.
func New(ttl time.Duration) *Cache {
	return &Cache{entries: make(map[string]entry), ttl: ttl, now: time.Now}
}

// Get removes and returns the cached value for key if present and not yet
// expired; an expired entry is purged on read and treated as absent, per
// the design's "get removes and returns None for expired entries" rule —
// note this also evicts a still-valid entry on lookup, so callers that
// intend to serve repeated retries from cache should use Peek instead.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	delete(c.entries, key)
	if c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Peek returns the cached value without evicting it, for callers (like
// patch_apply's retry path) that want to serve the same response to
// multiple retries within the TTL window.
func (c *Cache) Peek(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Insert stores value under key with the cache's default TTL, sweeping
// expired entries first.
func (c *Cache) Insert(key string, value json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// sweepLocked purges every expired entry. Must be called with mu held.
func (c *Cache) sweepLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// Len reports the number of entries currently stored, including any not
// yet swept past expiry — useful only for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
