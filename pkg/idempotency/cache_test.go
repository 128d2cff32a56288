// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package idempotency

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndGetRoundTrip(t *testing.T) {
	c := New(time.Minute)
	c.Insert("key-1", json.RawMessage(`{"ok":true}`))
	v, ok := c.Get("key-1")
	require.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, string(v))
}

func TestGetEvictsOnRead(t *testing.T) {
	c := New(time.Minute)
	c.Insert("key-1", json.RawMessage(`{}`))
	_, ok := c.Get("key-1")
	require.True(t, ok)
	_, ok2 := c.Get("key-1")
	assert.False(t, ok2)
}

func TestPeekDoesNotEvict(t *testing.T) {
	c := New(time.Minute)
	c.Insert("key-1", json.RawMessage(`{}`))
	_, ok := c.Peek("key-1")
	require.True(t, ok)
	_, ok2 := c.Peek("key-1")
	assert.True(t, ok2)
}

func TestExpiredEntryIsAbsent(t *testing.T) {
	c := New(time.Millisecond)
	c.Insert("key-1", json.RawMessage(`{}`))
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Peek("key-1")
	assert.False(t, ok)
}

func TestInsertSweepsExpiredEntries(t *testing.T) {
	c := New(time.Millisecond)
	c.Insert("old", json.RawMessage(`{}`))
	time.Sleep(5 * time.Millisecond)
	c.Insert("new", json.RawMessage(`{}`))
	assert.Equal(t, 1, c.Len())
}
