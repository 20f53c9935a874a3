// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the time-bounded memoization used for upstream
// filing fetches.
//
// The cache is an injected handle: the host owns its lifecycle and passes
// it to the data gateway. Memory is process-local; Badger shares entries
// through an on-disk store. Both satisfy Cache.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTTL is how long a fetched filing stays fresh.
const DefaultTTL = 15 * time.Minute

// Cache is a key/value store whose entries expire.
//
// Implementations must be safe for concurrent use.
type Cache[V any] interface {
	// Get returns the value and true when present and not expired.
	Get(key string) (V, bool)

	// Set stores value, replacing any existing entry for key.
	Set(key string, value V)
}

// Clock supplies timestamps for expiry decisions.
type Clock interface {
	Now() time.Time
}

type monotonicClock struct{}

// Now returns time.Now(), which carries a monotonic reading; Sub between
// two such readings ignores wall-clock adjustments.
func (monotonicClock) Now() time.Time { return time.Now() }

// Stats counts cache lookups.
type Stats struct {
	Hits   uint64
	Misses uint64
}

type entry[V any] struct {
	value   V
	created time.Time
}

// Memory is an in-process TTL cache.
//
// An entry is valid while its age is strictly less than the TTL. Expired
// entries are removed lazily when read, or in bulk by Purge.
//
// Thread Safety: safe for concurrent use. Set replaces an entry atomically
// under the write lock.
type Memory[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration
	clock   Clock

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Option configures a Memory cache.
type Option func(*options)

type options struct {
	ttl   time.Duration
	clock Clock
}

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock replaces the monotonic clock. Tests use it to simulate time.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// NewMemory creates an empty in-process cache.
func NewMemory[V any](opts ...Option) *Memory[V] {
	o := options{ttl: DefaultTTL, clock: monotonicClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Memory[V]{
		entries: make(map[string]entry[V]),
		ttl:     o.ttl,
		clock:   o.clock,
	}
}

// Get implements Cache.
func (c *Memory[V]) Get(key string) (V, bool) {
	now := c.clock.Now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && now.Sub(e.created) < c.ttl {
		c.hits.Add(1)
		return e.value, true
	}

	if ok {
		c.mu.Lock()
		// Another writer may have refreshed the entry since the read.
		if cur, still := c.entries[key]; still && now.Sub(cur.created) >= c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Set implements Cache.
func (c *Memory[V]) Set(key string, value V) {
	e := entry[V]{value: value, created: c.clock.Now()}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *Memory[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge removes every expired entry and returns how many were dropped.
func (c *Memory[V]) Purge() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if now.Sub(e.created) >= c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Stats returns lookup counters since creation.
func (c *Memory[V]) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
