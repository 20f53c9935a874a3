// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/AleutianAI/secllm/services/secllm/storage/badger"
)

// Badger is a Cache backed by a BadgerDB store, so several processes on
// one host can share fetched filings. Values are stored as JSON and
// expire through badger's own entry TTL, which follows the wall clock.
//
// Store errors degrade to cache misses; they are logged, never returned.
type Badger[V any] struct {
	db     *badger.DB
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadger wraps db. Keys are namespaced with prefix so one store can hold
// several caches.
func NewBadger[V any](db *badger.DB, prefix string, ttl time.Duration, logger *slog.Logger) *Badger[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Badger[V]{db: db, prefix: prefix, ttl: ttl, logger: logger}
}

// Get implements Cache.
func (c *Badger[V]) Get(key string) (V, bool) {
	var zero V
	raw, err := c.db.Get(context.Background(), c.prefix+key)
	if err != nil {
		if !errors.Is(err, badger.ErrNotFound) {
			c.logger.Warn("cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return zero, false
	}
	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		c.logger.Warn("cache entry undecodable", slog.String("key", key), slog.String("error", err.Error()))
		return zero, false
	}
	return v, true
}

// Set implements Cache.
func (c *Badger[V]) Set(key string, value V) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache entry unencodable", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if err := c.db.Put(context.Background(), c.prefix+key, raw, c.ttl); err != nil {
		c.logger.Warn("cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}
