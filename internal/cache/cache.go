// Package cache provides the orchestrator's short-lived in-memory result
// cache, keyed by request fingerprints.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Fingerprint derives a cache key from the normalized request parameters.
// The provider identity is part of the key so a provider-forced request can
// never serve another provider's cached output.
func Fingerprint(operation, query, queryType, language, provider string, limit int) string {
	h := sha256.Sum256([]byte(strings.Join([]string{
		operation,
		strings.ToLower(query),
		queryType,
		language,
		provider,
		fmt.Sprintf("%d", limit),
	}, "\x1f")))
	return hex.EncodeToString(h[:])
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a TTL map safe for concurrent use. Racing fills are resolved
// last-writer-wins; values for the same key derive identically so this has
// no correctness impact.
type Cache struct {
	ttl        time.Duration
	maxEntries int

	mu      sync.RWMutex
	entries map[string]entry

	nowFunc func() time.Time
}

// New creates a cache with the given TTL and entry bound. Zero values fall
// back to 15 minutes and 4096 entries.
func New(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]entry),
		nowFunc:    time.Now,
	}
}

// Get returns the cached value for key, or false when absent or expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.nowFunc().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for one TTL. When the cache is full, expired
// entries are dropped first; if still full the write is skipped rather than
// evicting live results.
func (c *Cache) Set(key string, value any) {
	now := c.nowFunc()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.sweepLocked(now)
		if len(c.entries) >= c.maxEntries {
			return
		}
	}
	c.entries[key] = entry{value: value, expiresAt: now.Add(c.ttl)}
}

// Len returns the current entry count, including not-yet-swept expired ones.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.nowFunc())
}

func (c *Cache) sweepLocked(now time.Time) int {
	var dropped int
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			dropped++
		}
	}
	return dropped
}

// StartSweeper runs a periodic sweep until ctx is cancelled.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					zap.L().Debug("cache: swept expired entries", zap.Int("dropped", n))
				}
			}
		}
	}()
}
