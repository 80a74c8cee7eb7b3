package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

const (
	maxEntries      = 10000
	cleanupInterval = time.Minute
	entryTTL        = 5 * time.Minute
)

type entry struct {
	timestamps []time.Time
	lastAccess time.Time
}

// MemoryLimiter is a per-process sliding window limiter.
type MemoryLimiter struct {
	clock clock.Clock

	mu          sync.Mutex
	store       map[string]*entry
	lastCleanup time.Time
}

func NewMemoryLimiter(clk clock.Clock) *MemoryLimiter {
	return &MemoryLimiter{
		clock:       clk,
		store:       make(map[string]*entry),
		lastCleanup: clk.Now(),
	}
}

func (rl *MemoryLimiter) cleanup(now time.Time) {
	if now.Sub(rl.lastCleanup) < cleanupInterval {
		return
	}
	rl.lastCleanup = now

	for key, e := range rl.store {
		if now.Sub(e.lastAccess) > entryTTL {
			delete(rl.store, key)
		}
	}

	if len(rl.store) > maxEntries {
		drop := len(rl.store) / 5
		for key := range rl.store {
			if drop == 0 {
				break
			}
			delete(rl.store, key)
			drop--
		}
	}
}

func (rl *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) Result {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	rl.cleanup(now)

	e, ok := rl.store[key]
	if !ok {
		e = &entry{}
		rl.store[key] = e
	}
	e.lastAccess = now

	windowStart := now.Add(-window)
	filtered := e.timestamps[:0]
	for _, ts := range e.timestamps {
		if ts.After(windowStart) {
			filtered = append(filtered, ts)
		}
	}
	e.timestamps = filtered

	resetAt := now.Add(window)
	if len(e.timestamps) > 0 {
		resetAt = e.timestamps[0].Add(window)
	}

	if len(e.timestamps) >= limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	e.timestamps = append(e.timestamps, now)
	return Result{Allowed: true, Remaining: limit - len(e.timestamps), ResetAt: resetAt}
}
