// Package ratelimit provides sliding window limiters keyed by an arbitrary
// string: a Redis backed one shared across replicas and an in-process one.
package ratelimit

import (
	"context"
	"time"
)

type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window frees a slot.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(r.ResetAt.Sub(now).Seconds()) + 1
	if secs < 1 {
		return 1
	}
	return secs
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) Result
}
