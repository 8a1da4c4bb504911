// Package ratelimit implements the fixed-window request quota applied per
// API credential. MemoryLimiter is a single-instance approximation;
// RedisLimiter shares counters across instances with the same contract.
package ratelimit

import (
	"context"
	"time"
)

// Result describes the quota state after a request was counted
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time until the current window closes, at least one second
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d.Round(time.Second)
}

// Limiter counts a request against key's window
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}
