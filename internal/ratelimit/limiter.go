package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrLimited            = errors.New("rate_limited")
	ErrLimiterUnavailable = errors.New("rate_limiter_unavailable")
	ErrLockHeld           = errors.New("lock_held")
)

// Policy allows Limit requests per key in each fixed Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

func (p Policy) validate() error {
	if p.Limit <= 0 {
		return errors.New("rate limit must be positive")
	}
	if p.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	return nil
}

type Result struct {
	Allowed    bool
	Limit      int
	Count      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter counts requests per key. The first request of a window, or the first
// one after the window resets, starts a new window with a count of 1.
type Limiter interface {
	Allow(ctx context.Context, key string, policy Policy) (*Result, error)
}

// LimitedError is returned to callers once a key is over its limit.
type LimitedError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("rate limited on %s, retry after %s", e.Endpoint, e.RetryAfter)
}

func (e *LimitedError) Unwrap() error {
	return ErrLimited
}

// RetryAfterSeconds rounds up to whole seconds for the Retry-After header.
func (e *LimitedError) RetryAfterSeconds() int {
	return RetryAfterSeconds(e.RetryAfter)
}

func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}

func newResult(policy Policy, count int, resetAt, now time.Time) *Result {
	res := &Result{
		Allowed: count <= policy.Limit,
		Limit:   policy.Limit,
		Count:   count,
		ResetAt: resetAt,
	}
	if remaining := policy.Limit - count; remaining > 0 {
		res.Remaining = remaining
	}
	if !res.Allowed {
		res.RetryAfter = resetAt.Sub(now)
		if res.RetryAfter < time.Second {
			res.RetryAfter = time.Second
		}
	}
	return res
}
