package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/barberconnect/internal/config"
	"github.com/smallbiznis/barberconnect/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	EndpointCreateAccount = "create_account"
	EndpointDashboardLink = "dashboard_link"
)

const (
	keyCreateAccount = "connect:ratelimit:create:%s"
	keyDashboardLink = "connect:ratelimit:dashboard:%s"
	keyCreateLock    = "connect:lock:create:%s"
)

// ConnectLimiter applies the per-caller limits of the connect endpoints and
// serializes account creation per owner.
type ConnectLimiter struct {
	limiter Limiter
	locker  Locker
	metrics *metrics.Metrics
	log     *zap.Logger

	create    Policy
	dashboard Policy
	lockTTL   time.Duration
}

func NewConnectLimiter(cfg config.Config, limiter Limiter, locker Locker, m *metrics.Metrics, log *zap.Logger) *ConnectLimiter {
	rl := cfg.RateLimit
	lockTTL := rl.CreateLockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &ConnectLimiter{
		limiter:   limiter,
		locker:    locker,
		metrics:   m,
		log:       log.Named("ratelimit.connect"),
		create:    Policy{Limit: positive(rl.CreateAccountLimit, 5), Window: positiveDuration(rl.CreateAccountWindow, 5*time.Minute)},
		dashboard: Policy{Limit: positive(rl.DashboardLinkLimit, 10), Window: positiveDuration(rl.DashboardLinkWindow, 5*time.Minute)},
		lockTTL:   lockTTL,
	}
}

func (l *ConnectLimiter) AllowCreate(ctx context.Context, callerID string) error {
	return l.allow(ctx, EndpointCreateAccount, fmt.Sprintf(keyCreateAccount, normalizeKey(callerID)), l.create)
}

func (l *ConnectLimiter) AllowDashboard(ctx context.Context, callerID string) error {
	return l.allow(ctx, EndpointDashboardLink, fmt.Sprintf(keyDashboardLink, normalizeKey(callerID)), l.dashboard)
}

func (l *ConnectLimiter) allow(ctx context.Context, endpoint, key string, policy Policy) error {
	res, err := l.limiter.Allow(ctx, key, policy)
	if err != nil {
		l.log.Error("rate limiter unavailable", zap.String("endpoint", endpoint), zap.Error(err))
		l.metrics.RecordRateLimitDenied(ctx, endpoint, "store_error")
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	if !res.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, endpoint, "limit_exceeded")
		return &LimitedError{Endpoint: endpoint, RetryAfter: res.RetryAfter}
	}
	l.metrics.RecordRateLimitAllowed(ctx, endpoint)
	return nil
}

// LockCreate takes the per-owner creation lease. The returned func releases it
// and is safe to call once the request context is done.
func (l *ConnectLimiter) LockCreate(ctx context.Context, ownerID string) (func(), error) {
	key := fmt.Sprintf(keyCreateLock, normalizeKey(ownerID))
	token, ok, err := l.locker.TryLock(ctx, key, l.lockTTL)
	if err != nil {
		l.log.Error("creation lock unavailable", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := l.locker.Release(releaseCtx, key, token); err != nil {
			l.log.Warn("release creation lock failed", zap.Error(err))
		}
	}, nil
}

func normalizeKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func positive(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func positiveDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
