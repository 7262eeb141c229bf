package ratelimit

import (
	"context"
	"errors"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/barberconnect/internal/clock"
	"github.com/smallbiznis/barberconnect/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(newStores),
	fx.Provide(NewConnectLimiter),
)

type stores struct {
	fx.Out

	Limiter Limiter
	Locker  Locker
}

func newStores(lc fx.Lifecycle, cfg config.Config, c clock.Clock, log *zap.Logger) (stores, error) {
	limitCfg := cfg.RateLimit
	if limitCfg.Backend != config.RateLimitBackendRedis {
		log.Info("using in-memory rate limiter")
		return stores{
			Limiter: NewMemoryWindow(c),
			Locker:  NewMemoryLocker(c),
		}, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return stores{}, errors.New("rate limit redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	log.Info("using redis rate limiter", zap.String("addr", addr))
	return stores{
		Limiter: NewRedisWindow(client, c),
		Locker:  NewRedisLocker(client),
	}, nil
}
