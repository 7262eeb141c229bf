package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/barberconnect/internal/clock"
	"github.com/smallbiznis/barberconnect/internal/config"
	connectaccountdomain "github.com/smallbiznis/barberconnect/internal/connectaccount/domain"
	obscontext "github.com/smallbiznis/barberconnect/internal/observability/context"
	obslogger "github.com/smallbiznis/barberconnect/internal/observability/logger"
	"github.com/smallbiznis/barberconnect/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobReconcileOrphans = "reconcile_orphans"

	jobLockKeyFormat = "connect:scheduler:%s"
	systemActor      = "scheduler"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Config controls how often jobs run and how long each may take.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 10 * time.Minute,
		JobTimeout:  5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Reconcile.Interval,
		JobTimeout:  cfg.Reconcile.Timeout,
	}
}

type Params struct {
	fx.In

	Log        *zap.Logger
	ConnectSvc connectaccountdomain.Service
	Locker     ratelimit.Locker
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config `optional:"true"`
}

// Scheduler runs background jobs. Each job holds a lease on the shared locker
// while it runs so only one instance works at a time.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	connectSvc connectaccountdomain.Service
	locker     ratelimit.Locker
	genID      *snowflake.Node
	clock      clock.Clock
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.ConnectSvc == nil || p.Locker == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		connectSvc: p.ConnectSvc,
		locker:     p.Locker,
		genID:      p.GenID,
		clock:      p.Clock,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	runID := s.genID.Generate().String()
	ctx = obscontext.WithRequestID(ctx, runID)
	ctx = obscontext.WithActorID(ctx, systemActor)
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("job", name),
		zap.String("run_id", runID),
	)

	lockKey := fmt.Sprintf(jobLockKeyFormat, name)
	token, acquired, err := s.locker.TryLock(ctx, lockKey, s.cfg.JobTimeout)
	if err != nil {
		return fmt.Errorf("%s: acquire lock: %w", name, err)
	}
	if !acquired {
		log.Debug("job already running elsewhere, skipping")
		return nil
	}
	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer releaseCancel()
		if err := s.locker.Release(releaseCtx, lockKey, token); err != nil {
			log.Warn("job lock release failed", zap.Error(err))
		}
	}()

	log.Info("job started")
	err = fn(ctx)
	duration := s.clock.Now().Sub(start)
	if err == nil {
		log.Info("job finished", zap.Duration("duration", duration))
		return nil
	}

	// deadline is a soft timeout; the next run picks up the rest
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, JobReconcileOrphans, s.ReconcileOrphansJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) ReconcileOrphansJob(ctx context.Context) error {
	report, err := s.connectSvc.ReconcileOrphans(ctx)
	if report.Scanned > 0 {
		obslogger.WithContext(ctx, s.log).Info("orphaned accounts reconciled",
			zap.Int("scanned", report.Scanned),
			zap.Int("resolved", report.Resolved),
			zap.Int("failed", report.Failed),
		)
	}
	return err
}
