package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/barberconnect/internal/authorization"
	"github.com/smallbiznis/barberconnect/internal/clock"
	"github.com/smallbiznis/barberconnect/internal/config"
	"github.com/smallbiznis/barberconnect/internal/connectaccount/domain"
	"github.com/smallbiznis/barberconnect/internal/observability/logger"
	"github.com/smallbiznis/barberconnect/internal/observability/metrics"
	gatewaydomain "github.com/smallbiznis/barberconnect/internal/paymentgateway/domain"
	"github.com/smallbiznis/barberconnect/internal/ratelimit"
	"github.com/smallbiznis/barberconnect/internal/validation"
	"github.com/smallbiznis/barberconnect/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const reconcileBatchSize = 100

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  config.Config
	Policy  *config.ConnectPolicyHolder
	Repo    domain.Repository
	Gateway gatewaydomain.Gateway
	Authz   authorization.Service
	Limiter domain.RateLimiter
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	policy  *config.ConnectPolicyHolder
	repo    domain.Repository
	gateway gatewaydomain.Gateway
	authz   authorization.Service
	limiter domain.RateLimiter
	metrics *metrics.Metrics
	mode    string

	newBackOff func() backoff.BackOff
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("connectaccount.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		policy:     p.Policy,
		repo:       p.Repo,
		gateway:    p.Gateway,
		authz:      p.Authz,
		limiter:    p.Limiter,
		metrics:    p.Metrics,
		mode:       p.Config.StripeMode(),
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithMaxRetries(b, 3)
}

func (s *Service) CreateAccount(ctx context.Context, req domain.CreateAccountRequest) (*domain.LinkResponse, error) {
	ownerID, err := validation.OwnerID(req.OwnerID)
	if err != nil {
		return nil, err
	}
	ownerID = strings.ToLower(ownerID)
	callerID := strings.ToLower(strings.TrimSpace(req.CallerID))

	if err := s.authz.AuthorizeSelf(ctx, callerID, ownerID); err != nil {
		return nil, err
	}
	if err := s.limiter.AllowCreate(ctx, callerID); err != nil {
		return nil, err
	}

	unlock, err := s.limiter.LockCreate(ctx, ownerID)
	if err != nil {
		if errors.Is(err, ratelimit.ErrLockHeld) {
			return nil, domain.ErrCreationInProgress
		}
		return nil, err
	}
	defer unlock()

	exists, err := s.repo.ExistsByOwner(ctx, s.db, ownerID)
	if err != nil {
		return nil, fmt.Errorf("check existing account: %w", err)
	}
	if exists {
		return nil, domain.ErrAccountExists
	}

	accountID, err := s.gateway.CreateAccount(ctx, gatewaydomain.CreateAccountInput{
		OwnerID: ownerID,
		Email:   req.CallerEmail,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	record := domain.PaymentAccount{
		ID:                s.genID.Generate(),
		OwnerID:           ownerID,
		ProviderAccountID: &accountID,
		Status:            domain.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Insert(ctx, s.db, &record); err != nil {
		s.rollback(ctx, ownerID, accountID, err)
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	s.metrics.RecordAccountCreated(ctx, s.mode)

	log := logger.WithContext(ctx, s.log)
	log.Info("connected account provisioned",
		zap.String("owner_id", ownerID),
		zap.String("provider_account_id", accountID),
	)

	origin, err := validation.Origin(req.Origin, s.policy.Get().AllowedOrigins)
	if err != nil {
		return nil, err
	}

	url, err := s.gateway.CreateOnboardingLink(ctx, accountID, origin)
	if err != nil {
		return nil, err
	}
	return &domain.LinkResponse{URL: url}, nil
}

// rollback deletes a provider account whose local record could not be stored.
// A failed delete is recorded for reconciliation and never replaces cause.
func (s *Service) rollback(ctx context.Context, ownerID, accountID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	log := logger.WithContext(ctx, s.log).With(
		zap.String("owner_id", ownerID),
		zap.String("provider_account_id", accountID),
	)
	log.Warn("storing connected account failed, rolling back", zap.Error(cause))

	deleteErr := s.gateway.DeleteAccount(ctx, accountID)
	if deleteErr == nil {
		s.metrics.RecordRollback(ctx, "deleted")
		return
	}

	s.metrics.RecordRollback(ctx, "failed")
	log.Error("rollback of connected account failed", zap.Error(deleteErr))

	details, _ := json.Marshal(map[string]string{
		"insert_error": validation.Sanitize(cause.Error()),
		"delete_error": validation.Sanitize(deleteErr.Error()),
	})
	lastError := validation.Sanitize(deleteErr.Error())
	now := s.clock.Now()
	orphan := domain.OrphanedAccount{
		ID:                s.genID.Generate(),
		ProviderAccountID: accountID,
		OwnerID:           ownerID,
		Reason:            domain.OrphanReasonRollbackFailed,
		Details:           datatypes.JSON(details),
		LastError:         &lastError,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.InsertOrphan(ctx, s.db, &orphan); err != nil {
		log.Error("recording orphaned connected account failed", zap.Error(err))
	}
}

func (s *Service) DashboardLink(ctx context.Context, req domain.DashboardLinkRequest) (*domain.LinkResponse, error) {
	accountID, err := validation.ProviderAccountID(req.ProviderAccountID)
	if err != nil {
		return nil, err
	}
	callerID := strings.ToLower(strings.TrimSpace(req.CallerID))

	if err := s.limiter.AllowDashboard(ctx, callerID); err != nil {
		return nil, err
	}

	record, err := s.repo.FindByProviderAccountIDAndOwner(ctx, s.db, accountID, callerID)
	if err != nil {
		return nil, fmt.Errorf("find connected account: %w", err)
	}
	if record == nil {
		return nil, domain.ErrNotOwner
	}
	if err := s.authz.Authorize(ctx, callerID, record.OwnerID, authorization.ActionConnectAccountDashboard); err != nil {
		return nil, domain.ErrNotOwner
	}

	status, err := s.gateway.RetrieveAccountStatus(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if !status.DetailsSubmitted {
		origin, err := validation.Origin(req.Origin, s.policy.Get().AllowedOrigins)
		if err != nil {
			return nil, err
		}
		url, err := s.gateway.CreateOnboardingLink(ctx, accountID, origin)
		if err != nil {
			return nil, err
		}
		return &domain.LinkResponse{URL: url, Message: domain.MessageOnboardingIncomplete}, nil
	}

	url, err := s.gateway.CreateDashboardLoginLink(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &domain.LinkResponse{URL: url}, nil
}

// ReconcileOrphans retries the delete of every unresolved orphaned account.
func (s *Service) ReconcileOrphans(ctx context.Context) (domain.ReconcileReport, error) {
	var report domain.ReconcileReport

	orphans, err := s.repo.ListPendingOrphans(ctx, s.db, reconcileBatchSize)
	if err != nil {
		return report, fmt.Errorf("list orphaned accounts: %w", err)
	}
	report.Scanned = len(orphans)

	for _, orphan := range orphans {
		if orphan == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		log := s.log.With(
			zap.String("provider_account_id", orphan.ProviderAccountID),
			zap.Int("attempts", orphan.Attempts),
		)

		deleteErr := backoff.Retry(func() error {
			err := s.gateway.DeleteAccount(ctx, orphan.ProviderAccountID)
			if err == nil || errors.Is(err, gatewaydomain.ErrUpstreamUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}, backoff.WithContext(s.newBackOff(), ctx))

		now := s.clock.Now()
		if deleteErr != nil {
			report.Failed++
			log.Warn("orphaned account delete failed", zap.Error(deleteErr))
			if orphan.Attempts+1 >= domain.MaxOrphanAttempts {
				log.Error("orphaned account parked, manual cleanup required", zap.Error(deleteErr))
			}
			if err := s.repo.MarkOrphanAttempt(ctx, s.db, orphan.ID, validation.Sanitize(deleteErr.Error()), now); err != nil {
				return report, fmt.Errorf("record orphan attempt: %w", err)
			}
			continue
		}

		if err := s.repo.MarkOrphanResolved(ctx, s.db, orphan.ID, now); err != nil {
			return report, fmt.Errorf("resolve orphan: %w", err)
		}
		report.Resolved++
		log.Info("orphaned account deleted")
	}

	return report, nil
}
