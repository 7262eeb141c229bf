package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/barberconnect/internal/authorization"
	"github.com/smallbiznis/barberconnect/internal/clock"
	"github.com/smallbiznis/barberconnect/internal/config"
	"github.com/smallbiznis/barberconnect/internal/connectaccount/domain"
	gatewaydomain "github.com/smallbiznis/barberconnect/internal/paymentgateway/domain"
	"github.com/smallbiznis/barberconnect/internal/ratelimit"
	"github.com/smallbiznis/barberconnect/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	barberID      = "3f2b8c1e-9a4d-4f6b-8c2e-1a2b3c4d5e6f"
	otherBarberID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	accountID     = "acct_1AbCdEfGhIjKlMnO"
	origin        = "https://barberconnect.app"
	onboardingURL = "https://connect.stripe.com/setup/e/acct_1AbCdEfGhIjKlMnO/abc"
	loginURL      = "https://connect.stripe.com/express/acct_1AbCdEfGhIjKlMnO/xyz"
)

type fixture struct {
	svc     *Service
	repo    *mockRepo
	gateway *mockGateway
	limiter *ratelimit.ConnectLimiter
	clock   *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	enforcer, err := authorization.NewEnforcer(nil)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})

	cfg := config.Config{
		Stripe: config.StripeConfig{SecretKey: "sk_test_123"},
		RateLimit: config.RateLimitConfig{
			CreateAccountLimit:  5,
			CreateAccountWindow: 5 * time.Minute,
			DashboardLinkLimit:  10,
			DashboardLinkWindow: 5 * time.Minute,
			CreateLockTTL:       30 * time.Second,
		},
	}
	limiter := ratelimit.NewConnectLimiter(cfg, ratelimit.NewMemoryWindow(clk), ratelimit.NewMemoryLocker(clk), nil, zap.NewNop())

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := &mockRepo{}
	gw := &mockGateway{}
	svc := New(Params{
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Config:  cfg,
		Policy:  config.NewStaticConnectPolicyHolder(config.ConnectPolicy{AllowedOrigins: []string{origin}, DashboardPath: "/dashboard"}),
		Repo:    repo,
		Gateway: gw,
		Authz:   authz,
		Limiter: limiter,
	}).(*Service)
	svc.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}

	t.Cleanup(func() {
		repo.AssertExpectations(t)
		gw.AssertExpectations(t)
	})
	return &fixture{svc: svc, repo: repo, gateway: gw, limiter: limiter, clock: clk}
}

func createRequest() domain.CreateAccountRequest {
	return domain.CreateAccountRequest{CallerID: barberID, OwnerID: barberID, Origin: origin}
}

func TestCreateAccountSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.On("ExistsByOwner", mock.Anything, mock.Anything, barberID).Return(false, nil).Once()
	f.gateway.On("CreateAccount", mock.Anything, mock.MatchedBy(func(in gatewaydomain.CreateAccountInput) bool {
		return in.OwnerID == barberID
	})).Return(accountID, nil).Once()
	f.repo.On("Insert", mock.Anything, mock.Anything, mock.MatchedBy(func(a *domain.PaymentAccount) bool {
		return a.OwnerID == barberID &&
			a.ProviderAccountID != nil && *a.ProviderAccountID == accountID &&
			a.Status == domain.StatusPending && a.ID != 0 &&
			!a.DetailsSubmitted && !a.ChargesEnabled && !a.PayoutsEnabled
	})).Return(nil).Once()
	f.gateway.On("CreateOnboardingLink", mock.Anything, accountID, origin).Return(onboardingURL, nil).Once()

	resp, err := f.svc.CreateAccount(ctx, createRequest())
	require.NoError(t, err)
	assert.Equal(t, onboardingURL, resp.URL)
	assert.Empty(t, resp.Message)
}

func TestCreateAccountNormalizesCase(t *testing.T) {
	f := newFixture(t)

	f.repo.On("ExistsByOwner", mock.Anything, mock.Anything, barberID).Return(true, nil).Once()

	_, err := f.svc.CreateAccount(context.Background(), domain.CreateAccountRequest{
		CallerID: barberID,
		OwnerID:  "3F2B8C1E-9A4D-4F6B-8C2E-1A2B3C4D5E6F",
		Origin:   origin,
	})
	assert.ErrorIs(t, err, domain.ErrAccountExists)
}

func TestCreateAccountRejectsMalformedOwnerWithoutSideEffects(t *testing.T) {
	for _, owner := range []string{"", "not-a-uuid", "3f2b8c1e-9a4d-1f6b-8c2e-1a2b3c4d5e6f", "'; DROP TABLE payment_accounts;--"} {
		t.Run(owner, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateAccount(context.Background(), domain.CreateAccountRequest{CallerID: barberID, OwnerID: owner, Origin: origin})
			require.Error(t, err)
			var fieldErr *validation.FieldError
			assert.True(t, errors.As(err, &fieldErr))
			f.repo.AssertNotCalled(t, "ExistsByOwner", mock.Anything, mock.Anything, mock.Anything)
			f.gateway.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateAccountForAnotherUserIsForbidden(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateAccount(context.Background(), domain.CreateAccountRequest{CallerID: barberID, OwnerID: otherBarberID, Origin: origin})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
	f.repo.AssertNotCalled(t, "ExistsByOwner", mock.Anything, mock.Anything, mock.Anything)
	f.gateway.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
}

func TestCreateAccountExistingAccountConflicts(t *testing.T) {
	f := newFixture(t)

	f.repo.On("ExistsByOwner", mock.Anything, mock.Anything, barberID).Return(true, nil).Once()

	_, err := f.svc.CreateAccount(context.Background(), createRequest())
	assert.ErrorIs(t, err, domain.ErrAccountExists)
	f.gateway.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
}

func TestCreateAccountRollsBackWhenInsertFails(t *testing.T) {
	f := newFixture(t)

	f.repo.On("ExistsByOwner", mock.Anything, mock.Anything, barberID).Return(false, nil).Once()
	f.gateway.On("CreateAccount", mock.Anything, mock.Anything).Return(accountID, nil).Once()
	f.repo.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection reset")).Once()
	f.gateway.On("DeleteAccount", mock.Anything, accountID).Return(nil).Once()

	_, err := f.svc.CreateAccount(context.Background(), createRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.NotErrorIs(t, err, gatewaydomain.ErrUpstream)
	f.gateway.AssertNumberOfCalls(t, "DeleteAccount", 1)
	f.gateway.AssertNotCalled(t, "CreateOnboardingLink", mock.Anything, mock.Anything, mock.Anything)
	f.repo.AssertNotCalled(t, "InsertOrphan", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateAccountRecordsOrphanWhenRollbackFails(t *testing.T) {
	f := newFixture(t)

	f.repo.On("ExistsByOwner", mock.Anything, mock.Anything, barberID).Return(false, nil).Once()
	f.gateway.On("CreateAccount", mock.Anything, mock.Anything).Return(accountID, nil).Once()
	f.repo.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()
	f.gateway.On("DeleteAccount", mock.Anything, accountID).
		Return(gatewaydomain.NewError(gatewaydomain.KindUnavailable, "delete_account", context.DeadlineExceeded)).Once()
	f.repo.On("InsertOrphan", mock.Anything, mock.Anything, mock.MatchedBy(func(o *domain.OrphanedAccount) bool {
		return o.ProviderAccountID == accountID &&
			o.OwnerID == barberID &&
			o.Reason == domain.OrphanReasonRollbackFailed &&
			o.LastError != nil && len(o.Details) > 0
	})).Return(nil).Once()

	_, err := f.svc.CreateAccount(context.Background(), createRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.NotErrorIs(t, err, gatewaydomain.ErrUpstreamUnavailable)
}

func TestCreateAccountUniqueViolationIsConflict(t *testing.T) {
	f := newFixture(t)

	f.repo.On("ExistsByOwner", mock.Anything, mock.Anything, barberID).Return(false, nil).Once()
	f.gateway.On("CreateAccount", mock.Anything, mock.Anything).Return(accountID, nil).Once()
	f.repo.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(gorm.ErrDuplicatedKey).Once()
	f.gateway.On("DeleteAccount", mock.Anything, accountID).Return(nil).Once()

	_, err := f.svc.CreateAccount(context.Background(), createRequest())
	assert.ErrorIs(t, err, domain.ErrAccountExists)
}

func TestCreateAccountGatewayFailure(t *testing.T) {
	f := newFixture(t)

	f.repo.On("ExistsByOwner", mock.Anything, mock.Anything, barberID).Return(false, nil).Once()
	f.gateway.On("CreateAccount", mock.Anything, mock.Anything).
		Return("", gatewaydomain.NewError(gatewaydomain.KindUpstream, "create_account", errors.New("invalid country"))).Once()

	_, err := f.svc.CreateAccount(context.Background(), createRequest())
	assert.ErrorIs(t, err, gatewaydomain.ErrUpstream)
	f.repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateAccountInvalidOrigin(t *testing.T) {
	f := newFixture(t)

	f.repo.On("ExistsByOwner", mock.Anything, mock.Anything, barberID).Return(false, nil).Once()
	f.gateway.On("CreateAccount", mock.Anything, mock.Anything).Return(accountID, nil).Once()
	f.repo.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	req := createRequest()
	req.Origin = "https://evil.example"
	_, err := f.svc.CreateAccount(context.Background(), req)
	assert.ErrorIs(t, err, validation.ErrInvalidOrigin)
	f.gateway.AssertNotCalled(t, "CreateOnboardingLink", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateAccountRateLimited(t *testing.T) {
	f := newFixture(t)

	f.repo.On("ExistsByOwner", mock.Anything, mock.Anything, barberID).Return(true, nil).Times(5)

	for i := 0; i < 5; i++ {
		_, err := f.svc.CreateAccount(context.Background(), createRequest())
		require.ErrorIs(t, err, domain.ErrAccountExists)
	}

	_, err := f.svc.CreateAccount(context.Background(), createRequest())
	require.ErrorIs(t, err, ratelimit.ErrLimited)
	var limited *ratelimit.LimitedError
	require.True(t, errors.As(err, &limited))
	assert.Equal(t, 5*time.Minute, limited.RetryAfter)

	f.clock.Advance(5*time.Minute + time.Second)
	f.repo.On("ExistsByOwner", mock.Anything, mock.Anything, barberID).Return(true, nil).Once()
	_, err = f.svc.CreateAccount(context.Background(), createRequest())
	assert.ErrorIs(t, err, domain.ErrAccountExists)
}

func TestCreateAccountWhileCreationInProgress(t *testing.T) {
	f := newFixture(t)

	unlock, err := f.limiter.LockCreate(context.Background(), barberID)
	require.NoError(t, err)
	defer unlock()

	_, err = f.svc.CreateAccount(context.Background(), createRequest())
	assert.ErrorIs(t, err, domain.ErrCreationInProgress)
	f.repo.AssertNotCalled(t, "ExistsByOwner", mock.Anything, mock.Anything, mock.Anything)
}

func dashboardRequest() domain.DashboardLinkRequest {
	return domain.DashboardLinkRequest{CallerID: barberID, ProviderAccountID: accountID, Origin: origin}
}

func ownedRecord() *domain.PaymentAccount {
	id := accountID
	return &domain.PaymentAccount{ID: 1, OwnerID: barberID, ProviderAccountID: &id, Status: domain.StatusPending}
}

func TestDashboardLinkReturnsLoginLink(t *testing.T) {
	f := newFixture(t)

	f.repo.On("FindByProviderAccountIDAndOwner", mock.Anything, mock.Anything, accountID, barberID).Return(ownedRecord(), nil).Once()
	f.gateway.On("RetrieveAccountStatus", mock.Anything, accountID).
		Return(gatewaydomain.AccountStatus{DetailsSubmitted: true, ChargesEnabled: true, PayoutsEnabled: true}, nil).Once()
	f.gateway.On("CreateDashboardLoginLink", mock.Anything, accountID).Return(loginURL, nil).Once()

	resp, err := f.svc.DashboardLink(context.Background(), dashboardRequest())
	require.NoError(t, err)
	assert.Equal(t, loginURL, resp.URL)
	assert.Empty(t, resp.Message)
	f.gateway.AssertNotCalled(t, "CreateOnboardingLink", mock.Anything, mock.Anything, mock.Anything)
}

func TestDashboardLinkFallsBackToOnboarding(t *testing.T) {
	f := newFixture(t)

	f.repo.On("FindByProviderAccountIDAndOwner", mock.Anything, mock.Anything, accountID, barberID).Return(ownedRecord(), nil).Once()
	f.gateway.On("RetrieveAccountStatus", mock.Anything, accountID).Return(gatewaydomain.AccountStatus{}, nil).Once()
	f.gateway.On("CreateOnboardingLink", mock.Anything, accountID, origin).Return(onboardingURL, nil).Once()

	resp, err := f.svc.DashboardLink(context.Background(), dashboardRequest())
	require.NoError(t, err)
	assert.Equal(t, onboardingURL, resp.URL)
	assert.Equal(t, domain.MessageOnboardingIncomplete, resp.Message)
	f.gateway.AssertNotCalled(t, "CreateDashboardLoginLink", mock.Anything, mock.Anything)
}

func TestDashboardLinkOnboardingFallbackChecksOrigin(t *testing.T) {
	f := newFixture(t)

	f.repo.On("FindByProviderAccountIDAndOwner", mock.Anything, mock.Anything, accountID, barberID).Return(ownedRecord(), nil).Once()
	f.gateway.On("RetrieveAccountStatus", mock.Anything, accountID).Return(gatewaydomain.AccountStatus{}, nil).Once()

	req := dashboardRequest()
	req.Origin = ""
	_, err := f.svc.DashboardLink(context.Background(), req)
	assert.ErrorIs(t, err, validation.ErrInvalidOrigin)
}

func TestDashboardLinkForeignAccountIsForbidden(t *testing.T) {
	f := newFixture(t)

	f.repo.On("FindByProviderAccountIDAndOwner", mock.Anything, mock.Anything, accountID, otherBarberID).Return(nil, nil).Once()

	_, err := f.svc.DashboardLink(context.Background(), domain.DashboardLinkRequest{CallerID: otherBarberID, ProviderAccountID: accountID})
	assert.ErrorIs(t, err, domain.ErrNotOwner)
	f.gateway.AssertNotCalled(t, "RetrieveAccountStatus", mock.Anything, mock.Anything)
}

func TestDashboardLinkModeMismatch(t *testing.T) {
	f := newFixture(t)

	f.repo.On("FindByProviderAccountIDAndOwner", mock.Anything, mock.Anything, accountID, barberID).Return(ownedRecord(), nil).Once()
	f.gateway.On("RetrieveAccountStatus", mock.Anything, accountID).
		Return(gatewaydomain.AccountStatus{}, gatewaydomain.NewError(gatewaydomain.KindModeMismatch, "retrieve_account", errors.New("testmode key"))).Once()

	_, err := f.svc.DashboardLink(context.Background(), dashboardRequest())
	assert.ErrorIs(t, err, gatewaydomain.ErrModeMismatch)
}

func TestDashboardLinkRejectsMalformedAccountID(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.DashboardLink(context.Background(), domain.DashboardLinkRequest{CallerID: barberID, ProviderAccountID: "acct_123"})
	assert.ErrorIs(t, err, validation.ErrInvalidFormat)
	f.repo.AssertNotCalled(t, "FindByProviderAccountIDAndOwner", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDashboardLinkRateLimited(t *testing.T) {
	f := newFixture(t)

	f.repo.On("FindByProviderAccountIDAndOwner", mock.Anything, mock.Anything, accountID, barberID).Return(nil, nil).Times(10)
	for i := 0; i < 10; i++ {
		_, err := f.svc.DashboardLink(context.Background(), dashboardRequest())
		require.ErrorIs(t, err, domain.ErrNotOwner)
	}
	_, err := f.svc.DashboardLink(context.Background(), dashboardRequest())
	assert.ErrorIs(t, err, ratelimit.ErrLimited)
}

func TestReconcileOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orphans := []*domain.OrphanedAccount{
		{ID: 1, ProviderAccountID: "acct_0000000000000001", OwnerID: barberID},
		{ID: 2, ProviderAccountID: "acct_0000000000000002", OwnerID: otherBarberID},
		{ID: 3, ProviderAccountID: "acct_0000000000000003", OwnerID: otherBarberID},
	}
	f.repo.On("ListPendingOrphans", mock.Anything, mock.Anything, reconcileBatchSize).Return(orphans, nil).Once()

	// Transient failure, then success.
	f.gateway.On("DeleteAccount", mock.Anything, "acct_0000000000000001").
		Return(gatewaydomain.NewError(gatewaydomain.KindUnavailable, "delete_account", nil)).Once()
	f.gateway.On("DeleteAccount", mock.Anything, "acct_0000000000000001").Return(nil).Once()
	f.repo.On("MarkOrphanResolved", mock.Anything, mock.Anything, snowflake.ID(1), f.clock.Now()).Return(nil).Once()

	// Permanent failure is not retried.
	f.gateway.On("DeleteAccount", mock.Anything, "acct_0000000000000002").
		Return(gatewaydomain.NewError(gatewaydomain.KindUpstream, "delete_account", errors.New("<b>account has balance</b>"))).Once()
	f.repo.On("MarkOrphanAttempt", mock.Anything, mock.Anything, snowflake.ID(2), mock.MatchedBy(func(msg string) bool {
		return msg != "" && !strings.ContainsAny(msg, "<>")
	}), f.clock.Now()).Return(nil).Once()

	// Transient failures exhaust the retries.
	f.gateway.On("DeleteAccount", mock.Anything, "acct_0000000000000003").
		Return(gatewaydomain.NewError(gatewaydomain.KindUnavailable, "delete_account", nil)).Times(3)
	f.repo.On("MarkOrphanAttempt", mock.Anything, mock.Anything, snowflake.ID(3), mock.Anything, f.clock.Now()).Return(nil).Once()

	report, err := f.svc.ReconcileOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileReport{Scanned: 3, Resolved: 1, Failed: 2}, report)
}

func TestReconcileOrphansListFailure(t *testing.T) {
	f := newFixture(t)

	f.repo.On("ListPendingOrphans", mock.Anything, mock.Anything, reconcileBatchSize).Return(nil, errors.New("db down")).Once()

	_, err := f.svc.ReconcileOrphans(context.Background())
	assert.Error(t, err)
}
