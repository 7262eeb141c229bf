package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/barberconnect/internal/connectaccount/domain"
	gatewaydomain "github.com/smallbiznis/barberconnect/internal/paymentgateway/domain"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) ExistsByOwner(ctx context.Context, db *gorm.DB, ownerID string) (bool, error) {
	args := m.Called(ctx, db, ownerID)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) Insert(ctx context.Context, db *gorm.DB, account *domain.PaymentAccount) error {
	args := m.Called(ctx, db, account)
	return args.Error(0)
}

func (m *mockRepo) FindByProviderAccountIDAndOwner(ctx context.Context, db *gorm.DB, providerAccountID, ownerID string) (*domain.PaymentAccount, error) {
	args := m.Called(ctx, db, providerAccountID, ownerID)
	if v := args.Get(0); v != nil {
		return v.(*domain.PaymentAccount), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepo) InsertOrphan(ctx context.Context, db *gorm.DB, orphan *domain.OrphanedAccount) error {
	args := m.Called(ctx, db, orphan)
	return args.Error(0)
}

func (m *mockRepo) ListPendingOrphans(ctx context.Context, db *gorm.DB, limit int) ([]*domain.OrphanedAccount, error) {
	args := m.Called(ctx, db, limit)
	if v := args.Get(0); v != nil {
		return v.([]*domain.OrphanedAccount), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepo) MarkOrphanResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	args := m.Called(ctx, db, id, at)
	return args.Error(0)
}

func (m *mockRepo) MarkOrphanAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, at time.Time) error {
	args := m.Called(ctx, db, id, lastError, at)
	return args.Error(0)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateAccount(ctx context.Context, in gatewaydomain.CreateAccountInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateOnboardingLink(ctx context.Context, accountID, origin string) (string, error) {
	args := m.Called(ctx, accountID, origin)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateDashboardLoginLink(ctx context.Context, accountID string) (string, error) {
	args := m.Called(ctx, accountID)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) RetrieveAccountStatus(ctx context.Context, accountID string) (gatewaydomain.AccountStatus, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(gatewaydomain.AccountStatus), args.Error(1)
}

func (m *mockGateway) DeleteAccount(ctx context.Context, accountID string) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}
