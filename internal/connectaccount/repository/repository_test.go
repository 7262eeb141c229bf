package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/barberconnect/internal/connectaccount/domain"
	"github.com/smallbiznis/barberconnect/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	ownerA   = "3f2b8c1e-9a4d-4f6b-8c2e-1a2b3c4d5e6f"
	ownerB   = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	accountA = "acct_1AbCdEfGhIjKlMnO"
	accountB = "acct_2AbCdEfGhIjKlMnO"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.PaymentAccount{}, &domain.OrphanedAccount{}))
	return conn
}

func newNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func newAccount(node *snowflake.Node, owner string, providerID *string) *domain.PaymentAccount {
	now := time.Now().UTC()
	return &domain.PaymentAccount{
		ID:                node.Generate(),
		OwnerID:           owner,
		ProviderAccountID: providerID,
		Status:            domain.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func strPtr(s string) *string { return &s }

func TestInsertAndLookup(t *testing.T) {
	conn := setupDB(t)
	node := newNode(t)
	r := Provide()
	ctx := context.Background()

	exists, err := r.ExistsByOwner(ctx, conn, ownerA)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, r.Insert(ctx, conn, newAccount(node, ownerA, strPtr(accountA))))

	exists, err = r.ExistsByOwner(ctx, conn, ownerA)
	require.NoError(t, err)
	assert.True(t, exists)

	found, err := r.FindByProviderAccountIDAndOwner(ctx, conn, accountA, ownerA)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ownerA, found.OwnerID)
	assert.Equal(t, domain.StatusPending, found.Status)
	assert.False(t, found.DetailsSubmitted)

	// Another owner cannot see the record.
	found, err = r.FindByProviderAccountIDAndOwner(ctx, conn, accountA, ownerB)
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = r.FindByProviderAccountIDAndOwner(ctx, conn, accountB, ownerA)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestExistsIgnoresUnprovisionedRecord(t *testing.T) {
	conn := setupDB(t)
	r := Provide()
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, conn, newAccount(newNode(t), ownerA, nil)))

	exists, err := r.ExistsByOwner(ctx, conn, ownerA)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInsertRejectsDuplicates(t *testing.T) {
	conn := setupDB(t)
	node := newNode(t)
	r := Provide()
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, conn, newAccount(node, ownerA, strPtr(accountA))))

	err := r.Insert(ctx, conn, newAccount(node, ownerA, strPtr(accountB)))
	require.Error(t, err)
	assert.True(t, db.IsDuplicateKeyErr(err))

	// Never overwrite another owner's provider account.
	err = r.Insert(ctx, conn, newAccount(node, ownerB, strPtr(accountA)))
	require.Error(t, err)
	assert.True(t, db.IsDuplicateKeyErr(err))

	found, err := r.FindByProviderAccountIDAndOwner(ctx, conn, accountA, ownerA)
	require.NoError(t, err)
	require.NotNil(t, found)
}

func TestOrphanLifecycle(t *testing.T) {
	conn := setupDB(t)
	node := newNode(t)
	r := Provide()
	ctx := context.Background()
	now := time.Now().UTC()

	orphan := &domain.OrphanedAccount{
		ID:                node.Generate(),
		ProviderAccountID: accountA,
		OwnerID:           ownerA,
		Reason:            domain.OrphanReasonRollbackFailed,
		Details:           datatypes.JSON(`{"delete_error":"timeout"}`),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, r.InsertOrphan(ctx, conn, orphan))

	// A second failure for the same account keeps the first row.
	dup := *orphan
	dup.ID = node.Generate()
	require.NoError(t, r.InsertOrphan(ctx, conn, &dup))

	pending, err := r.ListPendingOrphans(ctx, conn, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, orphan.ID, pending[0].ID)
	assert.JSONEq(t, `{"delete_error":"timeout"}`, string(pending[0].Details))

	require.NoError(t, r.MarkOrphanAttempt(ctx, conn, orphan.ID, "still failing", now.Add(time.Minute)))
	pending, err = r.ListPendingOrphans(ctx, conn, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "still failing", *pending[0].LastError)

	require.NoError(t, r.MarkOrphanResolved(ctx, conn, orphan.ID, now.Add(2*time.Minute)))
	pending, err = r.ListPendingOrphans(ctx, conn, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var stored domain.OrphanedAccount
	require.NoError(t, conn.First(&stored, "id = ?", orphan.ID).Error)
	assert.Equal(t, 2, stored.Attempts)
	assert.NotNil(t, stored.ResolvedAt)
	assert.Nil(t, stored.LastError)
}

func newPostgresMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return conn, mock
}

func TestPostgresExistsByOwner(t *testing.T) {
	conn, mock := newPostgresMock(t)

	mock.ExpectQuery(`SELECT COUNT\(1\)\s+FROM payment_accounts\s+WHERE owner_id = \$1 AND provider_account_id IS NOT NULL`).
		WithArgs(ownerA).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := Provide().ExistsByOwner(context.Background(), conn, ownerA)
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertUniqueViolation(t *testing.T) {
	conn, mock := newPostgresMock(t)

	mock.ExpectExec(`INSERT INTO payment_accounts`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "ux_payment_accounts_owner"})

	err := Provide().Insert(context.Background(), conn, newAccount(newNode(t), ownerA, strPtr(accountA)))
	require.Error(t, err)
	assert.True(t, db.IsDuplicateKeyErr(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPendingOrphansPrefersLeastAttempted(t *testing.T) {
	conn := setupDB(t)
	node := newNode(t)
	r := Provide()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	newOrphan := func(accountID string, at time.Time) *domain.OrphanedAccount {
		return &domain.OrphanedAccount{
			ID:                node.Generate(),
			ProviderAccountID: accountID,
			OwnerID:           ownerA,
			Reason:            domain.OrphanReasonRollbackFailed,
			Details:           datatypes.JSON(`{}`),
			CreatedAt:         at,
			UpdatedAt:         at,
		}
	}

	const batch = 5
	for i := 0; i < batch; i++ {
		orphan := newOrphan(fmt.Sprintf("acct_failing%08d", i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, r.InsertOrphan(ctx, conn, orphan))
		require.NoError(t, r.MarkOrphanAttempt(ctx, conn, orphan.ID, "account has balance", base.Add(time.Hour)))
	}

	parked := newOrphan("acct_parked000000", base.Add(-time.Hour))
	require.NoError(t, r.InsertOrphan(ctx, conn, parked))
	require.NoError(t, conn.Model(&domain.OrphanedAccount{}).
		Where("id = ?", parked.ID).
		Update("attempts", domain.MaxOrphanAttempts).Error)

	fresh := newOrphan("acct_fresh00000000", base.Add(2*time.Hour))
	require.NoError(t, r.InsertOrphan(ctx, conn, fresh))

	pending, err := r.ListPendingOrphans(ctx, conn, batch)
	require.NoError(t, err)
	require.Len(t, pending, batch)
	assert.Equal(t, fresh.ID, pending[0].ID)
	for _, o := range pending {
		assert.NotEqual(t, parked.ID, o.ID)
	}
}
