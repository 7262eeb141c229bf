package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/barberconnect/internal/connectaccount/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ExistsByOwner(ctx context.Context, db *gorm.DB, ownerID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM payment_accounts
		 WHERE owner_id = ? AND provider_account_id IS NOT NULL`,
		ownerID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Insert never upserts. A unique violation on owner or provider account id is
// returned to the caller as is.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.PaymentAccount) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_accounts (
			id, owner_id, provider_account_id, status,
			onboarding_completed, details_submitted, charges_enabled, payouts_enabled,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.OwnerID,
		account.ProviderAccountID,
		account.Status,
		account.OnboardingCompleted,
		account.DetailsSubmitted,
		account.ChargesEnabled,
		account.PayoutsEnabled,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) FindByProviderAccountIDAndOwner(ctx context.Context, db *gorm.DB, providerAccountID, ownerID string) (*domain.PaymentAccount, error) {
	var account domain.PaymentAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_id, provider_account_id, status,
		        onboarding_completed, details_submitted, charges_enabled, payouts_enabled,
		        created_at, updated_at
		 FROM payment_accounts
		 WHERE provider_account_id = ? AND owner_id = ?
		 LIMIT 1`,
		providerAccountID,
		ownerID,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) InsertOrphan(ctx context.Context, db *gorm.DB, orphan *domain.OrphanedAccount) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_account_id"}},
			DoNothing: true,
		}).
		Create(orphan).Error
}

func (r *repo) ListPendingOrphans(ctx context.Context, db *gorm.DB, limit int) ([]*domain.OrphanedAccount, error) {
	if limit <= 0 {
		limit = 100
	}
	var orphans []*domain.OrphanedAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider_account_id, owner_id, reason, details, attempts,
		        last_error, resolved_at, created_at, updated_at
		 FROM orphaned_provider_accounts
		 WHERE resolved_at IS NULL AND attempts < ?
		 ORDER BY attempts ASC, updated_at ASC, id ASC
		 LIMIT ?`,
		domain.MaxOrphanAttempts,
		limit,
	).Scan(&orphans).Error
	if err != nil {
		return nil, err
	}
	return orphans, nil
}

func (r *repo) MarkOrphanResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orphaned_provider_accounts
		 SET resolved_at = ?, attempts = attempts + 1, last_error = NULL, updated_at = ?
		 WHERE id = ? AND resolved_at IS NULL`,
		at,
		at,
		id,
	).Error
}

func (r *repo) MarkOrphanAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orphaned_provider_accounts
		 SET attempts = attempts + 1, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		lastError,
		at,
		id,
	).Error
}
