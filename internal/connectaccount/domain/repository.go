package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// ExistsByOwner reports whether ownerID already has a provisioned account.
	ExistsByOwner(ctx context.Context, db *gorm.DB, ownerID string) (bool, error)
	Insert(ctx context.Context, db *gorm.DB, account *PaymentAccount) error
	FindByProviderAccountIDAndOwner(ctx context.Context, db *gorm.DB, providerAccountID, ownerID string) (*PaymentAccount, error)

	InsertOrphan(ctx context.Context, db *gorm.DB, orphan *OrphanedAccount) error
	// ListPendingOrphans returns unresolved, unparked orphans, least attempted first.
	ListPendingOrphans(ctx context.Context, db *gorm.DB, limit int) ([]*OrphanedAccount, error)
	MarkOrphanResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	MarkOrphanAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, at time.Time) error
}
