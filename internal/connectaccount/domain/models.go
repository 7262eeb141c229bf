package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type AccountStatus string

const (
	StatusPending    AccountStatus = "pending"
	StatusEnabled    AccountStatus = "enabled"
	StatusRestricted AccountStatus = "restricted"
	StatusDisabled   AccountStatus = "disabled"
)

// PaymentAccount links a barber to their connected account. Status flags mirror
// the provider and are only written here at creation time.
type PaymentAccount struct {
	ID                  snowflake.ID  `gorm:"primaryKey" json:"id"`
	OwnerID             string        `gorm:"type:text;not null;uniqueIndex:ux_payment_accounts_owner" json:"owner_id"`
	ProviderAccountID   *string       `gorm:"type:text;uniqueIndex:ux_payment_accounts_provider_account" json:"provider_account_id,omitempty"`
	Status              AccountStatus `gorm:"type:text;not null;default:'pending'" json:"status"`
	OnboardingCompleted bool          `gorm:"not null;default:false" json:"onboarding_completed"`
	DetailsSubmitted    bool          `gorm:"not null;default:false" json:"details_submitted"`
	ChargesEnabled      bool          `gorm:"not null;default:false" json:"charges_enabled"`
	PayoutsEnabled      bool          `gorm:"not null;default:false" json:"payouts_enabled"`
	CreatedAt           time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PaymentAccount) TableName() string { return "payment_accounts" }

const OrphanReasonRollbackFailed = "rollback_failed"

// MaxOrphanAttempts parks an orphan once its delete has failed this many times.
// Parked rows stay unresolved for manual cleanup and are no longer listed.
const MaxOrphanAttempts = 25

// OrphanedAccount is a provider account that exists without a local record
// because its compensating delete failed.
type OrphanedAccount struct {
	ID                snowflake.ID   `gorm:"primaryKey" json:"id"`
	ProviderAccountID string         `gorm:"type:text;not null;uniqueIndex:ux_orphaned_provider_accounts_account" json:"provider_account_id"`
	OwnerID           string         `gorm:"type:text;not null" json:"owner_id"`
	Reason            string         `gorm:"type:text;not null" json:"reason"`
	Details           datatypes.JSON `gorm:"not null" json:"details"`
	Attempts          int            `gorm:"not null;default:0" json:"attempts"`
	LastError         *string        `gorm:"type:text" json:"last_error,omitempty"`
	ResolvedAt        *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (OrphanedAccount) TableName() string { return "orphaned_provider_accounts" }
