package domain

import (
	"context"
	"errors"
)

var (
	ErrAccountExists      = errors.New("account_exists")
	ErrCreationInProgress = errors.New("account_creation_in_progress")
	ErrNotOwner           = errors.New("account_not_owned")
	ErrStorage            = errors.New("storage_error")
)

const MessageOnboardingIncomplete = "Please complete your Stripe onboarding first"

type CreateAccountRequest struct {
	CallerID    string
	CallerEmail string
	OwnerID     string
	Origin      string
}

type DashboardLinkRequest struct {
	CallerID          string
	ProviderAccountID string
	Origin            string
}

type LinkResponse struct {
	URL     string `json:"url"`
	Message string `json:"message,omitempty"`
}

type ReconcileReport struct {
	Scanned  int `json:"scanned"`
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
}

type Service interface {
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*LinkResponse, error)
	DashboardLink(ctx context.Context, req DashboardLinkRequest) (*LinkResponse, error)
	ReconcileOrphans(ctx context.Context) (ReconcileReport, error)
}

// RateLimiter is the per-caller limiter the service consults before touching
// storage or the provider.
type RateLimiter interface {
	AllowCreate(ctx context.Context, callerID string) error
	AllowDashboard(ctx context.Context, callerID string) error
	LockCreate(ctx context.Context, ownerID string) (func(), error)
}
