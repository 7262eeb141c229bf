package domain

import "context"

const ProviderStripe = "stripe"

type CreateAccountInput struct {
	OwnerID string
	Email   string
	Country string
	// IdempotencyKey is forwarded to the provider. A fresh key is generated
	// when empty.
	IdempotencyKey string
}

type AccountStatus struct {
	DetailsSubmitted bool
	ChargesEnabled   bool
	PayoutsEnabled   bool
}

// Gateway wraps the payment provider's connected account API. Every method
// returns *Error on failure.
type Gateway interface {
	CreateAccount(ctx context.Context, in CreateAccountInput) (string, error)
	CreateOnboardingLink(ctx context.Context, accountID, origin string) (string, error)
	CreateDashboardLoginLink(ctx context.Context, accountID string) (string, error)
	RetrieveAccountStatus(ctx context.Context, accountID string) (AccountStatus, error)
	DeleteAccount(ctx context.Context, accountID string) error
}
