package authorization

import (
	"context"
	"errors"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidOwner  = errors.New("invalid_owner")
	ErrInvalidAction = errors.New("invalid_action")
)

const (
	ActionConnectAccountCreate    = "connect_account.create"
	ActionConnectAccountDashboard = "connect_account.dashboard"
)

// Service decides whether a caller may act on payment infrastructure owned by
// ownerID. Only the owner may act on their own account.
type Service interface {
	Authorize(ctx context.Context, callerID, ownerID, action string) error
	AuthorizeSelf(ctx context.Context, callerID, ownerID string) error
}
