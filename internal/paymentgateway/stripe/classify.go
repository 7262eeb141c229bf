package stripe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/smallbiznis/barberconnect/internal/paymentgateway/domain"
	stripeapi "github.com/stripe/stripe-go/v82"
)

// Stripe reports key mode conflicts and unfinished onboarding only through
// free-text messages. Matching them is confined to this file.
var (
	modeMismatchHints = []string{
		"testmode key",
		"livemode key",
		"test mode key",
		"live mode key",
		"exists in test mode",
		"exists in live mode",
	}
	onboardingHints = []string{
		"not completed onboarding",
		"has not been onboarded",
		"complete onboarding",
		"onboarding is not complete",
	}
)

func classify(op string, err error) *domain.Error {
	var gwErr *domain.Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	if errors.Is(err, domain.ErrUntrustedRedirect) {
		return domain.NewError(domain.KindUntrustedRedirect, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.NewError(domain.KindUnavailable, op, err)
	}

	var apiErr *stripeapi.Error
	if errors.As(err, &apiErr) {
		return domain.NewError(classifyAPIError(apiErr), op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.NewError(domain.KindUnavailable, op, err)
	}
	return domain.NewError(domain.KindUpstream, op, err)
}

func classifyAPIError(apiErr *stripeapi.Error) domain.Kind {
	msg := strings.ToLower(apiErr.Msg)
	switch {
	case containsAny(msg, modeMismatchHints):
		return domain.KindModeMismatch
	case containsAny(msg, onboardingHints):
		return domain.KindOnboardingIncomplete
	case apiErr.Code == stripeapi.ErrorCodeResourceMissing:
		return domain.KindAccountMissing
	case apiErr.HTTPStatusCode == http.StatusTooManyRequests,
		apiErr.HTTPStatusCode >= http.StatusInternalServerError:
		return domain.KindUnavailable
	default:
		return domain.KindUpstream
	}
}

func containsAny(s string, hints []string) bool {
	for _, hint := range hints {
		if strings.Contains(s, hint) {
			return true
		}
	}
	return false
}
