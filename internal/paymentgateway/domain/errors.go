package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUpstream             = errors.New("upstream_error")
	ErrUpstreamUnavailable  = errors.New("upstream_unavailable")
	ErrModeMismatch         = errors.New("mode_mismatch")
	ErrOnboardingIncomplete = errors.New("onboarding_incomplete")
	ErrAccountMissing       = errors.New("account_missing")
	ErrUntrustedRedirect    = errors.New("untrusted_redirect")
)

type Kind string

const (
	KindUpstream             Kind = "upstream"
	KindUnavailable          Kind = "unavailable"
	KindModeMismatch         Kind = "mode_mismatch"
	KindOnboardingIncomplete Kind = "onboarding_incomplete"
	KindAccountMissing       Kind = "account_missing"
	KindUntrustedRedirect    Kind = "untrusted_redirect"
)

var kindSentinels = map[Kind]error{
	KindUpstream:             ErrUpstream,
	KindUnavailable:          ErrUpstreamUnavailable,
	KindModeMismatch:         ErrModeMismatch,
	KindOnboardingIncomplete: ErrOnboardingIncomplete,
	KindAccountMissing:       ErrAccountMissing,
	KindUntrustedRedirect:    ErrUntrustedRedirect,
}

// Error is a classified provider failure. Op names the gateway call.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// KindOf returns the kind of a gateway error, or KindUpstream for anything else.
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindUpstream
}
