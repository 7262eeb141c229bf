package identity

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrMissingToken = errors.New("missing_token")
	ErrInvalidToken = errors.New("invalid_token")
)

const bearerPrefix = "bearer "

// Identity is the caller resolved from a bearer token. It lives for one request.
type Identity struct {
	ID    string
	Email string
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
