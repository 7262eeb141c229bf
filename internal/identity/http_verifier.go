package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/barberconnect/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const userPath = "/auth/v1/user"

// maxUserBody caps how much of the identity response is read.
const maxUserBody = 1 << 20

// HTTPVerifier resolves tokens against the identity provider's user endpoint.
// Every failure maps to ErrInvalidToken and nothing is retried.
type HTTPVerifier struct {
	baseURL string
	anonKey string
	timeout time.Duration
	client  *http.Client
	log     *zap.Logger
}

func NewHTTPVerifier(cfg config.Config, client *http.Client, log *zap.Logger) *HTTPVerifier {
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Identity.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPVerifier{
		baseURL: strings.TrimRight(cfg.Identity.URL, "/"),
		anonKey: cfg.Identity.AnonKey,
		timeout: timeout,
		client:  client,
		log:     log.Named("identity.verifier"),
	}
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	if v.baseURL == "" {
		v.log.Error("identity provider url is not configured")
		return Identity{}, ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+userPath, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if v.anonKey != "" {
		req.Header.Set("apikey", v.anonKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := v.client.Do(req)
	if err != nil {
		v.log.Warn("identity provider request failed", zap.Error(err))
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxUserBody))
		if resp.StatusCode >= http.StatusInternalServerError {
			v.log.Warn("identity provider unavailable", zap.Int("status_code", resp.StatusCode))
		}
		return Identity{}, ErrInvalidToken
	}

	var body userResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserBody)).Decode(&body); err != nil {
		return Identity{}, fmt.Errorf("%w: decode user: %v", ErrInvalidToken, err)
	}
	id := strings.TrimSpace(body.ID)
	if id == "" {
		return Identity{}, errors.Join(ErrInvalidToken, errors.New("empty user id"))
	}

	return Identity{ID: id, Email: strings.TrimSpace(body.Email)}, nil
}
