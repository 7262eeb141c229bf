package identity

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/smallbiznis/barberconnect/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseBearer(t *testing.T) {
	token, err := ParseBearer("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	token, err = ParseBearer("bearer   xyz ")
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)

	for _, header := range []string{"", "Bearer", "Bearer   ", "Basic abc", "Token abc"} {
		_, err := ParseBearer(header)
		assert.ErrorIs(t, err, ErrMissingToken, header)
	}
}

func newTestVerifier(t *testing.T) *HTTPVerifier {
	t.Helper()
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)

	cfg := config.Config{Identity: config.IdentityConfig{
		URL:     "https://identity.test",
		AnonKey: "anon-key",
		Timeout: time.Second,
	}}
	return NewHTTPVerifier(cfg, client, zap.NewNop())
}

func TestHTTPVerifierResolvesUser(t *testing.T) {
	v := newTestVerifier(t)

	httpmock.RegisterResponder(http.MethodGet, "https://identity.test/auth/v1/user",
		func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("Authorization") != "Bearer good-token" || req.Header.Get("apikey") != "anon-key" {
				return httpmock.NewStringResponse(http.StatusUnauthorized, `{}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"id":"3f2b8c1e-9a4d-4f6b-8c2e-1a2b3c4d5e6f","email":"cuts@example.com"}`), nil
		})

	got, err := v.Verify(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, "3f2b8c1e-9a4d-4f6b-8c2e-1a2b3c4d5e6f", got.ID)
	assert.Equal(t, "cuts@example.com", got.Email)

	_, err = v.Verify(context.Background(), "bad-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestHTTPVerifierFailsClosed(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{name: "server error", responder: httpmock.NewStringResponder(http.StatusInternalServerError, `oops`)},
		{name: "bad json", responder: httpmock.NewStringResponder(http.StatusOK, `{"id":`)},
		{name: "empty id", responder: httpmock.NewStringResponder(http.StatusOK, `{"id":""}`)},
		{name: "transport", responder: httpmock.NewErrorResponder(errors.New("connection refused"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(t)
			httpmock.RegisterResponder(http.MethodGet, "https://identity.test/auth/v1/user", tt.responder)

			_, err := v.Verify(context.Background(), "token")
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Equal(t, 1, httpmock.GetTotalCallCount())
		})
	}
}

func TestHTTPVerifierWithoutURL(t *testing.T) {
	v := NewHTTPVerifier(config.Config{}, nil, zap.NewNop())
	_, err := v.Verify(context.Background(), "token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(context.Background(), " ")
	assert.ErrorIs(t, err, ErrMissingToken)
}
