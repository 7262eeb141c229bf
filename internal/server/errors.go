package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/barberconnect/internal/authorization"
	connectaccountdomain "github.com/smallbiznis/barberconnect/internal/connectaccount/domain"
	"github.com/smallbiznis/barberconnect/internal/identity"
	gatewaydomain "github.com/smallbiznis/barberconnect/internal/paymentgateway/domain"
	"github.com/smallbiznis/barberconnect/internal/ratelimit"
	"github.com/smallbiznis/barberconnect/internal/validation"
)

// errorResponse is the body of every failed request. The flags tell the
// caller UI which remediation to offer.
type errorResponse struct {
	Error           string `json:"error"`
	NeedsNewAccount bool   `json:"needsNewAccount,omitempty"`
	NeedsOnboarding bool   `json:"needsOnboarding,omitempty"`
}

var (
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrNotFound        = errors.New("not_found")
	ErrTooManyRequests = errors.New("too_many_requests")
)

const (
	msgInvalidRequest      = "Invalid request format"
	msgInvalidOrigin       = "Invalid request origin"
	msgMissingToken        = "Unauthorized - missing token"
	msgInvalidToken        = "Unauthorized - invalid token"
	msgForbiddenOwner      = "Unauthorized - cannot create account for another user"
	msgNotAccountOwner     = "Unauthorized - account does not belong to this user"
	msgAccountExists       = "Stripe account already exists for this barber"
	msgCreationInProgress  = "Account creation already in progress for this barber"
	msgTooManyRequests     = "Too many requests. Please try again later."
	msgUnavailable         = "Service temporarily unavailable"
	msgProviderUnavailable = "Stripe is temporarily unavailable. Please try again later."
	msgModeMismatch        = "Stripe account was created in a different mode. Please create a new account."
	msgAccountMissing      = "Stripe account not found. Please create a new account."
	msgStorage             = "Failed to store account information"
	msgNotFound            = "Not found"
	msgInternal            = "Internal server error"
)

// ConfigError reports unusable payment provider credentials.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return "Stripe configuration error"
	}
	return "Stripe configuration error: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload, retryAfter := mapError(lastErr.Err)
		if retryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// mapError turns a domain error into a status, a body and a Retry-After value
// in seconds. Internal details never reach the body.
func mapError(err error) (int, errorResponse, int) {
	if err == nil {
		return http.StatusInternalServerError, errorResponse{Error: msgInternal}, 0
	}

	var fieldErr *validation.FieldError
	if errors.As(err, &fieldErr) {
		if errors.Is(fieldErr.Err, validation.ErrMissingField) {
			return http.StatusBadRequest, errorResponse{Error: "Missing required field: " + fieldErr.Field}, 0
		}
		return http.StatusBadRequest, errorResponse{Error: "Invalid " + fieldErr.Field + " format"}, 0
	}

	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return http.StatusInternalServerError, errorResponse{Error: configErr.Error()}, 0
	}

	var limited *ratelimit.LimitedError
	if errors.As(err, &limited) {
		return http.StatusTooManyRequests, errorResponse{Error: msgTooManyRequests}, limited.RetryAfterSeconds()
	}

	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorResponse{Error: msgInvalidRequest}, 0
	case errors.Is(err, validation.ErrInvalidOrigin):
		return http.StatusBadRequest, errorResponse{Error: msgInvalidOrigin}, 0
	case errors.Is(err, identity.ErrMissingToken):
		return http.StatusUnauthorized, errorResponse{Error: msgMissingToken}, 0
	case errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized, errorResponse{Error: msgInvalidToken}, 0
	case errors.Is(err, connectaccountdomain.ErrNotOwner):
		return http.StatusForbidden, errorResponse{Error: msgNotAccountOwner}, 0
	case errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidOwner):
		return http.StatusForbidden, errorResponse{Error: msgForbiddenOwner}, 0
	case errors.Is(err, connectaccountdomain.ErrAccountExists):
		return http.StatusConflict, errorResponse{Error: msgAccountExists}, 0
	case errors.Is(err, connectaccountdomain.ErrCreationInProgress):
		return http.StatusConflict, errorResponse{Error: msgCreationInProgress}, 0
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorResponse{Error: msgTooManyRequests}, 1
	case errors.Is(err, ratelimit.ErrLimiterUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Error: msgUnavailable}, 0
	case errors.Is(err, gatewaydomain.ErrModeMismatch):
		return http.StatusBadRequest, errorResponse{Error: msgModeMismatch, NeedsNewAccount: true}, 0
	case errors.Is(err, gatewaydomain.ErrAccountMissing):
		return http.StatusBadRequest, errorResponse{Error: msgAccountMissing, NeedsNewAccount: true}, 0
	case errors.Is(err, gatewaydomain.ErrOnboardingIncomplete):
		return http.StatusBadRequest, errorResponse{Error: connectaccountdomain.MessageOnboardingIncomplete, NeedsOnboarding: true}, 0
	case errors.Is(err, gatewaydomain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Error: msgProviderUnavailable}, retryAfterUpstream
	case errors.Is(err, connectaccountdomain.ErrStorage):
		return http.StatusInternalServerError, errorResponse{Error: msgStorage}, 0
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: msgNotFound}, 0
	}

	return http.StatusInternalServerError, errorResponse{Error: msgInternal}, 0
}

const retryAfterUpstream = 5

// classifyErrorForLog feeds the request logger a stable type and code.
func classifyErrorForLog(err error) (string, string) {
	status, _, _ := mapError(err)
	switch {
	case status == http.StatusBadRequest:
		var fieldErr *validation.FieldError
		if errors.As(err, &fieldErr) {
			return "validation_error", fieldErr.Err.Error()
		}
		var gwErr *gatewaydomain.Error
		if errors.As(err, &gwErr) {
			return "provider_error", string(gwErr.Kind)
		}
		return "validation_error", "invalid_request"
	case status == http.StatusUnauthorized:
		return "unauthorized", errorCode(err)
	case status == http.StatusForbidden:
		return "forbidden", errorCode(err)
	case status == http.StatusConflict:
		return "conflict", errorCode(err)
	case status == http.StatusTooManyRequests:
		return "rate_limited", "rate_limited"
	case status == http.StatusServiceUnavailable:
		return "unavailable", errorCode(err)
	case status == http.StatusNotFound:
		return "not_found", "not_found"
	}

	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return "config_error", "provider_misconfigured"
	}
	if errors.Is(err, connectaccountdomain.ErrStorage) {
		return "storage_error", "storage_error"
	}
	var gwErr *gatewaydomain.Error
	if errors.As(err, &gwErr) {
		return "provider_error", string(gwErr.Kind)
	}
	return "internal_error", "internal_error"
}

// errorCode returns the innermost sentinel text, which is snake_case for every
// package in this module.
func errorCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
