package server

import (
	"net/http"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/barberconnect/internal/config"
	"github.com/smallbiznis/barberconnect/internal/identity"
	obscontext "github.com/smallbiznis/barberconnect/internal/observability/context"
	"github.com/smallbiznis/barberconnect/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	contextCallerIDKey    = "caller_id"
	contextCallerEmailKey = "caller_email"

	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"
	corsAllowMethods = "POST, OPTIONS"
)

// CORS allows every origin at the transport layer. Origins are checked by the
// handlers before any redirect URL is built.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		c.Next()
	}
}

func Preflight(c *gin.Context) {
	c.Status(http.StatusOK)
}

// StripeConfigured rejects requests while the provider secret is unusable.
func (s *Server) StripeConfigured() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.cfg.StripeKeyError(); err != nil {
			logger.WithContext(c.Request.Context(), s.log).Error("stripe secret key is not usable", zap.Error(err))
			AbortWithError(c, &ConfigError{Err: err})
			return
		}
		c.Next()
	}
}

func (s *Server) BearerAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := identity.ParseBearer(c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		caller, err := s.verifier.Verify(ctx, token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextCallerIDKey, caller.ID)
		c.Set(contextCallerEmailKey, caller.Email)
		c.Request = c.Request.WithContext(obscontext.WithActorID(ctx, caller.ID))
		c.Next()
	}
}

// IPRateLimit throttles each client address. It runs after authentication so
// rejected credentials never spend the address budget.
func IPRateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if !cfg.IPEnabled || cfg.IPRequestsPerSecond <= 0 || cfg.IPBurst <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	lmt := tollbooth.NewLimiter(cfg.IPRequestsPerSecond, &limiter.ExpirableOptions{
		DefaultExpirationTTL: 10 * time.Minute,
	})
	lmt.SetBurst(cfg.IPBurst)
	return func(c *gin.Context) {
		if httpError := tollbooth.LimitByRequest(lmt, c.Writer, c.Request); httpError != nil {
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

func callerID(c *gin.Context) string {
	return c.GetString(contextCallerIDKey)
}

func callerEmail(c *gin.Context) string {
	return c.GetString(contextCallerEmailKey)
}
