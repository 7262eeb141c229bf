package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	connectaccountdomain "github.com/smallbiznis/barberconnect/internal/connectaccount/domain"
	"github.com/smallbiznis/barberconnect/internal/validation"
)

const maxRequestBodyBytes = 64 << 10

type createStripeAccountRequest struct {
	OwnerID json.RawMessage `json:"ownerId"`
}

type stripeDashboardLinkRequest struct {
	ProviderAccountID json.RawMessage `json:"providerAccountId"`
}

func (s *Server) CreateStripeAccount(c *gin.Context) {
	var req createStripeAccountRequest
	if err := bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	ownerID, err := stringField(validation.FieldOwnerID, req.OwnerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.connectSvc.CreateAccount(c.Request.Context(), connectaccountdomain.CreateAccountRequest{
		CallerID:    callerID(c),
		CallerEmail: callerEmail(c),
		OwnerID:     ownerID,
		Origin:      c.GetHeader("Origin"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) StripeDashboardLink(c *gin.Context) {
	var req stripeDashboardLinkRequest
	if err := bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	accountID, err := stringField(validation.FieldProviderAccountID, req.ProviderAccountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.connectSvc.DashboardLink(c.Request.Context(), connectaccountdomain.DashboardLinkRequest{
		CallerID:          callerID(c),
		ProviderAccountID: accountID,
		Origin:            c.GetHeader("Origin"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func bindJSON(c *gin.Context, obj any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodyBytes)
	if err := c.ShouldBindJSON(obj); err != nil {
		return ErrInvalidRequest
	}
	return nil
}

// stringField unwraps a raw JSON value that must be a string. Absent and null
// values come back empty so validation reports them as missing.
func stringField(field string, raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", &validation.FieldError{Field: field, Err: validation.ErrInvalidFormat}
	}
	return value, nil
}
