package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	creditdomain "github.com/Heyzerohey/packhey/internal/creditledger/domain"
	packdomain "github.com/Heyzerohey/packhey/internal/pack/domain"
	paymentdomain "github.com/Heyzerohey/packhey/internal/payment/domain"
	signingdomain "github.com/Heyzerohey/packhey/internal/signing/domain"
	subscriptiondomain "github.com/Heyzerohey/packhey/internal/subscription/domain"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not_found")
	ErrRateLimited  = errors.New("rate_limited")
)

// APIError is the wire shape of every non-2xx response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return e.Code }

func newValidationError(field, code, message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: code, Field: field, Message: message}
}

func invalidRequestError() *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "invalid request"}
}

// AbortWithError maps domain errors onto HTTP statuses and writes the error
// body. Precondition failures the caller can fix are 403, provider outages
// are 502, everything unexpected is 500.
func AbortWithError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr})
		return
	}

	status := http.StatusInternalServerError
	code := "internal_error"

	switch {
	case errors.Is(err, ErrUnauthorized):
		status, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrRateLimited):
		status, code = http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, ErrNotFound),
		errors.Is(err, packdomain.ErrPackageNotFound),
		errors.Is(err, packdomain.ErrAgreementNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, subscriptiondomain.ErrNoActiveSubscription):
		status, code = http.StatusForbidden, "no_active_subscription"
	case errors.Is(err, creditdomain.ErrInsufficientCredit):
		status, code = http.StatusForbidden, "insufficient_credits"
	case errors.Is(err, packdomain.ErrPackageTerminal):
		status, code = http.StatusConflict, "package_terminal"
	case errors.Is(err, packdomain.ErrUploadNotExpected):
		status, code = http.StatusConflict, "upload_not_expected"
	case errors.Is(err, packdomain.ErrInvalidRequest),
		errors.Is(err, paymentdomain.ErrInvalidCheckout):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, packdomain.ErrProviderFailure),
		errors.Is(err, signingdomain.ErrProviderUnavailable),
		errors.Is(err, paymentdomain.ErrProviderUnavailable):
		status, code = http.StatusBadGateway, "provider_unavailable"
	case errors.Is(err, creditdomain.ErrBalanceNotFound):
		status, code = http.StatusInternalServerError, "integrity_error"
	}

	c.AbortWithStatusJSON(status, gin.H{"error": &APIError{
		Status:  status,
		Code:    code,
		Message: err.Error(),
	}})
}
