package domain

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
)

// CheckoutParams describes a checkout session to create at the provider.
type CheckoutParams struct {
	PurchaseType string
	ProUserID    snowflake.ID
	PackageID    snowflake.ID
	Credits      int64
	Amount       int64
	Currency     string
	SuccessURL   string
	CancelURL    string
}

// CheckoutSession is the provider's hosted payment page.
type CheckoutSession struct {
	ID  string
	URL string
}

// CheckoutProvider creates hosted checkout sessions at the payment provider.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
}

// Service ingests payment provider webhooks and routes them to the ledgers.
type Service interface {
	// IngestWebhook verifies, stores and processes one webhook delivery.
	// Returns ErrEventAlreadyProcessed for redeliveries and ErrEventIgnored
	// for event types this system does not consume.
	IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error
}

var (
	ErrInvalidSignature      = errors.New("invalid_webhook_signature")
	ErrInvalidPayload        = errors.New("invalid_webhook_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrProviderUnavailable   = errors.New("payment_provider_unavailable")
	ErrInvalidCheckout       = errors.New("invalid_checkout")
)
