package domain

import (
	"context"
	"errors"
)

// Signer identifies one signing party on an agreement.
type Signer struct {
	Name  string
	Email string
}

// SendResult is the provider's acknowledgement of a dispatched agreement.
type SendResult struct {
	ProviderDocumentID string
	Status             string
}

// Provider is the outbound e-signature API surface. All calls carry bounded
// timeouts; the provider owns the signing UI and its lifecycle after
// dispatch.
type Provider interface {
	UploadDocument(ctx context.Context, file []byte, filename, contentType string) (string, error)
	SendForSignature(ctx context.Context, providerDocumentID string, signers []Signer, title, message string) (*SendResult, error)
}

var (
	ErrProviderUnavailable = errors.New("signing_provider_unavailable")
	ErrInvalidDocument     = errors.New("invalid_document")
	ErrInvalidSigner       = errors.New("invalid_signer")
	ErrInvalidSignature    = errors.New("invalid_webhook_signature")
	ErrUnknownEventCode    = errors.New("unknown_event_code")
	ErrInvalidPayload      = errors.New("invalid_webhook_payload")
)
