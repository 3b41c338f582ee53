package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	packdomain "github.com/Heyzerohey/packhey/internal/pack/domain"
)

// Provider webhook event codes, mapped onto agreement sub-statuses.
const (
	EventCodeSent      = "document.sent"
	EventCodeViewed    = "document.viewed"
	EventCodeSigned    = "document.signed"
	EventCodeCompleted = "document.completed"
	EventCodeDeclined  = "document.declined"
	EventCodeVoided    = "document.voided"
)

// ProviderName labels signing webhook metrics and event records.
const ProviderName = "signing"

// SignatureHeader carries the HMAC of the raw webhook body.
const SignatureHeader = "X-Signing-Signature"

// WebhookEvent is one inbound signing provider callback.
type WebhookEvent struct {
	DocumentID string `json:"document_id"`
	EventCode  string `json:"event_code"`
	EventID    string `json:"event_id"`
}

// VerifySignature checks the HMAC-SHA256 of the raw body before any payload
// is trusted. Unverified requests are rejected before any state mutation.
func VerifySignature(secret string, body []byte, headers http.Header) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ErrInvalidSignature
	}
	provided := strings.TrimSpace(headers.Get(SignatureHeader))
	if provided == "" {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(provided))) {
		return ErrInvalidSignature
	}
	return nil
}

// ParseEvent decodes and validates a verified webhook body.
func ParseEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, ErrInvalidPayload
	}
	event.DocumentID = strings.TrimSpace(event.DocumentID)
	event.EventCode = strings.TrimSpace(event.EventCode)
	if event.DocumentID == "" || event.EventCode == "" {
		return nil, ErrInvalidPayload
	}
	return &event, nil
}

// MapEventCode translates a provider event code into the agreement
// sub-status it targets.
func MapEventCode(code string) (packdomain.AgreementStatus, error) {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case EventCodeSent:
		return packdomain.AgreementStatusSent, nil
	case EventCodeViewed:
		return packdomain.AgreementStatusViewed, nil
	case EventCodeSigned:
		return packdomain.AgreementStatusPartiallySigned, nil
	case EventCodeCompleted:
		return packdomain.AgreementStatusCompleted, nil
	case EventCodeDeclined:
		return packdomain.AgreementStatusDeclined, nil
	case EventCodeVoided:
		return packdomain.AgreementStatusRevoked, nil
	default:
		return "", ErrUnknownEventCode
	}
}
