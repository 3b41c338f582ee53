package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ProviderName identifies the payment provider in webhook_events rows.
const ProviderName = "payment"

// SignatureHeader carries a timestamped HMAC in the form "t=<unix>,v1=<hex>".
// The timestamp is part of the signed message to stop replay.
const SignatureHeader = "X-Payment-Signature"

// SignatureTolerance bounds how stale a signed webhook may be.
const SignatureTolerance = 5 * time.Minute

// Webhook event types.
const (
	EventTypeCheckoutCompleted   = "checkout.completed"
	EventTypeSubscriptionRenewed = "subscription.renewed"
	EventTypeSubscriptionUpdated = "subscription.updated"
)

// Purchase types carried in checkout metadata. They route a completed
// checkout to the right ledger.
const (
	PurchaseTypeSubscription   = "subscription"
	PurchaseTypeSignaturePack  = "signature_pack"
	PurchaseTypePackagePayment = "package_payment_by_signer"
)

// PaymentEvent is one parsed, validated webhook event.
type PaymentEvent struct {
	ProviderEventID        string
	Type                   string
	PurchaseType           string
	ProUserID              snowflake.ID
	PackageID              snowflake.ID
	Credits                int64
	Amount                 int64
	Currency               string
	ProviderChargeID       string
	ProviderSubscriptionID string
	SubscriptionStatus     string
	PeriodStart            time.Time
	PeriodEnd              time.Time
	OccurredAt             time.Time
}

type webhookEnvelope struct {
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	Created int64       `json:"created"`
	Data    webhookData `json:"data"`
}

type webhookData struct {
	ChargeID       string            `json:"charge_id"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	SubscriptionID string            `json:"subscription_id"`
	Status         string            `json:"status"`
	PeriodStart    int64             `json:"period_start"`
	PeriodEnd      int64             `json:"period_end"`
	Metadata       map[string]string `json:"metadata"`
}

// SignPayload computes the signature header value for a body at a given
// instant. Used by tests and by outbound signature verification.
func SignPayload(secret string, body []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// VerifySignature checks the timestamped HMAC before the payload is trusted.
func VerifySignature(secret string, body []byte, headers http.Header, now time.Time) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ErrInvalidSignature
	}
	header := strings.TrimSpace(headers.Get(SignatureHeader))
	if header == "" {
		return ErrInvalidSignature
	}

	var ts string
	var provided string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			provided = value
		}
	}
	if ts == "" || provided == "" {
		return ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	signedAt := time.Unix(unix, 0)
	if signedAt.Before(now.Add(-SignatureTolerance)) || signedAt.After(now.Add(SignatureTolerance)) {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(provided))) {
		return ErrInvalidSignature
	}
	return nil
}

// ParseEvent decodes and validates a verified webhook body.
func ParseEvent(body []byte) (*PaymentEvent, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, ErrInvalidPayload
	}

	event := &PaymentEvent{
		ProviderEventID:        strings.TrimSpace(envelope.ID),
		Type:                   strings.TrimSpace(envelope.Type),
		Amount:                 envelope.Data.Amount,
		Currency:               strings.ToUpper(strings.TrimSpace(envelope.Data.Currency)),
		ProviderChargeID:       strings.TrimSpace(envelope.Data.ChargeID),
		ProviderSubscriptionID: strings.TrimSpace(envelope.Data.SubscriptionID),
		SubscriptionStatus:     strings.TrimSpace(envelope.Data.Status),
	}
	if event.ProviderEventID == "" || event.Type == "" {
		return nil, ErrInvalidPayload
	}
	if envelope.Created > 0 {
		event.OccurredAt = time.Unix(envelope.Created, 0).UTC()
	}
	if envelope.Data.PeriodStart > 0 {
		event.PeriodStart = time.Unix(envelope.Data.PeriodStart, 0).UTC()
	}
	if envelope.Data.PeriodEnd > 0 {
		event.PeriodEnd = time.Unix(envelope.Data.PeriodEnd, 0).UTC()
	}

	metadata := envelope.Data.Metadata
	event.PurchaseType = strings.TrimSpace(metadata["purchase_type"])
	if raw := strings.TrimSpace(metadata["pro_user_id"]); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return nil, ErrInvalidPayload
		}
		event.ProUserID = id
	}
	if raw := strings.TrimSpace(metadata["package_id"]); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return nil, ErrInvalidPayload
		}
		event.PackageID = id
	}
	if raw := strings.TrimSpace(metadata["credits"]); raw != "" {
		credits, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || credits <= 0 {
			return nil, ErrInvalidPayload
		}
		event.Credits = credits
	}

	return event, nil
}
