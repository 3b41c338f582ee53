package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	packdomain "github.com/Heyzerohey/packhey/internal/pack/domain"
	paymentdomain "github.com/Heyzerohey/packhey/internal/payment/domain"
	signingdomain "github.com/Heyzerohey/packhey/internal/signing/domain"
)

func signedSigningRequest(secret string, body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/signing", bytes.NewReader(body))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	req.Header.Set(signingdomain.SignatureHeader, hex.EncodeToString(mac.Sum(nil)))
	return req
}

func TestSigningWebhook(t *testing.T) {
	fx := newServerFixture(t)

	body := []byte(`{"document_id": "doc_1", "event_code": "document.completed", "event_id": "evt_1"}`)
	rec := fx.do(signedSigningRequest("whsec_sign_test", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if fx.pack.appliedDocID != "doc_1" || fx.pack.appliedTarget != packdomain.AgreementStatusCompleted {
		t.Fatalf("expected completed applied to doc_1, got %q %q", fx.pack.appliedDocID, fx.pack.appliedTarget)
	}
}

func TestSigningWebhookBadSignature(t *testing.T) {
	fx := newServerFixture(t)

	body := []byte(`{"document_id": "doc_1", "event_code": "document.completed"}`)
	rec := fx.do(signedSigningRequest("whsec_wrong", body))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if fx.pack.appliedDocID != "" {
		t.Fatal("nothing may be applied on a bad signature")
	}
}

func TestSigningWebhookMissingSignature(t *testing.T) {
	fx := newServerFixture(t)

	body := []byte(`{"document_id": "doc_1", "event_code": "document.completed"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/signing", bytes.NewReader(body))

	if rec := fx.do(req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSigningWebhookUnknownEventCode(t *testing.T) {
	fx := newServerFixture(t)

	body := []byte(`{"document_id": "doc_1", "event_code": "document.archived", "event_id": "evt_2"}`)
	rec := fx.do(signedSigningRequest("whsec_sign_test", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("unknown codes are acknowledged, got %d", rec.Code)
	}
	if fx.pack.appliedDocID != "" {
		t.Fatal("unknown codes must not reach the service")
	}
}

func TestSigningWebhookUnknownDocument(t *testing.T) {
	fx := newServerFixture(t)
	fx.pack.applyErr = packdomain.ErrAgreementNotFound

	body := []byte(`{"document_id": "doc_ghost", "event_code": "document.viewed"}`)
	rec := fx.do(signedSigningRequest("whsec_sign_test", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("unknown documents are acknowledged, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSigningWebhookInvalidPayload(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.do(signedSigningRequest("whsec_sign_test", []byte(`{"event_code": ""}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPaymentWebhook(t *testing.T) {
	fx := newServerFixture(t)

	body := []byte(`{"id": "evt_pay_1", "type": "checkout.completed"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))

	rec := fx.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if string(fx.payment.ingested) != string(body) {
		t.Fatalf("expected raw body forwarded, got %s", fx.payment.ingested)
	}
}

func TestPaymentWebhookOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"redelivery", paymentdomain.ErrEventAlreadyProcessed, http.StatusOK},
		{"ignored type", paymentdomain.ErrEventIgnored, http.StatusOK},
		{"bad signature", paymentdomain.ErrInvalidSignature, http.StatusUnauthorized},
		{"bad payload", paymentdomain.ErrInvalidPayload, http.StatusBadRequest},
		{"bad event", paymentdomain.ErrInvalidEvent, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newServerFixture(t)
			fx.payment.err = tc.err

			req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader([]byte(`{}`)))
			if rec := fx.do(req); rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}
