package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"testing"

	packdomain "github.com/Heyzerohey/packhey/internal/pack/domain"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"document_id":"doc_1","event_code":"document.completed"}`)
	headers := http.Header{}
	headers.Set(SignatureHeader, signBody("whsec_test", body))

	if err := VerifySignature("whsec_test", body, headers); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"document_id":"doc_1","event_code":"document.completed"}`)
	headers := http.Header{}
	headers.Set(SignatureHeader, signBody("whsec_test", body))

	tampered := []byte(`{"document_id":"doc_2","event_code":"document.completed"}`)
	if err := VerifySignature("whsec_test", tampered, headers); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifySignatureRejectsMissingHeader(t *testing.T) {
	err := VerifySignature("whsec_test", []byte("{}"), http.Header{})
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifySignatureRejectsEmptySecret(t *testing.T) {
	headers := http.Header{}
	headers.Set(SignatureHeader, "deadbeef")
	if err := VerifySignature("", []byte("{}"), headers); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestParseEvent(t *testing.T) {
	event, err := ParseEvent([]byte(`{"document_id":"doc_1","event_code":"document.viewed","event_id":"evt_9"}`))
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if event.DocumentID != "doc_1" || event.EventCode != "document.viewed" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestParseEventRejectsMissingFields(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"event_code":"document.viewed"}`)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestMapEventCode(t *testing.T) {
	cases := map[string]packdomain.AgreementStatus{
		EventCodeSent:      packdomain.AgreementStatusSent,
		EventCodeViewed:    packdomain.AgreementStatusViewed,
		EventCodeSigned:    packdomain.AgreementStatusPartiallySigned,
		EventCodeCompleted: packdomain.AgreementStatusCompleted,
		EventCodeDeclined:  packdomain.AgreementStatusDeclined,
		EventCodeVoided:    packdomain.AgreementStatusRevoked,
	}
	for code, want := range cases {
		got, err := MapEventCode(code)
		if err != nil {
			t.Fatalf("map %s: %v", code, err)
		}
		if got != want {
			t.Fatalf("map %s: expected %s, got %s", code, want, got)
		}
	}

	if _, err := MapEventCode("document.archived"); !errors.Is(err, ErrUnknownEventCode) {
		t.Fatalf("expected ErrUnknownEventCode, got %v", err)
	}
}
