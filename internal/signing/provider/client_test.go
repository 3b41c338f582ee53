package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Heyzerohey/packhey/internal/config"
	"github.com/Heyzerohey/packhey/internal/signing/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) domain.Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Config{}
	cfg.Signing.BaseURL = srv.URL
	cfg.Signing.APIKey = "sk_test"
	cfg.Signing.Timeout = 5 * time.Second
	return NewClient(cfg, zap.NewNop())
}

func TestUploadDocument(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/documents" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Errorf("unexpected auth header %q", got)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("expected multipart request, got %q", r.Header.Get("Content-Type"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"document_id":"doc_42"}`))
	})

	id, err := client.UploadDocument(context.Background(), []byte("%PDF"), "agreement.pdf", "application/pdf")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if id != "doc_42" {
		t.Fatalf("expected doc_42, got %q", id)
	}
}

func TestUploadDocumentRejectsEmptyFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the provider")
	})

	_, err := client.UploadDocument(context.Background(), nil, "agreement.pdf", "application/pdf")
	if !errors.Is(err, domain.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestSendForSignature(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/documents/doc_42/send" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"document_id":"doc_42","status":"sent"}`))
	})

	result, err := client.SendForSignature(context.Background(), "doc_42",
		[]domain.Signer{{Name: "Dana Client", Email: "dana@example.com"}}, "Engagement", "please sign")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.ProviderDocumentID != "doc_42" || result.Status != "sent" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestSendForSignatureRequiresSigner(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the provider")
	})

	_, err := client.SendForSignature(context.Background(), "doc_42", nil, "Engagement", "")
	if !errors.Is(err, domain.ErrInvalidSigner) {
		t.Fatalf("expected ErrInvalidSigner, got %v", err)
	}
}

func TestProviderErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnprocessableEntity, domain.ErrInvalidDocument},
		{http.StatusInternalServerError, domain.ErrProviderUnavailable},
	}
	for _, tc := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		_, err := client.UploadDocument(context.Background(), []byte("%PDF"), "agreement.pdf", "application/pdf")
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}
