package server

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"

	packdomain "github.com/Heyzerohey/packhey/internal/pack/domain"
	paymentdomain "github.com/Heyzerohey/packhey/internal/payment/domain"
)

func sampleSignerView() *packdomain.SignerView {
	return &packdomain.SignerView{
		PackageID:         snowflake.ID(101),
		Name:              "Kitchen remodel",
		Status:            packdomain.StatusPaymentPending,
		DocumentRequested: true,
		DocumentName:      "Proof of insurance",
		DocumentUploaded:  true,
		PaymentRequested:  true,
		PaymentAmount:     50000,
		PaymentCurrency:   "USD",
	}
}

func TestGetSignerView(t *testing.T) {
	fx := newServerFixture(t)
	fx.pack.view = sampleSignerView()

	rec := fx.do(httptest.NewRequest(http.MethodGet, "/s/link_abc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := rec.Body.String()
	if !strings.Contains(body, "payment_pending") || !strings.Contains(body, "Proof of insurance") {
		t.Fatalf("unexpected body: %s", body)
	}
	if strings.Contains(body, "101") {
		t.Fatalf("signer view must not leak the package id: %s", body)
	}
}

func TestGetSignerViewUnknownLink(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.do(httptest.NewRequest(http.MethodGet, "/s/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetSignerViewNegativeCache(t *testing.T) {
	fx := newServerFixture(t)

	for i := 0; i < 3; i++ {
		if rec := fx.do(httptest.NewRequest(http.MethodGet, "/s/nope", nil)); rec.Code != http.StatusNotFound {
			t.Fatalf("request %d: expected 404, got %d", i, rec.Code)
		}
	}
	if fx.pack.viewCalls != 1 {
		t.Fatalf("expected one lookup for a known-missing token, got %d", fx.pack.viewCalls)
	}
}

func TestSignerRateLimit(t *testing.T) {
	fx := newServerFixture(t)
	fx.pack.view = sampleSignerView()
	fx.server.signerLimiter = newRateLimiter(2, time.Minute)

	for i := 0; i < 2; i++ {
		if rec := fx.do(httptest.NewRequest(http.MethodGet, "/s/link_abc", nil)); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	if rec := fx.do(httptest.NewRequest(http.MethodGet, "/s/link_abc", nil)); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", rec.Code)
	}
}

func TestUploadSignerDocument(t *testing.T) {
	fx := newServerFixture(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("document", "insurance.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4 proof")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/s/link_abc/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := fx.do(req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if fx.pack.uploaded == nil || fx.pack.uploaded.OriginalFilename != "insurance.pdf" {
		t.Fatalf("expected upload recorded, got %+v", fx.pack.uploaded)
	}
}

func TestUploadSignerDocumentMissingFile(t *testing.T) {
	fx := newServerFixture(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("note", "no file here"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/s/link_abc/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	if rec := fx.do(req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUploadSignerDocumentNotExpected(t *testing.T) {
	fx := newServerFixture(t)
	fx.pack.uploadErr = packdomain.ErrUploadNotExpected

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("document", "extra.pdf")
	part.Write([]byte("data"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/s/link_abc/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	if rec := fx.do(req); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestCreateSignerCheckout(t *testing.T) {
	fx := newServerFixture(t)
	fx.pack.view = sampleSignerView()

	rec := fx.do(httptest.NewRequest(http.MethodPost, "/s/link_abc/checkout", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if fx.checkout.params.PurchaseType != paymentdomain.PurchaseTypePackagePayment {
		t.Fatalf("expected package payment purchase, got %q", fx.checkout.params.PurchaseType)
	}
	if fx.checkout.params.PackageID != snowflake.ID(101) || fx.checkout.params.Amount != 50000 {
		t.Fatalf("unexpected checkout params: %+v", fx.checkout.params)
	}
	if !strings.Contains(rec.Body.String(), "cs_test_1") {
		t.Fatalf("expected session id in body, got %s", rec.Body.String())
	}
}

func TestCreateSignerCheckoutNoPaymentRequest(t *testing.T) {
	fx := newServerFixture(t)
	view := sampleSignerView()
	view.PaymentRequested = false
	fx.pack.view = view

	if rec := fx.do(httptest.NewRequest(http.MethodPost, "/s/link_abc/checkout", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateSignerCheckoutAlreadyPaid(t *testing.T) {
	fx := newServerFixture(t)
	view := sampleSignerView()
	view.PaymentReceived = true
	fx.pack.view = view

	if rec := fx.do(httptest.NewRequest(http.MethodPost, "/s/link_abc/checkout", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
