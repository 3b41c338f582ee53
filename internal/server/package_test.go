package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	creditdomain "github.com/Heyzerohey/packhey/internal/creditledger/domain"
	packdomain "github.com/Heyzerohey/packhey/internal/pack/domain"
	paymentdomain "github.com/Heyzerohey/packhey/internal/payment/domain"
	subscriptiondomain "github.com/Heyzerohey/packhey/internal/subscription/domain"
)

func samplePackage() *packdomain.Package {
	cost := decimal.RequireFromString("1.25")
	return &packdomain.Package{
		ID:               snowflake.ID(101),
		ProUserID:        testProUserID,
		Name:             "Kitchen remodel",
		SignerLinkID:     "link_abc",
		Status:           packdomain.StatusSent,
		PaymentRequested: true,
		PaymentAmount:    50000,
		PaymentCurrency:  "USD",
		CreditCost:       &cost,
		CreatedAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func multipartPackage(t *testing.T, fields map[string]string, withFile bool) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if withFile {
		part, err := writer.CreateFormFile("agreement", "agreement.pdf")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte("%PDF-1.4 test")); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func authorized(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	return req
}

func TestCreatePackage(t *testing.T) {
	fx := newServerFixture(t)
	fx.pack.pkg = samplePackage()

	body, contentType := multipartPackage(t, map[string]string{
		"name":             "Kitchen remodel",
		"signer_name":      "Sam Signer",
		"signer_email":     "sam@example.com",
		"payment_request":  "true",
		"payment_amount":   "50000",
		"payment_currency": "USD",
	}, true)

	req := authorized(httptest.NewRequest(http.MethodPost, "/api/packages", body))
	req.Header.Set("Content-Type", contentType)
	rec := fx.do(req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if fx.pack.createdFor != testProUserID {
		t.Fatalf("expected create for user %d, got %d", testProUserID, fx.pack.createdFor)
	}
	if got := fx.pack.createReq; got.Name != "Kitchen remodel" ||
		got.SignerEmail != "sam@example.com" ||
		!got.PaymentRequest.Requested ||
		got.PaymentRequest.Amount != 50000 {
		t.Fatalf("unexpected create request: %+v", got)
	}
	if !strings.Contains(rec.Body.String(), "/s/link_abc") {
		t.Fatalf("expected signer link in response, got %s", rec.Body.String())
	}
}

func TestCreatePackageRequiresAgreement(t *testing.T) {
	fx := newServerFixture(t)

	body, contentType := multipartPackage(t, map[string]string{"name": "No file"}, false)
	req := authorized(httptest.NewRequest(http.MethodPost, "/api/packages", body))
	req.Header.Set("Content-Type", contentType)

	rec := fx.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "agreement") {
		t.Fatalf("expected agreement field error, got %s", rec.Body.String())
	}
}

func TestCreatePackageRejectsBadAmount(t *testing.T) {
	fx := newServerFixture(t)

	body, contentType := multipartPackage(t, map[string]string{
		"name":            "Bad amount",
		"signer_name":     "Sam Signer",
		"signer_email":    "sam@example.com",
		"payment_request": "true",
		"payment_amount":  "-100",
	}, true)

	req := authorized(httptest.NewRequest(http.MethodPost, "/api/packages", body))
	req.Header.Set("Content-Type", contentType)

	rec := fx.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if fx.pack.createdFor != 0 {
		t.Fatal("service should not be reached on invalid amount")
	}
}

func TestCreatePackagePreconditionErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"no subscription", subscriptiondomain.ErrNoActiveSubscription, http.StatusForbidden},
		{"provider down", packdomain.ErrProviderFailure, http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newServerFixture(t)
			fx.pack.createErr = tc.err

			body, contentType := multipartPackage(t, map[string]string{
				"name":         "Doomed",
				"signer_name":  "Sam Signer",
				"signer_email": "sam@example.com",
			}, true)
			req := authorized(httptest.NewRequest(http.MethodPost, "/api/packages", body))
			req.Header.Set("Content-Type", contentType)

			if rec := fx.do(req); rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreatePackageInsufficientCreditsBody(t *testing.T) {
	fx := newServerFixture(t)
	fx.pack.createErr = &creditdomain.InsufficientCreditError{
		Balance: decimal.RequireFromString("0.50"),
		Cost:    decimal.RequireFromString("1.25"),
	}

	body, contentType := multipartPackage(t, map[string]string{
		"name":         "Doomed",
		"signer_name":  "Sam Signer",
		"signer_email": "sam@example.com",
	}, true)
	req := authorized(httptest.NewRequest(http.MethodPost, "/api/packages", body))
	req.Header.Set("Content-Type", contentType)

	rec := fx.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	got := rec.Body.String()
	if !strings.Contains(got, "insufficient_credits") {
		t.Fatalf("missing error code: %s", got)
	}
	if !strings.Contains(got, "0.50") || !strings.Contains(got, "1.25") {
		t.Fatalf("body missing balance or cost: %s", got)
	}
}

func TestGetPackage(t *testing.T) {
	fx := newServerFixture(t)
	fx.pack.pkg = samplePackage()

	rec := fx.do(authorized(httptest.NewRequest(http.MethodGet, "/api/packages/101", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data packageResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != "101" || envelope.Data.Status != "sent" || envelope.Data.CreditCost != "1.25" {
		t.Fatalf("unexpected response: %+v", envelope.Data)
	}
}

func TestGetPackageInvalidID(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.do(authorized(httptest.NewRequest(http.MethodGet, "/api/packages/not-a-number", nil)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateCreditCheckout(t *testing.T) {
	fx := newServerFixture(t)

	payload := strings.NewReader(`{"pack": "standard"}`)
	req := authorized(httptest.NewRequest(http.MethodPost, "/api/credits/checkout", payload))
	req.Header.Set("Content-Type", "application/json")

	rec := fx.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if fx.checkout.params.PurchaseType != paymentdomain.PurchaseTypeSignaturePack {
		t.Fatalf("expected signature pack purchase, got %q", fx.checkout.params.PurchaseType)
	}
	if fx.checkout.params.Credits != 50 || fx.checkout.params.Amount != 6500 {
		t.Fatalf("unexpected checkout params: %+v", fx.checkout.params)
	}
	if fx.checkout.params.ProUserID != testProUserID {
		t.Fatalf("expected pro user %d, got %d", testProUserID, fx.checkout.params.ProUserID)
	}
}

func TestCreateCreditCheckoutUnknownPack(t *testing.T) {
	fx := newServerFixture(t)

	payload := strings.NewReader(`{"pack": "mega"}`)
	req := authorized(httptest.NewRequest(http.MethodPost, "/api/credits/checkout", payload))
	req.Header.Set("Content-Type", "application/json")

	if rec := fx.do(req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateSubscriptionCheckout(t *testing.T) {
	fx := newServerFixture(t)

	payload := strings.NewReader(`{"plan": "pro-monthly"}`)
	req := authorized(httptest.NewRequest(http.MethodPost, "/api/subscription/checkout", payload))
	req.Header.Set("Content-Type", "application/json")

	rec := fx.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if fx.checkout.params.PurchaseType != paymentdomain.PurchaseTypeSubscription {
		t.Fatalf("expected subscription purchase, got %q", fx.checkout.params.PurchaseType)
	}
	if fx.checkout.params.Amount != 4900 || fx.checkout.params.ProUserID != testProUserID {
		t.Fatalf("unexpected checkout params: %+v", fx.checkout.params)
	}
}

func TestCreateSubscriptionCheckoutUnknownPlan(t *testing.T) {
	fx := newServerFixture(t)

	payload := strings.NewReader(`{"plan": "enterprise"}`)
	req := authorized(httptest.NewRequest(http.MethodPost, "/api/subscription/checkout", payload))
	req.Header.Set("Content-Type", "application/json")

	if rec := fx.do(req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetSubscription(t *testing.T) {
	fx := newServerFixture(t)
	fx.subscription.sub = &subscriptiondomain.Subscription{
		ID:                         snowflake.ID(7),
		ProUserID:                  testProUserID,
		PlanName:                   "pro-monthly",
		Status:                     subscriptiondomain.SubscriptionStatusActive,
		CurrentPeriodStart:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		CurrentPeriodEnd:           time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		CurrentCycleSignatureCount: 12,
	}

	rec := fx.do(authorized(httptest.NewRequest(http.MethodGet, "/api/subscription", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := rec.Body.String(); !strings.Contains(body, "pro-monthly") || !strings.Contains(body, `"cycle_signatures":12`) {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestGetSubscriptionNone(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.do(authorized(httptest.NewRequest(http.MethodGet, "/api/subscription", nil)))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
