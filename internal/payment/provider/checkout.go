package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Heyzerohey/packhey/internal/config"
	"github.com/Heyzerohey/packhey/internal/observability/tracing"
	"github.com/Heyzerohey/packhey/internal/payment/domain"
)

type client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
	log        *zap.Logger
}

// NewClient builds the HTTP client for the payment provider's checkout API.
func NewClient(cfg config.Config, log *zap.Logger) domain.CheckoutProvider {
	return &client{
		httpClient: tracing.InstrumentClient(&http.Client{Timeout: cfg.Payment.Timeout}, "payment-provider"),
		baseURL:    strings.TrimRight(cfg.Payment.BaseURL, "/"),
		secretKey:  cfg.Payment.SecretKey,
		log:        log.Named("payment.client"),
	}
}

type sessionResult struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (c *client) CreateCheckoutSession(ctx context.Context, params domain.CheckoutParams) (*domain.CheckoutSession, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"purchase_type": params.PurchaseType,
	}
	if params.ProUserID != 0 {
		metadata["pro_user_id"] = params.ProUserID.String()
	}
	if params.PackageID != 0 {
		metadata["package_id"] = params.PackageID.String()
	}
	if params.Credits > 0 {
		metadata["credits"] = strconv.FormatInt(params.Credits, 10)
	}

	payload := map[string]any{
		"amount":      params.Amount,
		"currency":    strings.ToLower(params.Currency),
		"success_url": params.SuccessURL,
		"cancel_url":  params.CancelURL,
		"metadata":    metadata,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal checkout payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("checkout session request failed", zap.Error(err))
		return nil, domain.ErrProviderUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("checkout session rejected", zap.Int("status", resp.StatusCode))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, domain.ErrInvalidCheckout
		}
		return nil, domain.ErrProviderUnavailable
	}

	var result sessionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, domain.ErrProviderUnavailable
	}
	if result.ID == "" || result.URL == "" {
		return nil, domain.ErrProviderUnavailable
	}
	return &domain.CheckoutSession{ID: result.ID, URL: result.URL}, nil
}

func validateParams(params domain.CheckoutParams) error {
	switch params.PurchaseType {
	case domain.PurchaseTypeSignaturePack:
		if params.ProUserID == 0 || params.Credits <= 0 {
			return domain.ErrInvalidCheckout
		}
	case domain.PurchaseTypePackagePayment:
		if params.PackageID == 0 {
			return domain.ErrInvalidCheckout
		}
	case domain.PurchaseTypeSubscription:
		if params.ProUserID == 0 {
			return domain.ErrInvalidCheckout
		}
	default:
		return domain.ErrInvalidCheckout
	}
	if params.Amount <= 0 || strings.TrimSpace(params.Currency) == "" {
		return domain.ErrInvalidCheckout
	}
	return nil
}
