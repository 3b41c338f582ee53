package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Heyzerohey/packhey/internal/config"
	"github.com/Heyzerohey/packhey/internal/observability/tracing"
	"github.com/Heyzerohey/packhey/internal/signing/domain"
)

type client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        *zap.Logger
}

// NewClient builds the HTTP client for the e-signature provider.
func NewClient(cfg config.Config, log *zap.Logger) domain.Provider {
	return &client{
		httpClient: tracing.InstrumentClient(&http.Client{Timeout: cfg.Signing.Timeout}, "signing-provider"),
		baseURL:    strings.TrimRight(cfg.Signing.BaseURL, "/"),
		apiKey:     cfg.Signing.APIKey,
		log:        log.Named("signing.client"),
	}
}

type uploadResult struct {
	DocumentID string `json:"document_id"`
}

type sendResult struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

func (c *client) UploadDocument(ctx context.Context, file []byte, filename, contentType string) (string, error) {
	if len(file) == 0 || strings.TrimSpace(filename) == "" {
		return "", domain.ErrInvalidDocument
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(file); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if contentType != "" {
		if err := writer.WriteField("content_type", contentType); err != nil {
			return "", fmt.Errorf("write form field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close form writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/documents", &body)
	if err != nil {
		return "", fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result uploadResult
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	if result.DocumentID == "" {
		return "", domain.ErrProviderUnavailable
	}
	return result.DocumentID, nil
}

func (c *client) SendForSignature(ctx context.Context, providerDocumentID string, signers []domain.Signer, title, message string) (*domain.SendResult, error) {
	if strings.TrimSpace(providerDocumentID) == "" {
		return nil, domain.ErrInvalidDocument
	}
	if len(signers) == 0 {
		return nil, domain.ErrInvalidSigner
	}
	for _, signer := range signers {
		if strings.TrimSpace(signer.Name) == "" || strings.TrimSpace(signer.Email) == "" {
			return nil, domain.ErrInvalidSigner
		}
	}

	payload := map[string]any{
		"title":   title,
		"message": message,
		"signers": signers,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal send payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/documents/%s/send", c.baseURL, providerDocumentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var result sendResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	if result.DocumentID == "" {
		return nil, domain.ErrProviderUnavailable
	}
	return &domain.SendResult{ProviderDocumentID: result.DocumentID, Status: result.Status}, nil
}

func (c *client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("signing provider request failed", zap.String("url", req.URL.Path), zap.Error(err))
		return domain.ErrProviderUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn("signing provider returned error",
			zap.String("url", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return domain.ErrInvalidDocument
		}
		return domain.ErrProviderUnavailable
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.ErrProviderUnavailable
	}
	return nil
}
