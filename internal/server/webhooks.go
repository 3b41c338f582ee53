package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	packdomain "github.com/Heyzerohey/packhey/internal/pack/domain"
	paymentdomain "github.com/Heyzerohey/packhey/internal/payment/domain"
	signingdomain "github.com/Heyzerohey/packhey/internal/signing/domain"
)

// maxWebhookBytes bounds inbound webhook bodies.
const maxWebhookBytes = 1 << 20

// SigningWebhook ingests signature lifecycle callbacks. The signature is
// verified against the raw body before anything else happens; unverified
// deliveries never reach the database.
func (s *Server) SigningWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := signingdomain.VerifySignature(s.cfg.Signing.WebhookSecret, body, c.Request.Header); err != nil {
		s.webhookStats.Rejected(signingdomain.ProviderName, "invalid_signature")
		AbortWithError(c, ErrUnauthorized)
		return
	}

	event, err := signingdomain.ParseEvent(body)
	if err != nil {
		s.webhookStats.Rejected(signingdomain.ProviderName, "invalid_payload")
		AbortWithError(c, invalidRequestError())
		return
	}

	target, err := signingdomain.MapEventCode(event.EventCode)
	if err != nil {
		// Unknown codes from newer provider versions are acknowledged so the
		// provider stops retrying them.
		s.log.Info("ignoring unknown signing event code",
			zap.String("event_code", event.EventCode),
			zap.String("event_id", event.EventID),
		)
		s.webhookStats.Processed(signingdomain.ProviderName, "ignored")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	err = s.packSvc.ApplySigningEvent(c.Request.Context(), event.DocumentID, target)
	switch {
	case err == nil:
		s.webhookStats.Processed(signingdomain.ProviderName, event.EventCode)
	case errors.Is(err, packdomain.ErrAgreementNotFound):
		// Deliveries for documents we never sent. Acknowledge and move on.
		s.log.Warn("signing event for unknown document",
			zap.String("document_id", event.DocumentID),
			zap.String("event_code", event.EventCode),
		)
		s.webhookStats.Rejected(signingdomain.ProviderName, "unknown_document")
	default:
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// PaymentWebhook ingests payment provider events. Idempotency lives in the
// payment service; redeliveries come back as ErrEventAlreadyProcessed and are
// acknowledged without reprocessing.
func (s *Server) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.paymentSvc.IngestWebhook(c.Request.Context(), body, c.Request.Header)
	switch {
	case err == nil:
		s.webhookStats.Processed(paymentdomain.ProviderName, "processed")
	case errors.Is(err, paymentdomain.ErrEventAlreadyProcessed):
		s.webhookStats.Duplicate(paymentdomain.ProviderName, "redelivery")
	case errors.Is(err, paymentdomain.ErrEventIgnored):
		s.webhookStats.Processed(paymentdomain.ProviderName, "ignored")
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		s.webhookStats.Rejected(paymentdomain.ProviderName, "invalid_signature")
		AbortWithError(c, ErrUnauthorized)
		return
	case errors.Is(err, paymentdomain.ErrInvalidPayload), errors.Is(err, paymentdomain.ErrInvalidEvent):
		s.webhookStats.Rejected(paymentdomain.ProviderName, "invalid_payload")
		AbortWithError(c, invalidRequestError())
		return
	default:
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
