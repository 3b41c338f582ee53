package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	packdomain "github.com/Heyzerohey/packhey/internal/pack/domain"
	paymentdomain "github.com/Heyzerohey/packhey/internal/payment/domain"
)

// maxUploadBytes bounds signer document uploads.
const maxUploadBytes = 25 << 20

const (
	signerLinkCacheTTL = 5 * time.Minute
	signerLinkMissTTL  = 30 * time.Second
)

// signerLinkKnownMissing reports whether linkID recently resolved to
// nothing. A cached zero id is a negative entry; together with the rate
// limiter it keeps token enumeration off the database.
func (s *Server) signerLinkKnownMissing(linkID string) bool {
	id, ok := s.signerLinks.Get(linkID)
	return ok && id == 0
}

// GetSignerView serves the unauthenticated signer page data. The link token
// is the only credential; responses never include the owner's identity.
func (s *Server) GetSignerView(c *gin.Context) {
	linkID := strings.TrimSpace(c.Param("linkID"))
	if s.signerLinkKnownMissing(linkID) {
		AbortWithError(c, ErrNotFound)
		return
	}

	view, err := s.packSvc.GetBySignerLink(c.Request.Context(), linkID)
	if err != nil {
		if errors.Is(err, packdomain.ErrPackageNotFound) {
			s.signerLinks.Set(linkID, 0, signerLinkMissTTL)
		}
		AbortWithError(c, err)
		return
	}
	s.signerLinks.Set(linkID, view.PackageID, signerLinkCacheTTL)

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"name":               view.Name,
		"status":             string(view.Status),
		"document_requested": view.DocumentRequested,
		"document_name":      view.DocumentName,
		"document_uploaded":  view.DocumentUploaded,
		"payment_requested":  view.PaymentRequested,
		"payment_amount":     view.PaymentAmount,
		"payment_currency":   view.PaymentCurrency,
		"payment_received":   view.PaymentReceived,
	}})
}

// UploadSignerDocument accepts one requested document from the signer.
func (s *Server) UploadSignerDocument(c *gin.Context) {
	linkID := strings.TrimSpace(c.Param("linkID"))
	if s.signerLinkKnownMissing(linkID) {
		AbortWithError(c, ErrNotFound)
		return
	}

	file, header, err := c.Request.FormFile("document")
	if err != nil {
		AbortWithError(c, newValidationError("document", "required", "document file is required"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(content) > maxUploadBytes {
		AbortWithError(c, newValidationError("document", "too_large", "document exceeds the size limit"))
		return
	}

	doc, err := s.packSvc.RecordUpload(c.Request.Context(), linkID, packdomain.UploadRequest{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"id":       doc.ID.String(),
		"filename": doc.OriginalFilename,
	}})
}

// CreateSignerCheckout opens the hosted checkout for the package's payment
// request. The webhook, not the redirect, settles the payment.
func (s *Server) CreateSignerCheckout(c *gin.Context) {
	linkID := strings.TrimSpace(c.Param("linkID"))
	if s.signerLinkKnownMissing(linkID) {
		AbortWithError(c, ErrNotFound)
		return
	}

	view, err := s.packSvc.GetBySignerLink(c.Request.Context(), linkID)
	if err != nil {
		if errors.Is(err, packdomain.ErrPackageNotFound) {
			s.signerLinks.Set(linkID, 0, signerLinkMissTTL)
		}
		AbortWithError(c, err)
		return
	}
	if !view.PaymentRequested {
		AbortWithError(c, newValidationError("payment", "not_requested", "this package has no payment request"))
		return
	}
	if view.PaymentReceived {
		AbortWithError(c, newValidationError("payment", "already_paid", "payment was already received"))
		return
	}

	baseURL := strings.TrimRight(s.cfg.BaseURL, "/")
	session, err := s.checkout.CreateCheckoutSession(c.Request.Context(), paymentdomain.CheckoutParams{
		PurchaseType: paymentdomain.PurchaseTypePackagePayment,
		PackageID:    view.PackageID,
		Amount:       view.PaymentAmount,
		Currency:     view.PaymentCurrency,
		SuccessURL:   baseURL + "/s/" + linkID + "?payment=success",
		CancelURL:    baseURL + "/s/" + linkID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"session_id":   session.ID,
		"checkout_url": session.URL,
	}})
}
