package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	packdomain "github.com/Heyzerohey/packhey/internal/pack/domain"
)

// maxAgreementBytes bounds the agreement upload size.
const maxAgreementBytes = 20 << 20

type packageResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Status            string `json:"status"`
	SignerLink        string `json:"signer_link"`
	DocumentRequested bool   `json:"document_requested"`
	PaymentRequested  bool   `json:"payment_requested"`
	PaymentAmount     int64  `json:"payment_amount,omitempty"`
	PaymentCurrency   string `json:"payment_currency,omitempty"`
	CreditCost        string `json:"credit_cost,omitempty"`
	CreatedAt         string `json:"created_at"`
}

func (s *Server) packageResponse(pkg *packdomain.Package) packageResponse {
	resp := packageResponse{
		ID:                pkg.ID.String(),
		Name:              pkg.Name,
		Status:            string(pkg.Status),
		SignerLink:        strings.TrimRight(s.cfg.BaseURL, "/") + "/s/" + pkg.SignerLinkID,
		DocumentRequested: pkg.DocumentRequested,
		PaymentRequested:  pkg.PaymentRequested,
		PaymentAmount:     pkg.PaymentAmount,
		PaymentCurrency:   pkg.PaymentCurrency,
		CreatedAt:         pkg.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if pkg.CreditCost != nil {
		resp.CreditCost = pkg.CreditCost.String()
	}
	return resp
}

// CreatePackage accepts a multipart form: the agreement file plus the
// package fields. On success the package is already dispatched and billed.
func (s *Server) CreatePackage(c *gin.Context) {
	file, header, err := c.Request.FormFile("agreement")
	if err != nil {
		AbortWithError(c, newValidationError("agreement", "required", "agreement file is required"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxAgreementBytes+1))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(content) > maxAgreementBytes {
		AbortWithError(c, newValidationError("agreement", "too_large", "agreement file exceeds the size limit"))
		return
	}

	req := packdomain.CreateRequest{
		Name:          strings.TrimSpace(c.PostForm("name")),
		SignerName:    strings.TrimSpace(c.PostForm("signer_name")),
		SignerEmail:   strings.TrimSpace(c.PostForm("signer_email")),
		Message:       strings.TrimSpace(c.PostForm("message")),
		AgreementFile: content,
		Filename:      header.Filename,
		ContentType:   header.Header.Get("Content-Type"),
	}
	if c.PostForm("document_request") == "true" {
		req.DocumentRequest = packdomain.DocumentRequestInput{
			Requested:   true,
			Name:        strings.TrimSpace(c.PostForm("document_name")),
			Description: strings.TrimSpace(c.PostForm("document_description")),
		}
	}
	if c.PostForm("payment_request") == "true" {
		amount, err := parseAmount(c.PostForm("payment_amount"))
		if err != nil {
			AbortWithError(c, newValidationError("payment_amount", "invalid_amount", "invalid payment amount"))
			return
		}
		req.PaymentRequest = packdomain.PaymentRequestInput{
			Requested:   true,
			Amount:      amount,
			Currency:    strings.TrimSpace(c.PostForm("payment_currency")),
			Description: strings.TrimSpace(c.PostForm("payment_description")),
		}
	}

	pkg, err := s.packSvc.Create(c.Request.Context(), proUserID(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": s.packageResponse(pkg)})
}

func parseAmount(raw string) (int64, error) {
	amount, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, strconv.ErrRange
	}
	return amount, nil
}

func (s *Server) ListPackages(c *gin.Context) {
	packages, err := s.packSvc.List(c.Request.Context(), proUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]packageResponse, 0, len(packages))
	for i := range packages {
		out = append(out, s.packageResponse(&packages[i]))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) GetPackage(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	pkg, err := s.packSvc.GetByID(c.Request.Context(), proUserID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s.packageResponse(pkg)})
}
