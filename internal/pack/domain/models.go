package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Status is the overall lifecycle state of a package. It is always derived
// from the three sub-statuses by Reconcile, except for the terminal
// declined/revoked/failed short-circuits.
type Status string

const (
	StatusDraft                  Status = "draft"
	StatusSent                   Status = "sent"
	StatusViewed                 Status = "viewed"
	StatusPartiallySigned        Status = "partially_signed"
	StatusDocumentsPendingUpload Status = "documents_pending_upload"
	StatusDocumentsPendingReview Status = "documents_pending_review"
	StatusPaymentPending         Status = "payment_pending"
	StatusCompleted              Status = "completed"
	StatusDeclined               Status = "declined"
	StatusRevoked                Status = "revoked"
	StatusFailed                 Status = "failed"
)

// IsTerminal reports whether a package can never transition again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusDeclined, StatusRevoked, StatusFailed:
		return true
	}
	return false
}

// AgreementStatus mirrors the signing provider's document lifecycle.
type AgreementStatus string

const (
	AgreementStatusPending         AgreementStatus = "pending"
	AgreementStatusSent            AgreementStatus = "sent"
	AgreementStatusViewed          AgreementStatus = "viewed"
	AgreementStatusPartiallySigned AgreementStatus = "partially_signed"
	AgreementStatusCompleted       AgreementStatus = "completed"
	AgreementStatusDeclined        AgreementStatus = "declined"
	AgreementStatusRevoked         AgreementStatus = "revoked"
)

// Package is one client engagement: an agreement plus optional document
// request and optional payment request, reachable through one unguessable
// signer link. Rows are never deleted.
type Package struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	ProUserID    snowflake.ID `gorm:"not null;index"`
	Name         string       `gorm:"type:text;not null"`
	SignerLinkID string       `gorm:"type:text;not null;uniqueIndex"`
	Status       Status       `gorm:"type:text;not null;default:'draft'"`

	DocumentRequested          bool   `gorm:"not null;default:false"`
	DocumentRequestName        string `gorm:"type:text;not null;default:''"`
	DocumentRequestDescription string `gorm:"type:text;not null;default:''"`

	PaymentRequested   bool   `gorm:"not null;default:false"`
	PaymentAmount      int64  `gorm:"not null;default:0"`
	PaymentCurrency    string `gorm:"type:text;not null;default:''"`
	PaymentDescription string `gorm:"type:text;not null;default:''"`

	CreditCost      *decimal.Decimal `gorm:"type:numeric(10,2)"`
	CreditDebitedAt *time.Time       `gorm:"column:credit_debited_at"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Package) TableName() string { return "packages" }

// Agreement is one signing request owned by its package. Mutated only by the
// signing webhook adapter.
type Agreement struct {
	ID                 snowflake.ID    `gorm:"primaryKey"`
	PackageID          snowflake.ID    `gorm:"not null;index"`
	ProviderDocumentID string          `gorm:"type:text;not null;uniqueIndex"`
	OriginalFilename   string          `gorm:"type:text;not null"`
	Status             AgreementStatus `gorm:"type:text;not null;default:'pending'"`
	CreatedAt          time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Agreement) TableName() string { return "agreements" }

// UploadedDocument is one signer upload. Append-only; its existence is the
// fulfillment signal for the document request.
type UploadedDocument struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	PackageID        snowflake.ID `gorm:"not null;index"`
	OriginalFilename string       `gorm:"type:text;not null"`
	StoredPath       string       `gorm:"type:text;not null"`
	ContentType      string       `gorm:"type:text;not null"`
	SizeBytes        int64        `gorm:"not null"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UploadedDocument) TableName() string { return "uploaded_documents" }

// Payment is the confirmed signer payment for a package. At most one;
// write-once; its presence is the fulfillment signal for the payment request.
type Payment struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	PackageID        snowflake.ID `gorm:"not null;uniqueIndex"`
	Amount           int64        `gorm:"not null"`
	Currency         string       `gorm:"type:text;not null"`
	ProviderChargeID string       `gorm:"type:text;not null;uniqueIndex"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }
