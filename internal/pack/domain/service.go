package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// DocumentRequestInput asks the signer for supporting paperwork.
type DocumentRequestInput struct {
	Requested   bool
	Name        string
	Description string
}

// PaymentRequestInput asks the signer for a one-time payment in minor units.
type PaymentRequestInput struct {
	Requested   bool
	Amount      int64
	Currency    string
	Description string
}

// CreateRequest carries everything needed to create and send a package.
type CreateRequest struct {
	Name            string
	SignerName      string
	SignerEmail     string
	Message         string
	AgreementFile   []byte
	Filename        string
	ContentType     string
	DocumentRequest DocumentRequestInput
	PaymentRequest  PaymentRequestInput
}

// UploadRequest is one signer document upload.
type UploadRequest struct {
	Filename    string
	ContentType string
	Content     []byte
}

// PaymentRecord is a confirmed signer payment reported by the payment webhook.
type PaymentRecord struct {
	Amount           int64
	Currency         string
	ProviderChargeID string
}

// SignerView is what the unauthenticated signer flow may see of a package.
type SignerView struct {
	PackageID         snowflake.ID
	Name              string
	Status            Status
	DocumentRequested bool
	DocumentName      string
	DocumentUploaded  bool
	PaymentRequested  bool
	PaymentAmount     int64
	PaymentCurrency   string
	PaymentReceived   bool
}

// Service owns package creation and all sub-status mutations.
type Service interface {
	// Create runs the full send orchestration: subscription and credit
	// preconditions, provider dispatch, atomic debit plus usage increment.
	Create(ctx context.Context, proUserID snowflake.ID, req CreateRequest) (*Package, error)

	GetByID(ctx context.Context, proUserID, packageID snowflake.ID) (*Package, error)
	List(ctx context.Context, proUserID snowflake.ID) ([]Package, error)
	GetBySignerLink(ctx context.Context, signerLinkID string) (*SignerView, error)

	// ApplySigningEvent maps one provider webhook event onto the agreement
	// sub-status and reconciles. Duplicate deliveries are no-ops.
	ApplySigningEvent(ctx context.Context, providerDocumentID string, target AgreementStatus) error

	// RecordUpload stores a signer document and reconciles.
	RecordUpload(ctx context.Context, signerLinkID string, req UploadRequest) (*UploadedDocument, error)

	// RecordPayment records the confirmed signer payment and reconciles.
	RecordPayment(ctx context.Context, packageID snowflake.ID, payment PaymentRecord) error
}

var (
	ErrPackageNotFound   = errors.New("package_not_found")
	ErrAgreementNotFound = errors.New("agreement_not_found")
	ErrPackageTerminal   = errors.New("package_terminal")
	ErrInvalidRequest    = errors.New("invalid_request")
	ErrProviderFailure   = errors.New("signing_provider_failure")
	ErrUploadNotExpected = errors.New("upload_not_expected")
)
