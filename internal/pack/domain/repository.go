package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository persists packages and their sub-records. Lock methods take the
// package row lock that serializes all read-then-write cycles per package.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, pkg *Package) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Package, error)
	FindBySignerLink(ctx context.Context, db *gorm.DB, signerLinkID string) (*Package, error)
	ListByUser(ctx context.Context, db *gorm.DB, proUserID snowflake.ID) ([]Package, error)

	LockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Package, error)
	// LockBillingDebt locks a batch of stale draft packages that were never
	// billed, skipping rows held by concurrent sweeps.
	LockBillingDebt(ctx context.Context, tx *gorm.DB, staleBefore time.Time, limit int) ([]Package, error)

	UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, status Status, now time.Time) error
	MarkDebited(ctx context.Context, tx *gorm.DB, id snowflake.ID, cost decimal.Decimal, now time.Time) error

	InsertAgreement(ctx context.Context, db *gorm.DB, agreement *Agreement) error
	FindAgreementByProviderDocument(ctx context.Context, db *gorm.DB, providerDocumentID string) (*Agreement, error)
	FindAgreementByPackage(ctx context.Context, db *gorm.DB, packageID snowflake.ID) (*Agreement, error)
	UpdateAgreementStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, status AgreementStatus, now time.Time) error

	InsertUploadedDocument(ctx context.Context, tx *gorm.DB, doc *UploadedDocument) error
	CountUploadedDocuments(ctx context.Context, db *gorm.DB, packageID snowflake.ID) (int64, error)

	// InsertPayment reports false when the charge was already recorded.
	InsertPayment(ctx context.Context, tx *gorm.DB, payment *Payment) (bool, error)
	HasPayment(ctx context.Context, db *gorm.DB, packageID snowflake.ID) (bool, error)
}
