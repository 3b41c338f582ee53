package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Heyzerohey/packhey/internal/pack/domain"
)

type gormRepository struct{}

// Provide constructs the gorm-backed package repository.
func Provide() domain.Repository {
	return &gormRepository{}
}

func (r *gormRepository) Insert(ctx context.Context, db *gorm.DB, pkg *domain.Package) error {
	return db.WithContext(ctx).Create(pkg).Error
}

func (r *gormRepository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Package, error) {
	var pkg domain.Package
	err := db.WithContext(ctx).First(&pkg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPackageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *gormRepository) FindBySignerLink(ctx context.Context, db *gorm.DB, signerLinkID string) (*domain.Package, error) {
	signerLinkID = strings.TrimSpace(signerLinkID)
	if signerLinkID == "" {
		return nil, domain.ErrPackageNotFound
	}
	var pkg domain.Package
	err := db.WithContext(ctx).First(&pkg, "signer_link_id = ?", signerLinkID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPackageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *gormRepository) ListByUser(ctx context.Context, db *gorm.DB, proUserID snowflake.ID) ([]domain.Package, error) {
	var packages []domain.Package
	err := db.WithContext(ctx).
		Where("pro_user_id = ?", proUserID).
		Order("created_at DESC, id DESC").
		Find(&packages).Error
	if err != nil {
		return nil, err
	}
	return packages, nil
}

// LockByID takes the package row lock. Every read-then-write cycle on a
// package runs under this lock so concurrent webhook deliveries serialize.
func (r *gormRepository) LockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Package, error) {
	var pkg domain.Package
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&pkg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPackageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

// LockBillingDebt selects stale unbilled packages for the sweeper. Keyed on
// credit_debited_at rather than status: a package that advanced on webhooks
// before its billing settled still owes a credit. Failed packages were never
// dispatched and owe nothing.
func (r *gormRepository) LockBillingDebt(ctx context.Context, tx *gorm.DB, staleBefore time.Time, limit int) ([]domain.Package, error) {
	if limit <= 0 {
		limit = 50
	}
	var packages []domain.Package
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM packages
		 WHERE credit_debited_at IS NULL AND status <> ? AND updated_at < ?
		 ORDER BY updated_at
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		domain.StatusFailed, staleBefore, limit,
	).Scan(&packages).Error
	if err != nil {
		return nil, err
	}
	return packages, nil
}

func (r *gormRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, status domain.Status, now time.Time) error {
	result := tx.WithContext(ctx).Exec(
		`UPDATE packages SET status = ?, updated_at = ? WHERE id = ?`,
		status, now, id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrPackageNotFound
	}
	return nil
}

func (r *gormRepository) MarkDebited(ctx context.Context, tx *gorm.DB, id snowflake.ID, cost decimal.Decimal, now time.Time) error {
	result := tx.WithContext(ctx).Exec(
		`UPDATE packages SET credit_cost = ?, credit_debited_at = ?, updated_at = ? WHERE id = ?`,
		cost, now, now, id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrPackageNotFound
	}
	return nil
}

func (r *gormRepository) InsertAgreement(ctx context.Context, db *gorm.DB, agreement *domain.Agreement) error {
	return db.WithContext(ctx).Create(agreement).Error
}

func (r *gormRepository) FindAgreementByProviderDocument(ctx context.Context, db *gorm.DB, providerDocumentID string) (*domain.Agreement, error) {
	providerDocumentID = strings.TrimSpace(providerDocumentID)
	if providerDocumentID == "" {
		return nil, domain.ErrAgreementNotFound
	}
	var agreement domain.Agreement
	err := db.WithContext(ctx).First(&agreement, "provider_document_id = ?", providerDocumentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAgreementNotFound
	}
	if err != nil {
		return nil, err
	}
	return &agreement, nil
}

func (r *gormRepository) FindAgreementByPackage(ctx context.Context, db *gorm.DB, packageID snowflake.ID) (*domain.Agreement, error) {
	var agreement domain.Agreement
	err := db.WithContext(ctx).First(&agreement, "package_id = ?", packageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAgreementNotFound
	}
	if err != nil {
		return nil, err
	}
	return &agreement, nil
}

func (r *gormRepository) UpdateAgreementStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, status domain.AgreementStatus, now time.Time) error {
	result := tx.WithContext(ctx).Exec(
		`UPDATE agreements SET status = ?, updated_at = ? WHERE id = ?`,
		status, now, id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrAgreementNotFound
	}
	return nil
}

func (r *gormRepository) InsertUploadedDocument(ctx context.Context, tx *gorm.DB, doc *domain.UploadedDocument) error {
	return tx.WithContext(ctx).Create(doc).Error
}

func (r *gormRepository) CountUploadedDocuments(ctx context.Context, db *gorm.DB, packageID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.UploadedDocument{}).
		Where("package_id = ?", packageID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// InsertPayment relies on the unique indexes on package_id and
// provider_charge_id. A conflicting insert is a redelivery, reported as
// already-recorded rather than an error.
func (r *gormRepository) InsertPayment(ctx context.Context, tx *gorm.DB, payment *domain.Payment) (bool, error) {
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(payment)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormRepository) HasPayment(ctx context.Context, db *gorm.DB, packageID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("package_id = ?", packageID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
