package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/Heyzerohey/packhey/internal/audit/domain"
	"github.com/Heyzerohey/packhey/internal/clock"
	creditdomain "github.com/Heyzerohey/packhey/internal/creditledger/domain"
	"github.com/Heyzerohey/packhey/internal/events"
	"github.com/Heyzerohey/packhey/internal/pack/domain"
	signingdomain "github.com/Heyzerohey/packhey/internal/signing/domain"
	"github.com/Heyzerohey/packhey/internal/storage"
	subscriptiondomain "github.com/Heyzerohey/packhey/internal/subscription/domain"
)

const signerLinkBytes = 32

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Repo            domain.Repository
	SubscriptionSvc subscriptiondomain.Service
	CreditSvc       creditdomain.Service
	Signing         signingdomain.Provider
	Store           storage.Store
	AuditSvc        auditdomain.Service
	Outbox          *events.Outbox
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	repo            domain.Repository
	subscriptionSvc subscriptiondomain.Service
	creditSvc       creditdomain.Service
	signing         signingdomain.Provider
	store           storage.Store
	auditSvc        auditdomain.Service
	outbox          *events.Outbox
}

func NewService(p Params) domain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("pack.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		repo:            p.Repo,
		subscriptionSvc: p.SubscriptionSvc,
		creditSvc:       p.CreditSvc,
		signing:         p.Signing,
		store:           p.Store,
		auditSvc:        p.AuditSvc,
		outbox:          p.Outbox,
	}
}

// Create runs the send orchestration. Credit debit, usage increment and the
// status flip to sent commit in one transaction after the provider dispatch
// succeeds, so a provider failure never costs a credit.
func (s *Service) Create(ctx context.Context, proUserID snowflake.ID, req domain.CreateRequest) (*domain.Package, error) {
	if proUserID == 0 {
		return nil, domain.ErrInvalidRequest
	}
	if err := validateCreateRequest(&req); err != nil {
		return nil, err
	}

	sub, err := s.subscriptionSvc.GetActive(ctx, proUserID)
	if err != nil {
		return nil, err
	}
	cost := subscriptiondomain.PriceTierFor(sub)

	balance, err := s.creditSvc.GetBalance(ctx, proUserID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(cost) {
		return nil, &creditdomain.InsufficientCreditError{Balance: balance, Cost: cost}
	}

	linkID, err := newSignerLinkID()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	pkg := &domain.Package{
		ID:           s.genID.Generate(),
		ProUserID:    proUserID,
		Name:         req.Name,
		SignerLinkID: linkID,
		Status:       domain.StatusDraft,

		DocumentRequested:          req.DocumentRequest.Requested,
		DocumentRequestName:        req.DocumentRequest.Name,
		DocumentRequestDescription: req.DocumentRequest.Description,

		PaymentRequested:   req.PaymentRequest.Requested,
		PaymentAmount:      req.PaymentRequest.Amount,
		PaymentCurrency:    strings.ToUpper(req.PaymentRequest.Currency),
		PaymentDescription: req.PaymentRequest.Description,

		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, pkg); err != nil {
		return nil, err
	}

	providerDocID, err := s.signing.UploadDocument(ctx, req.AgreementFile, req.Filename, req.ContentType)
	if err != nil {
		return nil, s.failPackage(ctx, pkg, "upload", err)
	}

	signers := []signingdomain.Signer{{Name: req.SignerName, Email: req.SignerEmail}}
	result, err := s.signing.SendForSignature(ctx, providerDocID, signers, req.Name, req.Message)
	if err != nil {
		return nil, s.failPackage(ctx, pkg, "send", err)
	}

	agreement := &domain.Agreement{
		ID:                 s.genID.Generate(),
		PackageID:          pkg.ID,
		ProviderDocumentID: result.ProviderDocumentID,
		OriginalFilename:   req.Filename,
		Status:             domain.AgreementStatusSent,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.InsertAgreement(ctx, s.db, agreement); err != nil {
		// The document is live at the provider but we lost its id, so the
		// sweeper cannot settle this one on its own.
		s.log.Error("agreement insert failed after dispatch",
			zap.String("package_id", pkg.ID.String()),
			zap.Error(err),
		)
		s.flagReconciliationDebt(ctx, pkg, err)
		return nil, err
	}

	billedAt := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.creditSvc.DebitTx(ctx, tx, proUserID, cost); err != nil {
			return err
		}
		if err := s.subscriptionSvc.IncrementUsageTx(ctx, tx, sub.ID); err != nil {
			return err
		}
		if err := s.repo.MarkDebited(ctx, tx, pkg.ID, cost, billedAt); err != nil {
			return err
		}
		if err := s.repo.UpdateStatus(ctx, tx, pkg.ID, domain.StatusSent, billedAt); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			ProUserID: proUserID,
			Type:      events.EventPackageSent,
			Payload: events.PackagePayload{
				PackageID: pkg.ID.String(),
				ProUserID: proUserID.String(),
				Status:    string(domain.StatusSent),
			}.ToMap(),
			DedupeKey: fmt.Sprintf("package.sent:%s", pkg.ID),
		})
	})
	if err != nil {
		// The agreement is already out at the provider. The package stays in
		// draft with its agreement row so the sweeper can settle the debt.
		s.log.Error("billing transaction failed after dispatch",
			zap.String("package_id", pkg.ID.String()),
			zap.Error(err),
		)
		s.flagReconciliationDebt(ctx, pkg, err)
		return nil, err
	}

	pkg.Status = domain.StatusSent
	pkg.CreditCost = &cost
	pkg.CreditDebitedAt = &billedAt
	pkg.UpdatedAt = billedAt

	targetID := pkg.ID.String()
	if err := s.auditSvc.AuditLog(ctx, &proUserID, auditdomain.ActorTypeUser, nil,
		"package.sent", "package", &targetID, map[string]any{
			"credit_cost": cost.String(),
		}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}

	return pkg, nil
}

func (s *Service) GetByID(ctx context.Context, proUserID, packageID snowflake.ID) (*domain.Package, error) {
	pkg, err := s.repo.FindByID(ctx, s.db, packageID)
	if err != nil {
		return nil, err
	}
	if pkg.ProUserID != proUserID {
		return nil, domain.ErrPackageNotFound
	}
	return pkg, nil
}

func (s *Service) List(ctx context.Context, proUserID snowflake.ID) ([]domain.Package, error) {
	return s.repo.ListByUser(ctx, s.db, proUserID)
}

func (s *Service) GetBySignerLink(ctx context.Context, signerLinkID string) (*domain.SignerView, error) {
	pkg, err := s.repo.FindBySignerLink(ctx, s.db, signerLinkID)
	if err != nil {
		return nil, err
	}

	uploaded, err := s.repo.CountUploadedDocuments(ctx, s.db, pkg.ID)
	if err != nil {
		return nil, err
	}
	paid, err := s.repo.HasPayment(ctx, s.db, pkg.ID)
	if err != nil {
		return nil, err
	}

	return &domain.SignerView{
		PackageID:         pkg.ID,
		Name:              pkg.Name,
		Status:            pkg.Status,
		DocumentRequested: pkg.DocumentRequested,
		DocumentName:      pkg.DocumentRequestName,
		DocumentUploaded:  uploaded > 0,
		PaymentRequested:  pkg.PaymentRequested,
		PaymentAmount:     pkg.PaymentAmount,
		PaymentCurrency:   pkg.PaymentCurrency,
		PaymentReceived:   paid,
	}, nil
}

// ApplySigningEvent maps one verified provider event onto the agreement and
// reconciles the package under its row lock. Redelivered events and events
// arriving after a terminal status are no-ops.
func (s *Service) ApplySigningEvent(ctx context.Context, providerDocumentID string, target domain.AgreementStatus) error {
	agreement, err := s.repo.FindAgreementByProviderDocument(ctx, s.db, providerDocumentID)
	if err != nil {
		return err
	}
	if agreement.Status == target {
		return nil
	}

	var proUserID snowflake.ID
	var next domain.Status
	var changed bool

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pkg, err := s.repo.LockByID(ctx, tx, agreement.PackageID)
		if err != nil {
			return err
		}
		proUserID = pkg.ProUserID

		current, err := s.repo.FindAgreementByPackage(ctx, tx, pkg.ID)
		if err != nil {
			return err
		}
		if current.Status == target {
			return nil
		}

		now := s.clock.Now()
		if err := s.repo.UpdateAgreementStatus(ctx, tx, current.ID, target, now); err != nil {
			return err
		}

		next, err = s.reconcile(ctx, tx, pkg, target)
		if err != nil {
			return err
		}
		if next == pkg.Status {
			return nil
		}
		changed = true
		return s.persistStatus(ctx, tx, pkg, next, now)
	})
	if err != nil {
		return err
	}

	if changed {
		s.auditStatusChange(ctx, proUserID, auditdomain.ActorTypeSigner, agreement.PackageID, next)
	}
	return nil
}

// RecordUpload stores one signer document and reconciles. Uploads are
// accepted only while a document request is outstanding on a live package.
func (s *Service) RecordUpload(ctx context.Context, signerLinkID string, req domain.UploadRequest) (*domain.UploadedDocument, error) {
	if len(req.Content) == 0 || strings.TrimSpace(req.Filename) == "" {
		return nil, domain.ErrInvalidRequest
	}

	pkg, err := s.repo.FindBySignerLink(ctx, s.db, signerLinkID)
	if err != nil {
		return nil, err
	}
	if !pkg.DocumentRequested {
		return nil, domain.ErrUploadNotExpected
	}
	if pkg.Status.IsTerminal() {
		return nil, domain.ErrPackageTerminal
	}

	doc := &domain.UploadedDocument{
		ID:               s.genID.Generate(),
		PackageID:        pkg.ID,
		OriginalFilename: req.Filename,
		ContentType:      req.ContentType,
		SizeBytes:        int64(len(req.Content)),
		CreatedAt:        s.clock.Now(),
	}
	doc.StoredPath = fmt.Sprintf("packages/%s/uploads/%s-%s", pkg.ID, doc.ID, sanitizeFilename(req.Filename))

	if err := s.store.Put(ctx, doc.StoredPath, req.Content, req.ContentType); err != nil {
		return nil, err
	}

	var next domain.Status
	var changed bool

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.LockByID(ctx, tx, pkg.ID)
		if err != nil {
			return err
		}
		if locked.Status.IsTerminal() {
			return domain.ErrPackageTerminal
		}
		if err := s.repo.InsertUploadedDocument(ctx, tx, doc); err != nil {
			return err
		}

		agreementStatus, err := s.agreementStatus(ctx, tx, locked.ID)
		if err != nil {
			return err
		}
		next, err = s.reconcile(ctx, tx, locked, agreementStatus)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if next != locked.Status {
			changed = true
			if err := s.persistStatus(ctx, tx, locked, next, now); err != nil {
				return err
			}
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			ProUserID: locked.ProUserID,
			Type:      events.EventDocumentUploaded,
			Payload: events.PackagePayload{
				PackageID: locked.ID.String(),
				ProUserID: locked.ProUserID.String(),
			}.ToMap(),
			DedupeKey: fmt.Sprintf("package.document_uploaded:%s", doc.ID),
		})
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.auditStatusChange(ctx, pkg.ProUserID, auditdomain.ActorTypeSigner, pkg.ID, next)
	}
	return doc, nil
}

// RecordPayment records the confirmed signer payment and reconciles.
// Idempotent by charge: a redelivered webhook finds the payment row already
// present and changes nothing.
func (s *Service) RecordPayment(ctx context.Context, packageID snowflake.ID, payment domain.PaymentRecord) error {
	if payment.Amount <= 0 || strings.TrimSpace(payment.ProviderChargeID) == "" {
		return domain.ErrInvalidRequest
	}

	var proUserID snowflake.ID
	var next domain.Status
	var changed bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pkg, err := s.repo.LockByID(ctx, tx, packageID)
		if err != nil {
			return err
		}
		proUserID = pkg.ProUserID

		row := &domain.Payment{
			ID:               s.genID.Generate(),
			PackageID:        pkg.ID,
			Amount:           payment.Amount,
			Currency:         strings.ToUpper(payment.Currency),
			ProviderChargeID: payment.ProviderChargeID,
			CreatedAt:        s.clock.Now(),
		}
		inserted, err := s.repo.InsertPayment(ctx, tx, row)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		agreementStatus, err := s.agreementStatus(ctx, tx, pkg.ID)
		if err != nil {
			return err
		}
		next, err = s.reconcile(ctx, tx, pkg, agreementStatus)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if next != pkg.Status {
			changed = true
			if err := s.persistStatus(ctx, tx, pkg, next, now); err != nil {
				return err
			}
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			ProUserID: pkg.ProUserID,
			Type:      events.EventPaymentReceived,
			Payload: events.PackagePayload{
				PackageID: pkg.ID.String(),
				ProUserID: pkg.ProUserID.String(),
			}.ToMap(),
			DedupeKey: fmt.Sprintf("payment.received:%s", payment.ProviderChargeID),
		})
	})
	if err != nil {
		return err
	}

	if changed {
		s.auditStatusChange(ctx, proUserID, auditdomain.ActorTypeSigner, packageID, next)
	}
	return nil
}

// reconcile assembles the snapshot under the caller's row lock and computes
// the next overall status.
func (s *Service) reconcile(ctx context.Context, tx *gorm.DB, pkg *domain.Package, agreementStatus domain.AgreementStatus) (domain.Status, error) {
	uploaded, err := s.repo.CountUploadedDocuments(ctx, tx, pkg.ID)
	if err != nil {
		return "", err
	}
	paid, err := s.repo.HasPayment(ctx, tx, pkg.ID)
	if err != nil {
		return "", err
	}

	return domain.Reconcile(domain.Snapshot{
		Current:           pkg.Status,
		Agreement:         agreementStatus,
		DocumentRequested: pkg.DocumentRequested,
		DocumentUploaded:  uploaded > 0,
		PaymentRequested:  pkg.PaymentRequested,
		PaymentReceived:   paid,
	}), nil
}

func (s *Service) agreementStatus(ctx context.Context, tx *gorm.DB, packageID snowflake.ID) (domain.AgreementStatus, error) {
	agreement, err := s.repo.FindAgreementByPackage(ctx, tx, packageID)
	if errors.Is(err, domain.ErrAgreementNotFound) {
		return domain.AgreementStatusPending, nil
	}
	if err != nil {
		return "", err
	}
	return agreement.Status, nil
}

func (s *Service) persistStatus(ctx context.Context, tx *gorm.DB, pkg *domain.Package, next domain.Status, now time.Time) error {
	if err := s.repo.UpdateStatus(ctx, tx, pkg.ID, next, now); err != nil {
		return err
	}
	if eventType, ok := statusEvent(next); ok {
		return s.outbox.PublishTx(ctx, tx, events.Event{
			ProUserID: pkg.ProUserID,
			Type:      eventType,
			Payload: events.PackagePayload{
				PackageID: pkg.ID.String(),
				ProUserID: pkg.ProUserID.String(),
				Status:    string(next),
			}.ToMap(),
			DedupeKey: fmt.Sprintf("package.status:%s:%s", pkg.ID, next),
		})
	}
	return nil
}

// failPackage marks a package failed after a provider error. No credit was
// debited, so there is nothing to unwind.
func (s *Service) failPackage(ctx context.Context, pkg *domain.Package, stage string, cause error) error {
	s.log.Warn("signing provider dispatch failed",
		zap.String("package_id", pkg.ID.String()),
		zap.String("stage", stage),
		zap.Error(cause),
	)

	now := s.clock.Now()
	if err := s.repo.UpdateStatus(ctx, s.db, pkg.ID, domain.StatusFailed, now); err != nil {
		s.log.Error("failed to mark package failed", zap.String("package_id", pkg.ID.String()), zap.Error(err))
	}
	if err := s.outbox.Publish(ctx, events.Event{
		ProUserID: pkg.ProUserID,
		Type:      events.EventPackageFailed,
		Payload: events.PackagePayload{
			PackageID: pkg.ID.String(),
			ProUserID: pkg.ProUserID.String(),
			Status:    string(domain.StatusFailed),
		}.ToMap(),
		DedupeKey: fmt.Sprintf("package.failed:%s", pkg.ID),
	}); err != nil {
		s.log.Warn("outbox publish failed", zap.Error(err))
	}

	targetID := pkg.ID.String()
	if err := s.auditSvc.AuditLog(ctx, &pkg.ProUserID, auditdomain.ActorTypeSystem, nil,
		"package.failed", "package", &targetID, map[string]any{
			"stage": stage,
			"error": cause.Error(),
		}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}

	return domain.ErrProviderFailure
}

// flagReconciliationDebt records that an agreement went out without being
// billed. The sweeper settles these.
func (s *Service) flagReconciliationDebt(ctx context.Context, pkg *domain.Package, cause error) {
	if err := s.outbox.Publish(ctx, events.Event{
		ProUserID: pkg.ProUserID,
		Type:      events.EventReconciliationDebt,
		Payload: events.PackagePayload{
			PackageID: pkg.ID.String(),
			ProUserID: pkg.ProUserID.String(),
		}.ToMap(),
		DedupeKey: fmt.Sprintf("reconciliation.debt:%s", pkg.ID),
	}); err != nil {
		s.log.Warn("outbox publish failed", zap.Error(err))
	}

	targetID := pkg.ID.String()
	if err := s.auditSvc.AuditLog(ctx, &pkg.ProUserID, auditdomain.ActorTypeSystem, nil,
		"reconciliation.debt", "package", &targetID, map[string]any{
			"error": cause.Error(),
		}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
}

func (s *Service) auditStatusChange(ctx context.Context, proUserID snowflake.ID, actor auditdomain.ActorType, packageID snowflake.ID, next domain.Status) {
	targetID := packageID.String()
	if err := s.auditSvc.AuditLog(ctx, &proUserID, actor, nil,
		"package.status_changed", "package", &targetID, map[string]any{
			"status": string(next),
		}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
}

func statusEvent(status domain.Status) (string, bool) {
	switch status {
	case domain.StatusViewed:
		return events.EventPackageViewed, true
	case domain.StatusCompleted:
		return events.EventPackageCompleted, true
	case domain.StatusDeclined:
		return events.EventPackageDeclined, true
	case domain.StatusRevoked:
		return events.EventPackageRevoked, true
	}
	return "", false
}

func validateCreateRequest(req *domain.CreateRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.SignerName = strings.TrimSpace(req.SignerName)
	req.SignerEmail = strings.TrimSpace(req.SignerEmail)
	req.Filename = strings.TrimSpace(req.Filename)

	if req.Name == "" || req.SignerName == "" || req.Filename == "" {
		return domain.ErrInvalidRequest
	}
	if _, err := mail.ParseAddress(req.SignerEmail); err != nil {
		return domain.ErrInvalidRequest
	}
	if len(req.AgreementFile) == 0 {
		return domain.ErrInvalidRequest
	}
	if req.DocumentRequest.Requested && strings.TrimSpace(req.DocumentRequest.Name) == "" {
		return domain.ErrInvalidRequest
	}
	if req.PaymentRequest.Requested {
		if req.PaymentRequest.Amount <= 0 || strings.TrimSpace(req.PaymentRequest.Currency) == "" {
			return domain.ErrInvalidRequest
		}
	}
	return nil
}

// newSignerLinkID draws 256 bits from crypto/rand. The link is the only
// credential a signer holds, so it must be unguessable.
func newSignerLinkID() (string, error) {
	buf := make([]byte, signerLinkBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "upload"
	}
	return b.String()
}
