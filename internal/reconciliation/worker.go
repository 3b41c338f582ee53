package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/Heyzerohey/packhey/internal/audit/domain"
	"github.com/Heyzerohey/packhey/internal/clock"
	"github.com/Heyzerohey/packhey/internal/config"
	creditdomain "github.com/Heyzerohey/packhey/internal/creditledger/domain"
	"github.com/Heyzerohey/packhey/internal/events"
	packdomain "github.com/Heyzerohey/packhey/internal/pack/domain"
	subscriptiondomain "github.com/Heyzerohey/packhey/internal/subscription/domain"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	Cfg             config.Config
	PackRepo        packdomain.Repository
	SubscriptionSvc subscriptiondomain.Service
	CreditSvc       creditdomain.Service
	AuditSvc        auditdomain.Service
	Outbox          *events.Outbox
}

// Worker settles packages that were dispatched to the signing provider but
// never billed, usually after a crash between dispatch and the billing
// transaction. The debt follows the package: one that advanced on webhooks
// before its billing settled is billed in place, without touching its status.
type Worker struct {
	db              *gorm.DB
	log             *zap.Logger
	clock           clock.Clock
	cfg             config.Sweeper
	packRepo        packdomain.Repository
	subscriptionSvc subscriptiondomain.Service
	creditSvc       creditdomain.Service
	auditSvc        auditdomain.Service
	outbox          *events.Outbox
}

func NewWorker(p Params) *Worker {
	return &Worker{
		db:              p.DB,
		log:             p.Log.Named("reconciliation.sweeper"),
		clock:           p.Clock,
		cfg:             p.Cfg.Sweeper,
		packRepo:        p.PackRepo,
		subscriptionSvc: p.SubscriptionSvc,
		creditSvc:       p.CreditSvc,
		auditSvc:        p.AuditSvc,
		outbox:          p.Outbox,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Warn("reconciliation sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce settles one batch and reports how many packages it touched.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	if w.db == nil || w.packRepo == nil {
		return 0, errors.New("sweeper_unavailable")
	}

	settled := 0
	staleBefore := w.clock.Now().Add(-w.cfg.StaleAfter)

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		packages, err := w.packRepo.LockBillingDebt(ctx, tx, staleBefore, w.cfg.BatchSize)
		if err != nil {
			return err
		}
		for i := range packages {
			if err := w.settle(ctx, tx, &packages[i]); err != nil {
				return err
			}
			settled++
		}
		return nil
	})
	if err != nil {
		return settled, err
	}
	return settled, nil
}

// settle runs under the batch row locks. A package with no agreement row has
// no provider document to track and is marked failed; one with an agreement
// owes a credit and is billed now.
func (w *Worker) settle(ctx context.Context, tx *gorm.DB, pkg *packdomain.Package) error {
	now := w.clock.Now()

	_, err := w.packRepo.FindAgreementByPackage(ctx, tx, pkg.ID)
	if errors.Is(err, packdomain.ErrAgreementNotFound) {
		w.log.Info("failing stale undispatched package", zap.String("package_id", pkg.ID.String()))
		if err := w.packRepo.UpdateStatus(ctx, tx, pkg.ID, packdomain.StatusFailed, now); err != nil {
			return err
		}
		return w.outbox.PublishTx(ctx, tx, events.Event{
			ProUserID: pkg.ProUserID,
			Type:      events.EventPackageFailed,
			Payload: events.PackagePayload{
				PackageID: pkg.ID.String(),
				ProUserID: pkg.ProUserID.String(),
				Status:    string(packdomain.StatusFailed),
			}.ToMap(),
			DedupeKey: fmt.Sprintf("package.failed:%s", pkg.ID),
		})
	}
	if err != nil {
		return err
	}

	sub, err := w.subscriptionSvc.GetActive(ctx, pkg.ProUserID)
	if err != nil {
		if errors.Is(err, subscriptiondomain.ErrNoActiveSubscription) {
			w.recordDebt(ctx, pkg, err)
			return nil
		}
		return err
	}
	cost := subscriptiondomain.PriceTierFor(sub)

	if _, err := w.creditSvc.DebitTx(ctx, tx, pkg.ProUserID, cost); err != nil {
		if errors.Is(err, creditdomain.ErrInsufficientCredit) {
			w.recordDebt(ctx, pkg, err)
			return nil
		}
		return err
	}
	if err := w.subscriptionSvc.IncrementUsageTx(ctx, tx, sub.ID); err != nil {
		return err
	}
	if err := w.packRepo.MarkDebited(ctx, tx, pkg.ID, cost, now); err != nil {
		return err
	}

	// Only a draft gets the status flip. A package that already advanced on
	// webhooks keeps its status; it was only missing the charge.
	if pkg.Status == packdomain.StatusDraft {
		if err := w.packRepo.UpdateStatus(ctx, tx, pkg.ID, packdomain.StatusSent, now); err != nil {
			return err
		}
		if err := w.outbox.PublishTx(ctx, tx, events.Event{
			ProUserID: pkg.ProUserID,
			Type:      events.EventPackageSent,
			Payload: events.PackagePayload{
				PackageID: pkg.ID.String(),
				ProUserID: pkg.ProUserID.String(),
				Status:    string(packdomain.StatusSent),
			}.ToMap(),
			DedupeKey: fmt.Sprintf("package.sent:%s", pkg.ID),
		}); err != nil {
			return err
		}
	}

	w.log.Info("settled billing debt",
		zap.String("package_id", pkg.ID.String()),
		zap.String("credit_cost", cost.String()),
	)
	return nil
}

// recordDebt leaves the package for the next sweep and makes the unpaid
// dispatch visible to operators.
func (w *Worker) recordDebt(ctx context.Context, pkg *packdomain.Package, cause error) {
	if err := w.outbox.Publish(ctx, events.Event{
		ProUserID: pkg.ProUserID,
		Type:      events.EventReconciliationDebt,
		Payload: events.PackagePayload{
			PackageID: pkg.ID.String(),
			ProUserID: pkg.ProUserID.String(),
		}.ToMap(),
		DedupeKey: fmt.Sprintf("reconciliation.debt:%s", pkg.ID),
	}); err != nil {
		w.log.Warn("outbox publish failed", zap.Error(err))
	}

	targetID := pkg.ID.String()
	if err := w.auditSvc.AuditLog(ctx, &pkg.ProUserID, auditdomain.ActorTypeSystem, nil,
		"reconciliation.debt", "package", &targetID, map[string]any{
			"error": cause.Error(),
		}); err != nil {
		w.log.Warn("audit write failed", zap.Error(err))
	}
}
