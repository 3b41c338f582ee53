package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	auditdomain "github.com/Heyzerohey/packhey/internal/audit/domain"
	"github.com/Heyzerohey/packhey/internal/clock"
	"github.com/Heyzerohey/packhey/internal/config"
	creditdomain "github.com/Heyzerohey/packhey/internal/creditledger/domain"
	"github.com/Heyzerohey/packhey/internal/events"
	packdomain "github.com/Heyzerohey/packhey/internal/pack/domain"
	subscriptiondomain "github.com/Heyzerohey/packhey/internal/subscription/domain"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupWorker(t *testing.T, repo *debtRepo, credit *fakeCreditSvc) (*Worker, *fakeAudit) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec(
		`CREATE TABLE billing_events (
			id INTEGER PRIMARY KEY,
			pro_user_id BIGINT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			dedupe_key TEXT,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (pro_user_id, dedupe_key)
		)`,
	).Error; err != nil {
		t.Fatalf("create billing_events: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	cfg := config.Config{}
	cfg.Sweeper = config.Sweeper{Enabled: true, PollInterval: time.Minute, BatchSize: 10, StaleAfter: 10 * time.Minute}

	audit := &fakeAudit{}
	worker := NewWorker(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    clock.FixedClock{At: testNow},
		Cfg:      cfg,
		PackRepo: repo,
		SubscriptionSvc: &fakeSubscriptionSvc{
			active: &subscriptiondomain.Subscription{ID: 500, ProUserID: 10, Status: subscriptiondomain.SubscriptionStatusActive},
		},
		CreditSvc: credit,
		AuditSvc:  audit,
		Outbox:    events.NewOutbox(db, node),
	})
	return worker, audit
}

func stalePackage(withAgreement bool) *debtRepo {
	repo := &debtRepo{
		pkg: &packdomain.Package{
			ID:        900,
			ProUserID: 10,
			Status:    packdomain.StatusDraft,
			UpdatedAt: testNow.Add(-time.Hour),
		},
	}
	if withAgreement {
		repo.agreement = &packdomain.Agreement{ID: 901, PackageID: 900, Status: packdomain.AgreementStatusSent}
	}
	return repo
}

func TestSweepSettlesDispatchedUnbilledPackage(t *testing.T) {
	repo := stalePackage(true)
	credit := &fakeCreditSvc{balance: decimal.NewFromInt(5)}
	worker, _ := setupWorker(t, repo, credit)

	settled, err := worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if settled != 1 {
		t.Fatalf("expected 1 settled package, got %d", settled)
	}
	if repo.pkg.Status != packdomain.StatusSent {
		t.Fatalf("expected package sent, got %s", repo.pkg.Status)
	}
	if repo.pkg.CreditDebitedAt == nil {
		t.Fatal("package not marked debited")
	}
	if !credit.balance.Equal(decimal.NewFromInt(5).Sub(subscriptiondomain.TierStandardCost)) {
		t.Fatalf("expected one credit debited, balance %s", credit.balance)
	}
}

func TestSweepBillsPackageCompletedBeforeBilling(t *testing.T) {
	repo := stalePackage(true)
	repo.pkg.Status = packdomain.StatusCompleted
	repo.agreement.Status = packdomain.AgreementStatusCompleted
	credit := &fakeCreditSvc{balance: decimal.NewFromInt(5)}
	worker, _ := setupWorker(t, repo, credit)

	settled, err := worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if settled != 1 {
		t.Fatalf("expected 1 settled package, got %d", settled)
	}
	if repo.pkg.CreditDebitedAt == nil {
		t.Fatal("completed package still unbilled")
	}
	if repo.pkg.Status != packdomain.StatusCompleted {
		t.Fatalf("settling regressed status to %s", repo.pkg.Status)
	}
	if !credit.balance.Equal(decimal.NewFromInt(5).Sub(subscriptiondomain.TierStandardCost)) {
		t.Fatalf("expected one credit debited, balance %s", credit.balance)
	}
}

func TestSweepFailsUndispatchedPackage(t *testing.T) {
	repo := stalePackage(false)
	credit := &fakeCreditSvc{balance: decimal.NewFromInt(5)}
	worker, _ := setupWorker(t, repo, credit)

	if _, err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if repo.pkg.Status != packdomain.StatusFailed {
		t.Fatalf("expected package failed, got %s", repo.pkg.Status)
	}
	if !credit.balance.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("undispatched package was billed, balance %s", credit.balance)
	}
}

func TestSweepRecordsDebtOnInsufficientCredits(t *testing.T) {
	repo := stalePackage(true)
	credit := &fakeCreditSvc{balance: decimal.Zero}
	worker, audit := setupWorker(t, repo, credit)

	if _, err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if repo.pkg.Status != packdomain.StatusDraft {
		t.Fatalf("expected package left in draft, got %s", repo.pkg.Status)
	}
	if !audit.hasAction("reconciliation.debt") {
		t.Fatal("expected reconciliation debt audit entry")
	}
}

func TestSweepSkipsFreshPackages(t *testing.T) {
	repo := stalePackage(true)
	repo.pkg.UpdatedAt = testNow.Add(-time.Minute)
	credit := &fakeCreditSvc{balance: decimal.NewFromInt(5)}
	worker, _ := setupWorker(t, repo, credit)

	settled, err := worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if settled != 0 {
		t.Fatalf("fresh package swept early, settled=%d", settled)
	}
	if repo.pkg.Status != packdomain.StatusDraft {
		t.Fatalf("expected draft, got %s", repo.pkg.Status)
	}
}

// debtRepo fakes the one-package corner of the package repository the
// sweeper touches. Embedding keeps the unused methods off the page.
type debtRepo struct {
	packdomain.Repository
	pkg       *packdomain.Package
	agreement *packdomain.Agreement
}

func (r *debtRepo) LockBillingDebt(_ context.Context, _ *gorm.DB, staleBefore time.Time, _ int) ([]packdomain.Package, error) {
	if r.pkg.CreditDebitedAt == nil && r.pkg.Status != packdomain.StatusFailed && r.pkg.UpdatedAt.Before(staleBefore) {
		return []packdomain.Package{*r.pkg}, nil
	}
	return nil, nil
}

func (r *debtRepo) FindAgreementByPackage(_ context.Context, _ *gorm.DB, packageID snowflake.ID) (*packdomain.Agreement, error) {
	if r.agreement != nil && r.agreement.PackageID == packageID {
		cp := *r.agreement
		return &cp, nil
	}
	return nil, packdomain.ErrAgreementNotFound
}

func (r *debtRepo) UpdateStatus(_ context.Context, _ *gorm.DB, id snowflake.ID, status packdomain.Status, now time.Time) error {
	if r.pkg.ID != id {
		return packdomain.ErrPackageNotFound
	}
	r.pkg.Status = status
	r.pkg.UpdatedAt = now
	return nil
}

func (r *debtRepo) MarkDebited(_ context.Context, _ *gorm.DB, id snowflake.ID, cost decimal.Decimal, now time.Time) error {
	if r.pkg.ID != id {
		return packdomain.ErrPackageNotFound
	}
	r.pkg.CreditCost = &cost
	r.pkg.CreditDebitedAt = &now
	return nil
}

type fakeSubscriptionSvc struct {
	active *subscriptiondomain.Subscription
}

func (s *fakeSubscriptionSvc) GetActive(_ context.Context, proUserID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if s.active == nil || s.active.ProUserID != proUserID {
		return nil, subscriptiondomain.ErrNoActiveSubscription
	}
	cp := *s.active
	return &cp, nil
}

func (s *fakeSubscriptionSvc) IncrementUsage(_ context.Context, _ snowflake.ID) error { return nil }

func (s *fakeSubscriptionSvc) IncrementUsageTx(_ context.Context, _ *gorm.DB, _ snowflake.ID) error {
	return nil
}

func (s *fakeSubscriptionSvc) OnRenewal(_ context.Context, _ snowflake.ID, _, _ time.Time) error {
	return nil
}

func (s *fakeSubscriptionSvc) SyncStatus(_ context.Context, _ string, _ subscriptiondomain.SubscriptionStatus) error {
	return nil
}

type fakeCreditSvc struct {
	balance decimal.Decimal
}

func (c *fakeCreditSvc) GetBalance(_ context.Context, _ snowflake.ID) (decimal.Decimal, error) {
	return c.balance, nil
}

func (c *fakeCreditSvc) Credit(_ context.Context, _ snowflake.ID, _ creditdomain.Purchase) error {
	return nil
}

func (c *fakeCreditSvc) Debit(ctx context.Context, proUserID snowflake.ID, cost decimal.Decimal) (decimal.Decimal, error) {
	return c.DebitTx(ctx, nil, proUserID, cost)
}

func (c *fakeCreditSvc) DebitTx(_ context.Context, _ *gorm.DB, _ snowflake.ID, cost decimal.Decimal) (decimal.Decimal, error) {
	if c.balance.LessThan(cost) {
		return decimal.Zero, creditdomain.ErrInsufficientCredit
	}
	c.balance = c.balance.Sub(cost)
	return c.balance, nil
}

type fakeAudit struct {
	actions []string
}

func (a *fakeAudit) AuditLog(_ context.Context, _ *snowflake.ID, _ auditdomain.ActorType, _ *string, action string, _ string, _ *string, _ map[string]any) error {
	a.actions = append(a.actions, action)
	return nil
}

func (a *fakeAudit) hasAction(action string) bool {
	for _, got := range a.actions {
		if got == action {
			return true
		}
	}
	return false
}
