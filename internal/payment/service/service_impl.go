package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditdomain "github.com/Heyzerohey/packhey/internal/audit/domain"
	"github.com/Heyzerohey/packhey/internal/clock"
	"github.com/Heyzerohey/packhey/internal/config"
	creditdomain "github.com/Heyzerohey/packhey/internal/creditledger/domain"
	"github.com/Heyzerohey/packhey/internal/events"
	packdomain "github.com/Heyzerohey/packhey/internal/pack/domain"
	"github.com/Heyzerohey/packhey/internal/payment/domain"
	subscriptiondomain "github.com/Heyzerohey/packhey/internal/subscription/domain"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Cfg             config.Config
	Repo            domain.Repository
	CreditSvc       creditdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	PackSvc         packdomain.Service
	AuditSvc        auditdomain.Service
	Outbox          *events.Outbox
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	webhookSecret   string
	repo            domain.Repository
	creditSvc       creditdomain.Service
	subscriptionSvc subscriptiondomain.Service
	packSvc         packdomain.Service
	auditSvc        auditdomain.Service
	outbox          *events.Outbox
}

func NewService(p Params) domain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("payment.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		webhookSecret:   p.Cfg.Payment.WebhookSecret,
		repo:            p.Repo,
		creditSvc:       p.CreditSvc,
		subscriptionSvc: p.SubscriptionSvc,
		packSvc:         p.PackSvc,
		auditSvc:        p.AuditSvc,
		outbox:          p.Outbox,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	if err := domain.VerifySignature(s.webhookSecret, payload, headers, s.clock.Now()); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return domain.ErrInvalidPayload
	}

	event, err := domain.ParseEvent(payload)
	if err != nil {
		return err
	}
	switch event.Type {
	case domain.EventTypeCheckoutCompleted,
		domain.EventTypeSubscriptionRenewed,
		domain.EventTypeSubscriptionUpdated:
	default:
		return domain.ErrEventIgnored
	}

	now := s.clock.Now()
	received := domain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        domain.ProviderName,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, domain.ProviderName, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return domain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return domain.ErrEventAlreadyProcessed
		}
	}

	if err := s.processEvent(ctx, event); err != nil {
		return err
	}

	return s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now())
}

func (s *Service) processEvent(ctx context.Context, event *domain.PaymentEvent) error {
	switch event.Type {
	case domain.EventTypeCheckoutCompleted:
		return s.applyCheckout(ctx, event)
	case domain.EventTypeSubscriptionRenewed:
		return s.applyRenewal(ctx, event)
	case domain.EventTypeSubscriptionUpdated:
		return s.applyStatus(ctx, event)
	}
	return domain.ErrInvalidEvent
}

func (s *Service) applyCheckout(ctx context.Context, event *domain.PaymentEvent) error {
	switch event.PurchaseType {
	case domain.PurchaseTypeSignaturePack:
		return s.applyCreditPack(ctx, event)
	case domain.PurchaseTypePackagePayment:
		if event.PackageID == 0 {
			return domain.ErrInvalidEvent
		}
		return s.packSvc.RecordPayment(ctx, event.PackageID, packdomain.PaymentRecord{
			Amount:           event.Amount,
			Currency:         event.Currency,
			ProviderChargeID: event.ProviderChargeID,
		})
	case domain.PurchaseTypeSubscription:
		if event.ProviderSubscriptionID == "" {
			return domain.ErrInvalidEvent
		}
		return s.applyRenewal(ctx, event)
	}
	return domain.ErrInvalidEvent
}

func (s *Service) applyCreditPack(ctx context.Context, event *domain.PaymentEvent) error {
	if event.ProUserID == 0 || event.Credits <= 0 || event.ProviderChargeID == "" {
		return domain.ErrInvalidEvent
	}

	err := s.creditSvc.Credit(ctx, event.ProUserID, creditdomain.Purchase{
		Credits:          event.Credits,
		AmountPaid:       event.Amount,
		Currency:         event.Currency,
		ProviderChargeID: event.ProviderChargeID,
	})
	if err != nil {
		return err
	}

	if err := s.outbox.Publish(ctx, events.Event{
		ProUserID: event.ProUserID,
		Type:      events.EventCreditsPurchased,
		Payload: events.CreditsPayload{
			ProUserID:        event.ProUserID.String(),
			CreditsGranted:   fmt.Sprintf("%d", event.Credits),
			ProviderChargeID: event.ProviderChargeID,
		}.ToMap(),
		DedupeKey: fmt.Sprintf("credits.purchased:%s", event.ProviderChargeID),
	}); err != nil {
		s.log.Warn("outbox publish failed", zap.Error(err))
	}

	targetID := event.ProviderChargeID
	if err := s.auditSvc.AuditLog(ctx, &event.ProUserID, auditdomain.ActorTypeSystem, nil,
		"credits.purchased", "credit_purchase", &targetID, map[string]any{
			"credits": event.Credits,
			"amount":  event.Amount,
		}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
	return nil
}

type subscriptionRow struct {
	ID        snowflake.ID
	ProUserID snowflake.ID
}

func (s *Service) applyRenewal(ctx context.Context, event *domain.PaymentEvent) error {
	if event.ProviderSubscriptionID == "" || event.PeriodStart.IsZero() || event.PeriodEnd.IsZero() {
		return domain.ErrInvalidEvent
	}

	row, err := s.findSubscription(ctx, event.ProviderSubscriptionID)
	if err != nil {
		return err
	}
	if row == nil {
		s.log.Warn("renewal for unknown subscription",
			zap.String("provider_subscription_id", event.ProviderSubscriptionID))
		return domain.ErrInvalidEvent
	}

	if err := s.subscriptionSvc.OnRenewal(ctx, row.ID, event.PeriodStart, event.PeriodEnd); err != nil {
		return err
	}

	if err := s.outbox.Publish(ctx, events.Event{
		ProUserID: row.ProUserID,
		Type:      events.EventSubscriptionRenew,
		Payload: map[string]any{
			"subscription_id": row.ID.String(),
			"period_start":    event.PeriodStart.Format("2006-01-02"),
		},
		DedupeKey: fmt.Sprintf("subscription.renewed:%s:%d", row.ID, event.PeriodStart.Unix()),
	}); err != nil {
		s.log.Warn("outbox publish failed", zap.Error(err))
	}
	return nil
}

func (s *Service) applyStatus(ctx context.Context, event *domain.PaymentEvent) error {
	if event.ProviderSubscriptionID == "" {
		return domain.ErrInvalidEvent
	}
	status := subscriptiondomain.SubscriptionStatus(strings.ToLower(event.SubscriptionStatus))
	return s.subscriptionSvc.SyncStatus(ctx, event.ProviderSubscriptionID, status)
}

func (s *Service) findSubscription(ctx context.Context, providerSubscriptionID string) (*subscriptionRow, error) {
	var rows []subscriptionRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, pro_user_id FROM subscriptions WHERE provider_subscription_id = ?`,
		providerSubscriptionID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
