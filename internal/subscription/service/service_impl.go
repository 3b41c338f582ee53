package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Heyzerohey/packhey/internal/clock"
	"github.com/Heyzerohey/packhey/internal/subscription/domain"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		clock: p.Clock,
	}
}

func (s *Service) GetActive(ctx context.Context, proUserID snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := s.db.WithContext(ctx).
		Where("pro_user_id = ? AND status = ?", proUserID, domain.SubscriptionStatusActive).
		First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrNoActiveSubscription
		}
		return nil, err
	}
	return &sub, nil
}

func (s *Service) IncrementUsage(ctx context.Context, subscriptionID snowflake.ID) error {
	return s.IncrementUsageTx(ctx, s.db, subscriptionID)
}

func (s *Service) IncrementUsageTx(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID) error {
	now := s.clock.Now()
	result := tx.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET current_cycle_signature_count = current_cycle_signature_count + 1,
		     updated_at = ?
		 WHERE id = ?`,
		now,
		subscriptionID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// OnRenewal resets the cycle counter for a new period. A redelivered renewal
// webhook for the same period matches no rows and is a no-op.
func (s *Service) OnRenewal(ctx context.Context, subscriptionID snowflake.ID, periodStart, periodEnd time.Time) error {
	if !periodEnd.After(periodStart) {
		return domain.ErrInvalidPeriod
	}

	now := s.clock.Now()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET current_period_start = ?,
		     current_period_end = ?,
		     current_cycle_signature_count = 0,
		     status = ?,
		     updated_at = ?
		 WHERE id = ? AND current_period_start < ?`,
		periodStart,
		periodEnd,
		domain.SubscriptionStatusActive,
		now,
		subscriptionID,
		periodStart,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Raw(
			`SELECT COUNT(1) FROM subscriptions WHERE id = ?`,
			subscriptionID,
		).Scan(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrSubscriptionNotFound
		}
		s.log.Info("renewal already applied, skipping",
			zap.String("subscription_id", subscriptionID.String()),
			zap.Time("period_start", periodStart),
		)
	}
	return nil
}

func (s *Service) SyncStatus(ctx context.Context, providerSubscriptionID string, status domain.SubscriptionStatus) error {
	providerSubscriptionID = strings.TrimSpace(providerSubscriptionID)
	if providerSubscriptionID == "" {
		return domain.ErrSubscriptionNotFound
	}
	switch status {
	case domain.SubscriptionStatusActive,
		domain.SubscriptionStatusTrialing,
		domain.SubscriptionStatusPastDue,
		domain.SubscriptionStatusCancelled,
		domain.SubscriptionStatusIncomplete:
	default:
		return domain.ErrInvalidStatus
	}

	now := s.clock.Now()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE provider_subscription_id = ?`,
		status,
		now,
		providerSubscriptionID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}
