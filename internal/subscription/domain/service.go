package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service owns the billing-cycle window and per-cycle usage counter.
type Service interface {
	// GetActive returns the single active subscription for the user.
	GetActive(ctx context.Context, proUserID snowflake.ID) (*Subscription, error)

	// IncrementUsage bumps the cycle signature counter. Must be called
	// exactly once per successfully sent package.
	IncrementUsage(ctx context.Context, subscriptionID snowflake.ID) error

	// IncrementUsageTx is IncrementUsage inside an existing transaction, so
	// the caller can pair it atomically with a credit debit.
	IncrementUsageTx(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID) error

	// OnRenewal sets new period bounds and resets the usage counter.
	// Idempotent against webhook redelivery for the same period.
	OnRenewal(ctx context.Context, subscriptionID snowflake.ID, periodStart, periodEnd time.Time) error

	// SyncStatus applies the provider-reported subscription status.
	SyncStatus(ctx context.Context, providerSubscriptionID string, status SubscriptionStatus) error
}

var (
	ErrNoActiveSubscription = errors.New("no_active_subscription")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidPeriod        = errors.New("invalid_period")
	ErrInvalidStatus        = errors.New("invalid_status")
)
