package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// SubscriptionStatus mirrors the payment provider's subscription lifecycle.
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled  SubscriptionStatus = "cancelled"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
)

// Tier pricing: the first signatures of a billing cycle cost more. The tier
// is a step function of the cumulative count before the signature being
// priced, never a retroactive discount.
const TierThreshold = 100

var (
	TierStandardCost   = decimal.RequireFromString("1.25")
	TierDiscountedCost = decimal.RequireFromString("1.00")
)

// Subscription is one billing relationship for a Pro user. At most one row
// per user carries status "active"; older rows are history.
type Subscription struct {
	ID                     snowflake.ID       `gorm:"primaryKey"`
	ProUserID              snowflake.ID       `gorm:"not null;index"`
	PlanName               string             `gorm:"type:text;not null"`
	Status                 SubscriptionStatus `gorm:"type:text;not null"`
	ProviderSubscriptionID *string            `gorm:"type:text"`
	CurrentPeriodStart     time.Time          `gorm:"not null"`
	CurrentPeriodEnd       time.Time          `gorm:"not null"`

	// Resets to zero exactly once per renewal.
	CurrentCycleSignatureCount int64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// PriceTierFor returns the per-signature cost for the next signature sent
// under this subscription.
func PriceTierFor(sub *Subscription) decimal.Decimal {
	if sub != nil && sub.CurrentCycleSignatureCount >= TierThreshold {
		return TierDiscountedCost
	}
	return TierStandardCost
}
