package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// SignatureCreditBalance is one Pro user's spendable signature credits.
// The balance never goes negative; every debit is preceded by a sufficiency
// check against the tier-specific cost.
type SignatureCreditBalance struct {
	ProUserID       snowflake.ID    `gorm:"primaryKey;column:pro_user_id"`
	Balance         decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	LastPurchasedAt *time.Time      `gorm:"column:last_purchased_at"`
	CreatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SignatureCreditBalance) TableName() string { return "signature_credits" }

// CreditPurchase is one completed credit-pack purchase. Write-once.
type CreditPurchase struct {
	ID               snowflake.ID    `gorm:"primaryKey"`
	ProUserID        snowflake.ID    `gorm:"not null;index"`
	CreditsGranted   decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	AmountPaid       int64           `gorm:"not null"`
	Currency         string          `gorm:"type:text;not null"`
	ProviderChargeID string          `gorm:"type:text;not null;uniqueIndex"`
	CreatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreditPurchase) TableName() string { return "credit_purchases" }
