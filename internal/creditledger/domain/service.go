package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Purchase describes a completed credit-pack charge to record.
type Purchase struct {
	Credits          int64
	AmountPaid       int64
	Currency         string
	ProviderChargeID string
}

// Service owns the signature-credit balance for Pro users.
type Service interface {
	// GetBalance returns the current balance. A missing ledger row is an
	// integrity error, not a zero balance: signup always creates one.
	GetBalance(ctx context.Context, proUserID snowflake.ID) (decimal.Decimal, error)

	// Credit adds purchased credits and appends one CreditPurchase row.
	// Idempotent by provider charge id.
	Credit(ctx context.Context, proUserID snowflake.ID, purchase Purchase) error

	// Debit subtracts cost after a sufficiency check and returns the new
	// balance. Serialized per user via an atomic decrement with floor check.
	Debit(ctx context.Context, proUserID snowflake.ID, cost decimal.Decimal) (decimal.Decimal, error)

	// DebitTx is Debit inside an existing transaction, so the caller can
	// pair it atomically with the subscription usage increment.
	DebitTx(ctx context.Context, tx *gorm.DB, proUserID snowflake.ID, cost decimal.Decimal) (decimal.Decimal, error)
}

var (
	ErrBalanceNotFound    = errors.New("credit_balance_not_found")
	ErrInsufficientCredit = errors.New("insufficient_credits")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidCharge      = errors.New("invalid_charge")
)

// InsufficientCreditError reports a failed debit together with the balance
// and the cost that exceeded it, so callers can tell the user exactly how
// short they are. Matches ErrInsufficientCredit under errors.Is.
type InsufficientCreditError struct {
	Balance decimal.Decimal
	Cost    decimal.Decimal
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credits: balance %s, cost %s", e.Balance.StringFixed(2), e.Cost.StringFixed(2))
}

func (e *InsufficientCreditError) Unwrap() error { return ErrInsufficientCredit }
