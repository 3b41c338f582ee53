package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Heyzerohey/packhey/internal/clock"
	"github.com/Heyzerohey/packhey/internal/creditledger/domain"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("creditledger.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) GetBalance(ctx context.Context, proUserID snowflake.ID) (decimal.Decimal, error) {
	var row domain.SignatureCreditBalance
	err := s.db.WithContext(ctx).
		Where("pro_user_id = ?", proUserID).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.Zero, domain.ErrBalanceNotFound
		}
		return decimal.Zero, err
	}
	return row.Balance, nil
}

func (s *Service) Credit(ctx context.Context, proUserID snowflake.ID, purchase domain.Purchase) error {
	if purchase.Credits <= 0 {
		return domain.ErrInvalidAmount
	}
	chargeID := strings.TrimSpace(purchase.ProviderChargeID)
	if chargeID == "" {
		return domain.ErrInvalidCharge
	}

	credits := decimal.NewFromInt(purchase.Credits)
	now := s.clock.Now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Exec(
			`INSERT INTO credit_purchases (
				id, pro_user_id, credits_granted, amount_paid, currency, provider_charge_id, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (provider_charge_id) DO NOTHING`,
			s.genID.Generate(),
			proUserID,
			credits,
			purchase.AmountPaid,
			strings.ToUpper(strings.TrimSpace(purchase.Currency)),
			chargeID,
			now,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			s.log.Info("credit purchase already recorded, skipping",
				zap.String("provider_charge_id", chargeID),
			)
			return nil
		}

		update := tx.WithContext(ctx).Exec(
			`UPDATE signature_credits
			 SET balance = balance + ?, last_purchased_at = ?, updated_at = ?
			 WHERE pro_user_id = ?`,
			credits,
			now,
			now,
			proUserID,
		)
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return domain.ErrBalanceNotFound
		}
		return nil
	})
}

func (s *Service) Debit(ctx context.Context, proUserID snowflake.ID, cost decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		balance, txErr = s.DebitTx(ctx, tx, proUserID, cost)
		return txErr
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// DebitTx decrements the balance with a floor check in a single statement, so
// two concurrent debits for the same user can never drive the balance
// negative.
func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, proUserID snowflake.ID, cost decimal.Decimal) (decimal.Decimal, error) {
	if cost.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	result := tx.WithContext(ctx).Exec(
		`UPDATE signature_credits
		 SET balance = balance - ?, updated_at = ?
		 WHERE pro_user_id = ? AND balance >= ?`,
		cost,
		now,
		proUserID,
		cost,
	)
	if result.Error != nil {
		return decimal.Zero, result.Error
	}
	if result.RowsAffected == 0 {
		var row domain.SignatureCreditBalance
		err := tx.WithContext(ctx).
			Where("pro_user_id = ?", proUserID).
			First(&row).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return decimal.Zero, domain.ErrBalanceNotFound
			}
			return decimal.Zero, err
		}
		return decimal.Zero, &domain.InsufficientCreditError{Balance: row.Balance, Cost: cost}
	}

	var balance decimal.Decimal
	if err := tx.WithContext(ctx).Raw(
		`SELECT balance FROM signature_credits WHERE pro_user_id = ?`,
		proUserID,
	).Scan(&balance).Error; err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}
