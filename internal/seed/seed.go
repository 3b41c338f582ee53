package seed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	defaultProEmail   = "dev@packhey.local"
	defaultProDisplay = "Packhey Dev"
	defaultAPIKey     = "pk_dev_local"
	defaultPlanName   = "pro"
)

var defaultCreditGrant = decimal.NewFromInt(25)

// EnsureDevAccount seeds a Pro user with an API key, an active subscription
// and a starter credit balance. Development bootstrap only; every statement
// is a no-op when the row already exists.
func EnsureDevAccount(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		var userID snowflake.ID
		err := tx.WithContext(ctx).
			Raw(`SELECT id FROM pro_users WHERE email = ?`, defaultProEmail).
			Scan(&userID).Error
		if err != nil {
			return err
		}
		if userID == 0 {
			userID = node.Generate()
			if err := tx.WithContext(ctx).Exec(
				`INSERT INTO pro_users (id, email, display_name, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?)`,
				userID, defaultProEmail, defaultProDisplay, now, now,
			).Error; err != nil {
				return err
			}
		}

		keyHash := sha256.Sum256([]byte(defaultAPIKey))
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO api_keys (id, pro_user_id, key_hash, is_active, created_at)
			 VALUES (?, ?, ?, TRUE, ?)
			 ON CONFLICT (key_hash) DO NOTHING`,
			node.Generate(), userID, hex.EncodeToString(keyHash[:]), now,
		).Error; err != nil {
			return err
		}

		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO signature_credits (pro_user_id, balance, created_at, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (pro_user_id) DO NOTHING`,
			userID, defaultCreditGrant, now, now,
		).Error; err != nil {
			return err
		}

		var activeCount int64
		if err := tx.WithContext(ctx).
			Raw(`SELECT COUNT(*) FROM subscriptions WHERE pro_user_id = ? AND status = 'active'`, userID).
			Scan(&activeCount).Error; err != nil {
			return err
		}
		if activeCount == 0 {
			periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
			if err := tx.WithContext(ctx).Exec(
				`INSERT INTO subscriptions (id, pro_user_id, plan_name, status, current_period_start, current_period_end, created_at, updated_at)
				 VALUES (?, ?, ?, 'active', ?, ?, ?, ?)`,
				node.Generate(), userID, defaultPlanName,
				periodStart, periodStart.AddDate(0, 1, 0), now, now,
			).Error; err != nil {
				return err
			}
		}

		return nil
	})
}
