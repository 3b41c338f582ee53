package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Heyzerohey/packhey/internal/payment/domain"
)

type gormRepository struct{}

// Provide constructs the gorm-backed webhook event repository.
func Provide() domain.Repository {
	return &gormRepository{}
}

func (r *gormRepository) FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error) {
	var record domain.EventRecord
	err := db.WithContext(ctx).
		First(&record, "provider = ? AND provider_event_id = ?", provider, providerEventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *gormRepository) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormRepository) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events SET processed_at = ? WHERE id = ? AND processed_at IS NULL`,
		processedAt, id,
	).Error
}
