package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is one received payment webhook, stored before processing so
// redeliveries are detected by the (provider, provider_event_id) unique index.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Provider        string         `gorm:"type:text;not null"`
	ProviderEventID string         `gorm:"type:text;not null"`
	EventType       string         `gorm:"type:text;not null"`
	Payload         datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"`
	ReceivedAt      time.Time      `gorm:"not null"`
	ProcessedAt     *time.Time
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "webhook_events" }
