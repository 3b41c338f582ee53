package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrOutboxUnavailable = errors.New("outbox_unavailable")
	ErrInvalidEvent      = errors.New("invalid_event")
)

// Event is one billing_events row. DedupeKey makes redeliveries collapse:
// rows conflict on (pro_user_id, dedupe_key) and the insert becomes a no-op.
type Event struct {
	ProUserID snowflake.ID
	Type      string
	Payload   map[string]any
	DedupeKey string
}

func (e Event) validate() error {
	if e.ProUserID == 0 || strings.TrimSpace(e.Type) == "" {
		return ErrInvalidEvent
	}
	return nil
}

// Outbox writes billing events in the same transaction as the state change
// they describe, so consumers never see an event without its state.
type Outbox struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewOutbox(db *gorm.DB, genID *snowflake.Node) *Outbox {
	return &Outbox{db: db, genID: genID}
}

// Publish stores an event outside any caller transaction.
func (o *Outbox) Publish(ctx context.Context, event Event) error {
	if o == nil || o.db == nil {
		return ErrOutboxUnavailable
	}
	return o.insert(ctx, o.db, event)
}

// PublishTx stores an event inside the caller's transaction.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, event Event) error {
	if o == nil || tx == nil {
		return ErrOutboxUnavailable
	}
	return o.insert(ctx, tx, event)
}

func (o *Outbox) insert(ctx context.Context, db *gorm.DB, event Event) error {
	if o.genID == nil {
		return ErrOutboxUnavailable
	}
	if err := event.validate(); err != nil {
		return err
	}

	payload := make(datatypes.JSONMap, len(event.Payload))
	for key, value := range event.Payload {
		if strings.TrimSpace(key) == "" {
			continue
		}
		payload[key] = value
	}

	// NULL dedupe keys never conflict with each other, so events without a
	// key are always stored.
	var dedupe any
	if key := strings.TrimSpace(event.DedupeKey); key != "" {
		dedupe = key
	}

	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_events (id, pro_user_id, event_type, payload, dedupe_key, published, created_at)
		 VALUES (?, ?, ?, ?, ?, false, ?)
		 ON CONFLICT (pro_user_id, dedupe_key) DO NOTHING`,
		o.genID.Generate(),
		event.ProUserID,
		strings.TrimSpace(event.Type),
		payload,
		dedupe,
		time.Now().UTC(),
	).Error
}
