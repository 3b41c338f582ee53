package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service writes append-only audit records.
type Service interface {
	AuditLog(
		ctx context.Context,
		proUserID *snowflake.ID,
		actorType ActorType,
		actorID *string,
		action string,
		targetType string,
		targetID *string,
		metadata map[string]any,
	) error
}

var (
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidTarget = errors.New("invalid_target")
)
