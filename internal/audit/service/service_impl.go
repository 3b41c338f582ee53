package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Heyzerohey/packhey/internal/audit/domain"
	obscontext "github.com/Heyzerohey/packhey/internal/observability/context"
	"github.com/Heyzerohey/packhey/internal/observability/logger"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) AuditLog(
	ctx context.Context,
	proUserID *snowflake.ID,
	actorType domain.ActorType,
	actorID *string,
	action string,
	targetType string,
	targetID *string,
	metadata map[string]any,
) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return domain.ErrInvalidAction
	}
	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		return domain.ErrInvalidTarget
	}

	if actorType == "" {
		if ctxType, ctxID := obscontext.ActorFromContext(ctx); ctxType != "" {
			actorType = domain.ActorType(ctxType)
			if actorID == nil && ctxID != "" {
				actorID = &ctxID
			}
		} else {
			actorType = domain.ActorTypeSystem
		}
	}

	payload := datatypes.JSONMap{}
	for key, value := range logger.MaskJSON(metadata) {
		if strings.TrimSpace(key) == "" {
			continue
		}
		payload[key] = value
	}

	entry := &domain.AuditLog{
		ID:         s.genID.Generate(),
		ProUserID:  proUserID,
		ActorType:  string(actorType),
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   payload,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		s.log.Warn("audit insert failed",
			zap.String("action", action),
			zap.String("target_type", targetType),
			zap.Error(err),
		)
		return err
	}
	return nil
}
