package audit

import (
	"go.uber.org/fx"

	"github.com/Heyzerohey/packhey/internal/audit/repository"
	"github.com/Heyzerohey/packhey/internal/audit/service"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
