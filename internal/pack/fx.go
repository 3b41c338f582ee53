package pack

import (
	"go.uber.org/fx"

	"github.com/Heyzerohey/packhey/internal/pack/repository"
	"github.com/Heyzerohey/packhey/internal/pack/service"
)

var Module = fx.Module("pack.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
