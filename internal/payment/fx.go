package payment

import (
	"go.uber.org/fx"

	"github.com/Heyzerohey/packhey/internal/payment/provider"
	"github.com/Heyzerohey/packhey/internal/payment/repository"
	"github.com/Heyzerohey/packhey/internal/payment/service"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(provider.NewClient),
	fx.Provide(service.NewService),
)
