package creditledger

import (
	"go.uber.org/fx"

	"github.com/Heyzerohey/packhey/internal/creditledger/service"
)

var Module = fx.Module("creditledger.service",
	fx.Provide(service.NewService),
)
