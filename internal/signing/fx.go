package signing

import (
	"go.uber.org/fx"

	"github.com/Heyzerohey/packhey/internal/signing/provider"
)

var Module = fx.Module("signing",
	fx.Provide(provider.NewClient),
)
