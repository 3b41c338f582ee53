package reconciliation

import (
	"context"

	"go.uber.org/fx"

	"github.com/Heyzerohey/packhey/internal/config"
)

var Module = fx.Module("reconciliation",
	fx.Provide(NewWorker),
	fx.Invoke(runWorker),
)

func runWorker(lc fx.Lifecycle, cfg config.Config, worker *Worker) {
	if !cfg.Sweeper.Enabled {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go worker.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
