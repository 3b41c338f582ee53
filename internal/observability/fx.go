package observability

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Heyzerohey/packhey/internal/config"
	"github.com/Heyzerohey/packhey/internal/observability/logger"
	"github.com/Heyzerohey/packhey/internal/observability/tracing"
)

var version = "dev"

// Module wires logging and tracing for the process.
var Module = fx.Module("observability",
	logger.Module,
	fx.Provide(func(cfg config.Config) tracing.Config {
		return tracing.Config{
			Enabled:          cfg.Tracing.Enabled,
			ServiceName:      "packhey",
			ServiceVersion:   version,
			Environment:      cfg.Environment,
			ExporterEndpoint: cfg.Tracing.ExporterEndpoint,
			ExporterProtocol: cfg.Tracing.ExporterProtocol,
			SamplingRatio:    cfg.Tracing.SamplingRatio,
		}
	}),
	fx.Invoke(func(lc fx.Lifecycle, cfg tracing.Config, log *zap.Logger) error {
		_, err := tracing.NewProvider(lc, cfg, log)
		return err
	}),
)
