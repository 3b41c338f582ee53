package logger

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Heyzerohey/packhey/internal/config"
)

// Module provides the process-wide zap logger.
var Module = fx.Module("observability.logger",
	fx.Provide(New),
	fx.Invoke(func(log *zap.Logger) {
		zap.ReplaceGlobals(log)
	}),
)

// New builds the root logger for the configured environment.
func New(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	dev := zap.NewDevelopmentConfig()
	dev.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return dev.Build()
}

// FromContext returns the global logger enriched with trace correlation fields.
func FromContext(ctx context.Context) *zap.Logger {
	log := zap.L()
	if ctx == nil {
		return log
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		log = log.With(zap.String("trace_id", sc.TraceID().String()))
	}
	if sc.HasSpanID() {
		log = log.With(zap.String("span_id", sc.SpanID().String()))
	}
	return log
}

// Named returns a child of the global logger.
func Named(name string) *zap.Logger {
	name = strings.TrimSpace(name)
	if name == "" {
		return zap.L()
	}
	return zap.L().Named(name)
}
