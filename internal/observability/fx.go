package observability

import (
	"github.com/smallbiznis/licensor/internal/observability/logger"
	"github.com/smallbiznis/licensor/internal/observability/metrics"
	"github.com/smallbiznis/licensor/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module provides the zap logger, the tracer provider and the metric
// instruments, each configured from the shared telemetry Config.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.loggerConfig,
		Config.gormLoggerConfig,
		Config.tracingConfig,
		Config.metricsConfig,
	),
	fx.Provide(
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(
		func(*sdktrace.TracerProvider) {},
		func(cfg metrics.Config) { metrics.SchedulerWithConfig(cfg) },
	),
)
