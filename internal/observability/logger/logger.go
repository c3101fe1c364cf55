package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/smallbiznis/licensor/internal/audit/masking"
	obscontext "github.com/smallbiznis/licensor/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the zap logger.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string
	Debug       bool

	SamplingInitial     int
	SamplingThereafter  int
	SamplingWindow      time.Duration
	IncludeCaller       bool
	IncludeStackOnError bool
}

// New builds the process logger, installs it as the zap global and flushes
// it on shutdown.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(orDefault(cfg.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	core := zapcore.NewCore(newEncoder(cfg), zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(level))
	// debug runs keep every line
	if !cfg.Debug {
		core = zapcore.NewSamplerWithOptions(core,
			positiveDuration(cfg.SamplingWindow, time.Second),
			positiveInt(cfg.SamplingInitial, 100),
			positiveInt(cfg.SamplingThereafter, 100),
		)
	}

	opts := []zap.Option{zap.ErrorOutput(zapcore.Lock(os.Stderr))}
	if cfg.IncludeCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.IncludeStackOnError {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	log := zap.New(core, opts...).With(
		zap.String("service", orDefault(cfg.ServiceName, "licensor")),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	)
	zap.ReplaceGlobals(log)

	if lc != nil {
		lc.Append(fx.StopHook(func() {
			_ = log.Sync()
		}))
	}
	return log, nil
}

func newEncoder(cfg Config) zapcore.Encoder {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder

	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		if cfg.Debug {
			enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		return zapcore.NewConsoleEncoder(enc)
	}
	return zapcore.NewJSONEncoder(enc)
}

// FromContext returns the global logger enriched with request-scoped fields.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext adds correlation fields found in ctx. Absent values are omitted
// rather than logged empty.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	fields := make([]zap.Field, 0, 6)
	appendNonEmpty := func(key, value string) {
		if value != "" {
			fields = append(fields, zap.String(key, value))
		}
	}

	appendNonEmpty("request_id", obscontext.RequestIDFromContext(ctx))
	actorType, actorID := obscontext.ActorFromContext(ctx)
	appendNonEmpty("actor_type", actorType)
	appendNonEmpty("actor_id", actorID)
	appendNonEmpty("client_ip", obscontext.ClientIPFromContext(ctx))

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.Stringer("trace_id", sc.TraceID()),
			zap.Stringer("span_id", sc.SpanID()),
		)
	}

	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// WithLicense tags log lines with the license and domain being operated on.
// Only a masked form of the key is ever written.
func WithLicense(log *zap.Logger, licenseKey, domain string) *zap.Logger {
	if log == nil {
		return nil
	}
	return log.With(
		zap.String("license_key", masking.MaskSecret(licenseKey)),
		zap.String("domain", strings.TrimSpace(domain)),
	)
}

func orDefault(value, def string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return def
}

func positiveInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func positiveDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
