package otelx

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/consultdesk/libs/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

type Config struct {
	Enabled       bool
	ServiceName   string
	Deployment    string
	OTLPEndpoint  string // host:port of an OTLP/gRPC collector
	Insecure      bool
	SampleRatio   float64
	ExportTimeout time.Duration
}

// ConfigFromEnv reads OTEL_* variables. OTEL_SAMPLING_PERCENT is clamped to [0, 100].
func ConfigFromEnv(serviceName string) Config {
	pct := 100
	if raw := config.String("OTEL_SAMPLING_PERCENT", ""); raw == "0" {
		pct = 0
	} else if n := config.Int("OTEL_SAMPLING_PERCENT", 100); n < 100 {
		pct = n
	}
	return Config{
		Enabled:       config.Bool("OTEL_ENABLED", false),
		ServiceName:   serviceName,
		Deployment:    config.String("DEPLOYMENT_ENVIRONMENT", "local"),
		OTLPEndpoint:  config.String("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Insecure:      config.Bool("OTEL_EXPORTER_OTLP_INSECURE", true),
		SampleRatio:   float64(pct) / 100,
		ExportTimeout: config.Duration("OTEL_EXPORTER_OTLP_TIMEOUT", 3*time.Second),
	}
}

func (c Config) sampler() sdktrace.Sampler {
	switch {
	case c.SampleRatio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case c.SampleRatio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
	}
}

// Setup installs the W3C propagators. When tracing is enabled it also installs a batching
// OTLP tracer provider; the returned func flushes and stops it.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if cfg.ServiceName == "" {
		return nil, errors.New("otel: service name is required")
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithTimeout(cfg.ExportTimeout),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Deployment),
		),
	)
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(cfg.sampler()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return func(ctx context.Context) error {
		return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
	}, nil
}
