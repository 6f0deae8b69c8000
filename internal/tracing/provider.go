// Package tracing wires OpenTelemetry spans around the supervisor's
// lifecycle operations: application start and per-process launches.
// Export goes to an OTLP collector over gRPC on a real
// deployment, or to stdout during development; when disabled, every
// span helper degrades to a no-op tracer.
package tracing

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const serviceName = "apcore"

// Config selects whether and where spans are exported.
type Config struct {
	Enabled bool
	// Exporter is "otlp-grpc" or "stdout".
	Exporter string
	// Endpoint is the OTLP collector address for the otlp-grpc exporter.
	Endpoint string
	// SampleRatio in [0,1]; 0 samples nothing, 1 everything.
	SampleRatio float64
	// Version stamps the service.version resource attribute.
	Version string
	// TLS enables transport security toward the collector.
	TLS bool
}

// Provider owns the installed tracer provider for the process.
type Provider struct {
	tp  *sdktrace.TracerProvider
	log *slog.Logger
}

// Setup builds the exporter named by cfg, installs a global tracer
// provider over it, and returns the handle that shuts it down. With
// cfg.Enabled false it returns a Provider whose Shutdown is a no-op and
// leaves the global tracer as the noop implementation.
func Setup(ctx context.Context, cfg Config, log *slog.Logger) (*Provider, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("subsystem", "tracing")
	if !cfg.Enabled {
		return &Provider{log: log}, nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	log.Info("tracing enabled", "exporter", cfg.Exporter, "endpoint", cfg.Endpoint)
	return &Provider{tp: tp, log: log}, nil
}

func samplerFor(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(ratio)
	}
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp-grpc":
		cred := insecure.NewCredentials()
		if cfg.TLS {
			cred = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		}
		conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(cred))
		if err != nil {
			return nil, fmt.Errorf("dial collector %s: %w", cfg.Endpoint, err)
		}
		return otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	default:
		return nil, fmt.Errorf("unknown exporter %q (want otlp-grpc or stdout)", cfg.Exporter)
	}
}

// Tracer hands back a named tracer, or a noop one when disabled.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p == nil || p.tp == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.tp.Tracer(name)
}

// Enabled reports whether spans are actually being exported.
func (p *Provider) Enabled() bool {
	return p != nil && p.tp != nil
}

// Shutdown flushes pending spans and tears the provider down.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracing: shutdown: %w", err)
	}
	return nil
}
