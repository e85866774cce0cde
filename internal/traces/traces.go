// Package traces wires OpenTelemetry spans around scoring and ingestion.
package traces

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName     = "github.com/mbd888/trustline"
	serviceName    = "trustline"
	serviceVersion = "0.1.0"
)

// Init installs a global tracer provider exporting OTLP over gRPC to
// otlpEndpoint. An empty endpoint leaves the no-op provider in place, so
// StartSpan stays safe to call either way. The returned function flushes
// and stops the provider; call it during shutdown.
func Init(ctx context.Context, otlpEndpoint string, logger *slog.Logger) (func(context.Context) error, error) {
	if otlpEndpoint == "" {
		logger.Info("tracing disabled (no OTEL_EXPORTER_OTLP_ENDPOINT set)")
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	logger.Info("tracing enabled", "endpoint", otlpEndpoint)
	return provider.Shutdown, nil
}

// StartSpan opens a span named name under whatever provider Init installed.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// Attribute constructors shared by every span in the service, so keys stay
// uniform across scoring, ingestion, and preflight.

func AgentID(id string) attribute.KeyValue {
	return attribute.String("agent.id", id)
}

func TenantID(id string) attribute.KeyValue {
	return attribute.String("tenant.id", id)
}

func EventType(t string) attribute.KeyValue {
	return attribute.String("event.type", t)
}

func Outcome(o string) attribute.KeyValue {
	return attribute.String("decision.outcome", o)
}

func Score(score int) attribute.KeyValue {
	return attribute.Int("trust.score", score)
}
