package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// InitTracing installs an in-process tracer provider. The service has no
// configured metrics/trace collector (Non-goals excludes an observability
// presentation layer), so spans are sampled and recorded in-process only;
// this still lets LoggerWithTrace attach trace_id/span_id to log lines and
// lets the provider kernel mark retrieval/completion spans for local
// debugging without any network exporter.
func InitTracing(serviceName string) func(context.Context) error {
	res, _ := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown
}

// Tracer returns the named tracer for a component, e.g. "rag.ingest" or
// "llm.anthropic".
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
