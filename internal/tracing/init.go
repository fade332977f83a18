package tracing

import (
	"context"
	"log"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	AppName = "ClimateQueryEngine"
)

type Tracer struct {
	Cleanup func(context.Context) error
}

var tracer trace.Tracer

// InitTracer sets up the OpenTelemetry provider: OTLP over gRPC when
// OTEL_EXPORTER_OTLP_ENDPOINT is set, stdout spans otherwise.
func InitTracer() (*Tracer, error) {
	labels := []attribute.KeyValue{
		semconv.TelemetrySDKLanguageGo,
		semconv.ServiceNameKey.String(AppName),
	}
	res := resource.NewWithAttributes(semconv.SchemaURL, labels...)
	var err error

	var traceExporter sdktrace.SpanExporter
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		traceExporter, err = otlptrace.New(context.Background(), client)
		if err != nil {
			return nil, err
		}
	} else {
		traceExporter, err = stdouttrace.New()
		if err != nil {
			return nil, err
		}
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	sampler := sdktrace.AlwaysSample()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
	)
	otel.SetTracerProvider(tp)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer = tp.Tracer(AppName)

	return &Tracer{
		Cleanup: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				log.Printf("Error shutting down tracer provider: %v", err)
				return err
			}
			return nil
		},
	}, nil
}

// GetTracer returns the process-wide tracer, nil before InitTracer runs.
func GetTracer() trace.Tracer {
	return tracer
}

// ContextWithSpan starts a named span under the process tracer.
func ContextWithSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, name, opts...)
}
