package observability

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is the service name traces are attributed to.
const DefaultServiceName = "sessiond"

var (
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
)

// TracingConfig holds trace-export configuration.
type TracingConfig struct {
	// ServiceName is the name traces are attributed to.
	ServiceName string
	// Exporter selects the span exporter: "otlp", "stdout", or "none".
	// The default is "none": stdout carries the MCP protocol, so traces are
	// opt-in and stdout export is only safe when MCP is not served on stdio.
	Exporter string
	// Endpoint is the OTLP endpoint (host or URL) for the otlp exporter.
	Endpoint string
	// Headers are extra OTLP request headers, e.g. authorization.
	Headers map[string]string
}

// InitTracingFromEnv configures tracing from the standard OpenTelemetry
// environment variables:
//   - OTEL_SERVICE_NAME: service name (default "sessiond")
//   - OTEL_TRACES_EXPORTER: "otlp", "stdout", or "none" (default "none")
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint
//   - OTEL_EXPORTER_OTLP_HEADERS: headers as "key1=value1,key2=value2"
func InitTracingFromEnv() error {
	return InitTracing(TracingConfig{
		ServiceName: envOr("OTEL_SERVICE_NAME", DefaultServiceName),
		Exporter:    envOr("OTEL_TRACES_EXPORTER", "none"),
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Headers:     parseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
	})
}

// InitTracing sets up the tracer provider and span exporter.
func InitTracing(cfg TracingConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}

	if cfg.Exporter == "" || cfg.Exporter == "none" {
		tracer = otel.GetTracerProvider().Tracer(cfg.ServiceName)
		return nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return fmt.Errorf("create trace resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp":
		opts := []otlptracehttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
		if err != nil {
			return fmt.Errorf("create OTLP trace exporter: %w", err)
		}
		log.Printf("tracing enabled with OTLP exporter (endpoint %q)", cfg.Endpoint)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("create stdout trace exporter: %w", err)
		}
		log.Printf("tracing enabled with stdout exporter")
	default:
		return fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = tracerProvider.Tracer(cfg.ServiceName)
	return nil
}

// ShutdownTracing flushes and stops the tracer provider.
func ShutdownTracing(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return tracerProvider.Shutdown(ctx)
}

// StartSpan starts a span under the configured tracer. With tracing
// uninitialized or disabled it falls through to the global (noop) provider.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	tr := tracer
	if tr == nil {
		tr = otel.GetTracerProvider().Tracer(DefaultServiceName)
	}
	return tr.Start(ctx, name, opts...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseOTLPHeaders parses "key1=value1,key2=value2".
func parseOTLPHeaders(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		if key, value, ok := strings.Cut(pair, "="); ok && key != "" {
			headers[key] = value
		}
	}
	return headers
}
