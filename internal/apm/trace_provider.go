// Package apm bootstraps the global OTEL tracer provider for the agent
// binaries. Business components start spans via otel.Tracer; this package
// only decides which exporter receives them.
package apm

import (
	"context"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/predikt/arb-agent/internal/logger"
)

// Provider selects a trace exporter.
type Provider string

const (
	ZipkinProvider    Provider = "ZIPKIN_PROVIDER"
	CollectorProvider Provider = "COLLECTOR_PROVIDER" // OTLP gRPC or HTTP by OTEL_EXPORTER_OTLP_PROTOCOL
	ConsoleProvider   Provider = "CONSOLE_PROVIDER"
	EmptyProvider     Provider = "EMPTY_PROVIDER"
)

// TraceProvider is the shutdown handle returned by NewTraceProvider.
type TraceProvider interface {
	Stop() error
}

type tracerOptions struct {
	exporter sdktrace.SpanExporter
	name     string
	empty    bool
}

// TracerOption configures NewTraceProvider.
type TracerOption func(*tracerOptions)

// WithProvider selects the exporter. An unknown provider degrades to the
// empty provider with a warning rather than failing startup: tracing is
// never a reason not to trade.
func WithProvider(p Provider, log logger.LoggerInterface) TracerOption {
	switch p {
	case ZipkinProvider:
		return useZipkin()
	case CollectorProvider:
		return useCollector(log)
	case ConsoleProvider:
		return useConsole()
	default:
		log.Warn(context.Background(), "unknown trace provider, tracing disabled", "provider", string(p))
		return func(o *tracerOptions) {
			o.empty = true
			o.name = string(EmptyProvider)
		}
	}
}

func useZipkin() TracerOption {
	return func(o *tracerOptions) {
		exp, err := zipkin.New(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
		if err != nil {
			panic(err)
		}
		o.exporter = exp
		o.name = string(ZipkinProvider)
	}
}

func useConsole() TracerOption {
	return func(o *tracerOptions) {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			panic(err)
		}
		o.exporter = exp
		o.name = string(ConsoleProvider)
	}
}

func useCollector(log logger.LoggerInterface) TracerOption {
	return func(o *tracerOptions) {
		endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		headers := parseHeaderEnv(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))

		var exp sdktrace.SpanExporter
		var err error
		if os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") == "http/protobuf" {
			exp, err = otlptracehttp.New(context.Background(),
				otlptracehttp.WithEndpointURL(endpoint),
				otlptracehttp.WithHeaders(headers))
		} else {
			exp, err = otlptracegrpc.New(context.Background(),
				otlptracegrpc.WithEndpointURL(endpoint),
				otlptracegrpc.WithHeaders(headers))
		}
		if err != nil {
			log.Error(context.Background(), "otlp trace exporter init failed", "err", err)
			panic(err)
		}
		o.exporter = exp
		o.name = string(CollectorProvider)
	}
}

// parseHeaderEnv splits "k1=v1,k2=v2" into a header map, skipping malformed
// entries.
func parseHeaderEnv(raw string) map[string]string {
	headers := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 && kv[0] != "" {
			headers[kv[0]] = kv[1]
		}
	}
	return headers
}

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

type emptyTraceProvider struct{}

func (emptyTraceProvider) Stop() error { return nil }

// NewTraceProvider builds the exporter, installs the tracer provider
// globally, and returns a handle whose Stop flushes pending spans.
func NewTraceProvider(log logger.LoggerInterface, options ...TracerOption) TraceProvider {
	if len(options) == 0 {
		options = []TracerOption{useConsole()}
	}
	opts := &tracerOptions{}
	for _, opt := range options {
		opt(opts)
	}
	if opts.empty {
		return emptyTraceProvider{}
	}

	rsrc, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(os.Getenv("OTEL_SERVICE_NAME")),
			attribute.String("otel.provider", opts.name),
		))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(opts.exporter),
		sdktrace.WithResource(rsrc),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &traceProvider{tp: tp}
}

// Stop flushes and shuts the provider down with a bounded timeout.
func (p *traceProvider) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(ctx)
}
