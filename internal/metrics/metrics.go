// Package metrics bootstraps the global OTEL meter provider for the agent
// binaries and serves the Prometheus scrape endpoint. Business components
// create their own instruments from otel.Meter; this package only decides
// where those measurements go.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

// Provider selects a metrics backend.
type Provider string

const (
	// PrometheusProvider exposes a pull endpoint via ServePrometheusMetrics.
	PrometheusProvider Provider = "prometheus"
	// OtelCollector pushes OTLP/gRPC to a collector endpoint.
	OtelCollector Provider = "otelCollector"
)

// ProviderCfg configures one backend.
type ProviderCfg struct {
	Provider Provider
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

// Config aggregates the options passed to NewMetricProvider.
type Config struct {
	ServiceName string
	Providers   []ProviderCfg
}

// OptionFn configures NewMetricProvider.
type OptionFn func(Config) Config

// WithServiceName stamps every measurement with the service resource name.
func WithServiceName(name string) OptionFn {
	return func(c Config) Config {
		c.ServiceName = name
		return c
	}
}

// WithProviderConfig adds a backend. Multiple backends fan out.
func WithProviderConfig(p ProviderCfg) OptionFn {
	return func(c Config) Config {
		c.Providers = append(c.Providers, p)
		return c
	}
}

// MetricProvider is the shutdown handle returned by NewMetricProvider.
type MetricProvider interface {
	Meter(name string, options ...metric.MeterOption) metric.Meter
	Shutdown(ctx context.Context) error
}

// NewMetricProvider wires the configured backends into a meter provider and
// installs it globally. With no backend configured it defaults to an
// OTLP/gRPC push using the environment's OTEL endpoint settings.
func NewMetricProvider(options ...OptionFn) MetricProvider {
	ctx := context.Background()
	var cfg Config
	for _, opt := range options {
		cfg = opt(cfg)
	}

	var readers []sdkmetric.Reader
	for _, p := range cfg.Providers {
		switch p.Provider {
		case PrometheusProvider:
			exp, err := prometheus.New()
			if err != nil {
				panic(fmt.Sprintf("metrics: prometheus exporter: %v", err))
			}
			readers = append(readers, exp)
		case OtelCollector:
			opts := []otlpmetricgrpc.Option{
				otlpmetricgrpc.WithEndpointURL(p.Endpoint),
				otlpmetricgrpc.WithHeaders(p.Headers),
			}
			if p.Insecure {
				opts = append(opts, otlpmetricgrpc.WithInsecure())
			}
			exp, err := otlpmetricgrpc.New(ctx, opts...)
			if err != nil {
				panic(fmt.Sprintf("metrics: otlp exporter: %v", err))
			}
			readers = append(readers, sdkmetric.NewPeriodicReader(exp))
		}
	}
	if len(readers) == 0 {
		exp, err := otlpmetricgrpc.New(ctx)
		if err != nil {
			panic(fmt.Sprintf("metrics: default otlp exporter: %v", err))
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exp))
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = os.Getenv("OTEL_SERVICE_NAME")
	}

	opts := make([]sdkmetric.Option, 0, len(readers)+1)
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}
	opts = append(opts, sdkmetric.WithResource(
		resource.NewSchemaless(semconv.ServiceNameKey.String(serviceName))))

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	return mp
}

// PromServerConfig holds the scrape endpoint settings.
type PromServerConfig struct {
	port string
}

// PromOptionFn configures ServePrometheusMetrics.
type PromOptionFn func(PromServerConfig) PromServerConfig

// WithPort overrides the default scrape port.
func WithPort(port string) PromOptionFn {
	return func(c PromServerConfig) PromServerConfig {
		c.port = port
		return c
	}
}

// ServePrometheusMetrics blocks serving /metrics; run it in a goroutine.
func ServePrometheusMetrics(opts ...PromOptionFn) {
	cfg := PromServerConfig{port: "9090"}
	for _, o := range opts {
		cfg = o(cfg)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "metrics: serve: %v\n", err)
	}
}
