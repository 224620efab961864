package app

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/predikt/arb-agent/internal/logger"
)

const (
	tracerName = "github.com/predikt/arb-agent/business/maker/app"
	meterName  = "github.com/predikt/arb-agent/business/maker/app"
)

// serviceMetrics holds the OTEL instruments emitted by one pass of the
// MarketMakerService across every quoted token.
type serviceMetrics struct {
	passesRun       metric.Int64Counter
	quotesPlaced    metric.Int64Counter
	quotesCancelled metric.Int64Counter
	guardTrips      metric.Int64Counter
	fillsDetected   metric.Int64Counter
	hedgesTriggered metric.Int64Counter
	passLatency     metric.Float64Histogram
	quotedSpreadBps metric.Float64Histogram
}

func newServiceMetrics(log logger.LoggerInterface) *serviceMetrics {
	m := &serviceMetrics{}
	meter := otel.Meter(meterName)

	var err error
	if m.passesRun, err = meter.Int64Counter(
		"maker_passes_total",
		metric.WithDescription("Total number of market-maker passes executed"),
		metric.WithUnit("{pass}"),
	); err != nil {
		log.Error(context.Background(), "failed to init maker passes counter", "error", err)
	}

	if m.quotesPlaced, err = meter.Int64Counter(
		"maker_quotes_placed_total",
		metric.WithDescription("Total number of new resting orders placed"),
		metric.WithUnit("{order}"),
	); err != nil {
		log.Error(context.Background(), "failed to init maker quotes-placed counter", "error", err)
	}

	if m.quotesCancelled, err = meter.Int64Counter(
		"maker_quotes_cancelled_total",
		metric.WithDescription("Total number of resting orders cancelled"),
		metric.WithUnit("{order}"),
	); err != nil {
		log.Error(context.Background(), "failed to init maker quotes-cancelled counter", "error", err)
	}

	if m.guardTrips, err = meter.Int64Counter(
		"maker_guard_trips_total",
		metric.WithDescription("Total number of pass guard trips by reason"),
		metric.WithUnit("{trip}"),
	); err != nil {
		log.Error(context.Background(), "failed to init maker guard-trips counter", "error", err)
	}

	if m.fillsDetected, err = meter.Int64Counter(
		"maker_fills_detected_total",
		metric.WithDescription("Total number of net-position deltas detected as fills"),
		metric.WithUnit("{fill}"),
	); err != nil {
		log.Error(context.Background(), "failed to init maker fills counter", "error", err)
	}

	if m.hedgesTriggered, err = meter.Int64Counter(
		"maker_hedges_triggered_total",
		metric.WithDescription("Total number of HedgeOnFill triggers"),
		metric.WithUnit("{hedge}"),
	); err != nil {
		log.Error(context.Background(), "failed to init maker hedges counter", "error", err)
	}

	if m.passLatency, err = meter.Float64Histogram(
		"maker_pass_latency_ms",
		metric.WithDescription("Time to run one MarketMakerService pass across all tokens"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000),
	); err != nil {
		log.Error(context.Background(), "failed to init maker pass-latency histogram", "error", err)
	}

	if m.quotedSpreadBps, err = meter.Float64Histogram(
		"maker_quoted_spread_bps",
		metric.WithDescription("Quoted bid/ask spread in basis points"),
		metric.WithUnit("{bps}"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500),
	); err != nil {
		log.Error(context.Background(), "failed to init maker quoted-spread histogram", "error", err)
	}

	return m
}

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
