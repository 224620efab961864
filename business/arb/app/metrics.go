package app

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/predikt/arb-agent/internal/logger"
)

const (
	tracerName = "github.com/predikt/arb-agent/business/arb/app"
	meterName  = "github.com/predikt/arb-agent/business/arb/app"
)

// monitorMetrics holds the OTEL instruments ArbMonitor emits into on every
// scan, mirroring the arbitrage bot's detectorMetrics field-for-field.
type monitorMetrics struct {
	opportunitiesFound metric.Int64Counter
	alertsSent         metric.Int64Counter
	autoExecutions     metric.Int64Counter
	executionErrors    metric.Int64Counter
	scanLatency        metric.Float64Histogram
	opportunityEdgeBps metric.Float64Histogram
}

func newMonitorMetrics(log logger.LoggerInterface) *monitorMetrics {
	meter := otel.Meter(meterName)
	m := &monitorMetrics{}
	var err error

	m.opportunitiesFound, err = meter.Int64Counter(
		"arb_opportunities_found_total",
		metric.WithDescription("Total opportunities surfaced by a scan, by kind"),
		metric.WithUnit("{opportunity}"),
	)
	if err != nil {
		log.Error(context.Background(), "failed to init arb_opportunities_found_total", "err", err)
	}

	m.alertsSent, err = meter.Int64Counter(
		"arb_alerts_sent_total",
		metric.WithDescription("Total webhook alerts fired for new or updated opportunities"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		log.Error(context.Background(), "failed to init arb_alerts_sent_total", "err", err)
	}

	m.autoExecutions, err = meter.Int64Counter(
		"arb_auto_executions_total",
		metric.WithDescription("Total opportunities auto-executed"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		log.Error(context.Background(), "failed to init arb_auto_executions_total", "err", err)
	}

	m.executionErrors, err = meter.Int64Counter(
		"arb_execution_errors_total",
		metric.WithDescription("Total execution errors recorded against the error-window circuit breaker"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		log.Error(context.Background(), "failed to init arb_execution_errors_total", "err", err)
	}

	m.scanLatency, err = meter.Float64Histogram(
		"arb_scan_latency_ms",
		metric.WithDescription("Time to complete one scan pass"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500),
	)
	if err != nil {
		log.Error(context.Background(), "failed to init arb_scan_latency_ms", "err", err)
	}

	m.opportunityEdgeBps, err = meter.Float64Histogram(
		"arb_opportunity_edge_bps",
		metric.WithDescription("Opportunity edge in basis points at time of detection"),
		metric.WithUnit("{bps}"),
		metric.WithExplicitBucketBoundaries(0, 10, 25, 50, 100, 200, 500, 1000),
	)
	if err != nil {
		log.Error(context.Background(), "failed to init arb_opportunity_edge_bps", "err", err)
	}

	return m
}

func tracer() trace.Tracer { return otel.Tracer(tracerName) }
