// Package main is the entry point for the predikt market-making agent.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/predikt/arb-agent/business/arb"
	"github.com/predikt/arb-agent/business/detect"
	"github.com/predikt/arb-agent/business/maker"
	makerapp "github.com/predikt/arb-agent/business/maker/app"
	makerDI "github.com/predikt/arb-agent/business/maker/di"
	"github.com/predikt/arb-agent/business/mapping"
	"github.com/predikt/arb-agent/business/marketdata"
	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	marketdataDI "github.com/predikt/arb-agent/business/marketdata/di"
	supervisorapp "github.com/predikt/arb-agent/business/supervisor/app"
	"github.com/predikt/arb-agent/internal/apm"
	"github.com/predikt/arb-agent/internal/config"
	"github.com/predikt/arb-agent/internal/di"
	"github.com/predikt/arb-agent/internal/health"
	"github.com/predikt/arb-agent/internal/logger"
	"github.com/predikt/arb-agent/internal/metrics"
	"github.com/predikt/arb-agent/internal/monolith"
	"github.com/predikt/arb-agent/pkg/ui"
	"github.com/predikt/arb-agent/pkg/ui/components"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	cliMode := flag.Bool("cli", false, "Run in CLI mode with logs (no TUI)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("predikt-mm %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	tuiMode := !*cliMode

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, *configPath, tuiMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, tuiMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}

	var log *logger.Logger
	if tuiMode {
		log = logger.New(io.Discard, logLevel, cfg.App.Name)
	} else {
		log = logger.New(os.Stderr, logLevel, cfg.App.Name)
		log.Info(ctx, "starting predikt market maker",
			"version", version,
			"environment", cfg.App.Environment,
		)
	}

	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}
		if cfg.Telemetry.OTLPEndpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
		}
		if cfg.Telemetry.OTLPHeaders != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_HEADERS", cfg.Telemetry.OTLPHeaders)
		}

		traceProvider = apm.NewTraceProvider(log, apm.WithProvider(apm.ZipkinProvider, log))
		log.Info(ctx, "tracing initialized", "provider", "zipkin", "endpoint", cfg.Telemetry.OTLPEndpoint)

		metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{
				Provider: metrics.PrometheusProvider,
			}),
		)

		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port)))
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	healthPort := cfg.App.HealthPort
	if healthPort == 0 {
		healthPort = 8081
	}
	healthServer := health.NewServer(healthPort, version)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", healthPort)
	}
	defer healthServer.Stop(ctx)

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	modules := []monolith.Module{
		&marketdata.Module{}, // must be first: provides clients/catalogs/book store
		&mapping.Module{},
		&detect.Module{},
		&arb.Module{}, // registers HedgeTrigger, consumed by maker
		&maker.Module{},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	buildSupervisor := func() (*supervisorapp.Supervisor, error) {
		sr := mono.Services()
		svc := di.MustGet[*makerapp.MarketMakerService](sr, makerDI.Service)

		feeds := map[string]marketdataapp.WsFeed{}
		for venue, token := range map[string]string{
			"predict":    marketdataDI.PredictWsFeed,
			"polymarket": marketdataDI.PolymarketWsFeed,
			"opinion":    marketdataDI.OpinionWsFeed,
		} {
			if feed, ok := sr.Get(token).(marketdataapp.WsFeed); ok && feed != nil {
				feeds[venue] = feed
			}
		}

		registerFeedChecks(healthServer, feeds)
		if tuiMode {
			store := di.MustGet[*marketdataapp.BookStore](sr, marketdataDI.BookStore)
			go pumpDashboard(ctx, feeds, store, func() []components.StatRow {
				return makerStatsRows(svc.MetricsSnapshot())
			})
		}

		return supervisorapp.New(svc, nil, feeds, supervisorapp.Config{
			MakerInterval:        cfg.Maker.MinOrderInterval,
			WsStaleMaxAge:        cfg.Arb.WsMaxAge,
			MetricsFlushInterval: cfg.Arb.MetricsFlushInterval,
			MakerMetricsPath:     cfg.Arb.MakerMetricsPath,
		}, log), nil
	}

	if tuiMode {
		startFunc := func() (*supervisorapp.Supervisor, error) {
			if err := mono.StartModules(ctx, modules...); err != nil {
				return nil, fmt.Errorf("failed to start modules: %w", err)
			}
			return buildSupervisor()
		}
		return runTUI(ctx, startFunc)
	}

	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	sup, err := buildSupervisor()
	if err != nil {
		return err
	}
	return runCLI(ctx, sup, log)
}

func runCLI(ctx context.Context, sup *supervisorapp.Supervisor, log *logger.Logger) error {
	log.Info(ctx, "all modules started, market maker running")
	return sup.Run(ctx)
}

func runTUI(ctx context.Context, startFunc func() (*supervisorapp.Supervisor, error)) error {
	startSignal := make(chan struct{}, 1)
	ui.OnStartModules = func() {
		select {
		case startSignal <- struct{}{}:
		default:
		}
	}

	p := tea.NewProgram(ui.New(), tea.WithAltScreen())
	ui.Program = p

	errCh := make(chan error, 1)
	go func() {
		select {
		case <-startSignal:
		case <-ctx.Done():
			errCh <- nil
			return
		}

		sup, err := startFunc()
		if err != nil {
			ui.Send(ui.ErrorMsg{Error: err})
			errCh <- err
			return
		}

		errCh <- sup.Run(ctx)
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
