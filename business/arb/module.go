// Package arb implements the arb bounded context: the periodic/realtime
// scan-alert-execute loop (ArbMonitor), the per-kind Executor, and the
// fill-triggered HedgeOnFill trigger consumed by business/maker.
package arb

import (
	"context"

	"github.com/predikt/arb-agent/business/arb/app"
	arbDI "github.com/predikt/arb-agent/business/arb/di"
	"github.com/predikt/arb-agent/business/arb/infra"
	detectapp "github.com/predikt/arb-agent/business/detect/app"
	detectDI "github.com/predikt/arb-agent/business/detect/di"
	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
	makerdomain "github.com/predikt/arb-agent/business/maker/domain"
	mappapp "github.com/predikt/arb-agent/business/mapping/app"
	mappingDI "github.com/predikt/arb-agent/business/mapping/di"
	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	marketdataDI "github.com/predikt/arb-agent/business/marketdata/di"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/config"
	"github.com/predikt/arb-agent/internal/di"
	"github.com/predikt/arb-agent/internal/logger"
	"github.com/predikt/arb-agent/internal/monolith"
)

// Module implements the arb bounded context.
type Module struct{}

func cfgOf(sr di.ServiceRegistry) *config.Config {
	return di.MustGet[*config.Config](sr, "config")
}

func logOf(sr di.ServiceRegistry) logger.LoggerInterface {
	return di.MustGet[logger.LoggerInterface](sr, "logger")
}

func hedgeModeOf(s string) makerdomain.HedgeMode {
	switch s {
	case "FLATTEN":
		return makerdomain.HedgeFlatten
	case "CROSS":
		return makerdomain.HedgeCross
	default:
		return makerdomain.HedgeNone
	}
}

// RegisterServices binds lazy factories for every port Executor/HedgeOnFill/
// ArbMonitor need, plus the services themselves.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, arbDI.CrossVenueSubmitter, func(sr di.ServiceRegistry) *infra.CrossVenueSubmitter {
		venues := map[mdomain.Venue]marketdataapp.MarketOrderSubmitter{}
		if client, ok := sr.Get(marketdataDI.PolymarketClient).(marketdataapp.MarketOrderSubmitter); ok {
			venues[mdomain.VenuePolymarket] = client
		}
		if client, ok := sr.Get(marketdataDI.OpinionClient).(marketdataapp.MarketOrderSubmitter); ok {
			venues[mdomain.VenueOpinion] = client
		}
		return infra.NewCrossVenueSubmitter(venues)
	})

	di.RegisterToken(c, arbDI.Confirmer, func(sr di.ServiceRegistry) app.Confirmer {
		return infra.NewStdinConfirmer(logOf(sr))
	})

	di.RegisterToken(c, arbDI.Notifier, func(sr di.ServiceRegistry) app.Notifier {
		cfg := cfgOf(sr)
		console := infra.NewConsoleReporter()

		var rest []interface {
			Notify(ctx context.Context, opp detectdomain.Opportunity) error
		}
		if cfg.App.AlertWebhookURL != "" {
			rest = append(rest, infra.NewWebhookNotifier(cfg.App.AlertWebhookURL, cfg.App.AlertMinInterval, logOf(sr)))
		}
		if cfg.App.Dashboard {
			rest = append(rest, infra.NewTuiReporter())
		}
		if len(rest) == 0 {
			return console
		}
		return infra.NewFanoutNotifier(console, rest...)
	})

	di.RegisterToken(c, arbDI.Executor, func(sr di.ServiceRegistry) *app.Executor {
		cfg := cfgOf(sr)
		submitter := di.MustGet[app.OrderSubmitter](sr, marketdataDI.PredictSubmitter)
		crossVenue := di.MustGet[*infra.CrossVenueSubmitter](sr, arbDI.CrossVenueSubmitter)
		confirmer := di.MustGet[app.Confirmer](sr, arbDI.Confirmer)

		catalogs := map[mdomain.Venue]app.CatalogSource{
			mdomain.VenuePredict:    di.MustGet[*marketdataapp.MarketCatalog](sr, marketdataDI.PredictCatalog),
			mdomain.VenuePolymarket: di.MustGet[*marketdataapp.MarketCatalog](sr, marketdataDI.PolymarketCatalog),
			mdomain.VenueOpinion:    di.MustGet[*marketdataapp.MarketCatalog](sr, marketdataDI.OpinionCatalog),
		}

		return app.NewExecutor(app.ExecutorConfig{
			MaxPositionSizeUSD:         cfg.Arb.MaxPositionSizeUSD,
			RequireConfirmation:        cfg.Arb.RequireConfirmation,
			CrossRequireConfirm:        cfg.Arb.CrossPlatformRequireConfirm,
			AutoConfirm:                cfg.App.AutoConfirmAll,
			DefaultValueMismatchShares: cfg.Arb.MaxRecommendedShares,
		}, submitter, crossVenue, confirmer, catalogs, logOf(sr))
	})

	di.RegisterToken(c, arbDI.HedgeTrigger, func(sr di.ServiceRegistry) *app.HedgeOnFill {
		cfg := cfgOf(sr)
		store := di.MustGet[*marketdataapp.BookStore](sr, marketdataDI.BookStore)
		predictCatalog := di.MustGet[*marketdataapp.MarketCatalog](sr, marketdataDI.PredictCatalog)
		submitter := di.MustGet[app.OrderSubmitter](sr, marketdataDI.PredictSubmitter)
		crossVenue := di.MustGet[*infra.CrossVenueSubmitter](sr, arbDI.CrossVenueSubmitter)

		var mapping app.MappingResolver
		if cfg.Arb.CrossPlatformUseMapping {
			mapping = di.MustGet[*mappapp.Mapping](sr, mappingDI.Mapping)
		}

		return app.NewHedgeOnFill(
			hedgeModeOf(cfg.Maker.HedgeMode),
			cfg.Maker.HedgeMaxSlippageBps,
			cfg.Arb.CrossPlatformMinSimilarity,
			predictCatalog,
			store,
			submitter,
			crossVenue,
			mapping,
			logOf(sr),
		)
	})

	di.RegisterToken(c, arbDI.Monitor, func(sr di.ServiceRegistry) *app.ArbMonitor {
		cfg := cfgOf(sr)
		scanner := di.MustGet[*detectapp.Scanner](sr, detectDI.Scanner)
		executor := di.MustGet[*app.Executor](sr, arbDI.Executor)
		notifier := di.MustGet[app.Notifier](sr, arbDI.Notifier)

		var wsHealth []app.WsHealthSource
		for _, token := range []string{marketdataDI.PredictWsFeed, marketdataDI.PolymarketWsFeed, marketdataDI.OpinionWsFeed} {
			if feed, ok := sr.Get(token).(marketdataapp.WsFeed); ok && feed != nil {
				wsHealth = append(wsHealth, wsHealthAdapter{feed})
			}
		}

		return app.NewArbMonitor(scanner, executor, notifier, wsHealth, app.MonitorConfig{
			ScanInterval:         cfg.Arb.ScanInterval,
			ExecuteTopN:          cfg.Arb.ExecuteTopN,
			ExecutionCooldown:    cfg.Arb.ExecutionCooldown,
			StabilityMinCount:    cfg.Arb.StabilityMinCount,
			StabilityWindow:      cfg.Arb.StabilityWindow,
			AlertMinInterval:     cfg.App.AlertMinInterval,
			RequireWs:            cfg.Arb.RequireWs,
			RequireWsHealth:      cfg.Arb.RequireWsHealth,
			WsMaxAge:             cfg.Arb.WsMaxAge,
			AutoExecute:          cfg.Arb.AutoExecute,
			AutoExecuteValue:     cfg.Arb.AutoExecuteValue,
			CrossPlatformExecute: cfg.Arb.CrossPlatformAutoExecute,
			EdgeThreshold:        cfg.Arb.EdgeThreshold,
			MaxErrors:            cfg.Arb.MaxErrors,
			ErrorWindow:          cfg.Arb.ErrorWindow,
			PauseOnError:         cfg.Arb.PauseOnError,
			WsRealtime:           cfg.Arb.WsRealtime,
			WsRealtimeInterval:   cfg.Arb.WsRealtimeInterval,
			WsRealtimeMaxBatch:   cfg.Arb.WsRealtimeMaxBatch,
		}, logOf(sr))
	})

	return nil
}

// Startup wires the BookStore's change events into the monitor's dirty set
// when realtime scanning is on. The supervisor pulls Monitor from the
// container and drives its Run loop alongside the maker's tick.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	sr := mono.Services()
	cfg := cfgOf(sr)
	if !cfg.Arb.WsRealtime {
		return nil
	}

	store := di.MustGet[*marketdataapp.BookStore](sr, marketdataDI.BookStore)
	monitor := di.MustGet[*app.ArbMonitor](sr, arbDI.Monitor)

	ch := store.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				monitor.MarkDirty(ev.Venue, ev.TokenID)
			}
		}
	}()
	return nil
}

// wsHealthAdapter narrows marketdataapp.WsFeed.Status() to the
// app.WsHealthSource shape ArbMonitor's require-ws-health gate expects.
type wsHealthAdapter struct {
	feed marketdataapp.WsFeed
}

func (a wsHealthAdapter) Connected() bool {
	return a.feed.Status().Connected
}

func (a wsHealthAdapter) LastMessageAt() (int64, bool) {
	st := a.feed.Status()
	if st.LastMessageAt.IsZero() {
		return 0, false
	}
	return st.LastMessageAt.Unix(), true
}
