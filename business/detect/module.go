// Package detect implements the detect bounded context: the five
// Opportunity detectors and the Scanner that merges their results.
package detect

import (
	"context"

	"github.com/predikt/arb-agent/business/detect/app"
	detectDI "github.com/predikt/arb-agent/business/detect/di"
	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
	mappapp "github.com/predikt/arb-agent/business/mapping/app"
	mappingDI "github.com/predikt/arb-agent/business/mapping/di"
	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	marketdataDI "github.com/predikt/arb-agent/business/marketdata/di"
	"github.com/predikt/arb-agent/internal/config"
	"github.com/predikt/arb-agent/internal/di"
	"github.com/predikt/arb-agent/internal/logger"
	"github.com/predikt/arb-agent/internal/monolith"
)

// Module implements the detect bounded context.
type Module struct{}

func cfgOf(sr di.ServiceRegistry) *config.Config {
	return di.MustGet[*config.Config](sr, "config")
}

func logOf(sr di.ServiceRegistry) logger.LoggerInterface {
	return di.MustGet[logger.LoggerInterface](sr, "logger")
}

// RegisterServices binds a lazy factory for the Scanner, built from the
// marketdata catalogs/book store and the mapping service registered by
// their own modules.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, detectDI.Scanner, func(sr di.ServiceRegistry) *app.Scanner {
		cfg := cfgOf(sr)
		arb := cfg.Arb

		predictCatalog := di.MustGet[*marketdataapp.MarketCatalog](sr, marketdataDI.PredictCatalog)
		polymarketCatalog := di.MustGet[*marketdataapp.MarketCatalog](sr, marketdataDI.PolymarketCatalog)
		opinionCatalog := di.MustGet[*marketdataapp.MarketCatalog](sr, marketdataDI.OpinionCatalog)
		store := di.MustGet[*marketdataapp.BookStore](sr, marketdataDI.BookStore)
		mapping := di.MustGet[*mappapp.Mapping](sr, mappingDI.Mapping)

		valueMismatch := app.NewValueMismatch(arb.EdgeThreshold, arb.ConfidenceThreshold, arb.ExecutionCooldown)

		intraVenue := &app.IntraVenue{
			DepthUsage:           arb.DepthUsage,
			MaxRecommendedShares: arb.MaxRecommendedShares,
			MaxVwapDeviationBps:  arb.MaxVwapDeviationBps,
			MaxVwapLevels:        arb.MaxVwapLevels,
			RecheckDeviationBps:  arb.RecheckDeviationBps,
			MinNotionalUSD:       arb.MinNotionalUSD,
			MinProfitUSD:         arb.MinProfitUSD,
			MinDepthUSD:          arb.MinDepthUSD,
			AllowShorting:        arb.AllowShorting,
			TTL:                  arb.ExecutionCooldown,
		}

		var multiOutcome *app.MultiOutcome
		if arb.MultiOutcomeEnabled {
			multiOutcome = &app.MultiOutcome{
				MinOutcomes: arb.MultiOutcomeMinOutcomes,
				MaxShares:   arb.MultiOutcomeMaxShares,
				DepthUsage:  arb.DepthUsage,
				TTL:         arb.ExecutionCooldown,
			}
		}

		var crossVenue *app.CrossVenue
		if arb.CrossPlatformEnabled {
			var resolver app.MappingResolver
			if arb.CrossPlatformUseMapping {
				resolver = mapping
			}
			crossVenue = &app.CrossVenue{
				Mapping:             resolver,
				MinSimilarity:       arb.CrossPlatformMinSimilarity,
				MinProfit:           arb.CrossPlatformMinProfit,
				TransferCost:        arb.CrossPlatformTransferCost,
				SlippageBps:         arb.CrossPlatformSlippageBps,
				MaxShares:           arb.CrossPlatformMaxShares,
				DepthLevels:         arb.CrossPlatformDepthLevels,
				DepthUsage:          arb.CrossPlatformDepthUsage,
				RecheckDeviationBps: arb.RecheckDeviationBps,
				AllowShorting:       arb.AllowShorting,
				TTL:                 arb.ExecutionCooldown,
			}
		}

		var dependency *app.Dependency
		if cfg.Dependency.Enabled {
			dependency = app.NewDependency(
				cfg.Dependency.SolverPath,
				cfg.Dependency.ConstraintsPath,
				cfg.Dependency.Timeout,
				cfg.Dependency.MaxIterations,
				cfg.Dependency.MinEdge,
				cfg.Dependency.MaxLegs,
				cfg.Dependency.MaxNotionalUSD,
				logOf(sr),
			)
		}

		all := []detectdomain.Detector{valueMismatch, intraVenue}
		if multiOutcome != nil {
			all = append(all, multiOutcome)
		}
		if crossVenue != nil {
			all = append(all, crossVenue)
		}
		if dependency != nil {
			all = append(all, dependency)
		}

		scanner := app.NewScanner(
			store,
			[]app.CatalogSource{predictCatalog, polymarketCatalog, opinionCatalog},
			all...,
		)
		scanner.Fetcher = store
		scanner.Concurrency = arb.OrderbookConcurrency
		scanner.MaxAge = arb.WsMaxAge
		return scanner
	})

	return nil
}

// Startup has nothing to start: the Scanner is pulled on demand by arb's
// ArbMonitor.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	return nil
}
