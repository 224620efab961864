// Package maker implements the maker bounded context: the per-token
// MarketMaker state machine that quotes two-sided liquidity on Predict.
package maker

import (
	"context"

	arbDI "github.com/predikt/arb-agent/business/arb/di"
	"github.com/predikt/arb-agent/business/maker/app"
	makerDI "github.com/predikt/arb-agent/business/maker/di"
	makerdomain "github.com/predikt/arb-agent/business/maker/domain"
	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	marketdataDI "github.com/predikt/arb-agent/business/marketdata/di"
	"github.com/predikt/arb-agent/internal/config"
	"github.com/predikt/arb-agent/internal/di"
	"github.com/predikt/arb-agent/internal/logger"
	"github.com/predikt/arb-agent/internal/monolith"
)

// Module implements the maker bounded context.
type Module struct{}

func cfgOf(sr di.ServiceRegistry) *config.Config {
	return di.MustGet[*config.Config](sr, "config")
}

func logOf(sr di.ServiceRegistry) logger.LoggerInterface {
	return di.MustGet[logger.LoggerInterface](sr, "logger")
}

// paramsFromConfig translates config.MakerConfig into the pure decision
// layer's Params shape.
func paramsFromConfig(c config.MakerConfig) makerdomain.Params {
	hedgeMode := makerdomain.HedgeNone
	switch c.HedgeMode {
	case "FLATTEN":
		hedgeMode = makerdomain.HedgeFlatten
	case "CROSS":
		hedgeMode = makerdomain.HedgeCross
	}

	return makerdomain.Params{
		Spread:                       c.Spread,
		MinSpread:                    c.MinSpread,
		MaxSpread:                    c.MaxSpread,
		UseValueSignal:               c.UseValueSignal,
		ValueSignalWeight:            c.ValueSignalWeight,
		ValueConfidenceMin:           c.ValueConfidenceMin,
		OrderSize:                    c.OrderSize,
		MaxSingleOrderValue:          c.MaxSingleOrderValue,
		MaxPosition:                  c.MaxPosition,
		MaxDailyLoss:                 c.MaxDailyLoss,
		InventorySkewFactor:          c.InventorySkewFactor,
		CancelThreshold:              c.CancelThreshold,
		RepriceThreshold:             c.RepriceThreshold,
		MinOrderInterval:             c.MinOrderInterval,
		MaxOrdersPerMarket:           c.MaxOrdersPerMarket,
		AntiFillBps:                  c.AntiFillBps,
		NearTouchBps:                 c.NearTouchBps,
		CooldownAfterCancel:          c.CooldownAfterCancel,
		VolatilityPauseBps:           c.VolatilityPauseBps,
		VolatilityLookback:           c.VolatilityLookback,
		PauseAfterVolatility:         c.PauseAfterVolatility,
		HedgeOnFill:                  c.HedgeOnFill,
		HedgeTriggerShares:           c.HedgeTriggerShares,
		HedgeMode:                    hedgeMode,
		HedgeMaxSlippageBps:          c.HedgeMaxSlippageBps,
		OrderRefresh:                 c.OrderRefresh,
		TopNLevels:                   c.TopNLevels,
		MinTopDepthShares:            c.MinTopDepthShares,
		MinTopDepthUSD:               c.MinTopDepthUSD,
		OrderDepthUsage:              c.OrderDepthUsage,
		LiquidityActivationMinShares: c.LiquidityActivationMinShares,
		VolEmaAlpha:                  c.VolEmaAlpha,
		DepthEmaAlpha:                c.DepthEmaAlpha,
		DepthRef:                     c.DepthRef,
		ImbalanceWeight:              c.ImbalanceWeight,
		ImbalanceMaxSkew:             c.ImbalanceMaxSkew,
		CalmBandBps:                  c.CalmBandBps,
		VolatileBandBps:              c.VolatileBandBps,
		IcebergEnabled:               c.IcebergEnabled,
		IcebergRatio:                 c.IcebergRatio,
		IcebergMaxChunkShares:        c.IcebergMaxChunkShares,
		IcebergRequote:               c.IcebergRequote,
		FillRiskSpreadBumpBps:        c.FillRiskSpreadBumpBps,
		AdaptiveParams:               c.AdaptiveParams,
	}
}

// RegisterServices binds a lazy factory for the maker Service, built from
// the Predict catalog/book store and the OrderSubmitter registered by the
// marketdata module's Predict venue client.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, makerDI.Service, func(sr di.ServiceRegistry) *app.MarketMakerService {
		cfg := cfgOf(sr)
		store := di.MustGet[*marketdataapp.BookStore](sr, marketdataDI.BookStore)
		predictCatalog := di.MustGet[*marketdataapp.MarketCatalog](sr, marketdataDI.PredictCatalog)
		submitter := di.MustGet[app.OrderSubmitter](sr, marketdataDI.PredictSubmitter)

		// HedgeOnFill is registered by business/arb under its own DI token;
		// di.MustGet asserts it structurally against this package's
		// HedgeTrigger interface, so no import of business/arb/app is
		// needed here and no import cycle is introduced.
		hedge := di.MustGet[app.HedgeTrigger](sr, arbDI.HedgeTrigger)

		svc := app.NewMarketMakerService(
			store,
			[]app.CatalogSource{predictCatalog},
			submitter,
			nil,
			hedge,
			paramsFromConfig(cfg.Maker),
			logOf(sr),
		)
		svc.SetEnableTrading(cfg.App.EnableTrading)
		return svc
	})

	return nil
}

// Startup has nothing to start: the Service runs on the supervisor's
// periodic tick rather than its own goroutine.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	return nil
}
