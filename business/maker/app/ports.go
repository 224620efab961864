package app

import (
	"context"

	makerdomain "github.com/predikt/arb-agent/business/maker/domain"
	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
)

// OrderSubmitter is the Predict-only port the MarketMakerService drives to
// place, cancel, and hedge orders; defined once in
// business/marketdata/app so business/arb's Executor can share it.
type OrderSubmitter = marketdataapp.OrderSubmitter

// BookSource is the subset of marketdata's BookStore the maker needs to
// read current book snapshots without importing its concrete type.
type BookSource interface {
	Snapshot(venue mdomain.Venue, tokenID string) (mdomain.Orderbook, bool)
}

// CatalogSource supplies the tokens a MarketMakerService should quote.
type CatalogSource interface {
	Markets(ctx context.Context) ([]mdomain.Market, error)
}

// ValueSignalSource supplies an optional fair-price estimate per token,
// consulted only when Params.UseValueSignal is set. No type in this
// repository implements it and the maker module passes a nil source, so
// the wired service never blends a value signal into its quotes.
type ValueSignalSource interface {
	ValueSignal(venue mdomain.Venue, tokenID string) (makerdomain.ValueSignal, bool)
}
