package app

import (
	"context"

	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
)

// OrderSubmitter places, hedges, and cancels Predict orders; the same port
// business/maker drives, defined once in business/marketdata/app to avoid an
// import cycle between business/maker and business/arb.
type OrderSubmitter = marketdataapp.OrderSubmitter

// CrossVenueSubmitter is the non-Predict leg of a CROSS_VENUE or CROSS hedge
// trade: Polymarket and Opinion don't expose a signed-order flow in
// this system, only simple top-of-book marketable orders placed through each
// venue's own REST trading endpoint.
type CrossVenueSubmitter interface {
	SubmitMarketOrder(ctx context.Context, venue mdomain.Venue, tokenID string, side detectdomain.Side, shares float64) (marketdataapp.SubmitResult, error)
}

// BookSource looks up a token's current book.
type BookSource interface {
	Snapshot(venue mdomain.Venue, tokenID string) (mdomain.Orderbook, bool)
}

// CatalogSource lists a venue's currently known markets.
type CatalogSource interface {
	Markets(ctx context.Context) ([]mdomain.Market, error)
}

// WsHealthSource reports a venue's WS feed health for the
// arbRequireWsHealth auto-execution precondition.
type WsHealthSource interface {
	Connected() bool
	LastMessageAt() (t int64, ok bool)
}

// Notifier delivers an alert for a new or updated opportunity to an
// operator-configured channel.
type Notifier interface {
	Notify(ctx context.Context, opp detectdomain.Opportunity) error
}

// Confirmer asks a human operator to approve an execution when
// requireConfirmation is set and the process isn't already
// auto-confirming.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}
