// Package infra holds business/arb's console/TUI reporters and the
// CrossVenueSubmitter adapter over Polymarket/Opinion's REST clients.
package infra

import (
	"context"
	"fmt"

	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/apperror"
)

// CrossVenueSubmitter dispatches a market order to whichever peer venue
// client is registered for it. Predict never appears here: its legs go
// through OrderSubmitter instead.
type CrossVenueSubmitter struct {
	venues map[mdomain.Venue]marketdataapp.MarketOrderSubmitter
}

// NewCrossVenueSubmitter builds a dispatcher over the given venue clients.
// A venue with a nil client is simply unroutable; SubmitMarketOrder returns
// an error for it rather than panicking.
func NewCrossVenueSubmitter(venues map[mdomain.Venue]marketdataapp.MarketOrderSubmitter) *CrossVenueSubmitter {
	return &CrossVenueSubmitter{venues: venues}
}

// SubmitMarketOrder implements business/arb/app.CrossVenueSubmitter.
func (c *CrossVenueSubmitter) SubmitMarketOrder(ctx context.Context, venue mdomain.Venue, tokenID string, side detectdomain.Side, shares float64) (marketdataapp.SubmitResult, error) {
	client, ok := c.venues[venue]
	if !ok || client == nil {
		return marketdataapp.SubmitResult{}, apperror.New(apperror.CodeOrderRejected,
			apperror.WithContext(fmt.Sprintf("no market-order route for venue %s", venue)))
	}
	return client.SubmitMarketOrder(ctx, tokenID, side, shares)
}
