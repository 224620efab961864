package domain

import mdomain "github.com/predikt/arb-agent/business/marketdata/domain"

// BookLookup resolves the latest known book for a venue/token pair,
// decoupling detectors from BookStore's concrete type so they stay pure
// functions of (markets, a book accessor).
type BookLookup func(venue mdomain.Venue, tokenID string) (mdomain.Orderbook, bool)

// Detector consumes a market snapshot and a book accessor and returns zero
// or more opportunities, sorted descending by edge.
type Detector interface {
	Scan(markets []mdomain.Market, lookup BookLookup) []Opportunity
}
