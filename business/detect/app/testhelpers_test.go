package app

import (
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/prob"
)

func lvl(price, shares float64) mdomain.OrderbookLevel {
	return mdomain.OrderbookLevel{Price: prob.New(price), Shares: shares}
}

func book(bids, asks []mdomain.OrderbookLevel) mdomain.Orderbook {
	return mdomain.Orderbook{Bids: bids, Asks: asks}
}

func yesMarket(venue mdomain.Venue, conditionID, tokenID string, feeBps float64) mdomain.Market {
	return mdomain.Market{Venue: venue, ConditionID: conditionID, TokenID: tokenID, Outcome: mdomain.OutcomeYes, FeeRateBps: feeBps, Question: conditionID}
}

func noMarket(venue mdomain.Venue, conditionID, tokenID string, feeBps float64) mdomain.Market {
	return mdomain.Market{Venue: venue, ConditionID: conditionID, TokenID: tokenID, Outcome: mdomain.OutcomeNo, FeeRateBps: feeBps, Question: conditionID}
}

// staticLookup builds a domain.BookLookup backed by a fixed map, keyed by
// venue+tokenID, for use in detector tests that don't need a live store.
func staticLookup(books map[string]mdomain.Orderbook) func(venue mdomain.Venue, tokenID string) (mdomain.Orderbook, bool) {
	return func(venue mdomain.Venue, tokenID string) (mdomain.Orderbook, bool) {
		ob, ok := books[string(venue)+":"+tokenID]
		return ob, ok
	}
}
