package app

import (
	"testing"
	"time"

	"github.com/predikt/arb-agent/business/detect/domain"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
)

func TestMultiOutcome_FlagsUnderDollarBundle(t *testing.T) {
	markets := []mdomain.Market{
		{Venue: mdomain.VenuePredict, ConditionID: "raceA", TokenID: "tok1"},
		{Venue: mdomain.VenuePredict, ConditionID: "raceA", TokenID: "tok2"},
		{Venue: mdomain.VenuePredict, ConditionID: "raceA", TokenID: "tok3"},
	}
	books := map[string]mdomain.Orderbook{
		"predict:tok1": book(nil, []mdomain.OrderbookLevel{lvl(0.30, 100)}),
		"predict:tok2": book(nil, []mdomain.OrderbookLevel{lvl(0.30, 100)}),
		"predict:tok3": book(nil, []mdomain.OrderbookLevel{lvl(0.30, 100)}),
	}

	d := &MultiOutcome{MinOutcomes: 3, MaxShares: 100, DepthUsage: 0.5, TTL: time.Minute}
	opps := d.Scan(markets, staticLookup(books))
	if len(opps) != 1 {
		t.Fatalf("want 1 opportunity, got %d", len(opps))
	}
	if opps[0].Kind != domain.KindMultiOutcome {
		t.Fatalf("want KindMultiOutcome, got %v", opps[0].Kind)
	}
	if opps[0].Action != domain.ActionBuyAll {
		t.Fatalf("want ActionBuyAll, got %v", opps[0].Action)
	}
	if len(opps[0].Legs) != 3 {
		t.Fatalf("want 3 legs, got %d", len(opps[0].Legs))
	}
	if opps[0].Edge <= 0 {
		t.Fatalf("want positive edge, got %v", opps[0].Edge)
	}
}

func TestMultiOutcome_SkipsGroupsBelowMinOutcomes(t *testing.T) {
	markets := []mdomain.Market{
		{Venue: mdomain.VenuePredict, ConditionID: "raceA", TokenID: "tok1"},
		{Venue: mdomain.VenuePredict, ConditionID: "raceA", TokenID: "tok2"},
	}
	books := map[string]mdomain.Orderbook{
		"predict:tok1": book(nil, []mdomain.OrderbookLevel{lvl(0.20, 100)}),
		"predict:tok2": book(nil, []mdomain.OrderbookLevel{lvl(0.20, 100)}),
	}

	d := &MultiOutcome{MinOutcomes: 3, MaxShares: 100, DepthUsage: 0.5, TTL: time.Minute}
	opps := d.Scan(markets, staticLookup(books))
	if len(opps) != 0 {
		t.Fatalf("want 0 opportunities below MinOutcomes, got %d", len(opps))
	}
}

func TestMultiOutcome_NoOpportunityWhenSumAtOrAboveDollar(t *testing.T) {
	markets := []mdomain.Market{
		{Venue: mdomain.VenuePredict, ConditionID: "raceA", TokenID: "tok1"},
		{Venue: mdomain.VenuePredict, ConditionID: "raceA", TokenID: "tok2"},
		{Venue: mdomain.VenuePredict, ConditionID: "raceA", TokenID: "tok3"},
	}
	books := map[string]mdomain.Orderbook{
		"predict:tok1": book(nil, []mdomain.OrderbookLevel{lvl(0.34, 100)}),
		"predict:tok2": book(nil, []mdomain.OrderbookLevel{lvl(0.34, 100)}),
		"predict:tok3": book(nil, []mdomain.OrderbookLevel{lvl(0.34, 100)}),
	}

	d := &MultiOutcome{MinOutcomes: 3, MaxShares: 100, DepthUsage: 0.5, TTL: time.Minute}
	opps := d.Scan(markets, staticLookup(books))
	if len(opps) != 0 {
		t.Fatalf("want 0 opportunities at/above $1 combined cost, got %d", len(opps))
	}
}

func TestMultiOutcome_MissingOutcomeBookSkipsGroup(t *testing.T) {
	markets := []mdomain.Market{
		{Venue: mdomain.VenuePredict, ConditionID: "raceA", TokenID: "tok1"},
		{Venue: mdomain.VenuePredict, ConditionID: "raceA", TokenID: "tok2"},
		{Venue: mdomain.VenuePredict, ConditionID: "raceA", TokenID: "tok3"},
	}
	books := map[string]mdomain.Orderbook{
		"predict:tok1": book(nil, []mdomain.OrderbookLevel{lvl(0.20, 100)}),
		"predict:tok2": book(nil, []mdomain.OrderbookLevel{lvl(0.20, 100)}),
	}

	d := &MultiOutcome{MinOutcomes: 3, MaxShares: 100, DepthUsage: 0.5, TTL: time.Minute}
	opps := d.Scan(markets, staticLookup(books))
	if len(opps) != 0 {
		t.Fatalf("want 0 opportunities when an outcome's book is missing, got %d", len(opps))
	}
}
