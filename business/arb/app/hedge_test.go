package app

import (
	"context"
	"testing"

	makerdomain "github.com/predikt/arb-agent/business/maker/domain"
	mappingdomain "github.com/predikt/arb-agent/business/mapping/domain"
	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
)

type fakeMapping struct {
	entry   mappingdomain.MappingEntry
	byID    bool
	similar bool
}

func (f *fakeMapping) Resolve(_, _ string) (mappingdomain.MappingEntry, bool) {
	return f.entry, f.byID
}

func (f *fakeMapping) ResolveSimilar(_ string, _ float64) (mappingdomain.MappingEntry, float64, bool) {
	return f.entry, 0.9, f.similar
}

func hedgeFixture(mode makerdomain.HedgeMode, cross CrossVenueSubmitter, mapping MappingResolver) (*HedgeOnFill, *fakeSubmitter) {
	market := mdomain.Market{
		Venue:       mdomain.VenuePredict,
		TokenID:     "yes-1",
		ConditionID: "cond-1",
		Question:    "will it rain tomorrow",
		Outcome:     mdomain.OutcomeYes,
	}
	books := &fakeBooks{books: map[string]mdomain.Orderbook{
		"predict:yes-1": {
			TokenID: "yes-1",
			Bids:    []mdomain.OrderbookLevel{lvl(0.49, 500)},
			Asks:    []mdomain.OrderbookLevel{lvl(0.51, 500)},
		},
	}}
	sub := &fakeSubmitter{}
	h := NewHedgeOnFill(mode, 50, 0.8, &fakeCatalog{markets: []mdomain.Market{market}}, books, sub, cross, mapping, nil)
	return h, sub
}

func TestHedge_FlattenSellsOffLongDelta(t *testing.T) {
	h, sub := hedgeFixture(makerdomain.HedgeFlatten, nil, nil)

	// A +60 share fill: the hedge must market-sell exactly 60 shares of the
	// same token with the configured slippage allowance.
	if err := h.Hedge(context.Background(), mdomain.VenuePredict, "yes-1", 60); err != nil {
		t.Fatalf("hedge: %v", err)
	}

	if len(sub.markets) != 1 {
		t.Fatalf("want one market order, got %d", len(sub.markets))
	}
	got := sub.markets[0]
	if got.TokenID != "yes-1" || got.Side != marketdataapp.OrderSideAsk || got.Shares != 60 {
		t.Fatalf("want SELL 60 yes-1, got %+v", got)
	}
	if got.SlippageBps != 50 {
		t.Fatalf("want configured slippage 50 bps, got %v", got.SlippageBps)
	}
}

func TestHedge_FlattenBuysBackShortDelta(t *testing.T) {
	h, sub := hedgeFixture(makerdomain.HedgeFlatten, nil, nil)

	if err := h.Hedge(context.Background(), mdomain.VenuePredict, "yes-1", -40); err != nil {
		t.Fatalf("hedge: %v", err)
	}
	if len(sub.markets) != 1 || sub.markets[0].Side != marketdataapp.OrderSideBid || sub.markets[0].Shares != 40 {
		t.Fatalf("want BUY 40, got %+v", sub.markets)
	}
}

func TestHedge_NoneModeIsANoOp(t *testing.T) {
	h, sub := hedgeFixture(makerdomain.HedgeNone, nil, nil)

	if err := h.Hedge(context.Background(), mdomain.VenuePredict, "yes-1", 60); err != nil {
		t.Fatalf("hedge: %v", err)
	}
	if len(sub.markets) != 0 || len(sub.limits) != 0 {
		t.Fatal("NONE mode must not submit anything")
	}
}

func TestHedge_CrossBuysOpposingOutcomeOnPeerVenue(t *testing.T) {
	cross := &fakeCrossVenue{}
	mapping := &fakeMapping{
		entry: mappingdomain.MappingEntry{
			PredictMarketID:   "cond-1",
			PolymarketNoToken: "pm-no-1",
		},
		byID: true,
	}
	h, sub := hedgeFixture(makerdomain.HedgeCross, cross, mapping)

	// Long YES on Predict hedges as BUY NO on the peer venue.
	if err := h.Hedge(context.Background(), mdomain.VenuePredict, "yes-1", 60); err != nil {
		t.Fatalf("hedge: %v", err)
	}

	if len(cross.calls) != 1 {
		t.Fatalf("want one peer-venue order, got %d", len(cross.calls))
	}
	got := cross.calls[0]
	if got.Venue != mdomain.VenuePolymarket || got.TokenID != "pm-no-1" || got.Shares != 60 {
		t.Fatalf("want BUY 60 pm-no-1 on polymarket, got %+v", got)
	}
	if len(sub.markets) != 0 {
		t.Fatal("a successful cross hedge must not also flatten")
	}
}

func TestHedge_CrossFallsBackToFlattenOnError(t *testing.T) {
	cross := &fakeCrossVenue{err: context.DeadlineExceeded}
	mapping := &fakeMapping{
		entry: mappingdomain.MappingEntry{PolymarketNoToken: "pm-no-1"},
		byID:  true,
	}
	h, sub := hedgeFixture(makerdomain.HedgeCross, cross, mapping)

	if err := h.Hedge(context.Background(), mdomain.VenuePredict, "yes-1", 60); err != nil {
		t.Fatalf("hedge must recover via flatten, got %v", err)
	}
	if len(sub.markets) != 1 || sub.markets[0].Side != marketdataapp.OrderSideAsk {
		t.Fatalf("want a flatten market sell after the cross failure, got %+v", sub.markets)
	}
}

func TestHedge_CrossWithoutMappingFallsBackToFlatten(t *testing.T) {
	h, sub := hedgeFixture(makerdomain.HedgeCross, &fakeCrossVenue{}, &fakeMapping{})

	if err := h.Hedge(context.Background(), mdomain.VenuePredict, "yes-1", 60); err != nil {
		t.Fatalf("hedge: %v", err)
	}
	if len(sub.markets) != 1 {
		t.Fatalf("want flatten when no peer market matches, got %+v", sub.markets)
	}
}
