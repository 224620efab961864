package app

import (
	"testing"
	"time"

	"github.com/predikt/arb-agent/business/detect/domain"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
)

func TestIntraVenue_BuyBothUnderDollarEmitsOpportunity(t *testing.T) {
	yes := yesMarket(mdomain.VenuePredict, "cond1", "yes1", 0)
	no := noMarket(mdomain.VenuePredict, "cond1", "no1", 0)

	books := map[string]mdomain.Orderbook{
		"predict:yes1": book(nil, []mdomain.OrderbookLevel{lvl(0.40, 100)}),
		"predict:no1":  book(nil, []mdomain.OrderbookLevel{lvl(0.45, 100)}),
	}

	d := &IntraVenue{
		DepthUsage:           0.5,
		MaxRecommendedShares: 100,
		MinNotionalUSD:       0,
		MinProfitUSD:         0,
		MinDepthUSD:          0,
		TTL:                  time.Minute,
	}

	opps := d.Scan([]mdomain.Market{yes, no}, staticLookup(books))
	if len(opps) != 1 {
		t.Fatalf("want 1 opportunity, got %d", len(opps))
	}
	if opps[0].Kind != domain.KindIntraVenue {
		t.Fatalf("want KindIntraVenue, got %v", opps[0].Kind)
	}
	if opps[0].Action != domain.ActionBuyBoth {
		t.Fatalf("want ActionBuyBoth, got %v", opps[0].Action)
	}
	if opps[0].Edge <= 0 {
		t.Fatalf("want positive edge, got %v", opps[0].Edge)
	}
}

func TestIntraVenue_NoOpportunityWhenSumAtOrAboveDollar(t *testing.T) {
	yes := yesMarket(mdomain.VenuePredict, "cond1", "yes1", 0)
	no := noMarket(mdomain.VenuePredict, "cond1", "no1", 0)

	books := map[string]mdomain.Orderbook{
		"predict:yes1": book(nil, []mdomain.OrderbookLevel{lvl(0.55, 100)}),
		"predict:no1":  book(nil, []mdomain.OrderbookLevel{lvl(0.50, 100)}),
	}

	d := &IntraVenue{DepthUsage: 0.5, MaxRecommendedShares: 100, TTL: time.Minute}
	opps := d.Scan([]mdomain.Market{yes, no}, staticLookup(books))
	if len(opps) != 0 {
		t.Fatalf("want 0 opportunities, got %d", len(opps))
	}
}

func TestIntraVenue_SellBothRequiresAllowShorting(t *testing.T) {
	yes := yesMarket(mdomain.VenuePredict, "cond1", "yes1", 0)
	no := noMarket(mdomain.VenuePredict, "cond1", "no1", 0)

	books := map[string]mdomain.Orderbook{
		"predict:yes1": book([]mdomain.OrderbookLevel{lvl(0.60, 100)}, nil),
		"predict:no1":  book([]mdomain.OrderbookLevel{lvl(0.55, 100)}, nil),
	}

	d := &IntraVenue{DepthUsage: 0.5, MaxRecommendedShares: 100, TTL: time.Minute, AllowShorting: false}
	opps := d.Scan([]mdomain.Market{yes, no}, staticLookup(books))
	if len(opps) != 0 {
		t.Fatalf("want 0 opportunities without asks and AllowShorting=false, got %d", len(opps))
	}

	d.AllowShorting = true
	opps = d.Scan([]mdomain.Market{yes, no}, staticLookup(books))
	if len(opps) != 1 {
		t.Fatalf("want 1 opportunity with AllowShorting=true, got %d", len(opps))
	}
	if opps[0].Action != domain.ActionSellBoth {
		t.Fatalf("want ActionSellBoth, got %v", opps[0].Action)
	}
}

func TestIntraVenue_MissingBookSkipsPair(t *testing.T) {
	yes := yesMarket(mdomain.VenuePredict, "cond1", "yes1", 0)
	no := noMarket(mdomain.VenuePredict, "cond1", "no1", 0)

	d := &IntraVenue{DepthUsage: 0.5, MaxRecommendedShares: 100, TTL: time.Minute}
	opps := d.Scan([]mdomain.Market{yes, no}, staticLookup(nil))
	if len(opps) != 0 {
		t.Fatalf("want 0 opportunities with no books available, got %d", len(opps))
	}
}

func TestIntraVenue_RecheckDeviationDropsWhenDepthMoved(t *testing.T) {
	yes := yesMarket(mdomain.VenuePredict, "cond1", "yes1", 0)
	no := noMarket(mdomain.VenuePredict, "cond1", "no1", 0)

	// A razor-thin top level at 0.10 backed by a much worse 0.30 level:
	// BUY_BOTH still clears under a dollar at every candidate size, but the
	// realized VWAP sits far above the top-of-book reference used for
	// RecheckDeviationBps.
	books := map[string]mdomain.Orderbook{
		"predict:yes1": book(nil, []mdomain.OrderbookLevel{lvl(0.10, 1), lvl(0.30, 100)}),
		"predict:no1":  book(nil, []mdomain.OrderbookLevel{lvl(0.10, 1), lvl(0.30, 100)}),
	}

	base := IntraVenue{
		DepthUsage:           1.0,
		MaxRecommendedShares: 100,
		TTL:                  time.Minute,
	}

	withoutRecheck := base
	opps := withoutRecheck.Scan([]mdomain.Market{yes, no}, staticLookup(books))
	if len(opps) != 1 {
		t.Fatalf("want 1 opportunity without a recheck gate, got %d", len(opps))
	}

	withRecheck := base
	withRecheck.RecheckDeviationBps = 200
	opps = withRecheck.Scan([]mdomain.Market{yes, no}, staticLookup(books))
	if len(opps) != 0 {
		t.Fatalf("want 0 opportunities once depth has moved past RecheckDeviationBps, got %d", len(opps))
	}
}

func TestIntraVenue_BuyBothWorkedExample(t *testing.T) {
	// YES asks [(0.42, 200)], NO asks [(0.55, 200)], no fees, size capped at
	// 100: one BUY_BOTH at size 100, per-share cost 0.97, edge 0.03.
	yes := yesMarket(mdomain.VenuePredict, "cond1", "yes1", 0)
	no := noMarket(mdomain.VenuePredict, "cond1", "no1", 0)

	books := map[string]mdomain.Orderbook{
		"predict:yes1": book(nil, []mdomain.OrderbookLevel{lvl(0.42, 200)}),
		"predict:no1":  book(nil, []mdomain.OrderbookLevel{lvl(0.55, 200)}),
	}

	d := &IntraVenue{
		DepthUsage:           1.0,
		MaxRecommendedShares: 100,
		TTL:                  time.Minute,
	}
	opps := d.Scan([]mdomain.Market{yes, no}, staticLookup(books))
	if len(opps) != 1 {
		t.Fatalf("want 1 opportunity, got %d", len(opps))
	}
	opp := opps[0]
	if opp.Action != domain.ActionBuyBoth {
		t.Fatalf("action = %v, want BUY_BOTH", opp.Action)
	}
	if opp.Size != 100 {
		t.Fatalf("size = %v, want 100", opp.Size)
	}
	if diff := opp.PerShareCost - 0.97; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("perShareCost = %v, want 0.97", opp.PerShareCost)
	}
	if diff := opp.Edge - 0.03; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("edge = %v, want 0.03", opp.Edge)
	}
}

func TestIntraVenue_VwapDeviationRejectsEverySize(t *testing.T) {
	// YES asks [(0.40, 10), (0.60, 500)], NO asks [(0.55, 500)], full depth
	// usage: the shrink search tries 500, 300, 180, 108, 64, and every
	// candidate's YES VWAP sits far above 0.40 x 1.01, so nothing is
	// emitted.
	yes := yesMarket(mdomain.VenuePredict, "cond1", "yes1", 0)
	no := noMarket(mdomain.VenuePredict, "cond1", "no1", 0)

	books := map[string]mdomain.Orderbook{
		"predict:yes1": book(nil, []mdomain.OrderbookLevel{lvl(0.40, 10), lvl(0.60, 500)}),
		"predict:no1":  book(nil, []mdomain.OrderbookLevel{lvl(0.55, 500)}),
	}

	d := &IntraVenue{
		DepthUsage:           1.0,
		MaxRecommendedShares: 500,
		MaxVwapDeviationBps:  100,
		TTL:                  time.Minute,
	}
	opps := d.Scan([]mdomain.Market{yes, no}, staticLookup(books))
	if len(opps) != 0 {
		t.Fatalf("want 0 opportunities when every size violates the deviation cap, got %d", len(opps))
	}
}

func TestIntraVenue_FloorsRejectThinOpportunities(t *testing.T) {
	yes := yesMarket(mdomain.VenuePredict, "cond1", "yes1", 0)
	no := noMarket(mdomain.VenuePredict, "cond1", "no1", 0)

	books := map[string]mdomain.Orderbook{
		"predict:yes1": book(nil, []mdomain.OrderbookLevel{lvl(0.40, 1)}),
		"predict:no1":  book(nil, []mdomain.OrderbookLevel{lvl(0.45, 1)}),
	}

	d := &IntraVenue{
		DepthUsage:           0.5,
		MaxRecommendedShares: 100,
		MinNotionalUSD:       1000,
		TTL:                  time.Minute,
	}
	opps := d.Scan([]mdomain.Market{yes, no}, staticLookup(books))
	if len(opps) != 0 {
		t.Fatalf("want 0 opportunities below MinNotionalUSD floor, got %d", len(opps))
	}
}
