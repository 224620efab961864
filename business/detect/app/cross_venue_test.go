package app

import (
	"testing"
	"time"

	"github.com/predikt/arb-agent/business/detect/domain"
	mappingdomain "github.com/predikt/arb-agent/business/mapping/domain"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
)

type fakeResolver struct {
	entry mappingdomain.MappingEntry
	ok    bool
}

func (f fakeResolver) Resolve(predictMarketID, predictQuestion string) (mappingdomain.MappingEntry, bool) {
	return f.entry, f.ok
}

func (f fakeResolver) ResolveSimilar(question string, minSimilarity float64) (mappingdomain.MappingEntry, float64, bool) {
	return mappingdomain.MappingEntry{}, 0, false
}

func TestCrossVenue_MappingMatchFindsAssembly(t *testing.T) {
	predictYes := yesMarket(mdomain.VenuePredict, "cond1", "p-yes", 0)
	predictNo := noMarket(mdomain.VenuePredict, "cond1", "p-no", 0)
	polyYes := yesMarket(mdomain.VenuePolymarket, "polyCond", "poly-yes", 0)
	polyNo := noMarket(mdomain.VenuePolymarket, "polyCond", "poly-no", 0)

	markets := []mdomain.Market{predictYes, predictNo, polyYes, polyNo}

	books := map[string]mdomain.Orderbook{
		"predict:p-yes":       book(nil, []mdomain.OrderbookLevel{lvl(0.40, 100)}),
		"predict:p-no":        book(nil, []mdomain.OrderbookLevel{lvl(0.50, 100)}),
		"polymarket:poly-yes": book(nil, []mdomain.OrderbookLevel{lvl(0.45, 100)}),
		"polymarket:poly-no":  book(nil, []mdomain.OrderbookLevel{lvl(0.48, 100)}),
	}

	resolver := fakeResolver{
		entry: mappingdomain.MappingEntry{
			PredictMarketID:    "cond1",
			PolymarketYesToken: "poly-yes",
			PolymarketNoToken:  "poly-no",
		},
		ok: true,
	}

	d := &CrossVenue{
		Mapping:       resolver,
		MinSimilarity: 0.5,
		TransferCost:  0,
		MaxShares:     100,
		DepthUsage:    0.5,
		TTL:           time.Minute,
	}

	opps := d.Scan(markets, staticLookup(books))
	if len(opps) != 1 {
		t.Fatalf("want 1 opportunity, got %d", len(opps))
	}
	// Cheapest assembly is YES@Predict(0.40)+NO@Polymarket(0.48)=0.88 < 1.
	if opps[0].Edge <= 0 {
		t.Fatalf("want positive edge, got %v", opps[0].Edge)
	}
	if opps[0].Similarity != 1 {
		t.Fatalf("want similarity 1 for an exact mapping match, got %v", opps[0].Similarity)
	}
}

func TestCrossVenue_BuyAssemblyWorkedExample(t *testing.T) {
	// YES@Predict ask 0.40 x 300, NO@Polymarket ask 0.55 x 400, transfer
	// cost 0.01: size 300, cost 0.96/share, edge 0.04. The reverse assembly
	// has no books and is simply skipped.
	predictYes := yesMarket(mdomain.VenuePredict, "cond1", "p-yes", 0)
	predictNo := noMarket(mdomain.VenuePredict, "cond1", "p-no", 0)
	polyYes := yesMarket(mdomain.VenuePolymarket, "polyCond", "poly-yes", 0)
	polyNo := noMarket(mdomain.VenuePolymarket, "polyCond", "poly-no", 0)

	markets := []mdomain.Market{predictYes, predictNo, polyYes, polyNo}

	books := map[string]mdomain.Orderbook{
		"predict:p-yes":      book(nil, []mdomain.OrderbookLevel{lvl(0.40, 300)}),
		"polymarket:poly-no": book(nil, []mdomain.OrderbookLevel{lvl(0.55, 400)}),
	}

	resolver := fakeResolver{
		entry: mappingdomain.MappingEntry{
			PredictMarketID:    "cond1",
			PolymarketYesToken: "poly-yes",
			PolymarketNoToken:  "poly-no",
		},
		ok: true,
	}

	d := &CrossVenue{
		Mapping:       resolver,
		MinSimilarity: 0.5,
		MinProfit:     0.03,
		TransferCost:  0.01,
		MaxShares:     500,
		DepthUsage:    1.0,
		TTL:           time.Minute,
	}
	opps := d.Scan(markets, staticLookup(books))
	if len(opps) != 1 {
		t.Fatalf("want 1 opportunity, got %d", len(opps))
	}
	opp := opps[0]
	if opp.Action != domain.ActionBuyBoth {
		t.Fatalf("action = %q, want BUY_BOTH", opp.Action)
	}
	if opp.Size != 300 {
		t.Fatalf("size = %v, want 300", opp.Size)
	}
	if diff := opp.Edge - 0.04; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("edge = %v, want 0.04", opp.Edge)
	}
	if opp.LegA.TokenID != "p-yes" || opp.LegA.Side != "BUY" || opp.LegA.Shares != 300 {
		t.Fatalf("legA = %+v, want BUY 300 p-yes", opp.LegA)
	}
	if opp.LegB.TokenID != "poly-no" || opp.LegB.Side != "BUY" || opp.LegB.Shares != 300 {
		t.Fatalf("legB = %+v, want BUY 300 poly-no", opp.LegB)
	}
}

func TestCrossVenue_NoMatchProducesNoOpportunity(t *testing.T) {
	predictYes := yesMarket(mdomain.VenuePredict, "cond1", "p-yes", 0)
	predictNo := noMarket(mdomain.VenuePredict, "cond1", "p-no", 0)

	markets := []mdomain.Market{predictYes, predictNo}

	d := &CrossVenue{MinSimilarity: 0.5, MaxShares: 100, DepthUsage: 0.5, TTL: time.Minute}
	opps := d.Scan(markets, staticLookup(nil))
	if len(opps) != 0 {
		t.Fatalf("want 0 opportunities without any peer market, got %d", len(opps))
	}
}

func TestCrossVenue_AboveDollarAssemblyIsNotEmitted(t *testing.T) {
	predictYes := yesMarket(mdomain.VenuePredict, "cond1", "p-yes", 0)
	predictNo := noMarket(mdomain.VenuePredict, "cond1", "p-no", 0)
	polyYes := yesMarket(mdomain.VenuePolymarket, "polyCond", "poly-yes", 0)
	polyNo := noMarket(mdomain.VenuePolymarket, "polyCond", "poly-no", 0)

	markets := []mdomain.Market{predictYes, predictNo, polyYes, polyNo}

	books := map[string]mdomain.Orderbook{
		"predict:p-yes":       book(nil, []mdomain.OrderbookLevel{lvl(0.60, 100)}),
		"predict:p-no":        book(nil, []mdomain.OrderbookLevel{lvl(0.60, 100)}),
		"polymarket:poly-yes": book(nil, []mdomain.OrderbookLevel{lvl(0.60, 100)}),
		"polymarket:poly-no":  book(nil, []mdomain.OrderbookLevel{lvl(0.60, 100)}),
	}

	resolver := fakeResolver{
		entry: mappingdomain.MappingEntry{
			PredictMarketID:    "cond1",
			PolymarketYesToken: "poly-yes",
			PolymarketNoToken:  "poly-no",
		},
		ok: true,
	}

	d := &CrossVenue{Mapping: resolver, MinSimilarity: 0.5, MaxShares: 100, DepthUsage: 0.5, TTL: time.Minute}
	opps := d.Scan(markets, staticLookup(books))
	if len(opps) != 0 {
		t.Fatalf("want 0 opportunities when every assembly costs >= $1, got %d", len(opps))
	}
}
