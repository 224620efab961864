package app

import (
	"testing"
	"time"

	"github.com/predikt/arb-agent/business/detect/domain"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
)

func TestValueMismatch_FlagsTailClippedMarket(t *testing.T) {
	m := mdomain.Market{Venue: mdomain.VenuePredict, TokenID: "tok1", FeeRateBps: 0}
	books := map[string]mdomain.Orderbook{
		"predict:tok1": book(
			[]mdomain.OrderbookLevel{lvl(0.03, 10)},
			[]mdomain.OrderbookLevel{lvl(0.05, 10)},
		),
	}

	d := NewValueMismatch(0.01, 0, time.Minute)
	opps := d.Scan([]mdomain.Market{m}, staticLookup(books))
	if len(opps) != 1 {
		t.Fatalf("want 1 opportunity, got %d", len(opps))
	}
	if opps[0].Kind != domain.KindValueMismatch {
		t.Fatalf("want KindValueMismatch, got %v", opps[0].Kind)
	}
	if opps[0].FairPrice != tailClipLow {
		t.Fatalf("want fair price clipped to %v, got %v", tailClipLow, opps[0].FairPrice)
	}
	if opps[0].Side != domain.SideBuy {
		t.Fatalf("midprice below fair should signal BUY, got %v", opps[0].Side)
	}
}

func TestValueMismatch_SkipsWhenBookIsFlat(t *testing.T) {
	// Single level per side: depth-weighted mid degenerates to micro-price,
	// so fair == mid exactly and no mismatch signal exists.
	m := mdomain.Market{Venue: mdomain.VenuePredict, TokenID: "tok1"}
	books := map[string]mdomain.Orderbook{
		"predict:tok1": book(
			[]mdomain.OrderbookLevel{lvl(0.48, 10)},
			[]mdomain.OrderbookLevel{lvl(0.52, 10)},
		),
	}

	d := NewValueMismatch(0.0001, 0, time.Minute)
	opps := d.Scan([]mdomain.Market{m}, staticLookup(books))
	if len(opps) != 0 {
		t.Fatalf("want 0 opportunities on a flat single-level book, got %d", len(opps))
	}
}

func TestValueMismatch_FlagsSlopedBookInNormalRange(t *testing.T) {
	// Thin top of book at 0.50/0.52 (micro-price ~0.51) backed by much
	// deeper levels clustered near 0.40/0.42: the depth-weighted fair
	// estimate sits well below the top-of-book micro-price even though
	// both are inside the tail-clip band, so a real mismatch fires.
	m := mdomain.Market{Venue: mdomain.VenuePredict, TokenID: "tok1"}
	books := map[string]mdomain.Orderbook{
		"predict:tok1": book(
			[]mdomain.OrderbookLevel{lvl(0.50, 10), lvl(0.40, 1000)},
			[]mdomain.OrderbookLevel{lvl(0.52, 10), lvl(0.42, 1000)},
		),
	}

	d := NewValueMismatch(0.01, 0, time.Minute)
	opps := d.Scan([]mdomain.Market{m}, staticLookup(books))
	if len(opps) != 1 {
		t.Fatalf("want 1 opportunity from the sloped book, got %d", len(opps))
	}
	if opps[0].Side != domain.SideSell {
		t.Fatalf("micro-price above the depth-weighted fair should signal SELL, got %v", opps[0].Side)
	}
	if opps[0].FairPrice <= tailClipLow || opps[0].FairPrice >= tailClipHigh {
		t.Fatalf("want fair price inside the clip band, got %v", opps[0].FairPrice)
	}
}

func TestValueMismatch_ConfidenceThresholdFilters(t *testing.T) {
	m := mdomain.Market{Venue: mdomain.VenuePredict, TokenID: "tok1"}
	books := map[string]mdomain.Orderbook{
		"predict:tok1": book(
			[]mdomain.OrderbookLevel{lvl(0.03, 1)},
			[]mdomain.OrderbookLevel{lvl(0.05, 1)},
		),
	}

	d := NewValueMismatch(0.01, 0.99, time.Minute)
	opps := d.Scan([]mdomain.Market{m}, staticLookup(books))
	if len(opps) != 0 {
		t.Fatalf("want 0 opportunities above an unreachable confidence threshold, got %d", len(opps))
	}
}

func TestValueMismatch_MissingBookSkipsMarket(t *testing.T) {
	m := mdomain.Market{Venue: mdomain.VenuePredict, TokenID: "tok1"}
	d := NewValueMismatch(0.01, 0, time.Minute)
	opps := d.Scan([]mdomain.Market{m}, staticLookup(nil))
	if len(opps) != 0 {
		t.Fatalf("want 0 opportunities with no book, got %d", len(opps))
	}
}
