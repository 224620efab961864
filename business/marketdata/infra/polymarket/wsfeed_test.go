package polymarket

import (
	"testing"
	"time"

	"github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/prob"
)

func feedWithBook(t *testing.T, tokenID string) *WsFeed {
	t.Helper()
	f := &WsFeed{books: make(map[string]domain.Orderbook), subs: make(map[string]bool)}
	ob, err := domain.Normalize(tokenID,
		[]domain.OrderbookLevel{
			{Price: prob.New(0.48), Shares: 100},
			{Price: prob.New(0.45), Shares: 200},
		},
		[]domain.OrderbookLevel{
			{Price: prob.New(0.52), Shares: 100},
			{Price: prob.New(0.55), Shares: 200},
		},
		time.Now())
	if err != nil {
		t.Fatal(err)
	}
	f.books[tokenID] = ob
	return f
}

func TestApplyPriceChangeMergesDelta(t *testing.T) {
	f := feedWithBook(t, "tok")

	f.applyPriceChange("tok", priceChangeData{Changes: []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
		Side  string `json:"side"`
	}{
		{Price: "0.48", Size: "50", Side: "BUY"},  // resize existing bid
		{Price: "0.52", Size: "0", Side: "SELL"},  // remove best ask
		{Price: "0.53", Size: "75", Side: "SELL"}, // insert new ask level
	}})

	ob := f.books["tok"]
	bid, _ := ob.BestBid()
	if bid.Price.Float64() != 0.48 || bid.Shares != 50 {
		t.Fatalf("best bid = %v x %v, want 0.48 x 50", bid.Price.Float64(), bid.Shares)
	}
	ask, _ := ob.BestAsk()
	if ask.Price.Float64() != 0.53 || ask.Shares != 75 {
		t.Fatalf("best ask = %v x %v, want 0.53 x 75", ask.Price.Float64(), ask.Shares)
	}
	if len(ob.Asks) != 2 {
		t.Fatalf("asks = %d levels, want 2 (0.53 inserted, 0.52 removed, 0.55 kept)", len(ob.Asks))
	}
}

func TestApplyPriceChangeWithoutPriorBookIsDropped(t *testing.T) {
	f := &WsFeed{books: make(map[string]domain.Orderbook), subs: make(map[string]bool)}
	f.applyPriceChange("tok", priceChangeData{})
	if len(f.books) != 0 {
		t.Fatal("delta with no prior book must not create one")
	}
}

func TestApplyTouchUpdateTrimsCrossedLevels(t *testing.T) {
	f := feedWithBook(t, "tok")

	// Touch moves to bid 0.50, ask 0.53. The old 0.52 ask now sits inside
	// the new touch, meaning it was consumed, so it must disappear; 0.55
	// stays as depth behind the touch.
	f.applyTouchUpdate("tok", bestBidAskData{
		BestBid: "0.50", BestBidSize: "30",
		BestAsk: "0.53", BestAskSize: "40",
	})

	ob := f.books["tok"]
	bid, _ := ob.BestBid()
	ask, _ := ob.BestAsk()
	if bid.Price.Float64() != 0.50 || bid.Shares != 30 {
		t.Fatalf("best bid = %v x %v, want 0.50 x 30", bid.Price.Float64(), bid.Shares)
	}
	if ask.Price.Float64() != 0.53 || ask.Shares != 40 {
		t.Fatalf("best ask = %v x %v, want 0.53 x 40", ask.Price.Float64(), ask.Shares)
	}
	for _, l := range ob.Asks {
		if l.Price.Float64() == 0.52 {
			t.Fatal("ask level priced through the new touch must be trimmed")
		}
	}
	// Deeper levels on both sides survive.
	if len(ob.Bids) != 3 || len(ob.Asks) != 2 {
		t.Fatalf("bids=%d asks=%d, want 3 and 2", len(ob.Bids), len(ob.Asks))
	}
}
