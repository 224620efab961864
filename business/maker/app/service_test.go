package app

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	makerdomain "github.com/predikt/arb-agent/business/maker/domain"
	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/logger"
	"github.com/predikt/arb-agent/internal/prob"
)

type fakeBooks struct {
	books map[tokenKey]mdomain.Orderbook
}

func (f *fakeBooks) Snapshot(venue mdomain.Venue, tokenID string) (mdomain.Orderbook, bool) {
	ob, ok := f.books[tokenKey{venue: venue, tokenID: tokenID}]
	return ob, ok
}

type fakeCatalog struct {
	markets []mdomain.Market
}

func (f *fakeCatalog) Markets(ctx context.Context) ([]mdomain.Market, error) {
	return f.markets, nil
}

type placedOrder struct {
	tokenID string
	side    marketdataapp.OrderSide
	price   float64
	shares  float64
}

type fakeSubmitter struct {
	mu        sync.Mutex
	placed    []placedOrder
	cancelled []string
}

func (f *fakeSubmitter) BuildAndSubmitLimit(ctx context.Context, market mdomain.Market, side marketdataapp.OrderSide, price, shares float64) (marketdataapp.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, placedOrder{tokenID: market.TokenID, side: side, price: price, shares: shares})
	return marketdataapp.SubmitResult{Hash: "h"}, nil
}

func (f *fakeSubmitter) BuildAndSubmitMarket(ctx context.Context, market mdomain.Market, side marketdataapp.OrderSide, shares float64, book mdomain.Orderbook, slippageBps float64) (marketdataapp.SubmitResult, error) {
	return marketdataapp.SubmitResult{Hash: "m"}, nil
}

func (f *fakeSubmitter) Cancel(ctx context.Context, hashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, hashes...)
	return nil
}

func (f *fakeSubmitter) Addresses() marketdataapp.SignerAddresses {
	return marketdataapp.SignerAddresses{Maker: "maker", Signer: "signer"}
}

func serviceParams() makerdomain.Params {
	return makerdomain.Params{
		Spread:              0.02,
		MinSpread:           0.02,
		MaxSpread:           0.02,
		OrderSize:           50,
		MaxSingleOrderValue: 200,
		MaxPosition:         200,
		InventorySkewFactor: 0.2,
		CancelThreshold:     0.05,
		RepriceThreshold:    0.02,
		VolatilityPauseBps:  300,
		VolatilityLookback:  30 * time.Second,
		HedgeTriggerShares:  1000, // never trips in these tests
		OrderRefresh:        20 * time.Second,
		TopNLevels:          5,
		MinTopDepthShares:   20,
		MinTopDepthUSD:      10,
		OrderDepthUsage:     1.0,
		VolEmaAlpha:         0.2,
		DepthEmaAlpha:       0.2,
		DepthRef:            500,
	}
}

func newTestService(t *testing.T, params makerdomain.Params, books *fakeBooks, markets ...mdomain.Market) (*MarketMakerService, *fakeSubmitter) {
	t.Helper()
	sub := &fakeSubmitter{}
	log := logger.New(io.Discard, logger.LevelError, "test")
	svc := NewMarketMakerService(books, []CatalogSource{&fakeCatalog{markets: markets}}, sub, nil, nil, params, log)
	return svc, sub
}

func TestPass_ReproducesWorkedInventorySkewScenario(t *testing.T) {
	// Same worked example the pure domain test pins, driven end to end
	// through Pass: bestBid 0.49 size 80, bestAsk 0.51 size 20, net
	// position +80 against maxPosition 200 so bias is the raw share ratio
	// +0.4. Micro-price 0.506, fair 0.506*(1-0.4*0.2*0.02)=0.5051904,
	// bid 0.5051904*0.99=0.5001385, ask clamped just under bestAsk.
	market := mdomain.Market{Venue: mdomain.VenuePredict, TokenID: "tok"}
	ob, err := mdomain.Normalize("tok",
		[]mdomain.OrderbookLevel{{Price: prob.New(0.49), Shares: 80}},
		[]mdomain.OrderbookLevel{{Price: prob.New(0.51), Shares: 20}},
		time.Now())
	if err != nil {
		t.Fatal(err)
	}
	books := &fakeBooks{books: map[tokenKey]mdomain.Orderbook{keyOf(market): ob}}

	svc, sub := newTestService(t, serviceParams(), books, market)
	svc.NotifyFill(market, 80)

	if err := svc.Pass(context.Background()); err != nil {
		t.Fatal(err)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.placed) != 2 {
		t.Fatalf("want a bid and an ask placed, got %d orders: %+v", len(sub.placed), sub.placed)
	}
	var bid, ask *placedOrder
	for i := range sub.placed {
		if sub.placed[i].side == marketdataapp.OrderSideBid {
			bid = &sub.placed[i]
		} else {
			ask = &sub.placed[i]
		}
	}
	if bid == nil || ask == nil {
		t.Fatalf("want one bid and one ask, got %+v", sub.placed)
	}

	// 2e-4 tolerance separates the share-ratio bias (+0.4, bid 0.50014)
	// from a dollar-normalized bias (+0.20, bid 0.50054).
	if diff := bid.price - 0.5001385; diff > 2e-4 || diff < -2e-4 {
		t.Fatalf("bid = %.6f, want ~0.5001385 from share-ratio bias +0.4", bid.price)
	}
	if ask.price >= 0.51 {
		t.Fatalf("ask = %.6f, must stay under bestAsk 0.51", ask.price)
	}
	if diff := ask.price - 0.509999; diff > 2e-4 || diff < -2e-4 {
		t.Fatalf("ask = %.6f, want clamped just under bestAsk", ask.price)
	}
}

func TestNotifyFill_RealizedLossLatchesHaltForProcessLifetime(t *testing.T) {
	market := mdomain.Market{Venue: mdomain.VenuePredict, TokenID: "tok"}
	entryBook, err := mdomain.Normalize("tok",
		[]mdomain.OrderbookLevel{{Price: prob.New(0.49), Shares: 80}},
		[]mdomain.OrderbookLevel{{Price: prob.New(0.51), Shares: 20}},
		time.Now())
	if err != nil {
		t.Fatal(err)
	}
	exitBook, err := mdomain.Normalize("tok",
		[]mdomain.OrderbookLevel{{Price: prob.New(0.29), Shares: 80}},
		[]mdomain.OrderbookLevel{{Price: prob.New(0.31), Shares: 20}},
		time.Now())
	if err != nil {
		t.Fatal(err)
	}
	books := &fakeBooks{books: map[tokenKey]mdomain.Orderbook{keyOf(market): entryBook}}

	params := serviceParams()
	params.MaxDailyLoss = 10
	svc, sub := newTestService(t, params, books, market)

	// Open 100 shares marked ~0.506, then close them after the book gaps
	// down to ~0.306: realized ~= -20, through the -10 loss limit.
	svc.NotifyFill(market, 100)
	books.books[keyOf(market)] = exitBook
	svc.NotifyFill(market, 0)

	if !svc.MetricsSnapshot().TradingHalted {
		t.Fatal("crossing maxDailyLoss must halt trading")
	}

	// A later winning day must not un-halt: the latch holds for the
	// process lifetime.
	svc.RecordRealizedPnL(1000)
	if !svc.MetricsSnapshot().TradingHalted {
		t.Fatal("the halt must stay latched after PnL recovers")
	}

	books.books[keyOf(market)] = entryBook
	if err := svc.Pass(context.Background()); err != nil {
		t.Fatal(err)
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.placed) != 0 {
		t.Fatalf("a halted session must place nothing, got %+v", sub.placed)
	}
}

func TestPass_MinOrderIntervalThrottlesRequotes(t *testing.T) {
	market := mdomain.Market{Venue: mdomain.VenuePredict, TokenID: "tok"}
	ob, err := mdomain.Normalize("tok",
		[]mdomain.OrderbookLevel{{Price: prob.New(0.49), Shares: 80}},
		[]mdomain.OrderbookLevel{{Price: prob.New(0.51), Shares: 20}},
		time.Now())
	if err != nil {
		t.Fatal(err)
	}
	books := &fakeBooks{books: map[tokenKey]mdomain.Orderbook{keyOf(market): ob}}

	params := serviceParams()
	params.MinOrderInterval = time.Hour
	params.OrderRefresh = time.Nanosecond // forces a cancel on the second pass

	svc, sub := newTestService(t, params, books, market)
	if err := svc.Pass(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := svc.Pass(context.Background()); err != nil {
		t.Fatal(err)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.placed) != 2 {
		t.Fatalf("the refreshed orders must not re-place inside the min interval, got %d placements", len(sub.placed))
	}
	if len(sub.cancelled) != 2 {
		t.Fatalf("the refresh cancel must still run, got %d cancels", len(sub.cancelled))
	}
}

func TestPass_MaxOrdersPerMarketBoundsPlacement(t *testing.T) {
	market := mdomain.Market{Venue: mdomain.VenuePredict, TokenID: "tok"}
	ob, err := mdomain.Normalize("tok",
		[]mdomain.OrderbookLevel{{Price: prob.New(0.49), Shares: 80}},
		[]mdomain.OrderbookLevel{{Price: prob.New(0.51), Shares: 20}},
		time.Now())
	if err != nil {
		t.Fatal(err)
	}
	books := &fakeBooks{books: map[tokenKey]mdomain.Orderbook{keyOf(market): ob}}

	params := serviceParams()
	params.MaxOrdersPerMarket = 1

	svc, sub := newTestService(t, params, books, market)
	if err := svc.Pass(context.Background()); err != nil {
		t.Fatal(err)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.placed) != 1 {
		t.Fatalf("max_orders_per_market=1 must cap the market at one open order, got %d", len(sub.placed))
	}
}

func TestPass_HaltedPlacesNothing(t *testing.T) {
	market := mdomain.Market{Venue: mdomain.VenuePredict, TokenID: "tok"}
	ob, err := mdomain.Normalize("tok",
		[]mdomain.OrderbookLevel{{Price: prob.New(0.49), Shares: 80}},
		[]mdomain.OrderbookLevel{{Price: prob.New(0.51), Shares: 20}},
		time.Now())
	if err != nil {
		t.Fatal(err)
	}
	books := &fakeBooks{books: map[tokenKey]mdomain.Orderbook{keyOf(market): ob}}

	svc, sub := newTestService(t, serviceParams(), books, market)
	svc.SetEnableTrading(false)

	if err := svc.Pass(context.Background()); err != nil {
		t.Fatal(err)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.placed) != 0 {
		t.Fatalf("trading disabled must place nothing, got %+v", sub.placed)
	}
}
