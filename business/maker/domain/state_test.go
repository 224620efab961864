package domain

import (
	"testing"
	"time"

	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/prob"
)

func lvl(price, shares float64) mdomain.OrderbookLevel {
	return mdomain.OrderbookLevel{Price: prob.New(price), Shares: shares}
}

func book(bids, asks []mdomain.OrderbookLevel) mdomain.Orderbook {
	return mdomain.Orderbook{Bids: bids, Asks: asks, UpdatedAt: time.Now()}
}

func baseParams() Params {
	return Params{
		Spread:                       0.02,
		MinSpread:                    0.01,
		MaxSpread:                    0.08,
		OrderSize:                    50,
		MaxSingleOrderValue:          200,
		MaxPosition:                  2000,
		MaxDailyLoss:                 500,
		InventorySkewFactor:          0.2,
		CancelThreshold:              0.05,
		RepriceThreshold:             0.02,
		AntiFillBps:                  15,
		NearTouchBps:                 5,
		CooldownAfterCancel:          time.Second,
		VolatilityPauseBps:           300,
		VolatilityLookback:           30 * time.Second,
		PauseAfterVolatility:         10 * time.Second,
		HedgeTriggerShares:           50,
		HedgeOnFill:                  true,
		OrderRefresh:                 20 * time.Second,
		TopNLevels:                   5,
		MinTopDepthShares:            20,
		MinTopDepthUSD:               10,
		OrderDepthUsage:              0.5,
		LiquidityActivationMinShares: 0,
		VolEmaAlpha:                  0.2,
		DepthEmaAlpha:                0.2,
		DepthRef:                     500,
		ImbalanceWeight:              0.25,
		ImbalanceMaxSkew:             0.3,
		CalmBandBps:                  50,
		VolatileBandBps:              250,
		AdaptiveParams:               true,
	}
}

func TestClassifyProfile_AdaptiveDisabledAlwaysNormal(t *testing.T) {
	p := baseParams()
	p.AdaptiveParams = false
	if got := ClassifyProfile(0.10, 10, p.DepthRef, p); got != ProfileNormal {
		t.Fatalf("profile = %v, want NORMAL with adaptive params disabled", got)
	}
}

func TestClassifyProfile_CalmWhenLowVolAndDeepBook(t *testing.T) {
	p := baseParams()
	profile := ClassifyProfile(0.001, 600, 500, p)
	if profile != ProfileCalm {
		t.Fatalf("want CALM, got %v", profile)
	}
}

func TestClassifyProfile_VolatileWhenVolSpikes(t *testing.T) {
	p := baseParams()
	profile := ClassifyProfile(0.03, 600, 500, p)
	if profile != ProfileVolatile {
		t.Fatalf("want VOLATILE, got %v", profile)
	}
}

func TestClassifyProfile_VolatileWhenDepthCollapses(t *testing.T) {
	p := baseParams()
	profile := ClassifyProfile(0.001, 100, 500, p)
	if profile != ProfileVolatile {
		t.Fatalf("want VOLATILE on thin depth, got %v", profile)
	}
}

func TestClassifyProfile_NormalInBetween(t *testing.T) {
	p := baseParams()
	profile := ClassifyProfile(0.01, 400, 500, p)
	if profile != ProfileNormal {
		t.Fatalf("want NORMAL, got %v", profile)
	}
}

func TestEvaluateGuards_ThinLiquidityTrips(t *testing.T) {
	p := baseParams()
	ob := book([]mdomain.OrderbookLevel{lvl(0.45, 2)}, []mdomain.OrderbookLevel{lvl(0.55, 2)})
	reason := EvaluateGuards(ob, State{}, 0.5, p)
	if reason != GuardThinLiquidity {
		t.Fatalf("want THIN_LIQUIDITY, got %v", reason)
	}
}

func TestEvaluateGuards_HealthyBookPasses(t *testing.T) {
	p := baseParams()
	ob := book([]mdomain.OrderbookLevel{lvl(0.45, 100)}, []mdomain.OrderbookLevel{lvl(0.55, 100)})
	reason := EvaluateGuards(ob, State{}, 0.5, p)
	if reason != GuardNone {
		t.Fatalf("want no guard trip, got %v", reason)
	}
}

func TestEvaluateGuards_VolatilitySpikeTrips(t *testing.T) {
	p := baseParams()
	ob := book([]mdomain.OrderbookLevel{lvl(0.45, 100)}, []mdomain.OrderbookLevel{lvl(0.55, 100)})
	st := State{LastMid: 0.40, LastMidAt: time.Now()}
	reason := EvaluateGuards(ob, st, 0.50, p) // 25% move, well above 300bps
	if reason != GuardVolatilitySpike {
		t.Fatalf("want VOLATILITY_SPIKE, got %v", reason)
	}
}

func TestEvaluateGuards_StaleLastMidOutsideLookbackSkipsSpikeCheck(t *testing.T) {
	p := baseParams()
	ob := book([]mdomain.OrderbookLevel{lvl(0.45, 100)}, []mdomain.OrderbookLevel{lvl(0.55, 100)})
	st := State{LastMid: 0.40, LastMidAt: time.Now().Add(-time.Minute)}
	reason := EvaluateGuards(ob, st, 0.50, p)
	if reason == GuardVolatilitySpike {
		t.Fatalf("want no volatility-spike trip once outside lookback window, got %v", reason)
	}
}

func TestComputeQuote_NeverCrossesBook(t *testing.T) {
	p := baseParams()
	ob := book([]mdomain.OrderbookLevel{lvl(0.49, 100)}, []mdomain.OrderbookLevel{lvl(0.51, 100)})
	q, ok := ComputeQuote(ob, 0.50, ProfileNormal, 0, nil, p)
	if !ok {
		t.Fatal("want a valid quote")
	}
	if q.Bid >= 0.51-1e-6 {
		t.Fatalf("bid %.6f must stay below best ask, never crossing the book", q.Bid)
	}
	if q.Bid >= q.Ask {
		t.Fatalf("bid %.4f must be < ask %.4f", q.Bid, q.Ask)
	}
}

func TestComputeQuote_SkewedAskClampsToBestAskWithoutCrossing(t *testing.T) {
	p := baseParams()
	p.Spread, p.MinSpread, p.MaxSpread = 0.08, 0.08, 0.08
	ob := book([]mdomain.OrderbookLevel{lvl(0.49, 100)}, []mdomain.OrderbookLevel{lvl(0.51, 100)})
	// A short bias tilts the raw fair price above mid; the resulting raw ask
	// would rest worse than the current best ask, so it clamps down to it
	// while the bid (still well inside the book) is left untouched.
	q, ok := ComputeQuote(ob, 0.50, ProfileNormal, -2.5, nil, p)
	if !ok {
		t.Fatal("want a valid quote")
	}
	if q.Bid >= 0.50 {
		t.Fatalf("bid %.6f should stay near/below mid, not also clamp to the touch", q.Bid)
	}
	if diff := q.Ask - (0.51 - 1e-6); diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("ask %.6f must clamp to bestAsk-epsilon (~0.509999)", q.Ask)
	}
}

func TestComputeQuote_ClampsToValidProbabilityRange(t *testing.T) {
	p := baseParams()
	p.MinSpread, p.MaxSpread, p.Spread = 0.05, 0.05, 0.05
	// A deliberately wide book so the never-cross-the-touch clamp doesn't
	// interfere; only the floor/ceiling probability clamp is under test.
	ob := book([]mdomain.OrderbookLevel{lvl(0.001, 100)}, []mdomain.OrderbookLevel{lvl(0.99, 100)})
	q, ok := ComputeQuote(ob, 0.0098, ProfileCalm, 0, nil, p)
	if !ok {
		t.Fatal("want a valid quote even when the raw bid would fall below the probability floor")
	}
	if q.Bid < 0.01-1e-6 {
		t.Fatalf("bid %.6f must be clamped to >= 0.01", q.Bid)
	}
	if q.Bid >= q.Ask {
		t.Fatalf("bid %.4f must stay below ask %.4f after clamping", q.Bid, q.Ask)
	}
}

func TestComputeQuote_InventorySkewPushesQuoteDownWhenLong(t *testing.T) {
	p := baseParams()
	ob := book([]mdomain.OrderbookLevel{lvl(0.40, 100)}, []mdomain.OrderbookLevel{lvl(0.60, 100)})
	flat, _ := ComputeQuote(ob, 0.50, ProfileNormal, 0, nil, p)
	long, _ := ComputeQuote(ob, 0.50, ProfileNormal, 1, nil, p)
	if long.Bid >= flat.Bid {
		t.Fatalf("being long should skew the quote down: long.Bid=%.4f flat.Bid=%.4f", long.Bid, flat.Bid)
	}
}

func TestComputeQuote_ValueSignalBlendsTowardFairPrice(t *testing.T) {
	p := baseParams()
	p.UseValueSignal = true
	p.ValueSignalWeight = 0.5
	p.ValueConfidenceMin = 0.5
	ob := book([]mdomain.OrderbookLevel{lvl(0.30, 100)}, []mdomain.OrderbookLevel{lvl(0.70, 100)})
	withoutSignal, _ := ComputeQuote(ob, 0.50, ProfileNormal, 0, nil, p)
	signal := &ValueSignal{FairPrice: 0.65, Confidence: 0.9}
	withSignal, _ := ComputeQuote(ob, 0.50, ProfileNormal, 0, signal, p)
	midWithout := (withoutSignal.Bid + withoutSignal.Ask) / 2
	midWith := (withSignal.Bid + withSignal.Ask) / 2
	if midWith <= midWithout {
		t.Fatalf("value signal above mid should pull the quote up: without=%.4f with=%.4f", midWithout, midWith)
	}
}

func TestComputeQuote_ReproducesWorkedInventorySkewScenario(t *testing.T) {
	// Worked example: bestBid 0.49 size 80, bestAsk 0.51 size 20, net position
	// bias +0.4 (80/maxPosition 200), inventorySkewFactor 0.2, spread 0.02.
	// Micro-price 0.506, multiplicative fair 0.5052, bid/ask via
	// fair*(1-spread/2)/fair*(1+spread/2), ask clamped at bestAsk-epsilon.
	p := baseParams()
	p.Spread, p.MinSpread, p.MaxSpread = 0.02, 0.02, 0.02
	p.InventorySkewFactor = 0.2
	p.ImbalanceWeight = 0
	ob := book([]mdomain.OrderbookLevel{lvl(0.49, 80)}, []mdomain.OrderbookLevel{lvl(0.51, 20)})

	mid, ok := ob.MicroPrice()
	if !ok {
		t.Fatal("want a micro-price")
	}
	if got := mid.Float64(); absDiff(got, 0.506) > 1e-6 {
		t.Fatalf("want micro-price 0.506, got %.6f", got)
	}

	bias := 80.0 / 200.0
	q, ok := ComputeQuote(ob, mid.Float64(), ProfileNormal, bias, nil, p)
	if !ok {
		t.Fatal("want a valid quote")
	}
	if absDiff(q.Bid, 0.5001) > 1e-3 {
		t.Fatalf("want bid near 0.5001-0.5002, got %.6f", q.Bid)
	}
	if absDiff(q.Ask, 0.50999) > 1e-3 {
		t.Fatalf("want ask clamped near bestAsk-epsilon (~0.50999), got %.6f", q.Ask)
	}
}

func absDiff(a, b float64) float64 {
	if a < b {
		return b - a
	}
	return a - b
}

func TestEvaluateOrder_AntiFillWhenNearOppositeTouch(t *testing.T) {
	p := baseParams()
	ob := book([]mdomain.OrderbookLevel{lvl(0.49, 100)}, []mdomain.OrderbookLevel{lvl(0.50, 100)})
	order := OrderHandle{OrderSide: marketdataapp.OrderSideBid, Price: 0.4995, PlacedAt: time.Now()}
	action := EvaluateOrder(order, Quote{Bid: 0.48, Ask: 0.52}, ob, time.Now(), 0, p)
	if action != ActionAntiFill {
		t.Fatalf("want ANTI_FILL, got %v", action)
	}
}

func TestEvaluateOrder_RefreshAfterInterval(t *testing.T) {
	p := baseParams()
	p.OrderRefresh = time.Millisecond
	ob := book([]mdomain.OrderbookLevel{lvl(0.40, 100)}, []mdomain.OrderbookLevel{lvl(0.60, 100)})
	order := OrderHandle{OrderSide: marketdataapp.OrderSideBid, Price: 0.48, PlacedAt: time.Now().Add(-time.Second)}
	action := EvaluateOrder(order, Quote{Bid: 0.48, Ask: 0.52}, ob, time.Now(), 0, p)
	if action != ActionRefresh {
		t.Fatalf("want REFRESH, got %v", action)
	}
}

func TestEvaluateOrder_KeepWhenOnTargetAndFresh(t *testing.T) {
	p := baseParams()
	ob := book([]mdomain.OrderbookLevel{lvl(0.40, 100)}, []mdomain.OrderbookLevel{lvl(0.60, 100)})
	order := OrderHandle{OrderSide: marketdataapp.OrderSideBid, Price: 0.48, PlacedAt: time.Now()}
	action := EvaluateOrder(order, Quote{Bid: 0.48, Ask: 0.52}, ob, time.Now(), 0, p)
	if action != ActionKeep {
		t.Fatalf("want KEEP, got %v", action)
	}
}

func TestEvaluateOrder_RepriceWhenTargetDrifts(t *testing.T) {
	p := baseParams()
	p.RepriceThreshold = 0.01
	ob := book([]mdomain.OrderbookLevel{lvl(0.40, 100)}, []mdomain.OrderbookLevel{lvl(0.60, 100)})
	order := OrderHandle{OrderSide: marketdataapp.OrderSideBid, Price: 0.40, PlacedAt: time.Now()}
	action := EvaluateOrder(order, Quote{Bid: 0.46, Ask: 0.52}, ob, time.Now(), 0, p)
	if action != ActionReprice {
		t.Fatalf("want REPRICE, got %v", action)
	}
}

func TestSizeOrder_CapsByRemainingPositionBudget(t *testing.T) {
	p := baseParams()
	p.OrderSize = 1000
	p.MaxPosition = 100
	p.OrderDepthUsage = 0
	size := SizeOrder(0.50, 0, 1e9, ProfileNormal, false, p)
	if size > 200+1e-6 {
		t.Fatalf("size %.2f should be bounded by remaining position budget / price", size)
	}
}

func TestSizeOrder_ZeroWhenBudgetExhausted(t *testing.T) {
	p := baseParams()
	p.MaxPosition = 100
	size := SizeOrder(0.50, 100, 1e9, ProfileNormal, false, p)
	if size != 0 {
		t.Fatalf("want 0 size when position budget is exhausted, got %.2f", size)
	}
}

func TestSizeOrder_CappedByTopDepthFraction(t *testing.T) {
	p := baseParams()
	p.OrderSize = 1000
	p.MaxPosition = 1e9
	p.MaxSingleOrderValue = 1e9
	p.OrderDepthUsage = 0.1
	size := SizeOrder(0.50, 0, 100, ProfileNormal, false, p)
	if size > 10+1e-6 {
		t.Fatalf("size %.2f should be capped to 10%% of top depth (100)", size)
	}
}

func TestSizeOrder_ProfileScalesDownInVolatileRegime(t *testing.T) {
	p := baseParams()
	p.MaxPosition = 1e9
	p.MaxSingleOrderValue = 1e9
	p.OrderDepthUsage = 0
	calm := SizeOrder(0.50, 0, 1e9, ProfileCalm, false, p)
	volatile := SizeOrder(0.50, 0, 1e9, ProfileVolatile, false, p)
	if volatile >= calm {
		t.Fatalf("volatile size %.2f should be smaller than calm size %.2f", volatile, calm)
	}
}

func TestApplyFill_OpeningFromFlatRealizesNothing(t *testing.T) {
	entry, realized := ApplyFill(0, 100, 0, 0.50)
	if realized != 0 {
		t.Fatalf("opening a position must realize nothing, got %v", realized)
	}
	if entry != 0.50 {
		t.Fatalf("want entry at the fill price, got %v", entry)
	}
}

func TestApplyFill_GrowingPositionReaveragesEntry(t *testing.T) {
	entry, realized := ApplyFill(100, 200, 0.40, 0.60)
	if realized != 0 {
		t.Fatalf("growing a position must realize nothing, got %v", realized)
	}
	if absDiff(entry, 0.50) > 1e-9 {
		t.Fatalf("want re-averaged entry 0.50, got %v", entry)
	}
}

func TestApplyFill_ReducingLongRealizesAgainstEntry(t *testing.T) {
	entry, realized := ApplyFill(100, 40, 0.40, 0.30)
	if absDiff(realized, 60*(0.30-0.40)) > 1e-9 {
		t.Fatalf("want realized -6.00 on a 60-share losing close, got %v", realized)
	}
	if entry != 0.40 {
		t.Fatalf("a partial close must keep the entry, got %v", entry)
	}
}

func TestApplyFill_ReducingShortRealizesInverted(t *testing.T) {
	_, realized := ApplyFill(-100, -40, 0.60, 0.50)
	if absDiff(realized, 60*(0.60-0.50)) > 1e-9 {
		t.Fatalf("want realized +6.00 covering a short into a falling mark, got %v", realized)
	}
}

func TestApplyFill_FlipThroughFlatResetsEntry(t *testing.T) {
	entry, realized := ApplyFill(100, -50, 0.40, 0.50)
	if absDiff(realized, 100*(0.50-0.40)) > 1e-9 {
		t.Fatalf("want the whole old position realized, got %v", realized)
	}
	if entry != 0.50 {
		t.Fatalf("the flipped remainder must open at the fill price, got %v", entry)
	}
}

func TestApplyFill_FullCloseClearsEntry(t *testing.T) {
	entry, realized := ApplyFill(100, 0, 0.40, 0.45)
	if absDiff(realized, 100*(0.45-0.40)) > 1e-9 {
		t.Fatalf("want the full position realized, got %v", realized)
	}
	if entry != 0 {
		t.Fatalf("a flat position has no entry, got %v", entry)
	}
}

func TestDetectFill_TriggersHedgeAboveThreshold(t *testing.T) {
	p := baseParams()
	st := State{LastNetShares: 0}
	delta, triggers := DetectFill(st, 60, p)
	if delta != 60 {
		t.Fatalf("want delta 60, got %.2f", delta)
	}
	if !triggers {
		t.Fatal("want hedge trigger for a 60-share fill with a 50-share threshold")
	}
}

func TestDetectFill_NoTriggerBelowThreshold(t *testing.T) {
	p := baseParams()
	st := State{LastNetShares: 0}
	_, triggers := DetectFill(st, 10, p)
	if triggers {
		t.Fatal("want no hedge trigger for a 10-share fill with a 50-share threshold")
	}
}
