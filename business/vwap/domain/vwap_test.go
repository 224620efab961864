package domain

import (
	"testing"

	"github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/prob"
)

func lvl(price, shares float64) domain.OrderbookLevel {
	return domain.OrderbookLevel{Price: prob.New(price), Shares: shares}
}

func TestEstimateBuy_SingleLevelNoFeesNoSlippage(t *testing.T) {
	asks := []domain.OrderbookLevel{lvl(0.40, 100)}
	fill := EstimateBuy(asks, 50, 0, FeeCurve{}, 0)
	if fill == nil {
		t.Fatal("expected fill, got nil")
	}
	if fill.AvgPrice != 0.40 {
		t.Fatalf("avgPrice = %v, want 0.40", fill.AvgPrice)
	}
	if fill.AvgAllIn != fill.AvgPrice {
		t.Fatalf("avgAllIn = %v, want equal to avgPrice %v with zero fees/slippage", fill.AvgAllIn, fill.AvgPrice)
	}
	if fill.LevelsUsed != 1 {
		t.Fatalf("levelsUsed = %d, want 1", fill.LevelsUsed)
	}
}

func TestEstimateBuy_WalksMultipleLevelsAscending(t *testing.T) {
	asks := []domain.OrderbookLevel{lvl(0.40, 50), lvl(0.42, 50)}
	fill := EstimateBuy(asks, 75, 0, FeeCurve{}, 0)
	if fill == nil {
		t.Fatal("expected fill, got nil")
	}
	wantNotional := 50*0.40 + 25*0.42
	if abs(fill.TotalNotional-wantNotional) > 1e-9 {
		t.Fatalf("totalNotional = %v, want %v", fill.TotalNotional, wantNotional)
	}
	if fill.AvgPrice < asks[0].Price.Float64() {
		t.Fatalf("avgPrice %v must be >= best ask %v", fill.AvgPrice, asks[0].Price.Float64())
	}
	if fill.LevelsUsed != 2 {
		t.Fatalf("levelsUsed = %d, want 2", fill.LevelsUsed)
	}
}

func TestEstimateBuy_InsufficientDepthReturnsNil(t *testing.T) {
	asks := []domain.OrderbookLevel{lvl(0.40, 10)}
	if fill := EstimateBuy(asks, 50, 0, FeeCurve{}, 0); fill != nil {
		t.Fatalf("expected nil for insufficient depth, got %+v", fill)
	}
}

func TestEstimateBuy_EmptyBookReturnsNil(t *testing.T) {
	if fill := EstimateBuy(nil, 10, 0, FeeCurve{}, 0); fill != nil {
		t.Fatalf("expected nil for empty asks, got %+v", fill)
	}
}

func TestEstimateBuy_ZeroOrNegativeSharesReturnsNil(t *testing.T) {
	asks := []domain.OrderbookLevel{lvl(0.40, 10)}
	if fill := EstimateBuy(asks, 0, 0, FeeCurve{}, 0); fill != nil {
		t.Fatalf("expected nil for zero shares, got %+v", fill)
	}
	if fill := EstimateBuy(asks, -5, 0, FeeCurve{}, 0); fill != nil {
		t.Fatalf("expected nil for negative shares, got %+v", fill)
	}
}

func TestEstimateBuy_FeesAndSlippageAddToAllIn(t *testing.T) {
	asks := []domain.OrderbookLevel{lvl(0.50, 100)}
	fill := EstimateBuy(asks, 10, 100, FeeCurve{}, 50) // 1% fee, 0.5% slippage
	if fill == nil {
		t.Fatal("expected fill")
	}
	wantFees := 10 * 0.50 * 0.01
	wantSlippage := 10 * 0.50 * 0.005
	if abs(fill.TotalFees-wantFees) > 1e-9 {
		t.Fatalf("totalFees = %v, want %v", fill.TotalFees, wantFees)
	}
	if abs(fill.TotalSlippage-wantSlippage) > 1e-9 {
		t.Fatalf("totalSlippage = %v, want %v", fill.TotalSlippage, wantSlippage)
	}
	wantAllIn := fill.TotalNotional + wantFees + wantSlippage
	if abs(fill.TotalAllIn-wantAllIn) > 1e-9 {
		t.Fatalf("totalAllIn = %v, want %v", fill.TotalAllIn, wantAllIn)
	}
}

func TestEstimateSell_WalksBidsDescending(t *testing.T) {
	bids := []domain.OrderbookLevel{lvl(0.60, 50), lvl(0.58, 50)}
	fill := EstimateSell(bids, 75, 0, FeeCurve{}, 0)
	if fill == nil {
		t.Fatal("expected fill")
	}
	if fill.AvgPrice > bids[0].Price.Float64() {
		t.Fatalf("avgPrice %v must be <= best bid %v", fill.AvgPrice, bids[0].Price.Float64())
	}
}

func TestMaxBuySharesForLimit_RespectsDeviation(t *testing.T) {
	asks := []domain.OrderbookLevel{lvl(0.40, 10), lvl(0.50, 10), lvl(0.80, 10)}
	// 25% max deviation over best ask 0.40 => limit 0.50
	n := MaxBuySharesForLimit(asks, 0.40, 2500, 0, FeeCurve{}, 0)
	// avg at n=23 is (4+5+2.4)/23 ≈ 0.4957 <= 0.50; at n=24 it is 12.2/24 ≈ 0.5083.
	if n != 23 {
		t.Fatalf("maxShares = %v, want 23 (avg 0.4957 at 23, 0.5083 at 24 against limit 0.50)", n)
	}
}

func TestMaxBuySharesForLimit_EmptyBookReturnsZero(t *testing.T) {
	if n := MaxBuySharesForLimit(nil, 0.40, 100, 0, FeeCurve{}, 0); n != 0 {
		t.Fatalf("maxShares = %v, want 0", n)
	}
}

func TestSumDepth(t *testing.T) {
	levels := []domain.OrderbookLevel{lvl(0.1, 10), lvl(0.2, 20)}
	if got := SumDepth(levels); got != 30 {
		t.Fatalf("sumDepth = %v, want 30", got)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
