// Package domain implements the VWAP engine: pure, I/O-free functions that
// walk one side of an order book to price a fill, including a per-level fee
// curve and a synthetic slippage buffer. Every function here is
// deterministic given its inputs — no clock, no network, no shared state.
package domain

import (
	"math"

	"github.com/predikt/arb-agent/business/marketdata/domain"
)

// Fill is the result of walking a book side to fill a target share count.
type Fill struct {
	AvgPrice      float64
	TotalNotional float64
	TotalFees     float64
	TotalSlippage float64
	TotalAllIn    float64
	AvgAllIn      float64
	LevelsUsed    int
	Shares        float64
}

// FeeCurve is the optional curved component of the per-level fee:
// price * (feeBps/10000 + curveRate * filledSoFar^curveExp). The zero value
// disables the curve, leaving a flat feeBps.
type FeeCurve struct {
	CurveRate float64
	CurveExp  float64
}

// sumDepth sums the share quantities across all levels on a side.
func sumDepth(levels []domain.OrderbookLevel) float64 {
	var total float64
	for _, l := range levels {
		total += l.Shares
	}
	return total
}

// SumDepth sums the share quantities across all levels on a side.
func SumDepth(levels []domain.OrderbookLevel) float64 {
	return sumDepth(levels)
}

// levelFee returns the per-share fee rate for a level given how many shares
// have already been filled before it on this walk.
func levelFee(price float64, feeBps float64, curve FeeCurve, filledSoFar float64) float64 {
	rate := feeBps / 10000
	if curve.CurveRate != 0 {
		rate += curve.CurveRate * math.Pow(filledSoFar, curve.CurveExp)
	}
	return price * rate
}

// estimateWalk is shared by estimateBuy/estimateSell: levels must already be
// in the order they should be consumed (asks ascending, bids descending).
func estimateWalk(levels []domain.OrderbookLevel, shares float64, feeBps float64, curve FeeCurve, slippageBps float64) *Fill {
	if shares <= 0 || len(levels) == 0 {
		return nil
	}
	if sumDepth(levels) < shares {
		return nil
	}

	remaining := shares
	var filled, notional, fees, slippage float64
	levelsUsed := 0

	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		take := lvl.Shares
		if take > remaining {
			take = remaining
		}
		price := lvl.Price.Float64()

		notional += take * price
		fees += take * levelFee(price, feeBps, curve, filled)
		slippage += take * price * (slippageBps / 10000)

		filled += take
		remaining -= take
		levelsUsed++
	}

	if remaining > 1e-9 {
		return nil
	}

	allIn := notional + fees + slippage
	return &Fill{
		AvgPrice:      notional / filled,
		TotalNotional: notional,
		TotalFees:     fees,
		TotalSlippage: slippage,
		TotalAllIn:    allIn,
		AvgAllIn:      allIn / filled,
		LevelsUsed:    levelsUsed,
		Shares:        filled,
	}
}

// EstimateBuy walks asks (ascending) to fill shares, returning nil if the
// book lacks sufficient depth.
func EstimateBuy(asks []domain.OrderbookLevel, shares float64, feeBps float64, curve FeeCurve, slippageBps float64) *Fill {
	return estimateWalk(asks, shares, feeBps, curve, slippageBps)
}

// EstimateSell walks bids (descending) to fill shares, symmetric to
// EstimateBuy on the sell side.
func EstimateSell(bids []domain.OrderbookLevel, shares float64, feeBps float64, curve FeeCurve, slippageBps float64) *Fill {
	return estimateWalk(bids, shares, feeBps, curve, slippageBps)
}

// MaxBuySharesForLimit returns the largest integer n for which
// EstimateBuy(asks, n, ...).AvgPrice <= bestAsk*(1+maxDeviationBps/10000),
// walking levels rather than binary-searching since depth at a given price
// band is cheap to re-sum and n is bounded by total visible depth.
func MaxBuySharesForLimit(asks []domain.OrderbookLevel, bestAsk float64, maxDeviationBps float64, feeBps float64, curve FeeCurve, slippageBps float64) float64 {
	if len(asks) == 0 || bestAsk <= 0 {
		return 0
	}
	limit := bestAsk * (1 + maxDeviationBps/10000)
	maxShares := sumDepth(asks)

	var best float64
	for n := 1.0; n <= maxShares; n++ {
		fill := EstimateBuy(asks, n, feeBps, curve, slippageBps)
		if fill == nil || fill.AvgPrice > limit {
			break
		}
		best = n
	}
	return best
}

// MaxSellSharesForLimit is the sell-side symmetric counterpart, bounding the
// walk so the realized average proceeds never fall more than
// maxDeviationBps below the best bid.
func MaxSellSharesForLimit(bids []domain.OrderbookLevel, bestBid float64, maxDeviationBps float64, feeBps float64, curve FeeCurve, slippageBps float64) float64 {
	if len(bids) == 0 || bestBid <= 0 {
		return 0
	}
	limit := bestBid * (1 - maxDeviationBps/10000)
	maxShares := sumDepth(bids)

	var best float64
	for n := 1.0; n <= maxShares; n++ {
		fill := EstimateSell(bids, n, feeBps, curve, slippageBps)
		if fill == nil || fill.AvgPrice < limit {
			break
		}
		best = n
	}
	return best
}
