package domain

import (
	"github.com/shopspring/decimal"

	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
)

// ScaleLegs scales every leg's Shares down by a common factor so the largest
// leg's notional (Price*Shares) does not exceed maxPositionSize, preserving
// the relative size ratio between legs. Notionals are dollar amounts, so
// the comparison and the factor are computed in decimal. Zero-price legs
// carry no notional but are scaled by the same factor as the others; an
// empty input, a maxPositionSize <= 0, or legs that all have zero price
// return the input unchanged. If every leg already fits, the input is
// returned unscaled.
func ScaleLegs(legs []detectdomain.Leg, maxPositionSize float64) []detectdomain.Leg {
	if len(legs) == 0 || maxPositionSize <= 0 {
		return legs
	}

	maxNotional := decimal.NewFromFloat(maxPositionSize)
	largest := decimal.Zero
	for _, l := range legs {
		notional := decimal.NewFromFloat(l.Price).Mul(decimal.NewFromFloat(l.Shares))
		if notional.GreaterThan(largest) {
			largest = notional
		}
	}
	if largest.IsZero() || largest.LessThanOrEqual(maxNotional) {
		return legs
	}

	factor, _ := maxNotional.Div(largest).Float64()
	scaled := make([]detectdomain.Leg, len(legs))
	for i, l := range legs {
		scaled[i] = l
		scaled[i].Shares = l.Shares * factor
	}
	return scaled
}

// TradeStatus is the outcome of one Executor.Execute* call.
type TradeStatus string

const (
	StatusPending  TradeStatus = "PENDING"
	StatusExecuted TradeStatus = "EXECUTED"
	StatusFailed   TradeStatus = "FAILED"
)

// Trade records one submitted leg's venue-assigned identity and fill price.
type Trade struct {
	Venue  string
	Hash   string
	Side   detectdomain.Side
	Price  float64
	Shares float64
}

// ExecutionResult is the record kept for every Execute* call, regardless of
// outcome.
type ExecutionResult struct {
	Status         TradeStatus
	Trades         []Trade
	TotalCost      float64
	ExpectedProfit float64
	Err            error
}
