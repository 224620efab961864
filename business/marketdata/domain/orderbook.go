package domain

import (
	"sort"
	"time"

	"github.com/predikt/arb-agent/internal/apperror"
	"github.com/predikt/arb-agent/internal/prob"
)

// OrderbookLevel is one price/size rung of a book side. Price is a
// probability in (0,1); shares is a non-negative real (venues may report
// fractional shares).
type OrderbookLevel struct {
	Price  prob.Probability
	Shares float64
}

// Orderbook is the merged, venue-normalized view of one token's book.
// Invariants (enforced by Normalize, never by the zero value): bids sorted
// descending, asks ascending (levels at an equal price are not merged),
// zero-size levels absent, best bid < best ask.
type Orderbook struct {
	TokenID   string
	Bids      []OrderbookLevel
	Asks      []OrderbookLevel
	UpdatedAt time.Time
}

// BestBid returns the top bid level, or false if the side is empty.
func (ob Orderbook) BestBid() (OrderbookLevel, bool) {
	if len(ob.Bids) == 0 {
		return OrderbookLevel{}, false
	}
	return ob.Bids[0], true
}

// BestAsk returns the top ask level, or false if the side is empty.
func (ob Orderbook) BestAsk() (OrderbookLevel, bool) {
	if len(ob.Asks) == 0 {
		return OrderbookLevel{}, false
	}
	return ob.Asks[0], true
}

// Spread returns bestAsk-bestBid, or false if either side is empty.
func (ob Orderbook) Spread() (float64, bool) {
	bid, okB := ob.BestBid()
	ask, okA := ob.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return ask.Price.Float64() - bid.Price.Float64(), true
}

// MidPrice returns the arithmetic midpoint of best bid/ask.
func (ob Orderbook) MidPrice() (prob.Probability, bool) {
	bid, okB := ob.BestBid()
	ask, okA := ob.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return prob.Mid(bid.Price, ask.Price), true
}

// MicroPrice returns the size-weighted midpoint of top of book: a larger
// resting size on one side pulls the micro-price toward the other side's
// price, since that side is more likely to be walked through first.
func (ob Orderbook) MicroPrice() (prob.Probability, bool) {
	bid, okB := ob.BestBid()
	ask, okA := ob.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	total := bid.Shares + ask.Shares
	if total <= 0 {
		return prob.Mid(bid.Price, ask.Price), true
	}
	micro := (ask.Price.Float64()*bid.Shares + bid.Price.Float64()*ask.Shares) / total
	return prob.New(micro), true
}

// DepthWeightedMid returns a fair-value estimate built from the full depth
// of both sides rather than top of book alone: each side's volume-weighted
// average price stands in for that side's "price", combined with the same
// opposite-side-size weighting MicroPrice uses. A sloped book (thin top,
// deep behind it, or vice versa) pulls this away from MicroPrice even when
// the two touch prices alone would agree.
func (ob Orderbook) DepthWeightedMid() (prob.Probability, bool) {
	bidDepth := sumLevelShares(ob.Bids)
	askDepth := sumLevelShares(ob.Asks)
	if bidDepth <= 0 || askDepth <= 0 {
		return 0, false
	}
	bidVWAP := vwapPrice(ob.Bids, bidDepth)
	askVWAP := vwapPrice(ob.Asks, askDepth)
	fair := (askVWAP*bidDepth + bidVWAP*askDepth) / (bidDepth + askDepth)
	return prob.New(fair), true
}

func sumLevelShares(levels []OrderbookLevel) float64 {
	var total float64
	for _, l := range levels {
		total += l.Shares
	}
	return total
}

func vwapPrice(levels []OrderbookLevel, depth float64) float64 {
	var notional float64
	for _, l := range levels {
		notional += l.Price.Float64() * l.Shares
	}
	return notional / depth
}

// IsStale reports whether the book is older than maxAge relative to now.
func (ob Orderbook) IsStale(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(ob.UpdatedAt) > maxAge
}

// sortLevels sorts bids descending and asks ascending by price.
func sortLevels(bids, asks []OrderbookLevel) {
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
}

// Normalize builds a canonical Orderbook from raw, possibly out-of-order,
// possibly zero-size levels, dropping zero-size rungs and sorting each
// side. It rejects (returns an InvariantError) books whose top bid is not
// strictly below the top ask — the one invariant no venue payload may
// violate and still be quoted against.
func Normalize(tokenID string, rawBids, rawAsks []OrderbookLevel, updatedAt time.Time) (Orderbook, error) {
	bids := make([]OrderbookLevel, 0, len(rawBids))
	for _, l := range rawBids {
		if l.Shares > 0 && prob.Valid(l.Price.Float64()) {
			bids = append(bids, l)
		}
	}
	asks := make([]OrderbookLevel, 0, len(rawAsks))
	for _, l := range rawAsks {
		if l.Shares > 0 && prob.Valid(l.Price.Float64()) {
			asks = append(asks, l)
		}
	}
	sortLevels(bids, asks)

	ob := Orderbook{TokenID: tokenID, Bids: bids, Asks: asks, UpdatedAt: updatedAt}

	if len(bids) > 0 && len(asks) > 0 && bids[0].Price >= asks[0].Price {
		return Orderbook{}, apperror.New(apperror.CodeInvariantViolation,
			apperror.WithContext("best bid >= best ask for token "+tokenID))
	}
	return ob, nil
}
