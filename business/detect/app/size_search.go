package app

import (
	"math"

	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
)

// shrinkFactor and shrinkAttempts implement the size-search pattern shared
// by IntraVenue, MultiOutcome, and CrossVenue: start from a
// depth-derived size, then shrink by 0.6 up to 4 times, keeping whichever
// size produced the best edge.
const (
	shrinkFactor   = 0.6
	shrinkAttempts = 4
)

// candidateSizes returns the sequence of sizes to try, starting from
// start and shrinking shrinkAttempts times. Sizes are whole shares,
// floored at every step.
func candidateSizes(start float64) []float64 {
	sizes := make([]float64, 0, shrinkAttempts+1)
	size := math.Floor(start)
	for i := 0; i <= shrinkAttempts; i++ {
		if size < 1 {
			break
		}
		sizes = append(sizes, size)
		size = math.Floor(size * shrinkFactor)
	}
	return sizes
}

// startSize applies the depthUsage x min(depth) cap and the recommended
// share ceiling, shared by every detector
// that runs a shrink search over a pair or group of book sides.
func startSize(depthUsage float64, maxShares float64, sides ...[]mdomain.OrderbookLevel) float64 {
	if len(sides) == 0 {
		return 0
	}
	minDepth := sumShares(sides[0])
	for _, s := range sides[1:] {
		if d := sumShares(s); d < minDepth {
			minDepth = d
		}
	}
	size := math.Floor(depthUsage * minDepth)
	if size > maxShares {
		size = maxShares
	}
	return size
}
