package app

import (
	"strconv"
	"time"

	"github.com/predikt/arb-agent/business/detect/domain"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
)

// referenceDepth and referenceOrderFull scale the liquidity and order-count
// confidence heuristics into [0,1]; both are book-derived proxies.
// referenceDepth also scales the optional volume24h metadata value, since
// the normalized Market shape carries no typed 24h statistics field.
const (
	referenceDepth     = 5000.0
	referenceOrderFull = 20.0
	tailClipLow        = 0.10
	tailClipHigh       = 0.90
)

// ValueMismatch flags a token whose micro-price diverges from a
// tail-clipped fair-value estimate by more than tradingCost plus the
// edge threshold.
type ValueMismatch struct {
	EdgeThreshold       float64
	ConfidenceThreshold float64
	TTL                 time.Duration
}

// NewValueMismatch builds a ValueMismatch detector.
func NewValueMismatch(edgeThreshold, confidenceThreshold float64, ttl time.Duration) *ValueMismatch {
	return &ValueMismatch{EdgeThreshold: edgeThreshold, ConfidenceThreshold: confidenceThreshold, TTL: ttl}
}

// Scan implements domain.Detector.
func (d *ValueMismatch) Scan(markets []mdomain.Market, lookup domain.BookLookup) []domain.Opportunity {
	now := time.Now()
	var out []domain.Opportunity

	for _, m := range markets {
		ob, ok := lookup(m.Venue, m.TokenID)
		if !ok {
			continue
		}
		mid, ok := ob.MicroPrice()
		if !ok {
			continue
		}
		midF := mid.Float64()

		fairEst, ok := ob.DepthWeightedMid()
		if !ok {
			continue
		}
		fair := fairEst.Float64()
		if fair < tailClipLow {
			fair = tailClipLow
		} else if fair > tailClipHigh {
			fair = tailClipHigh
		}

		tradingCost := m.FeeRateBps / 10000
		edge := absF(fair-midF)/midF - tradingCost
		if edge < d.EdgeThreshold {
			continue
		}

		confidence := d.confidence(ob, m)
		if confidence < d.ConfidenceThreshold {
			continue
		}

		side := domain.SideBuy
		if midF > fair {
			side = domain.SideSell
		}

		out = append(out, domain.Opportunity{
			Kind:       domain.KindValueMismatch,
			Key:        domain.NewKey(domain.KindValueMismatch, m.Key()),
			DetectedAt: now,
			ExpiresAt:  now.Add(d.TTL),
			RiskLevel:  riskFromConfidence(confidence),
			Confidence: confidence,
			Edge:       edge,
			TokenID:    m.TokenID,
			Side:       side,
			FairPrice:  fair,
		})
	}

	sortByEdgeDesc(out)
	return out
}

// confidence averages four [0,1]-mapped heuristics: order count, spread
// width, book-depth liquidity, and (when the venue reports it) 24h volume.
func (d *ValueMismatch) confidence(ob mdomain.Orderbook, m mdomain.Market) float64 {
	orderCount := float64(len(ob.Bids) + len(ob.Asks))
	orderCountScore := minF(orderCount/referenceOrderFull, 1)

	spreadScore := 0.5
	if spread, ok := ob.Spread(); ok {
		spreadScore = 1 - minF(spread/0.10, 1)
	}

	depth := sumShares(ob.Bids) + sumShares(ob.Asks)
	liquidityScore := minF(depth/referenceDepth, 1)

	volumeScore := 0.5
	if raw, ok := m.Metadata["volume24h"]; ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			volumeScore = minF(v/referenceDepth, 1)
		}
	}

	return (orderCountScore + spreadScore + liquidityScore + volumeScore) / 4
}

func sumShares(levels []mdomain.OrderbookLevel) float64 {
	var total float64
	for _, l := range levels {
		total += l.Shares
	}
	return total
}

func riskFromConfidence(c float64) domain.RiskLevel {
	switch {
	case c >= 0.75:
		return domain.RiskLow
	case c >= 0.5:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
