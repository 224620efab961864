package app

import (
	"time"

	"github.com/predikt/arb-agent/business/detect/domain"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
	vwap "github.com/predikt/arb-agent/business/vwap/domain"
)

// MultiOutcome finds conditions whose outcome asks, bought in equal size,
// sum to under $1 of combined all-in cost.
type MultiOutcome struct {
	MinOutcomes int
	MaxShares   float64
	DepthUsage  float64
	TTL         time.Duration
}

// Scan implements domain.Detector.
func (d *MultiOutcome) Scan(markets []mdomain.Market, lookup domain.BookLookup) []domain.Opportunity {
	now := time.Now()
	var out []domain.Opportunity

	for conditionID, group := range groupByCondition(markets) {
		if len(group) < d.MinOutcomes {
			continue
		}

		books := make([]mdomain.Orderbook, 0, len(group))
		ok := true
		for _, m := range group {
			ob, found := lookup(m.Venue, m.TokenID)
			if !found || len(ob.Asks) == 0 {
				ok = false
				break
			}
			books = append(books, ob)
		}
		if !ok {
			continue
		}

		sides := make([][]mdomain.OrderbookLevel, len(books))
		for i, ob := range books {
			sides[i] = ob.Asks
		}
		start := startSize(d.DepthUsage, d.MaxShares, sides...)
		if start <= 0 {
			continue
		}

		var bestSize, bestEdge float64
		var bestFills []*vwap.Fill
		found := false
		for _, n := range candidateSizes(start) {
			fills := make([]*vwap.Fill, 0, len(group))
			complete := true
			var sumAllIn float64
			for i, m := range group {
				f := vwap.EstimateBuy(books[i].Asks, n, m.FeeRateBps, vwap.FeeCurve{}, 0)
				if f == nil {
					complete = false
					break
				}
				fills = append(fills, f)
				sumAllIn += f.TotalAllIn
			}
			if !complete {
				continue
			}
			avgAllIn := sumAllIn / n
			if avgAllIn >= 1 {
				continue
			}
			edge := 1 - avgAllIn
			if !found || edge > bestEdge {
				found, bestSize, bestEdge, bestFills = true, n, edge, fills
			}
		}
		if !found {
			continue
		}

		legs := make([]domain.Leg, 0, len(group))
		for i, m := range group {
			legs = append(legs, domain.Leg{
				Venue:   string(m.Venue),
				TokenID: m.TokenID,
				Side:    domain.SideBuy,
				Price:   bestFills[i].AvgPrice,
				Shares:  bestSize,
			})
		}

		out = append(out, domain.Opportunity{
			Kind:       domain.KindMultiOutcome,
			Key:        domain.NewKey(domain.KindMultiOutcome, conditionID),
			DetectedAt: now,
			ExpiresAt:  now.Add(d.TTL),
			RiskLevel:  riskFromConfidence(0.5 + minF(bestEdge, 0.5)),
			Confidence: minF(0.5+bestEdge, 1),
			Edge:       bestEdge,
			GroupID:    conditionID,
			Action:     domain.ActionBuyAll,
			Size:       bestSize,
			Legs:       legs,
		})
	}

	sortByEdgeDesc(out)
	return out
}
