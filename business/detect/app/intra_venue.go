package app

import (
	"time"

	"github.com/predikt/arb-agent/business/detect/domain"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
	vwap "github.com/predikt/arb-agent/business/vwap/domain"
)

// IntraVenue finds same-venue YES+NO mispricings: paying under $1 to own
// both sides (BUY_BOTH) or collecting over $1 to short both (SELL_BOTH,
// gated by AllowShorting).
type IntraVenue struct {
	DepthUsage           float64
	MaxRecommendedShares float64
	MaxVwapDeviationBps  float64
	MaxVwapLevels        int
	RecheckDeviationBps  float64
	MinNotionalUSD       float64
	MinProfitUSD         float64
	MinDepthUSD          float64
	AllowShorting        bool
	TTL                  time.Duration
}

// Scan implements domain.Detector.
func (d *IntraVenue) Scan(markets []mdomain.Market, lookup domain.BookLookup) []domain.Opportunity {
	now := time.Now()
	var out []domain.Opportunity

	for _, pair := range groupYesNoPairs(markets) {
		yesBook, ok := lookup(pair.Yes.Venue, pair.Yes.TokenID)
		if !ok {
			continue
		}
		noBook, ok := lookup(pair.No.Venue, pair.No.TokenID)
		if !ok {
			continue
		}

		if opp, ok := d.tryBuyBoth(pair, yesBook, noBook, now); ok {
			out = append(out, opp)
		}
		if d.AllowShorting {
			if opp, ok := d.trySellBoth(pair, yesBook, noBook, now); ok {
				out = append(out, opp)
			}
		}
	}

	sortByEdgeDesc(out)
	return out
}

func (d *IntraVenue) tryBuyBoth(pair yesNoPair, yesBook, noBook mdomain.Orderbook, now time.Time) (domain.Opportunity, bool) {
	start := startSize(d.DepthUsage, d.MaxRecommendedShares, yesBook.Asks, noBook.Asks)
	if start <= 0 {
		return domain.Opportunity{}, false
	}

	var best *vwapPairFill
	for _, n := range candidateSizes(start) {
		yesFill := vwap.EstimateBuy(yesBook.Asks, n, pair.Yes.FeeRateBps, vwap.FeeCurve{}, 0)
		noFill := vwap.EstimateBuy(noBook.Asks, n, pair.No.FeeRateBps, vwap.FeeCurve{}, 0)
		if yesFill == nil || noFill == nil {
			continue
		}
		if !d.withinLevelLimits(yesFill, noFill) {
			continue
		}
		bestYesAsk, _ := yesBook.BestAsk()
		bestNoAsk, _ := noBook.BestAsk()
		if !d.withinDeviation(yesFill.AvgPrice, bestYesAsk.Price.Float64()) ||
			!d.withinDeviation(noFill.AvgPrice, bestNoAsk.Price.Float64()) {
			continue
		}
		perShareCost := yesFill.AvgAllIn + noFill.AvgAllIn
		if perShareCost >= 1 {
			continue
		}
		edge := 1 - perShareCost
		candidate := &vwapPairFill{size: n, perShareCost: perShareCost, edge: edge, yes: yesFill, no: noFill}
		if best == nil || candidate.edge > best.edge {
			best = candidate
		}
	}
	if best == nil {
		return domain.Opportunity{}, false
	}

	bestYesAsk, _ := yesBook.BestAsk()
	bestNoAsk, _ := noBook.BestAsk()
	if d.recheckExceeded(best.yes.AvgPrice, best.no.AvgPrice, bestYesAsk.Price.Float64(), bestNoAsk.Price.Float64()) {
		return domain.Opportunity{}, false
	}

	notional := best.yes.TotalAllIn + best.no.TotalAllIn
	profit := best.edge * best.size
	depth := sumShares(yesBook.Asks) + sumShares(noBook.Asks)
	if notional < d.MinNotionalUSD || profit < d.MinProfitUSD || depth < d.MinDepthUSD {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		Kind:         domain.KindIntraVenue,
		Key:          domain.NewKey(domain.KindIntraVenue, pair.Key),
		DetectedAt:   now,
		ExpiresAt:    now.Add(d.TTL),
		RiskLevel:    riskFromConfidence(0.5 + minF(best.edge, 0.5)),
		Confidence:   minF(0.5+best.edge, 1),
		Edge:         best.edge,
		MarketID:     pair.Key,
		YesToken:     pair.Yes.TokenID,
		NoToken:      pair.No.TokenID,
		Action:       domain.ActionBuyBoth,
		Size:         best.size,
		PerShareCost: best.perShareCost,
	}, true
}

func (d *IntraVenue) trySellBoth(pair yesNoPair, yesBook, noBook mdomain.Orderbook, now time.Time) (domain.Opportunity, bool) {
	start := startSize(d.DepthUsage, d.MaxRecommendedShares, yesBook.Bids, noBook.Bids)
	if start <= 0 {
		return domain.Opportunity{}, false
	}

	var best *vwapPairFill
	for _, n := range candidateSizes(start) {
		yesFill := vwap.EstimateSell(yesBook.Bids, n, pair.Yes.FeeRateBps, vwap.FeeCurve{}, 0)
		noFill := vwap.EstimateSell(noBook.Bids, n, pair.No.FeeRateBps, vwap.FeeCurve{}, 0)
		if yesFill == nil || noFill == nil {
			continue
		}
		if !d.withinLevelLimits(yesFill, noFill) {
			continue
		}
		bestYesBid, _ := yesBook.BestBid()
		bestNoBid, _ := noBook.BestBid()
		if !d.withinDeviation(yesFill.AvgPrice, bestYesBid.Price.Float64()) ||
			!d.withinDeviation(noFill.AvgPrice, bestNoBid.Price.Float64()) {
			continue
		}
		perShareProceeds := yesFill.AvgAllIn + noFill.AvgAllIn
		if perShareProceeds <= 1 {
			continue
		}
		edge := perShareProceeds - 1
		candidate := &vwapPairFill{size: n, perShareCost: perShareProceeds, edge: edge, yes: yesFill, no: noFill}
		if best == nil || candidate.edge > best.edge {
			best = candidate
		}
	}
	if best == nil {
		return domain.Opportunity{}, false
	}

	bestYesBid, _ := yesBook.BestBid()
	bestNoBid, _ := noBook.BestBid()
	if d.recheckExceeded(best.yes.AvgPrice, best.no.AvgPrice, bestYesBid.Price.Float64(), bestNoBid.Price.Float64()) {
		return domain.Opportunity{}, false
	}

	notional := best.yes.TotalAllIn + best.no.TotalAllIn
	profit := best.edge * best.size
	depth := sumShares(yesBook.Bids) + sumShares(noBook.Bids)
	if notional < d.MinNotionalUSD || profit < d.MinProfitUSD || depth < d.MinDepthUSD {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		Kind:         domain.KindIntraVenue,
		Key:          domain.NewKey(domain.KindIntraVenue, pair.Key),
		DetectedAt:   now,
		ExpiresAt:    now.Add(d.TTL),
		RiskLevel:    riskFromConfidence(0.5 + minF(best.edge, 0.5)),
		Confidence:   minF(0.5+best.edge, 1),
		Edge:         best.edge,
		MarketID:     pair.Key,
		YesToken:     pair.Yes.TokenID,
		NoToken:      pair.No.TokenID,
		Action:       domain.ActionSellBoth,
		Size:         best.size,
		PerShareCost: best.perShareCost,
	}, true
}

type vwapPairFill struct {
	size         float64
	perShareCost float64
	edge         float64
	yes, no      *vwap.Fill
}

func (d *IntraVenue) withinLevelLimits(fills ...*vwap.Fill) bool {
	if d.MaxVwapLevels <= 0 {
		return true
	}
	for _, f := range fills {
		if f.LevelsUsed > d.MaxVwapLevels {
			return false
		}
	}
	return true
}

func (d *IntraVenue) withinDeviation(avgPrice, bestPrice float64) bool {
	if d.MaxVwapDeviationBps <= 0 || bestPrice <= 0 {
		return true
	}
	deviationBps := absF(avgPrice-bestPrice) / bestPrice * 10000
	return deviationBps <= d.MaxVwapDeviationBps
}

// recheckExceeded is a final, combined-leg check applied to the chosen size
// after the shrink search settles: if the realized VWAP price of both legs
// together has drifted from the current top-of-book reference by more than
// RecheckDeviationBps, the opportunity is dropped outright rather than
// re-sized. A drifted book is a hard reject, not a warning.
func (d *IntraVenue) recheckExceeded(yesAvgPrice, noAvgPrice, bestYesPrice, bestNoPrice float64) bool {
	if d.RecheckDeviationBps <= 0 {
		return false
	}
	reference := bestYesPrice + bestNoPrice
	if reference <= 0 {
		return false
	}
	combined := yesAvgPrice + noAvgPrice
	deviationBps := absF(combined-reference) / reference * 10000
	return deviationBps > d.RecheckDeviationBps
}
