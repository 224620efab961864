package app

import (
	"time"

	"github.com/predikt/arb-agent/business/detect/domain"
	mappingdomain "github.com/predikt/arb-agent/business/mapping/domain"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
	vwap "github.com/predikt/arb-agent/business/vwap/domain"
)

// CrossVenue finds mispricings between a Predict market and its peer-venue
// counterpart, matched by the mapping table or, failing that, textual
// similarity.
type CrossVenue struct {
	Mapping             MappingResolver
	MinSimilarity       float64
	MinProfit           float64 // per-share edge floor after transfer cost
	TransferCost        float64
	SlippageBps         float64
	MaxShares           float64
	DepthLevels         int // book levels considered per side, 0 = all
	DepthUsage          float64
	RecheckDeviationBps float64
	AllowShorting       bool
	TTL                 time.Duration
}

// topLevels bounds a book side to the detector's depth-level window.
func (d *CrossVenue) topLevels(levels []mdomain.OrderbookLevel) []mdomain.OrderbookLevel {
	if d.DepthLevels <= 0 || len(levels) <= d.DepthLevels {
		return levels
	}
	return levels[:d.DepthLevels]
}

func marketsForVenue(markets []mdomain.Market, venue mdomain.Venue) []mdomain.Market {
	out := make([]mdomain.Market, 0, len(markets))
	for _, m := range markets {
		if m.Venue == venue {
			out = append(out, m)
		}
	}
	return out
}

func findByTokenID(markets []mdomain.Market, tokenID string) (mdomain.Market, bool) {
	for _, m := range markets {
		if m.TokenID == tokenID {
			return m, true
		}
	}
	return mdomain.Market{}, false
}

// Scan implements domain.Detector. Only venue-pairs that include Predict
// can resolve through the mapping table, since MappingEntry links a
// Predict market to each peer's tokens, not peer-to-peer; the
// Polymarket-Opinion pair relies on the textual fallback alone.
func (d *CrossVenue) Scan(markets []mdomain.Market, lookup domain.BookLookup) []domain.Opportunity {
	now := time.Now()
	var out []domain.Opportunity

	predictPairs := groupYesNoPairs(marketsForVenue(markets, mdomain.VenuePredict))
	polyMarkets := marketsForVenue(markets, mdomain.VenuePolymarket)
	opinionMarkets := marketsForVenue(markets, mdomain.VenueOpinion)
	polyPairs := groupYesNoPairs(polyMarkets)
	opinionPairs := groupYesNoPairs(opinionMarkets)

	for _, pp := range predictPairs {
		if peer, sim, ok := d.matchPeer(pp, mdomain.VenuePolymarket, polyMarkets, polyPairs, true); ok {
			if opp, ok := d.evaluate(pp, peer, sim, lookup, now); ok {
				out = append(out, opp)
			}
		}
		if peer, sim, ok := d.matchPeer(pp, mdomain.VenueOpinion, opinionMarkets, opinionPairs, false); ok {
			if opp, ok := d.evaluate(pp, peer, sim, lookup, now); ok {
				out = append(out, opp)
			}
		}
	}

	for _, pp := range polyPairs {
		if peer, sim, ok := d.matchByQuestionOnly(pp, opinionPairs); ok {
			if opp, ok := d.evaluate(pp, peer, sim, lookup, now); ok {
				out = append(out, opp)
			}
		}
	}

	sortByEdgeDesc(out)
	return out
}

func (d *CrossVenue) matchPeer(predictPair yesNoPair, peerVenue mdomain.Venue, peerMarkets []mdomain.Market, peerPairs []yesNoPair, usePolymarket bool) (yesNoPair, float64, bool) {
	if d.Mapping != nil {
		entry, ok := d.Mapping.Resolve(predictPair.Yes.ConditionID, predictPair.Yes.Question)
		if ok {
			yesToken, noToken := entry.PolymarketYesToken, entry.PolymarketNoToken
			if !usePolymarket {
				yesToken, noToken = entry.OpinionYesToken, entry.OpinionNoToken
			}
			if yesToken != "" && noToken != "" {
				yesMkt, okY := findByTokenID(peerMarkets, yesToken)
				noMkt, okN := findByTokenID(peerMarkets, noToken)
				if okY && okN {
					return yesNoPair{Key: predictPair.Key, Yes: yesMkt, No: noMkt}, 1, true
				}
			}
		}
	}
	return d.matchByQuestionOnly(predictPair, peerPairs)
}

func (d *CrossVenue) matchByQuestionOnly(a yesNoPair, candidates []yesNoPair) (yesNoPair, float64, bool) {
	if d.Mapping == nil {
		return matchBestBySimilarity(a, candidates, d.MinSimilarity)
	}
	if entry, score, ok := d.Mapping.ResolveSimilar(a.Yes.Question, d.MinSimilarity); ok {
		for _, c := range candidates {
			if c.Yes.TokenID == entry.PolymarketYesToken || c.Yes.TokenID == entry.OpinionYesToken {
				return c, score, true
			}
		}
	}
	return matchBestBySimilarity(a, candidates, d.MinSimilarity)
}

func matchBestBySimilarity(a yesNoPair, candidates []yesNoPair, minSimilarity float64) (yesNoPair, float64, bool) {
	var best yesNoPair
	bestScore := 0.0
	found := false
	for _, c := range candidates {
		score := jaccard(a.Yes.Question, c.Yes.Question)
		if score > bestScore {
			bestScore, best, found = score, c, true
		}
	}
	if found && bestScore >= minSimilarity {
		return best, bestScore, true
	}
	return yesNoPair{}, 0, false
}

// evaluate tries every assembly whose two books are available; a missing
// book only rules out the assemblies that need it.
func (d *CrossVenue) evaluate(a, b yesNoPair, similarity float64, lookup domain.BookLookup, now time.Time) (domain.Opportunity, bool) {
	aYesBook, aYesOK := lookup(a.Yes.Venue, a.Yes.TokenID)
	aNoBook, aNoOK := lookup(a.No.Venue, a.No.TokenID)
	bYesBook, bYesOK := lookup(b.Yes.Venue, b.Yes.TokenID)
	bNoBook, bNoOK := lookup(b.No.Venue, b.No.TokenID)

	type assembly struct {
		legA, legB domain.Leg
		action     domain.Action
		edge       float64
		size       float64
		refA, refB float64
	}
	var best *assembly

	tryBuy := func(yesSide yesNoPair, yesBook mdomain.Orderbook, noSide yesNoPair, noBook mdomain.Orderbook) {
		yesAsks := d.topLevels(yesBook.Asks)
		noAsks := d.topLevels(noBook.Asks)
		start := startSize(d.DepthUsage, d.MaxShares, yesAsks, noAsks)
		if start <= 0 {
			return
		}
		bestYesAsk, _ := yesBook.BestAsk()
		bestNoAsk, _ := noBook.BestAsk()
		for _, n := range candidateSizes(start) {
			yesFill := vwap.EstimateBuy(yesAsks, n, yesSide.Yes.FeeRateBps, vwap.FeeCurve{}, d.SlippageBps)
			noFill := vwap.EstimateBuy(noAsks, n, noSide.No.FeeRateBps, vwap.FeeCurve{}, d.SlippageBps)
			if yesFill == nil || noFill == nil {
				continue
			}
			cost := yesFill.AvgAllIn + noFill.AvgAllIn + d.TransferCost
			if cost >= 1 {
				continue
			}
			edge := 1 - cost
			if edge < d.MinProfit {
				continue
			}
			if best == nil || edge > best.edge {
				best = &assembly{
					legA:   domain.Leg{Venue: string(yesSide.Yes.Venue), TokenID: yesSide.Yes.TokenID, Side: domain.SideBuy, Price: yesFill.AvgPrice, Shares: n},
					legB:   domain.Leg{Venue: string(noSide.No.Venue), TokenID: noSide.No.TokenID, Side: domain.SideBuy, Price: noFill.AvgPrice, Shares: n},
					action: domain.ActionBuyBoth,
					edge:   edge,
					size:   n,
					refA:   bestYesAsk.Price.Float64(),
					refB:   bestNoAsk.Price.Float64(),
				}
			}
		}
	}

	if aYesOK && bNoOK {
		tryBuy(a, aYesBook, b, bNoBook) // YES@A + NO@B
	}
	if bYesOK && aNoOK {
		tryBuy(b, bYesBook, a, aNoBook) // YES@B + NO@A
	}

	if d.AllowShorting {
		trySell := func(yesSide yesNoPair, yesBook mdomain.Orderbook, noSide yesNoPair, noBook mdomain.Orderbook) {
			yesBids := d.topLevels(yesBook.Bids)
			noBids := d.topLevels(noBook.Bids)
			start := startSize(d.DepthUsage, d.MaxShares, yesBids, noBids)
			if start <= 0 {
				return
			}
			bestYesBid, _ := yesBook.BestBid()
			bestNoBid, _ := noBook.BestBid()
			for _, n := range candidateSizes(start) {
				yesFill := vwap.EstimateSell(yesBids, n, yesSide.Yes.FeeRateBps, vwap.FeeCurve{}, d.SlippageBps)
				noFill := vwap.EstimateSell(noBids, n, noSide.No.FeeRateBps, vwap.FeeCurve{}, d.SlippageBps)
				if yesFill == nil || noFill == nil {
					continue
				}
				proceeds := yesFill.AvgAllIn + noFill.AvgAllIn - d.TransferCost
				if proceeds <= 1 {
					continue
				}
				edge := proceeds - 1
				if edge < d.MinProfit {
					continue
				}
				if best == nil || edge > best.edge {
					best = &assembly{
						legA:   domain.Leg{Venue: string(yesSide.Yes.Venue), TokenID: yesSide.Yes.TokenID, Side: domain.SideSell, Price: yesFill.AvgPrice, Shares: n},
						legB:   domain.Leg{Venue: string(noSide.No.Venue), TokenID: noSide.No.TokenID, Side: domain.SideSell, Price: noFill.AvgPrice, Shares: n},
						action: domain.ActionSellBoth,
						edge:   edge,
						size:   n,
						refA:   bestYesBid.Price.Float64(),
						refB:   bestNoBid.Price.Float64(),
					}
				}
			}
		}
		if aYesOK && bNoOK {
			trySell(a, aYesBook, b, bNoBook)
		}
		if bYesOK && aNoOK {
			trySell(b, bYesBook, a, aNoBook)
		}
	}

	if best == nil {
		return domain.Opportunity{}, false
	}
	if d.recheckExceeded(best.legA.Price, best.legB.Price, best.refA, best.refB) {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		Kind:       domain.KindCrossVenue,
		Key:        domain.NewKey(domain.KindCrossVenue, a.Key+"|"+b.Key),
		DetectedAt: now,
		ExpiresAt:  now.Add(d.TTL),
		RiskLevel:  riskFromConfidence(0.5 + minF(best.edge, 0.5)),
		Confidence: minF(0.5+best.edge, 1) * similarity,
		Edge:       best.edge,
		PairID:     a.Key + "|" + b.Key,
		Action:     best.action,
		LegA:       best.legA,
		LegB:       best.legB,
		Size:       best.size,
		Similarity: similarity,
	}, true
}

func jaccard(a, b string) float64 {
	return mappingdomain.JaccardSimilarity(a, b)
}

// recheckExceeded mirrors IntraVenue's final combined-leg safety check:
// if the chosen size's realized prices have drifted from the current
// top-of-book reference by more than RecheckDeviationBps, the opportunity
// is dropped outright rather than re-sized.
func (d *CrossVenue) recheckExceeded(legAPrice, legBPrice, refA, refB float64) bool {
	if d.RecheckDeviationBps <= 0 {
		return false
	}
	reference := refA + refB
	if reference <= 0 {
		return false
	}
	combined := legAPrice + legBPrice
	deviationBps := absF(combined-reference) / reference * 10000
	return deviationBps > d.RecheckDeviationBps
}
