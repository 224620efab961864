// Package domain implements the per-token market-making state machine:
// profile classification, guard evaluation, quote computation, and order
// risk/sizing decisions. Every function here is pure given its
// inputs; the owning app.MarketMakerService supplies the clock and the
// OrderSubmitter side effects.
package domain

import (
	"math"
	"time"

	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
)

// Profile is the volatility/depth regime a token is currently in. It
// selects the spread band and size scale applied to quotes.
type Profile string

const (
	ProfileCalm     Profile = "CALM"
	ProfileNormal   Profile = "NORMAL"
	ProfileVolatile Profile = "VOLATILE"
)

// HedgeMode names the HedgeOnFill strategy a fill trigger should run.
type HedgeMode string

const (
	HedgeNone    HedgeMode = "NONE"
	HedgeFlatten HedgeMode = "FLATTEN"
	HedgeCross   HedgeMode = "CROSS"
)

// Lifecycle is the state-machine phase a token cycles through on each pass.
type Lifecycle string

const (
	LifecycleIdle     Lifecycle = "IDLE"
	LifecycleQuoting  Lifecycle = "QUOTING"
	LifecycleCooldown Lifecycle = "COOLDOWN"
	LifecyclePaused   Lifecycle = "PAUSED"
	LifecycleHedging  Lifecycle = "HEDGING"
)

// OrderHandle is an open order this token is tracking.
type OrderHandle struct {
	Hash      string
	OrderSide marketdataapp.OrderSide
	Price     float64
	Shares    float64
	PlacedAt  time.Time
}

// State is the per-token state kept between passes.
type State struct {
	Lifecycle Lifecycle

	LastMid   float64
	LastMidAt time.Time

	VolEma    float64
	DepthEma  float64
	LastDepth float64

	ActionCooldownUntil time.Time
	PauseUntil          time.Time

	OpenOrders []OrderHandle

	LastNetShares float64
	AvgEntry      float64

	LastOrderAt          time.Time
	LastIcebergRequoteAt time.Time
}

// Params mirrors config.MakerConfig's fields needed by the pure decision
// functions below; the app layer translates config.MakerConfig into this
// shape once at startup.
type Params struct {
	Spread, MinSpread, MaxSpread float64

	UseValueSignal     bool
	ValueSignalWeight  float64
	ValueConfidenceMin float64

	OrderSize           float64
	MaxSingleOrderValue float64
	MaxPosition         float64
	MaxDailyLoss        float64

	InventorySkewFactor float64
	CancelThreshold     float64
	RepriceThreshold    float64
	MinOrderInterval    time.Duration
	MaxOrdersPerMarket  int

	AntiFillBps          float64
	NearTouchBps         float64
	CooldownAfterCancel  time.Duration
	VolatilityPauseBps   float64
	VolatilityLookback   time.Duration
	PauseAfterVolatility time.Duration

	HedgeOnFill         bool
	HedgeTriggerShares  float64
	HedgeMode           HedgeMode
	HedgeMaxSlippageBps float64

	OrderRefresh time.Duration

	TopNLevels                   int
	MinTopDepthShares            float64
	MinTopDepthUSD               float64
	OrderDepthUsage              float64
	LiquidityActivationMinShares float64

	VolEmaAlpha           float64
	DepthEmaAlpha         float64
	DepthRef              float64
	ImbalanceWeight       float64
	ImbalanceMaxSkew      float64
	CalmBandBps           float64
	VolatileBandBps       float64
	IcebergEnabled        bool
	IcebergRatio          float64
	IcebergMaxChunkShares float64
	IcebergRequote        time.Duration
	FillRiskSpreadBumpBps float64

	// AdaptiveParams gates the regime classifier; when off, every pass
	// quotes in the NORMAL profile with the base spread band.
	AdaptiveParams bool
}

// profileScale maps a Profile to its size-scale multiplier (step 6).
func profileScale(p Profile) float64 {
	switch p {
	case ProfileCalm:
		return 1.0
	case ProfileVolatile:
		return 0.6
	default:
		return 0.85
	}
}

// ClassifyProfile derives the quoting regime from the volatility EMA and
// depth EMA relative to depthRef, with hysteresis: VOLATILE requires
// clearing volatileBandBps, CALM requires staying under calmBandBps, and
// everything between is NORMAL (step 2).
func ClassifyProfile(volEma, depthEma, depthRef float64, params Params) Profile {
	if !params.AdaptiveParams {
		return ProfileNormal
	}
	volBps := volEma * 10000
	depthRatio := 1.0
	if depthRef > 0 {
		depthRatio = depthEma / depthRef
	}

	switch {
	case volBps >= params.VolatileBandBps || depthRatio < 0.3:
		return ProfileVolatile
	case volBps <= params.CalmBandBps && depthRatio >= 1.0:
		return ProfileCalm
	default:
		return ProfileNormal
	}
}

// SpreadBand returns the (min, max) spread for a profile, scaled off the
// base Params.MinSpread/MaxSpread band.
func SpreadBand(profile Profile, params Params) (float64, float64) {
	switch profile {
	case ProfileCalm:
		return params.MinSpread, (params.MinSpread + params.MaxSpread) / 2
	case ProfileVolatile:
		return (params.MinSpread + params.MaxSpread) / 2, params.MaxSpread
	default:
		return params.MinSpread, params.MaxSpread
	}
}

// GuardReason names why a pass should cancel-all and cooldown instead of
// quoting.
type GuardReason string

const (
	GuardNone            GuardReason = ""
	GuardThinLiquidity   GuardReason = "THIN_LIQUIDITY"
	GuardVolatilitySpike GuardReason = "VOLATILITY_SPIKE"
	GuardBigMove         GuardReason = "BIG_MOVE"
)

// EvaluateGuards runs step 3's fail-fast checks in order, returning the
// first one that trips.
func EvaluateGuards(ob mdomain.Orderbook, st State, mid float64, params Params) GuardReason {
	topDepth := topNDepth(ob.Bids, params.TopNLevels) + topNDepth(ob.Asks, params.TopNLevels)
	topDepthUSD := topDepth * mid
	if topDepth < params.MinTopDepthShares || topDepthUSD < params.MinTopDepthUSD {
		return GuardThinLiquidity
	}

	if st.LastMid > 0 {
		deltaRatio := math.Abs(mid-st.LastMid) / st.LastMid
		if deltaRatio >= params.VolatilityPauseBps/10000 && time.Since(st.LastMidAt) <= params.VolatilityLookback {
			return GuardVolatilitySpike
		}

		volMul := volatilityMultiplier(st.VolEma, params)
		if volMul > 0 && deltaRatio > params.CancelThreshold/volMul {
			return GuardBigMove
		}
	}

	return GuardNone
}

func topNDepth(levels []mdomain.OrderbookLevel, n int) float64 {
	if n <= 0 || n > len(levels) {
		n = len(levels)
	}
	var total float64
	for i := 0; i < n; i++ {
		total += levels[i].Shares
	}
	return total
}

// volatilityMultiplier grows from 1 as realized volatility rises. Callers
// multiply the anti-fill and near-touch bands by it and divide the big-move
// cancel and reprice thresholds by it, so a volatile token backs away from
// the touch sooner and cancels or reprices on smaller moves.
func volatilityMultiplier(volEma float64, params Params) float64 {
	if params.VolEmaAlpha <= 0 {
		return 1
	}
	mul := 1 + volEma*10000/params.CalmBandBps
	if mul < 1 {
		return 1
	}
	return mul
}

// Quote is the target bid/ask this pass should converge to (step 4).
type Quote struct {
	Bid, Ask float64
}

// ComputeQuote builds the target bid/ask: starts from micro-price, applies
// inventory skew and book-imbalance skew, optionally blends toward a
// value-signal fair price, then clamps to the book and to (0.01, 0.99).
func ComputeQuote(ob mdomain.Orderbook, mid float64, profile Profile, inventoryBias float64, valueSignal *ValueSignal, params Params) (Quote, bool) {
	minSpread, maxSpread := SpreadBand(profile, params)
	spread := clampF(params.Spread, minSpread, maxSpread)

	// Inventory skew is a multiplicative tilt of the micro-price, not a
	// flat subtraction: fair = mid * (1 - bias * skewFactor * spread), per
	// the worked scenario. Order-book-imbalance skew stays an
	// additive nudge on top, since it's already expressed in spread units.
	invTilt := 1 - inventoryBias*params.InventorySkewFactor*spread
	fair := mid * invTilt
	fair += imbalanceSkew(ob, params) * spread
	if params.UseValueSignal && valueSignal != nil && valueSignal.Confidence >= params.ValueConfidenceMin {
		weight := math.Min(params.ValueSignalWeight*valueSignal.Confidence, 0.9)
		fair = fair*(1-weight) + valueSignal.FairPrice*weight
	}

	bid := fair * (1 - spread/2)
	ask := fair * (1 + spread/2)

	// Never cross the observed book: a BUY must stay strictly below the
	// current best ask, a SELL strictly above the current best bid. A
	// computed ask resting worse than the current best ask (e.g. after an
	// inventory-skewed widening) is also clamped down to it, so the maker
	// never quotes behind the touch it could instead match.
	const epsilon = 1e-6
	if bestAsk, ok := ob.BestAsk(); ok {
		bidCeiling := bestAsk.Price.Float64() - epsilon
		if bid > bidCeiling {
			bid = bidCeiling
		}
		if ask > bidCeiling {
			ask = bidCeiling
		}
	}
	if bestBid, ok := ob.BestBid(); ok {
		askFloor := bestBid.Price.Float64() + epsilon
		if ask < askFloor {
			ask = askFloor
		}
	}

	bid = clampF(bid, 0.01, 0.99)
	ask = clampF(ask, 0.01, 0.99)

	if bid >= ask-epsilon {
		return Quote{}, false
	}
	return Quote{Bid: bid, Ask: ask}, true
}

// ValueSignal is an externally-supplied fair-price estimate (e.g. from the
// ValueMismatch detector) the maker may blend into its quote.
type ValueSignal struct {
	FairPrice  float64
	Confidence float64
}

// imbalanceSkew nudges the quote toward the side with less resting depth,
// within ImbalanceMaxSkew, weighted by ImbalanceWeight.
func imbalanceSkew(ob mdomain.Orderbook, params Params) float64 {
	bidDepth := topNDepth(ob.Bids, 1)
	askDepth := topNDepth(ob.Asks, 1)
	total := bidDepth + askDepth
	if total <= 0 {
		return 0
	}
	imbalance := (askDepth - bidDepth) / total // positive: more ask depth, push quote down
	skew := imbalance * params.ImbalanceWeight
	return clampF(skew, -params.ImbalanceMaxSkew, params.ImbalanceMaxSkew)
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// OrderAction names what step 5 decided to do with an existing order.
type OrderAction string

const (
	ActionKeep      OrderAction = "KEEP"
	ActionAntiFill  OrderAction = "ANTI_FILL"
	ActionNearTouch OrderAction = "NEAR_TOUCH"
	ActionRefresh   OrderAction = "REFRESH"
	ActionReprice   OrderAction = "REPRICE"
)

// EvaluateOrder runs step 5's per-order risk checks in priority order.
// volEma widens the anti-fill/near-touch bands and tightens the reprice
// threshold as realized volatility rises; the reprice threshold is divided
// by the multiplier the same way EvaluateGuards divides the big-move band.
func EvaluateOrder(order OrderHandle, target Quote, ob mdomain.Orderbook, now time.Time, volEma float64, params Params) OrderAction {
	volMul := volatilityMultiplier(volEma, params)

	var oppositeTouch, currentTarget float64
	switch order.OrderSide {
	case marketdataapp.OrderSideBid:
		if ask, ok := ob.BestAsk(); ok {
			oppositeTouch = ask.Price.Float64()
		}
		currentTarget = target.Bid
	case marketdataapp.OrderSideAsk:
		if bid, ok := ob.BestBid(); ok {
			oppositeTouch = bid.Price.Float64()
		}
		currentTarget = target.Ask
	}

	if oppositeTouch > 0 {
		distBps := math.Abs(oppositeTouch-order.Price) / oppositeTouch * 10000
		if distBps <= params.AntiFillBps*volMul {
			return ActionAntiFill
		}
		if distBps <= params.NearTouchBps*volMul {
			return ActionNearTouch
		}
	}

	if params.OrderRefresh > 0 && now.Sub(order.PlacedAt) > params.OrderRefresh {
		return ActionRefresh
	}

	if order.Price > 0 {
		repriceDist := math.Abs(currentTarget-order.Price) / order.Price
		if repriceDist >= params.RepriceThreshold/volMul {
			return ActionReprice
		}
	}

	return ActionKeep
}

// SizeOrder computes step 6's final share count for one side: starts from
// OrderSize, bounds by remaining position budget and MaxSingleOrderValue,
// caps by top-depth fraction, applies the liquidity-activation floor, then
// scales by the profile, and finally applies iceberg clipping when active.
func SizeOrder(price float64, currentPositionValue float64, topDepth float64, profile Profile, icebergActive bool, params Params) float64 {
	size := params.OrderSize

	remainingBudget := params.MaxPosition - currentPositionValue
	if remainingBudget <= 0 {
		return 0
	}
	if size*price > remainingBudget {
		size = remainingBudget / price
	}

	if params.MaxSingleOrderValue > 0 && size*price > params.MaxSingleOrderValue {
		size = params.MaxSingleOrderValue / price
	}

	if params.OrderDepthUsage > 0 {
		depthCap := topDepth * params.OrderDepthUsage
		if size > depthCap {
			size = depthCap
		}
	}

	if params.LiquidityActivationMinShares > 0 && size < params.LiquidityActivationMinShares {
		size = params.LiquidityActivationMinShares
	}

	size *= profileScale(profile)

	if icebergActive && params.IcebergRatio > 0 {
		chunk := math.Max(1, size*params.IcebergRatio)
		if params.IcebergMaxChunkShares > 0 && chunk > params.IcebergMaxChunkShares {
			chunk = params.IcebergMaxChunkShares
		}
		size = chunk
	}

	if size < 0 {
		return 0
	}
	return size
}

// DetectFill reports the share delta since the last recorded net position,
// and whether it crosses HedgeTriggerShares (step 8).
func DetectFill(st State, netShares float64, params Params) (delta float64, triggersHedge bool) {
	delta = netShares - st.LastNetShares
	triggersHedge = params.HedgeOnFill && math.Abs(delta) >= params.HedgeTriggerShares
	return delta, triggersHedge
}

// ApplyFill folds a net-position change at fillPrice into the running
// average entry, returning the dollars realized by any shares the change
// closed out. Growing the position (or opening from flat) realizes nothing
// and re-averages the entry; shrinking it realizes the closed shares
// against the average entry; flipping through flat realizes the whole old
// position and opens the remainder at fillPrice.
func ApplyFill(prevNet, newNet, avgEntry, fillPrice float64) (newAvgEntry, realizedUSD float64) {
	delta := newNet - prevNet
	if delta == 0 {
		return avgEntry, 0
	}

	if prevNet == 0 || (prevNet > 0) == (delta > 0) {
		total := math.Abs(prevNet) + math.Abs(delta)
		newAvgEntry = (avgEntry*math.Abs(prevNet) + fillPrice*math.Abs(delta)) / total
		return newAvgEntry, 0
	}

	closed := math.Min(math.Abs(delta), math.Abs(prevNet))
	if prevNet > 0 {
		realizedUSD = closed * (fillPrice - avgEntry)
	} else {
		realizedUSD = closed * (avgEntry - fillPrice)
	}

	switch {
	case math.Abs(delta) > math.Abs(prevNet):
		return fillPrice, realizedUSD
	case newNet == 0:
		return 0, realizedUSD
	default:
		return avgEntry, realizedUSD
	}
}
