// Package app orchestrates the per-token market-making state machine
// against live books, turning the pure decisions in business/maker/domain
// into OrderSubmitter calls.
package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	makerdomain "github.com/predikt/arb-agent/business/maker/domain"
	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/apperror"
	"github.com/predikt/arb-agent/internal/logger"
)

// HedgeTrigger is the port the maker calls into when a fill crosses
// Params.HedgeTriggerShares; business/arb's HedgeOnFill implements it so
// the maker context never depends on arb directly.
type HedgeTrigger interface {
	Hedge(ctx context.Context, venue mdomain.Venue, tokenID string, deltaShares float64) error
}

type tokenKey struct {
	venue   mdomain.Venue
	tokenID string
}

func keyOf(m mdomain.Market) tokenKey {
	return tokenKey{venue: m.Venue, tokenID: m.TokenID}
}

// MarketMakerService runs one pass of the state machine across every
// catalog token on every tick of its owning supervisor loop.
type MarketMakerService struct {
	books        BookSource
	catalogs     []CatalogSource
	submitter    OrderSubmitter
	valueSignals ValueSignalSource
	hedge        HedgeTrigger
	params       makerdomain.Params
	log          logger.LoggerInterface
	metrics      *serviceMetrics

	mu            sync.Mutex
	states        map[tokenKey]*makerdomain.State
	dailyPnLUSD   float64
	enableTrading bool
	// tradingHalted latches once dailyPnLUSD crosses -MaxDailyLoss and is
	// never cleared for the process lifetime, even if later fills recover
	// the loss.
	tradingHalted bool

	// Snapshot counters, mirroring the OTEL instruments above so
	// mm-metrics.json can be written without a metrics reader.
	passesRun       atomic.Int64
	quotesPlaced    atomic.Int64
	quotesCancelled atomic.Int64
	guardTrips      atomic.Int64
	fillsDetected   atomic.Int64
	hedgesTriggered atomic.Int64
}

// Snapshot is the periodic file-export shape for mm-metrics.json.
type Snapshot struct {
	Version         int     `json:"version"`
	Ts              int64   `json:"ts"`
	TrackedTokens   int     `json:"trackedTokens"`
	PassesRun       int64   `json:"passesRun"`
	QuotesPlaced    int64   `json:"quotesPlaced"`
	QuotesCancelled int64   `json:"quotesCancelled"`
	GuardTrips      int64   `json:"guardTrips"`
	FillsDetected   int64   `json:"fillsDetected"`
	HedgesTriggered int64   `json:"hedgesTriggered"`
	DailyPnLUSD     float64 `json:"dailyPnlUsd"`
	TradingHalted   bool    `json:"tradingHalted"`
}

// MetricsSnapshot returns a JSON-ready view of this service's counters, for
// the supervisor's periodic metrics-flush writer.
func (s *MarketMakerService) MetricsSnapshot() Snapshot {
	s.mu.Lock()
	tracked := len(s.states)
	halted := !s.enableTrading || s.tradingHalted
	pnl := s.dailyPnLUSD
	s.mu.Unlock()

	return Snapshot{
		Version:         1,
		TrackedTokens:   tracked,
		PassesRun:       s.passesRun.Load(),
		QuotesPlaced:    s.quotesPlaced.Load(),
		QuotesCancelled: s.quotesCancelled.Load(),
		GuardTrips:      s.guardTrips.Load(),
		FillsDetected:   s.fillsDetected.Load(),
		HedgesTriggered: s.hedgesTriggered.Load(),
		DailyPnLUSD:     pnl,
		TradingHalted:   halted,
	}
}

// NewMarketMakerService wires a MarketMakerService. valueSignals and hedge
// may be nil when Params.UseValueSignal / Params.HedgeOnFill are disabled.
func NewMarketMakerService(books BookSource, catalogs []CatalogSource, submitter OrderSubmitter, valueSignals ValueSignalSource, hedge HedgeTrigger, params makerdomain.Params, log logger.LoggerInterface) *MarketMakerService {
	return &MarketMakerService{
		books:         books,
		catalogs:      catalogs,
		submitter:     submitter,
		valueSignals:  valueSignals,
		hedge:         hedge,
		params:        params,
		log:           log,
		metrics:       newServiceMetrics(log),
		states:        make(map[tokenKey]*makerdomain.State),
		enableTrading: true,
	}
}

// SetEnableTrading is the kill switch an operator or the supervisor's
// circuit breaker flips when maxDailyLoss or an external halt fires.
func (s *MarketMakerService) SetEnableTrading(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enableTrading = enabled
}

// RecordRealizedPnL accumulates today's realized PnL; once it crosses
// -Params.MaxDailyLoss the halt latches and the next Pass stops all
// quoting for the rest of the process lifetime. NotifyFill feeds this on
// every position-reducing fill; it is also the entry point for an
// external executor reporting its own fills.
func (s *MarketMakerService) RecordRealizedPnL(deltaUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordRealizedPnLLocked(deltaUSD)
}

func (s *MarketMakerService) recordRealizedPnLLocked(deltaUSD float64) {
	s.dailyPnLUSD += deltaUSD
	if !s.tradingHalted && s.params.MaxDailyLoss > 0 && s.dailyPnLUSD <= -s.params.MaxDailyLoss {
		s.tradingHalted = true
		s.log.Warn(context.Background(), "maker: max daily loss reached, trading halted for the session",
			"dailyPnlUsd", s.dailyPnLUSD, "maxDailyLoss", s.params.MaxDailyLoss)
	}
}

// Pass runs step 1 through 8 across every token in every catalog.
func (s *MarketMakerService) Pass(ctx context.Context) error {
	ctx, span := tracer().Start(ctx, "MarketMakerService.Pass")
	defer span.End()

	start := time.Now()
	defer func() {
		if s.metrics.passLatency != nil {
			s.metrics.passLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
		}
	}()
	if s.metrics.passesRun != nil {
		s.metrics.passesRun.Add(ctx, 1)
	}
	s.passesRun.Add(1)

	s.mu.Lock()
	halted := !s.enableTrading || s.tradingHalted
	s.mu.Unlock()

	for _, catalog := range s.catalogs {
		markets, err := catalog.Markets(ctx)
		if err != nil {
			s.log.Warn(ctx, "maker: catalog fetch failed", "error", err)
			continue
		}
		for _, market := range markets {
			if err := s.runToken(ctx, market, halted); err != nil {
				s.log.Warn(ctx, "maker: token pass failed", "venue", market.Venue, "token", market.TokenID, "error", err)
			}
		}
	}
	return nil
}

func (s *MarketMakerService) stateFor(key tokenKey) *makerdomain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	if !ok {
		st = &makerdomain.State{Lifecycle: makerdomain.LifecycleIdle}
		s.states[key] = st
	}
	return st
}

func (s *MarketMakerService) runToken(ctx context.Context, market mdomain.Market, halted bool) error {
	key := keyOf(market)
	st := s.stateFor(key)

	ob, ok := s.books.Snapshot(market.Venue, market.TokenID)
	if !ok {
		return apperror.New(apperror.CodeStaleBook, apperror.WithContext("no book snapshot for "+market.TokenID))
	}

	// Quotes anchor on the size-weighted micro-price, not the arithmetic
	// mid: a heavy bid pulls the anchor toward the ask.
	mid, ok := ob.MicroPrice()
	if !ok {
		return apperror.New(apperror.CodeStaleBook, apperror.WithContext("empty book for "+market.TokenID))
	}
	midF := mid.Float64()

	now := time.Now()

	if halted || now.Before(st.PauseUntil) {
		s.cancelAll(ctx, st)
		st.Lifecycle = makerdomain.LifecyclePaused
		s.updateMid(st, midF, now)
		return nil
	}
	if now.Before(st.ActionCooldownUntil) {
		s.cancelAll(ctx, st)
		st.Lifecycle = makerdomain.LifecycleCooldown
		s.updateMid(st, midF, now)
		return nil
	}

	profile := makerdomain.ClassifyProfile(st.VolEma, st.DepthEma, s.params.DepthRef, s.params)

	if reason := makerdomain.EvaluateGuards(ob, *st, midF, s.params); reason != makerdomain.GuardNone {
		if s.metrics.guardTrips != nil {
			s.metrics.guardTrips.Add(ctx, 1)
		}
		s.guardTrips.Add(1)
		s.cancelAll(ctx, st)
		st.Lifecycle = makerdomain.LifecycleCooldown
		switch reason {
		case makerdomain.GuardVolatilitySpike:
			st.PauseUntil = now.Add(s.params.PauseAfterVolatility)
		default:
			st.ActionCooldownUntil = now.Add(s.params.CooldownAfterCancel)
		}
		s.updateMid(st, midF, now)
		return nil
	}

	var signal *makerdomain.ValueSignal
	if s.params.UseValueSignal && s.valueSignals != nil {
		if vs, ok := s.valueSignals.ValueSignal(market.Venue, market.TokenID); ok {
			signal = &vs
		}
	}

	// Bias is the raw share ratio: +80 net shares against a 200-share
	// budget skews by +0.4 regardless of where the mid sits.
	inventoryBias := 0.0
	if s.params.MaxPosition > 0 {
		inventoryBias = clamp(st.LastNetShares/s.params.MaxPosition, -1, 1)
	}

	quote, ok := makerdomain.ComputeQuote(ob, midF, profile, inventoryBias, signal, s.params)
	if !ok {
		s.cancelAll(ctx, st)
		s.updateMid(st, midF, now)
		return nil
	}
	if s.metrics.quotedSpreadBps != nil {
		s.metrics.quotedSpreadBps.Record(ctx, (quote.Ask-quote.Bid)*10000)
	}

	st.Lifecycle = makerdomain.LifecycleQuoting

	kept := make([]makerdomain.OrderHandle, 0, len(st.OpenOrders))
	haveBid, haveAsk := false, false
	for _, order := range st.OpenOrders {
		action := makerdomain.EvaluateOrder(order, quote, ob, now, st.VolEma, s.params)
		if action == makerdomain.ActionKeep {
			kept = append(kept, order)
			if order.OrderSide == marketdataapp.OrderSideBid {
				haveBid = true
			} else {
				haveAsk = true
			}
			continue
		}
		if err := s.submitter.Cancel(ctx, []string{order.Hash}); err != nil {
			s.log.Warn(ctx, "maker: cancel failed", "hash", order.Hash, "error", err)
			kept = append(kept, order)
			continue
		}
		if s.metrics.quotesCancelled != nil {
			s.metrics.quotesCancelled.Add(ctx, 1)
		}
		s.quotesCancelled.Add(1)
	}
	st.OpenOrders = kept

	topDepth := topDepthBoth(ob, s.params.TopNLevels)
	positionValue := st.LastNetShares * midF
	icebergActive := s.params.IcebergEnabled && now.Sub(st.LastIcebergRequoteAt) >= s.params.IcebergRequote

	// Placement cadence: no new order inside MinOrderInterval of the last
	// one on this token, and never more open orders than
	// MaxOrdersPerMarket allows.
	canPlace := s.params.MinOrderInterval <= 0 || st.LastOrderAt.IsZero() || now.Sub(st.LastOrderAt) >= s.params.MinOrderInterval
	withinOrderBudget := func() bool {
		return s.params.MaxOrdersPerMarket <= 0 || len(st.OpenOrders) < s.params.MaxOrdersPerMarket
	}

	if !haveBid && canPlace && withinOrderBudget() {
		size := makerdomain.SizeOrder(quote.Bid, positionValue, topDepth, profile, icebergActive, s.params)
		if size > 0 {
			s.placeOrder(ctx, st, market, marketdataapp.OrderSideBid, quote.Bid, size)
		}
	}
	if !haveAsk && canPlace && withinOrderBudget() {
		size := makerdomain.SizeOrder(quote.Ask, -positionValue, topDepth, profile, icebergActive, s.params)
		if size > 0 {
			s.placeOrder(ctx, st, market, marketdataapp.OrderSideAsk, quote.Ask, size)
		}
	}
	if icebergActive {
		st.LastIcebergRequoteAt = now
	}

	s.updateMid(st, midF, now)
	return nil
}

func (s *MarketMakerService) placeOrder(ctx context.Context, st *makerdomain.State, market mdomain.Market, side marketdataapp.OrderSide, price, shares float64) {
	result, err := s.submitter.BuildAndSubmitLimit(ctx, market, side, price, shares)
	if err != nil {
		s.log.Warn(ctx, "maker: submit failed", "venue", market.Venue, "token", market.TokenID, "side", side, "error", err)
		return
	}
	if s.metrics.quotesPlaced != nil {
		s.metrics.quotesPlaced.Add(ctx, 1)
	}
	s.quotesPlaced.Add(1)
	st.LastOrderAt = time.Now()
	st.OpenOrders = append(st.OpenOrders, makerdomain.OrderHandle{
		Hash:      result.Hash,
		OrderSide: side,
		Price:     price,
		Shares:    shares,
		PlacedAt:  st.LastOrderAt,
	})
}

func (s *MarketMakerService) cancelAll(ctx context.Context, st *makerdomain.State) {
	if len(st.OpenOrders) == 0 {
		return
	}
	hashes := make([]string, 0, len(st.OpenOrders))
	for _, order := range st.OpenOrders {
		hashes = append(hashes, order.Hash)
	}
	if err := s.submitter.Cancel(ctx, hashes); err != nil {
		s.log.Warn(ctx, "maker: cancel-all failed", "error", err)
		return
	}
	if s.metrics.quotesCancelled != nil {
		s.metrics.quotesCancelled.Add(ctx, int64(len(hashes)))
	}
	s.quotesCancelled.Add(int64(len(hashes)))
	st.OpenOrders = nil
}

func (s *MarketMakerService) updateMid(st *makerdomain.State, mid float64, now time.Time) {
	if st.LastMid > 0 {
		ret := (mid - st.LastMid) / st.LastMid
		alpha := s.params.VolEmaAlpha
		if alpha <= 0 {
			alpha = 0.1
		}
		st.VolEma = (1-alpha)*st.VolEma + alpha*absF(ret)
	}
	st.LastMid = mid
	st.LastMidAt = now
}

// NotifyFill updates a token's net position from a venue fill event; the
// next Pass compares it against the previously recorded value to detect
// and size the delta (step 8). The fill is marked at the book's current
// micro-price: position-reducing fills realize PnL against the running
// average entry, feeding the max-daily-loss halt.
func (s *MarketMakerService) NotifyFill(market mdomain.Market, netShares float64) {
	st := s.stateFor(keyOf(market))

	mark := 0.0
	if ob, ok := s.books.Snapshot(market.Venue, market.TokenID); ok {
		if mid, ok := ob.MicroPrice(); ok {
			mark = mid.Float64()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delta, triggers := makerdomain.DetectFill(*st, netShares, s.params)
	if s.metrics.fillsDetected != nil && delta != 0 {
		s.metrics.fillsDetected.Add(context.Background(), 1)
	}
	if delta != 0 {
		s.fillsDetected.Add(1)
	}
	if delta != 0 && mark > 0 {
		newEntry, realized := makerdomain.ApplyFill(st.LastNetShares, netShares, st.AvgEntry, mark)
		st.AvgEntry = newEntry
		if realized != 0 {
			s.recordRealizedPnLLocked(realized)
		}
	}
	st.LastNetShares = netShares
	if triggers && s.metrics.hedgesTriggered != nil {
		s.metrics.hedgesTriggered.Add(context.Background(), 1)
	}
	if triggers {
		s.hedgesTriggered.Add(1)
	}
	if triggers && s.hedge != nil {
		go func() {
			if err := s.hedge.Hedge(context.Background(), market.Venue, market.TokenID, delta); err != nil {
				s.log.Warn(context.Background(), "maker: hedge trigger failed", "venue", market.Venue, "token", market.TokenID, "error", err)
			}
		}()
	}
}

func topDepthBoth(ob mdomain.Orderbook, n int) float64 {
	var total float64
	levels := n
	if levels <= 0 || levels > len(ob.Bids) {
		levels = len(ob.Bids)
	}
	for i := 0; i < levels; i++ {
		total += ob.Bids[i].Shares
	}
	levels = n
	if levels <= 0 || levels > len(ob.Asks) {
		levels = len(ob.Asks)
	}
	for i := 0; i < levels; i++ {
		total += ob.Asks[i].Shares
	}
	return total
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
