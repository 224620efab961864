package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/predikt/arb-agent/business/marketdata/app"
	"github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/logger"
	"github.com/predikt/arb-agent/internal/prob"
	"github.com/predikt/arb-agent/internal/wsconn"
)

type subscribeMsg struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
	Operation string   `json:"operation,omitempty"`
}

type bookEvent struct {
	EventType string          `json:"event_type"`
	AssetID   string          `json:"asset_id"`
	Data      json.RawMessage `json:"data"`
}

type bookData struct {
	Bids []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"asks"`
}

type priceChangeData struct {
	Changes []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
		Side  string `json:"side"` // BUY hits bids, SELL hits asks
	} `json:"changes"`
}

type bestBidAskData struct {
	BestBid     string `json:"best_bid"`
	BestAsk     string `json:"best_ask"`
	BestBidSize string `json:"best_bid_size"`
	BestAskSize string `json:"best_ask_size"`
}

// WsFeed implements app.WsFeed for Polymarket's "book"/"price_change"/
// "best_bid_ask" event dispatch.
type WsFeed struct {
	conn *wsconn.Client

	// customFeature opts into the venue's explicit subscribe/unsubscribe
	// operation field; initialDump accepts the array-of-books frame the
	// venue sends right after subscribing.
	customFeature bool
	initialDump   bool

	mu    sync.RWMutex
	books map[string]domain.Orderbook
	subs  map[string]bool

	handlersMu sync.RWMutex
	onChange   []app.ChangeHandler
	log        logger.LoggerInterface
}

// NewWsFeed builds a Polymarket WsFeed.
func NewWsFeed(url string, customFeature, initialDump bool, log logger.LoggerInterface) (*WsFeed, error) {
	conn, err := wsconn.New(wsconn.DefaultConfig(url, "polymarket"))
	if err != nil {
		return nil, err
	}
	f := &WsFeed{
		conn:          conn,
		customFeature: customFeature,
		initialDump:   initialDump,
		books:         make(map[string]domain.Orderbook),
		subs:          make(map[string]bool),
		log:           log,
	}
	conn.OnMessage(f.handleMessage)
	conn.OnStateChange(f.handleStateChange)
	return f, nil
}

func (f *WsFeed) Start(ctx context.Context) error {
	go func() {
		if err := f.conn.ConnectWithRetry(ctx); err != nil && f.log != nil {
			f.log.Error(ctx, "polymarket wsfeed: connect failed permanently", "err", err)
		}
	}()
	return nil
}

func (f *WsFeed) Subscribe(tokenIDs []string) error {
	f.mu.Lock()
	for _, id := range tokenIDs {
		f.subs[id] = true
	}
	f.mu.Unlock()
	if !f.conn.IsConnected() {
		return nil
	}
	return f.conn.SendJSON(context.Background(), f.subscribeFrame(tokenIDs))
}

// subscribeFrame builds the venue's subscribe message; the operation field
// is only understood by the custom-feature endpoint and must be omitted
// otherwise.
func (f *WsFeed) subscribeFrame(tokenIDs []string) subscribeMsg {
	msg := subscribeMsg{Type: "MARKET", AssetsIDs: tokenIDs}
	if f.customFeature {
		msg.Operation = "subscribe"
	}
	return msg
}

func (f *WsFeed) handleStateChange(state wsconn.State, err error) {
	if state != wsconn.StateConnected {
		return
	}
	f.mu.RLock()
	ids := make([]string, 0, len(f.subs))
	for id := range f.subs {
		ids = append(ids, id)
	}
	f.mu.RUnlock()
	if len(ids) > 0 {
		_ = f.conn.SendJSON(context.Background(), f.subscribeFrame(ids))
	}
}

func (f *WsFeed) handleMessage(ctx context.Context, raw []byte) {
	// The initial dump after a subscribe is an array of book events.
	if f.initialDump && len(raw) > 0 && raw[0] == '[' {
		var evs []bookEvent
		if err := json.Unmarshal(raw, &evs); err != nil {
			return
		}
		for _, ev := range evs {
			f.dispatch(ev)
		}
		return
	}
	var ev bookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return
	}
	f.dispatch(ev)
}

func (f *WsFeed) dispatch(ev bookEvent) {
	switch ev.EventType {
	case "book":
		var d bookData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return
		}
		f.applyFullBook(ev.AssetID, d)
	case "price_change":
		var d priceChangeData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return
		}
		f.applyPriceChange(ev.AssetID, d)
	case "best_bid_ask":
		var d bestBidAskData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return
		}
		f.applyTouchUpdate(ev.AssetID, d)
	default:
		// unknown event type: dropped
	}
}

func parseLevel(price, size string) (float64, float64, bool) {
	var p, s float64
	if _, err := fmt.Sscanf(price, "%f", &p); err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(size, "%f", &s); err != nil {
		return 0, 0, false
	}
	return p, s, true
}

// applyPriceChange merges single-price deltas into the cached book: each
// change replaces that price's resting size on its side, size 0 removes the
// level. A delta with no prior full book is dropped since there is no depth
// to merge into.
func (f *WsFeed) applyPriceChange(tokenID string, d priceChangeData) {
	f.mu.RLock()
	prior, ok := f.books[tokenID]
	f.mu.RUnlock()
	if !ok {
		return
	}

	bids := levelMap(prior.Bids)
	asks := levelMap(prior.Asks)
	for _, ch := range d.Changes {
		price, size, valid := parseLevel(ch.Price, ch.Size)
		if !valid {
			continue
		}
		side := bids
		if ch.Side == "SELL" {
			side = asks
		}
		if size <= 0 {
			delete(side, price)
		} else {
			side[price] = size
		}
	}
	f.storeBook(tokenID, levelsOf(bids), levelsOf(asks))
}

// applyTouchUpdate rewrites the top of book only: levels priced through the
// new touch are gone by definition, deeper levels are kept as-is.
func (f *WsFeed) applyTouchUpdate(tokenID string, d bestBidAskData) {
	bid, bidSize, bidOK := parseLevel(d.BestBid, d.BestBidSize)
	ask, askSize, askOK := parseLevel(d.BestAsk, d.BestAskSize)
	if !bidOK || !askOK {
		return
	}

	f.mu.RLock()
	prior, ok := f.books[tokenID]
	f.mu.RUnlock()
	if !ok {
		return
	}

	bids := make(map[float64]float64)
	for _, l := range prior.Bids {
		if l.Price.Float64() < bid {
			bids[l.Price.Float64()] = l.Shares
		}
	}
	bids[bid] = bidSize
	asks := make(map[float64]float64)
	for _, l := range prior.Asks {
		if l.Price.Float64() > ask {
			asks[l.Price.Float64()] = l.Shares
		}
	}
	asks[ask] = askSize
	f.storeBook(tokenID, levelsOf(bids), levelsOf(asks))
}

func levelMap(levels []domain.OrderbookLevel) map[float64]float64 {
	m := make(map[float64]float64, len(levels))
	for _, l := range levels {
		m[l.Price.Float64()] = l.Shares
	}
	return m
}

func levelsOf(m map[float64]float64) []domain.OrderbookLevel {
	levels := make([]domain.OrderbookLevel, 0, len(m))
	for price, shares := range m {
		levels = append(levels, domain.OrderbookLevel{Price: prob.New(price), Shares: shares})
	}
	return levels
}

func (f *WsFeed) applyFullBook(tokenID string, d bookData) {
	bids := make([]domain.OrderbookLevel, 0, len(d.Bids))
	for _, l := range d.Bids {
		price, size, ok := parseLevel(l.Price, l.Size)
		if !ok {
			continue
		}
		bids = append(bids, domain.OrderbookLevel{Price: prob.New(price), Shares: size})
	}
	asks := make([]domain.OrderbookLevel, 0, len(d.Asks))
	for _, l := range d.Asks {
		price, size, ok := parseLevel(l.Price, l.Size)
		if !ok {
			continue
		}
		asks = append(asks, domain.OrderbookLevel{Price: prob.New(price), Shares: size})
	}
	f.storeBook(tokenID, bids, asks)
}

// storeBook normalizes and caches one token's book, then fans the change
// out to subscribers. Books failing normalization are rejected for this
// cycle.
func (f *WsFeed) storeBook(tokenID string, bids, asks []domain.OrderbookLevel) {
	ob, err := domain.Normalize(tokenID, bids, asks, time.Now())
	if err != nil {
		return
	}
	f.mu.Lock()
	f.books[tokenID] = ob
	f.mu.Unlock()

	f.handlersMu.RLock()
	handlers := append([]app.ChangeHandler(nil), f.onChange...)
	f.handlersMu.RUnlock()
	for _, h := range handlers {
		h(domain.VenuePolymarket, tokenID)
	}
}

func (f *WsFeed) Snapshot(tokenID string, maxAge time.Duration) (domain.Orderbook, bool) {
	f.mu.RLock()
	ob, ok := f.books[tokenID]
	f.mu.RUnlock()
	if !ok || ob.IsStale(time.Now(), maxAge) {
		return domain.Orderbook{}, false
	}
	return ob, true
}

func (f *WsFeed) Status() app.FeedStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return app.FeedStatus{
		Connected:     f.conn.IsConnected(),
		Subscribed:    len(f.subs),
		CacheSize:     len(f.books),
		LastMessageAt: f.conn.LastMessageAt(),
		MessageCount:  f.conn.MessageCount(),
	}
}

func (f *WsFeed) OnChange(handler app.ChangeHandler) {
	f.handlersMu.Lock()
	f.onChange = append(f.onChange, handler)
	f.handlersMu.Unlock()
}

func (f *WsFeed) Stop() error { return f.conn.Close() }
