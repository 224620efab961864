package opinion

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/predikt/arb-agent/business/marketdata/app"
	"github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/logger"
	"github.com/predikt/arb-agent/internal/prob"
	"github.com/predikt/arb-agent/internal/wsconn"
)

// channelMsg mirrors Opinion's channel subscription envelope: one message
// per market channel, authenticated out-of-band via the connection's API
// key header rather than a field on the message itself.
type channelMsg struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

type heartbeatMsg struct {
	Action string `json:"action"`
}

type orderbookMsg struct {
	Channel string `json:"channel"`
	Bids    []struct {
		Price  float64 `json:"price"`
		Shares float64 `json:"shares"`
	} `json:"bids"`
	Asks []struct {
		Price  float64 `json:"price"`
		Shares float64 `json:"shares"`
	} `json:"asks"`
}

// WsFeed implements app.WsFeed for Opinion: per-market channel
// subscriptions over a single connection, kept alive by a periodic
// client-initiated heartbeat (the venue has no server ping of its own).
type WsFeed struct {
	conn      *wsconn.Client
	apiKey    string
	heartbeat time.Duration

	mu    sync.RWMutex
	books map[string]domain.Orderbook
	subs  map[string]bool

	handlersMu sync.RWMutex
	onChange   []app.ChangeHandler

	stopHeartbeat chan struct{}
	log           logger.LoggerInterface
}

// NewWsFeed builds an Opinion WsFeed. The API key is sent as a header on
// the initial handshake by wsconn's dialer configuration; heartbeat is the
// client-side keepalive interval required by the venue.
func NewWsFeed(url, apiKey string, heartbeat time.Duration, log logger.LoggerInterface) (*WsFeed, error) {
	cfg := wsconn.DefaultConfig(url, "opinion")
	if apiKey != "" {
		cfg.Headers = http.Header{"X-API-Key": []string{apiKey}}
	}
	conn, err := wsconn.New(cfg)
	if err != nil {
		return nil, err
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	f := &WsFeed{
		conn:          conn,
		apiKey:        apiKey,
		heartbeat:     heartbeat,
		books:         make(map[string]domain.Orderbook),
		subs:          make(map[string]bool),
		stopHeartbeat: make(chan struct{}),
		log:           log,
	}
	conn.OnMessage(f.handleMessage)
	conn.OnStateChange(f.handleStateChange)
	return f, nil
}

// Start establishes the connection in the background and runs the
// heartbeat loop until Stop is called.
func (f *WsFeed) Start(ctx context.Context) error {
	go func() {
		if err := f.conn.ConnectWithRetry(ctx); err != nil && f.log != nil {
			f.log.Error(ctx, "opinion wsfeed: connect failed permanently", "err", err)
		}
	}()
	go f.runHeartbeat(ctx)
	return nil
}

func (f *WsFeed) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(f.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopHeartbeat:
			return
		case <-ticker.C:
			if f.conn.IsConnected() {
				_ = f.conn.SendJSON(ctx, heartbeatMsg{Action: "heartbeat"})
			}
		}
	}
}

// Subscribe opens a channel per tokenID; idempotent since a duplicate
// subscribe request is a harmless no-op on the venue side.
func (f *WsFeed) Subscribe(tokenIDs []string) error {
	f.mu.Lock()
	for _, id := range tokenIDs {
		f.subs[id] = true
	}
	f.mu.Unlock()
	if !f.conn.IsConnected() {
		return nil
	}
	return f.sendSubscribe(tokenIDs)
}

func (f *WsFeed) sendSubscribe(tokenIDs []string) error {
	ctx := context.Background()
	for _, id := range tokenIDs {
		if err := f.conn.SendJSON(ctx, channelMsg{Action: "subscribe", Channel: "orderbook." + id}); err != nil {
			return err
		}
	}
	return nil
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
		_ = f.sendSubscribe(ids)
	}
}

func (f *WsFeed) handleMessage(ctx context.Context, raw []byte) {
	var msg orderbookMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	const prefix = "orderbook."
	if len(msg.Channel) <= len(prefix) || msg.Channel[:len(prefix)] != prefix {
		return
	}
	tokenID := msg.Channel[len(prefix):]

	bids := make([]domain.OrderbookLevel, 0, len(msg.Bids))
	for _, l := range msg.Bids {
		bids = append(bids, domain.OrderbookLevel{Price: prob.New(l.Price), Shares: l.Shares})
	}
	asks := make([]domain.OrderbookLevel, 0, len(msg.Asks))
	for _, l := range msg.Asks {
		asks = append(asks, domain.OrderbookLevel{Price: prob.New(l.Price), Shares: l.Shares})
	}
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
		h(domain.VenueOpinion, tokenID)
	}
}

// Snapshot returns the cached book if fresh within maxAge.
func (f *WsFeed) Snapshot(tokenID string, maxAge time.Duration) (domain.Orderbook, bool) {
	f.mu.RLock()
	ob, ok := f.books[tokenID]
	f.mu.RUnlock()
	if !ok || ob.IsStale(time.Now(), maxAge) {
		return domain.Orderbook{}, false
	}
	return ob, true
}

// Status reports feed health for the supervisor's watchdog.
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

// OnChange registers a callback invoked after a book mutation.
func (f *WsFeed) OnChange(handler app.ChangeHandler) {
	f.handlersMu.Lock()
	f.onChange = append(f.onChange, handler)
	f.handlersMu.Unlock()
}

// Stop closes the heartbeat loop and the underlying connection.
func (f *WsFeed) Stop() error {
	close(f.stopHeartbeat)
	return f.conn.Close()
}
