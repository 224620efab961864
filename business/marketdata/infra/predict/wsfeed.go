package predict

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

const topicPrefix = "predictOrderbook/"

// subscribeMsg mirrors Predict's JSON-RPC-ish subscribe envelope.
type subscribeMsg struct {
	Method    string   `json:"method"`
	RequestID int64    `json:"requestId"`
	Params    []string `json:"params"`
}

type inboundMsg struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  struct {
		Orderbook struct {
			Bids []struct {
				Price  float64 `json:"price"`
				Shares float64 `json:"shares"`
			} `json:"bids"`
			Asks []struct {
				Price  float64 `json:"price"`
				Shares float64 `json:"shares"`
			} `json:"asks"`
		} `json:"orderbook"`
	} `json:"data"`
}

// WsFeedConfig configures a Predict WsFeed.
type WsFeedConfig struct {
	URL string
	// TopicKey selects which identifier the venue keys its orderbook
	// topics by: tokenId (default), conditionId, or eventId.
	TopicKey string
	// ResolveTopics maps tokenIDs to their topic identifier when TopicKey
	// is not tokenId; tokens it cannot place fall back to their own ID.
	ResolveTopics    func(tokenIDs []string) map[string]string
	APIKey           string
	StaleTimeout     time.Duration
	ResetOnReconnect bool
}

// WsFeed implements app.WsFeed for Predict: one persistent connection,
// replaying the full subscription set as subscribe messages on (re)open,
// with the book cache cleared on reconnect unless ResetOnReconnect is off.
// The cache stays keyed by tokenID even when the venue's topics are keyed
// by condition or event ID; subs/topicTokens carry the two-way mapping.
type WsFeed struct {
	conn             *wsconn.Client
	topicKey         string
	resolveTopics    func(tokenIDs []string) map[string]string
	resetOnReconnect bool

	mu          sync.RWMutex
	books       map[string]domain.Orderbook // tokenID -> latest book
	subs        map[string]string           // tokenID -> topic
	topicTokens map[string]map[string]bool  // topic -> subscribed tokenIDs

	handlersMu sync.RWMutex
	onChange   []app.ChangeHandler

	requestSeq int64
	log        logger.LoggerInterface
}

// NewWsFeed builds a Predict WsFeed.
func NewWsFeed(cfg WsFeedConfig, log logger.LoggerInterface) (*WsFeed, error) {
	wc := wsconn.DefaultConfig(cfg.URL, "predict")
	wc.StaleTimeout = cfg.StaleTimeout
	if cfg.APIKey != "" {
		wc.Headers = http.Header{"X-API-Key": []string{cfg.APIKey}}
	}
	conn, err := wsconn.New(wc)
	if err != nil {
		return nil, err
	}
	f := &WsFeed{
		conn:             conn,
		topicKey:         cfg.TopicKey,
		resolveTopics:    cfg.ResolveTopics,
		resetOnReconnect: cfg.ResetOnReconnect,
		books:            make(map[string]domain.Orderbook),
		subs:             make(map[string]string),
		topicTokens:      make(map[string]map[string]bool),
		log:              log,
	}
	conn.OnMessage(f.handleMessage)
	conn.OnStateChange(f.handleStateChange)
	return f, nil
}

// Start establishes the connection in the background with retry/backoff.
func (f *WsFeed) Start(ctx context.Context) error {
	go func() {
		if err := f.conn.ConnectWithRetry(ctx); err != nil && f.log != nil {
			f.log.Error(ctx, "predict wsfeed: connect failed permanently", "err", err)
		}
	}()
	return nil
}

// topicsFor resolves each token to its subscribe topic under the configured
// TopicKey. The identity mapping applies for tokenId and for any token the
// resolver cannot place.
func (f *WsFeed) topicsFor(tokenIDs []string) map[string]string {
	out := make(map[string]string, len(tokenIDs))
	for _, id := range tokenIDs {
		out[id] = id
	}
	if f.topicKey == "" || f.topicKey == "tokenId" || f.resolveTopics == nil {
		return out
	}
	for id, topic := range f.resolveTopics(tokenIDs) {
		if topic != "" {
			out[id] = topic
		}
	}
	return out
}

// Subscribe registers tokenIDs and subscribes to each one's topic;
// idempotent, since resubscribing an already-subscribed topic is a harmless
// duplicate send.
func (f *WsFeed) Subscribe(tokenIDs []string) error {
	topics := f.topicsFor(tokenIDs)

	f.mu.Lock()
	unique := make([]string, 0, len(tokenIDs))
	seen := make(map[string]bool, len(tokenIDs))
	for _, id := range tokenIDs {
		topic := topics[id]
		f.subs[id] = topic
		set, ok := f.topicTokens[topic]
		if !ok {
			set = make(map[string]bool)
			f.topicTokens[topic] = set
		}
		set[id] = true
		if !seen[topic] {
			seen[topic] = true
			unique = append(unique, topic)
		}
	}
	f.mu.Unlock()

	if !f.conn.IsConnected() {
		return nil
	}
	return f.sendSubscribe(unique)
}

func (f *WsFeed) sendSubscribe(topics []string) error {
	ctx := context.Background()
	for _, topic := range topics {
		f.requestSeq++
		msg := subscribeMsg{
			Method:    "subscribe",
			RequestID: f.requestSeq,
			Params:    []string{topicPrefix + topic},
		}
		if err := f.conn.SendJSON(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (f *WsFeed) handleStateChange(state wsconn.State, err error) {
	if state == wsconn.StateConnected {
		f.mu.RLock()
		topics := make([]string, 0, len(f.topicTokens))
		for topic := range f.topicTokens {
			topics = append(topics, topic)
		}
		f.mu.RUnlock()
		_ = f.sendSubscribe(topics)
	}
	if state == wsconn.StateReconnecting && f.resetOnReconnect {
		f.mu.Lock()
		f.books = make(map[string]domain.Orderbook)
		f.mu.Unlock()
	}
}

func (f *WsFeed) handleMessage(ctx context.Context, raw []byte) {
	var msg inboundMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return // malformed message: dropped, not surfaced
	}
	if msg.Type == "M" && msg.Topic == "heartbeat" {
		// The venue expects its heartbeat frame echoed back verbatim.
		_ = f.conn.Send(ctx, raw)
		return
	}
	if len(msg.Topic) <= len(topicPrefix) || msg.Topic[:len(topicPrefix)] != topicPrefix {
		return
	}
	topic := msg.Topic[len(topicPrefix):]

	f.mu.RLock()
	tokens := make([]string, 0, len(f.topicTokens[topic]))
	for id := range f.topicTokens[topic] {
		tokens = append(tokens, id)
	}
	f.mu.RUnlock()
	if len(tokens) == 0 {
		// A push for a topic nothing registered; under the default key the
		// topic is the token itself.
		tokens = []string{topic}
	}

	bids := make([]domain.OrderbookLevel, 0, len(msg.Data.Orderbook.Bids))
	for _, l := range msg.Data.Orderbook.Bids {
		bids = append(bids, domain.OrderbookLevel{Price: prob.New(l.Price), Shares: l.Shares})
	}
	asks := make([]domain.OrderbookLevel, 0, len(msg.Data.Orderbook.Asks))
	for _, l := range msg.Data.Orderbook.Asks {
		asks = append(asks, domain.OrderbookLevel{Price: prob.New(l.Price), Shares: l.Shares})
	}

	for _, tokenID := range tokens {
		ob, err := domain.Normalize(tokenID, bids, asks, time.Now())
		if err != nil {
			continue // invariant violation: reject this cycle's update
		}

		f.mu.Lock()
		f.books[tokenID] = ob
		f.mu.Unlock()

		f.handlersMu.RLock()
		handlers := append([]app.ChangeHandler(nil), f.onChange...)
		f.handlersMu.RUnlock()
		for _, h := range handlers {
			h(domain.VenuePredict, tokenID)
		}
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

// Stop closes the underlying connection.
func (f *WsFeed) Stop() error {
	return f.conn.Close()
}
