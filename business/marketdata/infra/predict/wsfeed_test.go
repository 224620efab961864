package predict

import (
	"context"
	"testing"
	"time"

	"github.com/predikt/arb-agent/business/marketdata/domain"
)

func newFeed(t *testing.T, cfg WsFeedConfig) *WsFeed {
	t.Helper()
	if cfg.URL == "" {
		cfg.URL = "ws://127.0.0.1:1" // never dialed in these tests
	}
	f, err := NewWsFeed(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func bookFrame(topic string) []byte {
	return []byte(`{"type":"M","topic":"predictOrderbook/` + topic + `",` +
		`"data":{"orderbook":{"bids":[{"price":0.49,"shares":80}],"asks":[{"price":0.51,"shares":20}]}}}`)
}

func TestHandleMessage_DefaultTokenTopic(t *testing.T) {
	f := newFeed(t, WsFeedConfig{TopicKey: "tokenId"})
	if err := f.Subscribe([]string{"tok-1"}); err != nil {
		t.Fatal(err)
	}

	f.handleMessage(context.Background(), bookFrame("tok-1"))

	ob, ok := f.Snapshot("tok-1", time.Minute)
	if !ok {
		t.Fatal("book not cached under its tokenID")
	}
	bid, _ := ob.BestBid()
	if bid.Price.Float64() != 0.49 {
		t.Fatalf("best bid = %v, want 0.49", bid.Price.Float64())
	}
}

func TestHandleMessage_ConditionTopicFansOutToTokens(t *testing.T) {
	// Under conditionId keying the venue streams one topic per condition;
	// both outcome tokens subscribed under it receive the update.
	f := newFeed(t, WsFeedConfig{
		TopicKey: "conditionId",
		ResolveTopics: func(tokenIDs []string) map[string]string {
			out := make(map[string]string, len(tokenIDs))
			for _, id := range tokenIDs {
				out[id] = "cond-1"
			}
			return out
		},
	})
	if err := f.Subscribe([]string{"yes-tok", "no-tok"}); err != nil {
		t.Fatal(err)
	}

	var changed []string
	f.OnChange(func(_ domain.Venue, tokenID string) {
		changed = append(changed, tokenID)
	})

	f.handleMessage(context.Background(), bookFrame("cond-1"))

	if len(changed) != 2 {
		t.Fatalf("want a change event per token, got %v", changed)
	}

	for _, id := range []string{"yes-tok", "no-tok"} {
		if _, ok := f.Snapshot(id, time.Minute); !ok {
			t.Fatalf("book for %s not cached from condition topic", id)
		}
	}
	if _, ok := f.Snapshot("cond-1", time.Minute); ok {
		t.Fatal("condition ID must not appear as a cached tokenID")
	}

	st := f.Status()
	if st.Subscribed != 2 {
		t.Fatalf("Subscribed = %d, want 2 tokens", st.Subscribed)
	}
}

func TestTopicsFor_FallsBackToTokenID(t *testing.T) {
	f := newFeed(t, WsFeedConfig{
		TopicKey: "eventId",
		ResolveTopics: func(tokenIDs []string) map[string]string {
			return map[string]string{"known": "event-7"}
		},
	})
	topics := f.topicsFor([]string{"known", "unknown"})
	if topics["known"] != "event-7" {
		t.Fatalf("known token topic = %q, want event-7", topics["known"])
	}
	if topics["unknown"] != "unknown" {
		t.Fatalf("unresolved token must fall back to its own ID, got %q", topics["unknown"])
	}
}
