package app

import (
	"context"
	"sync"
	"time"

	"github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/logger"
)

const changeQueueSize = 1024

type bookKey struct {
	venue   domain.Venue
	tokenID string
}

// ChangeEvent is delivered to BookStore subscribers after a Put.
type ChangeEvent struct {
	Venue   domain.Venue
	TokenID string
}

// BookStore is the merged, thread-safe read-mostly view of order books
// across venues. WS feeds push fresh snapshots via Put; readers that
// find a stale or absent entry fall back to a REST fetch through the
// venue's VenueClient and write the result back through Put.
type BookStore struct {
	mu      sync.RWMutex
	books   map[bookKey]domain.Orderbook
	clients map[domain.Venue]VenueClient
	log     logger.LoggerInterface

	subMu          sync.Mutex
	subscribers    []chan ChangeEvent
	droppedChanges uint64
}

// NewBookStore builds a BookStore backed by the given per-venue REST
// clients, used for cold starts and stale-WS fallback.
func NewBookStore(clients map[domain.Venue]VenueClient, log logger.LoggerInterface) *BookStore {
	return &BookStore{
		books:   make(map[bookKey]domain.Orderbook),
		clients: clients,
		log:     log,
	}
}

// Put stores ob for (venue, tokenID) if it is not older than what's
// already cached — the book cache never regresses to an older updatedAt —
// and notifies subscribers.
func (s *BookStore) Put(venue domain.Venue, tokenID string, ob domain.Orderbook) {
	key := bookKey{venue, tokenID}

	s.mu.Lock()
	existing, ok := s.books[key]
	if ok && ob.UpdatedAt.Before(existing.UpdatedAt) {
		s.mu.Unlock()
		return
	}
	s.books[key] = ob
	s.mu.Unlock()

	s.publish(ChangeEvent{Venue: venue, TokenID: tokenID})
}

// Get returns the cached book for (venue, tokenID) if it is within maxAge;
// otherwise it performs a REST fetch through the venue's client, caches the
// result, and returns it.
func (s *BookStore) Get(ctx context.Context, venue domain.Venue, tokenID string, maxAge time.Duration) (domain.Orderbook, error) {
	s.mu.RLock()
	ob, ok := s.books[bookKey{venue, tokenID}]
	s.mu.RUnlock()

	if ok && !ob.IsStale(time.Now(), maxAge) {
		return ob, nil
	}

	client, ok := s.clients[venue]
	if !ok {
		return ob, nil
	}

	fresh, err := client.FetchOrderbook(ctx, tokenID)
	if err != nil {
		if s.log != nil {
			s.log.Warn(ctx, "book_store: rest fallback failed", "venue", venue, "token", tokenID, "err", err)
		}
		return ob, err
	}
	s.Put(venue, tokenID, fresh)
	return fresh, nil
}

// Snapshot returns the cached book without triggering a REST fetch.
func (s *BookStore) Snapshot(venue domain.Venue, tokenID string) (domain.Orderbook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ob, ok := s.books[bookKey{venue, tokenID}]
	return ob, ok
}

// Subscribe registers a new change-event channel. The returned channel is
// bounded; if the subscriber can't keep up, events are dropped and counted
// rather than blocking Put.
func (s *BookStore) Subscribe() <-chan ChangeEvent {
	ch := make(chan ChangeEvent, changeQueueSize)
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subMu.Unlock()
	return ch
}

// DroppedChanges returns the number of change events dropped due to a full
// subscriber channel.
func (s *BookStore) DroppedChanges() uint64 {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.droppedChanges
}

func (s *BookStore) publish(ev ChangeEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			s.droppedChanges++
		}
	}
}
