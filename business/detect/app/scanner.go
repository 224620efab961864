package app

import (
	"context"
	"sync"
	"time"

	"github.com/predikt/arb-agent/business/detect/domain"
	mappingdomain "github.com/predikt/arb-agent/business/mapping/domain"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
)

// CatalogSource lists a venue's currently known markets, matching
// marketdata.app.MarketCatalog's Markets method.
type CatalogSource interface {
	Markets(ctx context.Context) ([]mdomain.Market, error)
}

// BookSource looks up a token's current book, matching
// marketdata.app.BookStore's Snapshot method.
type BookSource interface {
	Snapshot(venue mdomain.Venue, tokenID string) (mdomain.Orderbook, bool)
}

// BookFetcher refreshes a token's book through the REST fallback when the
// cached copy is stale, matching marketdata.app.BookStore's Get method.
type BookFetcher interface {
	Get(ctx context.Context, venue mdomain.Venue, tokenID string, maxAge time.Duration) (mdomain.Orderbook, error)
}

// Scanner runs every enabled detector over the current market snapshot and
// merges their results into one edge-sorted list (spec's L4 Detectors
// stage feeding L5 ArbMonitor).
type Scanner struct {
	Catalogs  []CatalogSource
	Books     BookSource
	Detectors []domain.Detector

	// Fetcher, when set, pre-warms each market's book before the detectors
	// run, so a cold start or a stale WS cache still produces a usable
	// snapshot. Concurrency bounds the worker pool; MaxAge is the freshness
	// window below which the cached copy is used as-is.
	Fetcher     BookFetcher
	Concurrency int
	MaxAge      time.Duration
}

// NewScanner builds a Scanner over the given catalogs, book source, and
// detector set. A nil detector in detectors is skipped, so callers can
// build the slice conditionally (e.g. omit Dependency when its solver path
// is unconfigured).
func NewScanner(books BookSource, catalogs []CatalogSource, detectors ...domain.Detector) *Scanner {
	live := make([]domain.Detector, 0, len(detectors))
	for _, d := range detectors {
		if d != nil {
			live = append(live, d)
		}
	}
	return &Scanner{Catalogs: catalogs, Books: books, Detectors: live}
}

// Scan fetches every catalog's current markets, then runs each detector
// against the combined set, returning all opportunities sorted by
// descending edge.
func (s *Scanner) Scan(ctx context.Context) ([]domain.Opportunity, error) {
	var markets []mdomain.Market
	for _, cat := range s.Catalogs {
		m, err := cat.Markets(ctx)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m...)
	}

	s.prefetchBooks(ctx, markets)

	lookup := domain.BookLookup(s.Books.Snapshot)

	var out []domain.Opportunity
	for _, d := range s.Detectors {
		out = append(out, d.Scan(markets, lookup)...)
	}
	sortByEdgeDesc(out)
	return out, nil
}

// ScanSubset runs the detectors against only the market groups touched by
// the given venue-qualified token keys (domain.Market.Key() shape,
// "venue:tokenID"). Each dirty token is expanded to its full market group
// (same condition, event, or normalized question) so YES/NO parity and
// multi-outcome detectors see every sibling outcome, not just the one
// whose book moved.
func (s *Scanner) ScanSubset(ctx context.Context, dirtyKeys map[string]struct{}) ([]domain.Opportunity, error) {
	if len(dirtyKeys) == 0 {
		return nil, nil
	}

	var markets []mdomain.Market
	for _, cat := range s.Catalogs {
		m, err := cat.Markets(ctx)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m...)
	}

	groups := make(map[string]struct{})
	for _, m := range markets {
		_, hit := dirtyKeys[m.Key()]
		if !hit {
			// A bare tokenID key matches across venues, for callers that
			// only know the token (preflight on an intra-venue pair).
			_, hit = dirtyKeys[m.TokenID]
		}
		if hit {
			for _, k := range groupKeysOf(m) {
				groups[k] = struct{}{}
			}
		}
	}
	subset := make([]mdomain.Market, 0, len(groups)*2)
	for _, m := range markets {
		for _, k := range groupKeysOf(m) {
			if _, ok := groups[k]; ok {
				subset = append(subset, m)
				break
			}
		}
	}
	if len(subset) == 0 {
		return nil, nil
	}

	s.prefetchBooks(ctx, subset)

	lookup := domain.BookLookup(s.Books.Snapshot)
	var out []domain.Opportunity
	for _, d := range s.Detectors {
		out = append(out, d.Scan(subset, lookup)...)
	}
	sortByEdgeDesc(out)
	return out, nil
}

// groupKeysOf returns every identity a market can be grouped under: its
// condition/event pair key plus its normalized question, which is the only
// key a cross-venue counterpart (with a different condition ID) can share.
// A market with none of those still matches itself.
func groupKeysOf(m mdomain.Market) []string {
	keys := make([]string, 0, 2)
	if k := pairKey(m); k != "" {
		keys = append(keys, k)
	}
	if m.Question != "" {
		keys = append(keys, "q:"+mappingdomain.NormalizeQuestion(m.Question))
	}
	if len(keys) == 0 {
		keys = append(keys, "t:"+m.Key())
	}
	return keys
}

// prefetchBooks refreshes every market's book through the Fetcher with a
// bounded worker pool. Fetch failures are tolerated: the market simply has
// no snapshot this cycle and the detectors skip it.
func (s *Scanner) prefetchBooks(ctx context.Context, markets []mdomain.Market) {
	if s.Fetcher == nil {
		return
	}
	workers := s.Concurrency
	if workers <= 0 {
		workers = 4
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, m := range markets {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(venue mdomain.Venue, tokenID string) {
			defer wg.Done()
			defer func() { <-sem }()
			_, _ = s.Fetcher.Get(ctx, venue, tokenID, s.MaxAge)
		}(m.Venue, m.TokenID)
	}
	wg.Wait()
}
