package app

import (
	"context"
	"time"

	"github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/cache"
	"github.com/predikt/arb-agent/internal/logger"
)

const catalogCacheKey = "markets"

// MarketCatalog is a TTL-cached list of a venue's active markets, refreshed
// from the venue's VenueClient on expiry. Predict's catalog backs
// the arb scanner's periodic sample; peer-venue catalogs back cross-venue
// matching.
type MarketCatalog struct {
	venue  domain.Venue
	client VenueClient
	cache  *cache.Cache[string, []domain.Market]
	limit  int
	log    logger.LoggerInterface
}

// NewMarketCatalog builds a catalog for venue backed by client, caching the
// market list for ttl. limit bounds the sample kept per refresh (the
// arbMaxMarkets / per-venue maxMarkets knobs); 0 keeps everything.
func NewMarketCatalog(venue domain.Venue, client VenueClient, ttl time.Duration, limit int, log logger.LoggerInterface) *MarketCatalog {
	return &MarketCatalog{
		venue:  venue,
		client: client,
		cache:  cache.New[string, []domain.Market](ttl),
		limit:  limit,
		log:    log,
	}
}

// Markets returns the cached market list, refreshing it through the venue
// client on a cache miss.
func (c *MarketCatalog) Markets(ctx context.Context) ([]domain.Market, error) {
	if cached, ok := c.cache.Get(ctx, catalogCacheKey); ok {
		return cached, nil
	}
	markets, err := c.client.ListMarkets(ctx)
	if err != nil {
		if c.log != nil {
			c.log.Warn(ctx, "market_catalog: refresh failed", "venue", c.venue, "err", err)
		}
		return nil, err
	}
	if c.limit > 0 && len(markets) > c.limit {
		markets = markets[:c.limit]
	}
	c.cache.Set(ctx, catalogCacheKey, markets, 0)
	return markets, nil
}

// Invalidate forces the next Markets call to refresh.
func (c *MarketCatalog) Invalidate() {
	c.cache.Delete(catalogCacheKey)
}
