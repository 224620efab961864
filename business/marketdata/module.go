// Package marketdata implements the marketdata bounded context: one
// VenueClient, one MarketCatalog, and (when enabled) one WsFeed per venue,
// all merged into a single BookStore.
package marketdata

import (
	"context"

	mapp "github.com/predikt/arb-agent/business/marketdata/app"
	marketdataDI "github.com/predikt/arb-agent/business/marketdata/di"
	"github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/business/marketdata/infra/opinion"
	"github.com/predikt/arb-agent/business/marketdata/infra/polymarket"
	"github.com/predikt/arb-agent/business/marketdata/infra/predict"
	"github.com/predikt/arb-agent/internal/config"
	"github.com/predikt/arb-agent/internal/di"
	"github.com/predikt/arb-agent/internal/logger"
	"github.com/predikt/arb-agent/internal/monolith"
)

// Module implements the marketdata bounded context.
type Module struct{}

func cfgOf(sr di.ServiceRegistry) *config.Config {
	return di.MustGet[*config.Config](sr, "config")
}

func logOf(sr di.ServiceRegistry) logger.LoggerInterface {
	return di.MustGet[logger.LoggerInterface](sr, "logger")
}

// RegisterServices binds lazy factories for every venue client, catalog,
// WS feed, and the merged BookStore.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, marketdataDI.PredictClient, func(sr di.ServiceRegistry) mapp.VenueClient {
		cfg := cfgOf(sr)
		cl, err := predict.New(predict.Config{
			BaseURL: cfg.Predict.APIBaseURL,
			APIKey:  cfg.Predict.APIKey,
			JWT:     cfg.Predict.JWTToken,
		}, logOf(sr))
		if err != nil {
			panic("failed to create predict client: " + err.Error())
		}
		return cl
	})

	di.RegisterToken(c, marketdataDI.PolymarketClient, func(sr di.ServiceRegistry) mapp.VenueClient {
		cfg := cfgOf(sr)
		cl, err := polymarket.New(polymarket.Config{
			GammaURL: cfg.Polymarket.GammaURL,
			ClobURL:  cfg.Polymarket.ClobURL,
		}, logOf(sr))
		if err != nil {
			panic("failed to create polymarket client: " + err.Error())
		}
		return cl
	})

	di.RegisterToken(c, marketdataDI.OpinionClient, func(sr di.ServiceRegistry) mapp.VenueClient {
		cfg := cfgOf(sr)
		cl, err := opinion.New(opinion.Config{
			OpenAPIURL: cfg.Opinion.OpenAPIURL,
			APIKey:     cfg.Opinion.APIKey,
		}, logOf(sr))
		if err != nil {
			panic("failed to create opinion client: " + err.Error())
		}
		return cl
	})

	di.RegisterToken(c, marketdataDI.PredictSubmitter, func(sr di.ServiceRegistry) mapp.OrderSubmitter {
		cfg := cfgOf(sr)
		sub, err := predict.NewSubmitter(predict.SubmitterConfig{
			BaseURL:        cfg.Predict.APIBaseURL,
			APIKey:         cfg.Predict.APIKey,
			JWT:            cfg.Predict.JWTToken,
			PrivateKey:     cfg.Predict.PrivateKey,
			AccountAddress: cfg.Predict.AccountAddress,
		}, logOf(sr))
		if err != nil {
			panic("failed to create predict submitter: " + err.Error())
		}
		return sub
	})

	di.RegisterToken(c, marketdataDI.PredictCatalog, func(sr di.ServiceRegistry) *mapp.MarketCatalog {
		cfg := cfgOf(sr)
		client := di.MustGet[mapp.VenueClient](sr, marketdataDI.PredictClient)
		return mapp.NewMarketCatalog(domain.VenuePredict, client, cfg.Arb.MarketsCacheTTL, cfg.Arb.MaxMarkets, logOf(sr))
	})

	di.RegisterToken(c, marketdataDI.PolymarketCatalog, func(sr di.ServiceRegistry) *mapp.MarketCatalog {
		cfg := cfgOf(sr)
		client := di.MustGet[mapp.VenueClient](sr, marketdataDI.PolymarketClient)
		ttl := cfg.Polymarket.CacheTTL
		if ttl <= 0 {
			ttl = cfg.Arb.MarketsCacheTTL
		}
		return mapp.NewMarketCatalog(domain.VenuePolymarket, client, ttl, cfg.Polymarket.MaxMarkets, logOf(sr))
	})

	di.RegisterToken(c, marketdataDI.OpinionCatalog, func(sr di.ServiceRegistry) *mapp.MarketCatalog {
		cfg := cfgOf(sr)
		client := di.MustGet[mapp.VenueClient](sr, marketdataDI.OpinionClient)
		return mapp.NewMarketCatalog(domain.VenueOpinion, client, cfg.Arb.MarketsCacheTTL, cfg.Opinion.MaxMarkets, logOf(sr))
	})

	di.RegisterToken(c, marketdataDI.PredictWsFeed, func(sr di.ServiceRegistry) mapp.WsFeed {
		cfg := cfgOf(sr)
		if !cfg.Predict.WsEnabled {
			return nil
		}
		catalog := di.MustGet[*mapp.MarketCatalog](sr, marketdataDI.PredictCatalog)
		feed, err := predict.NewWsFeed(predict.WsFeedConfig{
			URL:              cfg.Predict.WsURL,
			TopicKey:         cfg.Predict.WsTopicKey,
			ResolveTopics:    topicResolver(catalog, cfg.Predict.WsTopicKey),
			APIKey:           cfg.Predict.WsAPIKey,
			StaleTimeout:     cfg.Predict.WsStale,
			ResetOnReconnect: cfg.Predict.WsResetOnReconnect,
		}, logOf(sr))
		if err != nil {
			panic("failed to create predict wsfeed: " + err.Error())
		}
		return feed
	})

	di.RegisterToken(c, marketdataDI.PolymarketWsFeed, func(sr di.ServiceRegistry) mapp.WsFeed {
		cfg := cfgOf(sr)
		if !cfg.Polymarket.WsEnabled {
			return nil
		}
		feed, err := polymarket.NewWsFeed(cfg.Polymarket.WsURL, cfg.Polymarket.WsCustomFeature, cfg.Polymarket.WsInitialDump, logOf(sr))
		if err != nil {
			panic("failed to create polymarket wsfeed: " + err.Error())
		}
		return feed
	})

	di.RegisterToken(c, marketdataDI.OpinionWsFeed, func(sr di.ServiceRegistry) mapp.WsFeed {
		cfg := cfgOf(sr)
		if !cfg.Opinion.WsEnabled {
			return nil
		}
		feed, err := opinion.NewWsFeed(cfg.Opinion.WsURL, cfg.Opinion.APIKey, cfg.Opinion.WsHeartbeat, logOf(sr))
		if err != nil {
			panic("failed to create opinion wsfeed: " + err.Error())
		}
		return feed
	})

	di.RegisterToken(c, marketdataDI.BookStore, func(sr di.ServiceRegistry) *mapp.BookStore {
		clients := map[domain.Venue]mapp.VenueClient{
			domain.VenuePredict:    di.MustGet[mapp.VenueClient](sr, marketdataDI.PredictClient),
			domain.VenuePolymarket: di.MustGet[mapp.VenueClient](sr, marketdataDI.PolymarketClient),
			domain.VenueOpinion:    di.MustGet[mapp.VenueClient](sr, marketdataDI.OpinionClient),
		}
		return mapp.NewBookStore(clients, logOf(sr))
	})

	return nil
}

// topicResolver maps tokenIDs to the identifier Predict keys its orderbook
// topics by, looked up from the venue's own market catalog. Tokens the
// catalog doesn't know, or whose record lacks the selected identifier,
// resolve to their own ID.
func topicResolver(catalog *mapp.MarketCatalog, topicKey string) func(tokenIDs []string) map[string]string {
	if topicKey == "" || topicKey == "tokenId" {
		return nil
	}
	return func(tokenIDs []string) map[string]string {
		out := make(map[string]string, len(tokenIDs))
		markets, err := catalog.Markets(context.Background())
		if err != nil {
			return out
		}
		byToken := make(map[string]domain.Market, len(markets))
		for _, m := range markets {
			byToken[m.TokenID] = m
		}
		for _, id := range tokenIDs {
			m, ok := byToken[id]
			if !ok {
				continue
			}
			switch topicKey {
			case "conditionId":
				if m.ConditionID != "" {
					out[id] = m.ConditionID
				}
			case "eventId":
				if m.EventID != "" {
					out[id] = m.EventID
				}
			}
		}
		return out
	}
}

// Startup starts every enabled WS feed, wiring its OnChange handler to push
// fresh snapshots into the shared BookStore, and subscribes each feed to
// the venue's currently known markets.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	sr := mono.Services()
	store := di.MustGet[*mapp.BookStore](sr, marketdataDI.BookStore)

	bindings := []struct {
		feedToken    string
		venue        domain.Venue
		catalogToken string
	}{
		{marketdataDI.PredictWsFeed, domain.VenuePredict, marketdataDI.PredictCatalog},
		{marketdataDI.PolymarketWsFeed, domain.VenuePolymarket, marketdataDI.PolymarketCatalog},
		{marketdataDI.OpinionWsFeed, domain.VenueOpinion, marketdataDI.OpinionCatalog},
	}

	for _, b := range bindings {
		feed, ok := sr.Get(b.feedToken).(mapp.WsFeed)
		if !ok || feed == nil {
			continue
		}
		feed.OnChange(func(v domain.Venue, tokenID string) {
			if ob, ok := feed.Snapshot(tokenID, 0); ok {
				store.Put(v, tokenID, ob)
			}
		})
		if err := feed.Start(ctx); err != nil {
			return err
		}

		catalog := di.MustGet[*mapp.MarketCatalog](sr, b.catalogToken)
		markets, err := catalog.Markets(ctx)
		if err != nil {
			mono.Logger().Warn(ctx, "marketdata: initial catalog fetch failed", "venue", b.venue, "err", err)
			continue
		}
		tokenIDs := make([]string, 0, len(markets))
		for _, mkt := range markets {
			tokenIDs = append(tokenIDs, mkt.TokenID)
		}
		if err := feed.Subscribe(tokenIDs); err != nil {
			mono.Logger().Warn(ctx, "marketdata: initial subscribe failed", "venue", b.venue, "err", err)
		}
	}

	return nil
}
