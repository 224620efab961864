// Package opinion implements the VenueClient and WsFeed ports for the
// second peer venue, plus a marketable-order endpoint for business/arb's
// cross-venue legs and CROSS hedges (same no-signing, top-of-book-only
// trading model as polymarket).
package opinion

import (
	"context"
	"fmt"
	"time"

	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	"github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/apperror"
	"github.com/predikt/arb-agent/internal/circuitbreaker"
	"github.com/predikt/arb-agent/internal/httpclient"
	"github.com/predikt/arb-agent/internal/logger"
	"github.com/predikt/arb-agent/internal/prob"
	"github.com/predikt/arb-agent/internal/ratelimit"
)

type marketOrderPayload struct {
	TokenID string  `json:"tokenId"`
	Side    string  `json:"side"`
	Shares  float64 `json:"shares"`
	Price   float64 `json:"price"`
}

type marketOrderResponse struct {
	OrderID string `json:"orderId"`
}

type marketRecord struct {
	MarketID   string `json:"marketId"`
	Question   string `json:"question"`
	YesTokenID string `json:"yesTokenId"`
	NoTokenID  string `json:"noTokenId"`
}

type orderbookRecord struct {
	Bids []struct {
		Price  float64 `json:"price"`
		Shares float64 `json:"shares"`
	} `json:"bids"`
	Asks []struct {
		Price  float64 `json:"price"`
		Shares float64 `json:"shares"`
	} `json:"asks"`
}

// Client implements app.VenueClient against Opinion's OpenAPI.
type Client struct {
	http    httpclient.Client
	apiKey  string
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.CircuitBreaker[[]domain.Market]
	log     logger.LoggerInterface
}

// Config carries the venue connection details.
type Config struct {
	OpenAPIURL string
	APIKey     string
}

// New builds an Opinion REST client.
func New(cfg Config, log logger.LoggerInterface) (*Client, error) {
	hc, err := httpclient.NewInstrumentedClient(
		httpclient.WithBaseURL(cfg.OpenAPIURL), httpclient.WithProviderName("opinion"))
	if err != nil {
		return nil, err
	}
	return &Client{
		http:    hc,
		apiKey:  cfg.APIKey,
		limiter: ratelimit.New(300),
		breaker: circuitbreaker.New[[]domain.Market](circuitbreaker.DefaultConfig("opinion-rest"), log),
		log:     log,
	}, nil
}

func (c *Client) req() httpclient.Request {
	r := c.http.NewRequest()
	if c.apiKey != "" {
		r.SetHeader("X-API-Key", c.apiKey)
	}
	return r
}

// ListMarkets discovers active markets.
func (c *Client) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.breaker.Execute(func() ([]domain.Market, error) {
		var records []marketRecord
		resp, err := c.req().SetResult(&records).Get(ctx, "/markets")
		if err != nil {
			return nil, apperror.External(apperror.CodeMarketDiscoveryError, "opinion list markets", err)
		}
		if resp.StatusCode == 401 {
			return nil, apperror.Unauthorized(apperror.CodeVenueAuthFailed, "opinion list markets")
		}
		if resp.IsError() {
			return nil, apperror.New(apperror.CodeMarketDiscoveryError,
				apperror.WithContext(fmt.Sprintf("status %d", resp.StatusCode)))
		}
		markets := make([]domain.Market, 0, len(records)*2)
		for _, r := range records {
			base := domain.Market{Venue: domain.VenueOpinion, Question: r.Question, ConditionID: r.MarketID}
			yes := base
			yes.TokenID, yes.Outcome = r.YesTokenID, domain.OutcomeYes
			no := base
			no.TokenID, no.Outcome = r.NoTokenID, domain.OutcomeNo
			markets = append(markets, yes, no)
		}
		return markets, nil
	})
}

// FetchOrderbook fetches the current book.
func (c *Client) FetchOrderbook(ctx context.Context, tokenID string) (domain.Orderbook, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Orderbook{}, err
	}
	var rec orderbookRecord
	resp, err := c.req().SetResult(&rec).Get(ctx, "/markets/"+tokenID+"/orderbook")
	if err != nil {
		return domain.Orderbook{}, apperror.External(apperror.CodeOrderbookFetchFailed, "opinion orderbook", err)
	}
	if resp.IsError() {
		return domain.Orderbook{}, apperror.New(apperror.CodeOrderbookFetchFailed,
			apperror.WithContext(fmt.Sprintf("status %d", resp.StatusCode)))
	}
	bids := make([]domain.OrderbookLevel, 0, len(rec.Bids))
	for _, l := range rec.Bids {
		bids = append(bids, domain.OrderbookLevel{Price: prob.New(l.Price), Shares: l.Shares})
	}
	asks := make([]domain.OrderbookLevel, 0, len(rec.Asks))
	for _, l := range rec.Asks {
		asks = append(asks, domain.OrderbookLevel{Price: prob.New(l.Price), Shares: l.Shares})
	}
	return domain.Normalize(tokenID, bids, asks, time.Now())
}

// SubmitMarketOrder places a marketable order at the current top-of-book.
func (c *Client) SubmitMarketOrder(ctx context.Context, tokenID string, side detectdomain.Side, shares float64) (marketdataapp.SubmitResult, error) {
	if shares <= 0 {
		return marketdataapp.SubmitResult{}, apperror.New(apperror.CodeInvalidTradeSize)
	}
	book, err := c.FetchOrderbook(ctx, tokenID)
	if err != nil {
		return marketdataapp.SubmitResult{}, err
	}
	var price float64
	if side == detectdomain.SideBuy {
		ask, ok := book.BestAsk()
		if !ok {
			return marketdataapp.SubmitResult{}, apperror.New(apperror.CodeInsufficientLiquidity,
				apperror.WithContext("opinion book has no ask side"))
		}
		price = ask.Price.Float64()
	} else {
		bid, ok := book.BestBid()
		if !ok {
			return marketdataapp.SubmitResult{}, apperror.New(apperror.CodeInsufficientLiquidity,
				apperror.WithContext("opinion book has no bid side"))
		}
		price = bid.Price.Float64()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return marketdataapp.SubmitResult{}, err
	}
	payload := marketOrderPayload{TokenID: tokenID, Side: string(side), Shares: shares, Price: price}
	var result marketOrderResponse
	resp, err := c.req().SetBody(payload).SetResult(&result).Post(ctx, "/orders")
	if err != nil {
		return marketdataapp.SubmitResult{}, apperror.External(apperror.CodeOrderRejected, "opinion submit market order", err)
	}
	if resp.StatusCode == 401 {
		return marketdataapp.SubmitResult{}, apperror.Unauthorized(apperror.CodeVenueAuthFailed, "opinion submit market order")
	}
	if resp.StatusCode == 429 {
		return marketdataapp.SubmitResult{}, apperror.New(apperror.CodeVenueRateLimited)
	}
	if resp.IsError() {
		return marketdataapp.SubmitResult{}, apperror.New(apperror.CodeOrderRejected,
			apperror.WithContext(fmt.Sprintf("status %d", resp.StatusCode)))
	}
	return marketdataapp.SubmitResult{Hash: result.OrderID}, nil
}
