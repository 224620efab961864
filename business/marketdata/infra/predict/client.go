// Package predict implements the VenueClient and WsFeed ports for the
// primary market-making venue.
package predict

import (
	"context"
	"fmt"
	"time"

	"github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/apperror"
	"github.com/predikt/arb-agent/internal/circuitbreaker"
	"github.com/predikt/arb-agent/internal/httpclient"
	"github.com/predikt/arb-agent/internal/logger"
	"github.com/predikt/arb-agent/internal/prob"
	"github.com/predikt/arb-agent/internal/ratelimit"
)

// marketRecord is the permissively-shaped wire record from /v1/markets;
// unrecognized fields are preserved in Metadata by Normalize.
type marketRecord struct {
	TokenID      string  `json:"tokenId"`
	Question     string  `json:"question"`
	ConditionID  string  `json:"conditionId"`
	EventID      string  `json:"eventId"`
	Outcome      string  `json:"outcome"`
	NegRisk      bool    `json:"isNegRisk"`
	YieldBearing bool    `json:"isYieldBearing"`
	FeeRateBps   float64 `json:"feeRateBps"`
	Activation   *struct {
		Active         bool    `json:"active"`
		MinShares      float64 `json:"minShares"`
		MaxSpreadCents float64 `json:"maxSpreadCents"`
	} `json:"activation"`
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

// Client implements app.VenueClient against Predict's REST API.
type Client struct {
	http    httpclient.Client
	baseURL string
	apiKey  string
	jwt     string
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.CircuitBreaker[[]domain.Market]
	log     logger.LoggerInterface
}

// Config carries the venue connection details.
type Config struct {
	BaseURL string
	APIKey  string
	JWT     string
}

// New builds a Predict REST client.
func New(cfg Config, log logger.LoggerInterface) (*Client, error) {
	hc, err := httpclient.NewInstrumentedClient(
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithProviderName("predict"),
		httpclient.WithRequestTimeout(10*time.Second), // matches defaultTimeoutMs
	)
	if err != nil {
		return nil, err
	}
	c := &Client{
		http:    hc,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		jwt:     cfg.JWT,
		limiter: ratelimit.New(300),
		log:     log,
	}
	c.breaker = circuitbreaker.New[[]domain.Market](circuitbreaker.DefaultConfig("predict-rest"), log)
	return c, nil
}

func (c *Client) authedRequest() httpclient.Request {
	req := c.http.NewRequest()
	if c.apiKey != "" {
		req.SetHeader("X-API-Key", c.apiKey)
	}
	if c.jwt != "" {
		req.SetHeader("Authorization", "Bearer "+c.jwt)
	}
	return req
}

// ListMarkets discovers active markets, trying /v1/markets then falling
// back to /markets on 404/405/501 per the venue's probe convention.
func (c *Client) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := c.breaker.Execute(func() ([]domain.Market, error) {
		var records []marketRecord
		resp, err := c.authedRequest().SetResult(&records).Get(ctx, "/v1/markets")
		if err != nil {
			return nil, apperror.External(apperror.CodeMarketDiscoveryError, "predict list markets", err)
		}
		if resp.StatusCode == 404 || resp.StatusCode == 405 || resp.StatusCode == 501 {
			records = nil
			resp, err = c.authedRequest().SetResult(&records).Get(ctx, "/markets")
			if err != nil {
				return nil, apperror.External(apperror.CodeMarketDiscoveryError, "predict list markets fallback", err)
			}
		}
		if resp.StatusCode == 401 {
			return nil, apperror.Unauthorized(apperror.CodeVenueAuthFailed, "predict list markets")
		}
		if resp.StatusCode == 429 {
			return nil, apperror.New(apperror.CodeVenueRateLimited)
		}
		if resp.IsError() {
			return nil, apperror.New(apperror.CodeMarketDiscoveryError,
				apperror.WithContext(fmt.Sprintf("status %d", resp.StatusCode)))
		}
		return normalizeMarkets(records), nil
	})
	return result, err
}

func normalizeMarkets(records []marketRecord) []domain.Market {
	markets := make([]domain.Market, 0, len(records))
	for _, r := range records {
		if r.TokenID == "" {
			continue
		}
		m := domain.Market{
			Venue:          domain.VenuePredict,
			TokenID:        r.TokenID,
			Question:       r.Question,
			ConditionID:    r.ConditionID,
			EventID:        r.EventID,
			Outcome:        domain.Outcome(r.Outcome),
			IsNegRisk:      r.NegRisk,
			IsYieldBearing: r.YieldBearing,
			FeeRateBps:     r.FeeRateBps,
		}
		if r.Activation != nil {
			m.Activation = &domain.Activation{
				Active:         r.Activation.Active,
				MinShares:      r.Activation.MinShares,
				MaxSpreadCents: r.Activation.MaxSpreadCents,
			}
		}
		markets = append(markets, m)
	}
	return markets
}

// FetchOrderbook is the REST fallback path for cold starts and WS-disabled
// operation.
func (c *Client) FetchOrderbook(ctx context.Context, tokenID string) (domain.Orderbook, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Orderbook{}, err
	}
	var rec orderbookRecord
	resp, err := c.authedRequest().SetResult(&rec).Get(ctx, "/v1/markets/"+tokenID+"/orderbook")
	if err != nil {
		return domain.Orderbook{}, apperror.External(apperror.CodeOrderbookFetchFailed, "predict orderbook", err)
	}
	if resp.StatusCode == 404 || resp.StatusCode == 405 || resp.StatusCode == 501 {
		rec = orderbookRecord{}
		resp, err = c.authedRequest().SetResult(&rec).Get(ctx, "/orderbooks/"+tokenID)
		if err != nil {
			return domain.Orderbook{}, apperror.External(apperror.CodeOrderbookFetchFailed, "predict orderbook fallback", err)
		}
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
