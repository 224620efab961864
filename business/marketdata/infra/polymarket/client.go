// Package polymarket implements the VenueClient and WsFeed ports for the
// first peer venue, plus a marketable-order endpoint used only by
// business/arb's cross-venue legs and CROSS hedges (no resting/limit orders,
// no signing flow - this venue takes simple top-of-book market orders).
package polymarket

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

type gammaMarket struct {
	ConditionID string `json:"conditionId"`
	Question    string `json:"question"`
	YesTokenID  string `json:"yesTokenId"`
	NoTokenID   string `json:"noTokenId"`
	NegRisk     bool   `json:"negRisk"`
}

type clobBook struct {
	Bids []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"asks"`
}

// Client implements app.VenueClient against Polymarket's Gamma (discovery)
// and CLOB (orderbook) REST APIs.
type Client struct {
	gamma   httpclient.Client
	clob    httpclient.Client
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.CircuitBreaker[[]domain.Market]
	log     logger.LoggerInterface
}

// Config carries the venue connection details.
type Config struct {
	GammaURL string
	ClobURL  string
}

// New builds a Polymarket REST client.
func New(cfg Config, log logger.LoggerInterface) (*Client, error) {
	gamma, err := httpclient.NewInstrumentedClient(
		httpclient.WithBaseURL(cfg.GammaURL), httpclient.WithProviderName("polymarket-gamma"))
	if err != nil {
		return nil, err
	}
	clob, err := httpclient.NewInstrumentedClient(
		httpclient.WithBaseURL(cfg.ClobURL), httpclient.WithProviderName("polymarket-clob"))
	if err != nil {
		return nil, err
	}
	return &Client{
		gamma:   gamma,
		clob:    clob,
		limiter: ratelimit.New(300),
		breaker: circuitbreaker.New[[]domain.Market](circuitbreaker.DefaultConfig("polymarket-rest"), log),
		log:     log,
	}, nil
}

// ListMarkets discovers active markets via the Gamma API, emitting one
// domain.Market per YES/NO token.
func (c *Client) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.breaker.Execute(func() ([]domain.Market, error) {
		var records []gammaMarket
		resp, err := c.gamma.NewRequest().SetResult(&records).Get(ctx, "/markets")
		if err != nil {
			return nil, apperror.External(apperror.CodeMarketDiscoveryError, "polymarket gamma markets", err)
		}
		if resp.IsError() {
			return nil, apperror.New(apperror.CodeMarketDiscoveryError,
				apperror.WithContext(fmt.Sprintf("status %d", resp.StatusCode)))
		}
		markets := make([]domain.Market, 0, len(records)*2)
		for _, r := range records {
			if r.YesTokenID == "" || r.NoTokenID == "" {
				continue
			}
			base := domain.Market{
				Venue:       domain.VenuePolymarket,
				Question:    r.Question,
				ConditionID: r.ConditionID,
				IsNegRisk:   r.NegRisk,
			}
			yes := base
			yes.TokenID, yes.Outcome = r.YesTokenID, domain.OutcomeYes
			no := base
			no.TokenID, no.Outcome = r.NoTokenID, domain.OutcomeNo
			markets = append(markets, yes, no)
		}
		return markets, nil
	})
}

// FetchOrderbook fetches the current book from the CLOB REST endpoint.
func (c *Client) FetchOrderbook(ctx context.Context, tokenID string) (domain.Orderbook, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Orderbook{}, err
	}
	var book clobBook
	resp, err := c.clob.NewRequest().SetResult(&book).SetQueryParam("token_id", tokenID).Get(ctx, "/book")
	if err != nil {
		return domain.Orderbook{}, apperror.External(apperror.CodeOrderbookFetchFailed, "polymarket clob book", err)
	}
	if resp.IsError() {
		return domain.Orderbook{}, apperror.New(apperror.CodeOrderbookFetchFailed,
			apperror.WithContext(fmt.Sprintf("status %d", resp.StatusCode)))
	}
	bids := parseLevels(book.Bids)
	asks := parseLevels(book.Asks)
	return domain.Normalize(tokenID, bids, asks, time.Now())
}

// SubmitMarketOrder places a marketable order at the current top-of-book:
// BUY crosses the best ask, SELL crosses the best bid. There is no resting
// order or cancel path on this venue in this system, only the single-shot
// market fill business/arb needs for its cross-venue legs and CROSS hedges.
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
				apperror.WithContext("polymarket book has no ask side"))
		}
		price = ask.Price.Float64()
	} else {
		bid, ok := book.BestBid()
		if !ok {
			return marketdataapp.SubmitResult{}, apperror.New(apperror.CodeInsufficientLiquidity,
				apperror.WithContext("polymarket book has no bid side"))
		}
		price = bid.Price.Float64()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return marketdataapp.SubmitResult{}, err
	}
	payload := marketOrderPayload{TokenID: tokenID, Side: string(side), Shares: shares, Price: price}
	var result marketOrderResponse
	resp, err := c.clob.NewRequest().SetBody(payload).SetResult(&result).Post(ctx, "/order")
	if err != nil {
		return marketdataapp.SubmitResult{}, apperror.External(apperror.CodeOrderRejected, "polymarket submit market order", err)
	}
	if resp.StatusCode == 401 {
		return marketdataapp.SubmitResult{}, apperror.Unauthorized(apperror.CodeVenueAuthFailed, "polymarket submit market order")
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

func parseLevels(raw []struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}) []domain.OrderbookLevel {
	levels := make([]domain.OrderbookLevel, 0, len(raw))
	for _, l := range raw {
		var price, size float64
		if _, err := fmt.Sscanf(l.Price, "%f", &price); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(l.Size, "%f", &size); err != nil {
			continue
		}
		levels = append(levels, domain.OrderbookLevel{Price: prob.New(price), Shares: size})
	}
	return levels
}
