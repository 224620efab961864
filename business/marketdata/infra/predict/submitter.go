package predict

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	"github.com/predikt/arb-agent/business/marketdata/domain"
	vwapdomain "github.com/predikt/arb-agent/business/vwap/domain"
	"github.com/predikt/arb-agent/internal/apperror"
	"github.com/predikt/arb-agent/internal/httpclient"
	"github.com/predikt/arb-agent/internal/logger"
	"github.com/predikt/arb-agent/internal/ratelimit"
)

// orderPayload is the wire body for POST /orders: the signed
// order plus routing hints the venue uses to pick a strategy.
type orderPayload struct {
	Data orderData `json:"data"`
}

type orderData struct {
	Order         signedOrder `json:"order"`
	PricePerShare float64     `json:"pricePerShare"`
	Strategy      string      `json:"strategy"`
	SlippageBps   *float64    `json:"slippageBps,omitempty"`
}

type signedOrder struct {
	TokenID   string  `json:"tokenId"`
	Side      string  `json:"side"`
	Shares    float64 `json:"shares"`
	Maker     string  `json:"maker"`
	Salt      string  `json:"salt"`
	Signature string  `json:"signature"`
	Hash      string  `json:"hash"`
	Timestamp int64   `json:"timestamp"`
}

type cancelPayload struct {
	IDs []string `json:"ids"`
}

// Submitter implements business/marketdata/app.OrderSubmitter against
// Predict's order endpoints. Signing is opaque at the wire level; this HMACs the canonical order
// fields with the configured private key, standing in for whatever real
// signer the venue's own SDK would supply.
type Submitter struct {
	http       httpclient.Client
	limiter    *ratelimit.Limiter
	log        logger.LoggerInterface
	apiKey     string
	jwt        string
	privateKey string
	account    string
}

// SubmitterConfig carries the signing identity and REST endpoint.
type SubmitterConfig struct {
	BaseURL        string
	APIKey         string
	JWT            string
	PrivateKey     string
	AccountAddress string
}

// NewSubmitter builds a Submitter with its own rate-limited HTTP client,
// matching the Client's construction in New().
func NewSubmitter(cfg SubmitterConfig, log logger.LoggerInterface) (*Submitter, error) {
	hc, err := httpclient.NewInstrumentedClient(
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithProviderName("predict-orders"),
		httpclient.WithRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Submitter{
		http:       hc,
		limiter:    ratelimit.New(50),
		log:        log,
		apiKey:     cfg.APIKey,
		jwt:        cfg.JWT,
		privateKey: cfg.PrivateKey,
		account:    cfg.AccountAddress,
	}, nil
}

func (s *Submitter) authedRequest() httpclient.Request {
	req := s.http.NewRequest()
	if s.apiKey != "" {
		req.SetHeader("X-API-Key", s.apiKey)
	}
	if s.jwt != "" {
		req.SetHeader("Authorization", "Bearer "+s.jwt)
	}
	return req
}

func orderSide(side marketdataapp.OrderSide) string {
	if side == marketdataapp.OrderSideBid {
		return "BUY"
	}
	return "SELL"
}

func (s *Submitter) sign(tokenID, side, salt string, shares float64, ts int64) (signature, hash string) {
	canonical := fmt.Sprintf("%s|%s|%s|%s|%.8f|%d", s.account, tokenID, side, salt, shares, ts)
	mac := hmac.New(sha256.New, []byte(s.privateKey))
	mac.Write([]byte(canonical))
	sig := mac.Sum(nil)
	sum := sha256.Sum256(append([]byte(canonical), sig...))
	return hex.EncodeToString(sig), hex.EncodeToString(sum[:])
}

func (s *Submitter) buildOrder(tokenID string, side marketdataapp.OrderSide, shares, pricePerShare float64, strategy string, slippageBps *float64) orderPayload {
	sideStr := orderSide(side)
	ts := time.Now().UnixMilli()
	// The salt keeps two otherwise-identical orders placed within the same
	// millisecond from colliding on hash.
	salt := uuid.NewString()
	signature, hash := s.sign(tokenID, sideStr, salt, shares, ts)
	return orderPayload{Data: orderData{
		Order: signedOrder{
			TokenID:   tokenID,
			Side:      sideStr,
			Shares:    shares,
			Maker:     s.account,
			Salt:      salt,
			Signature: signature,
			Hash:      hash,
			Timestamp: ts,
		},
		PricePerShare: pricePerShare,
		Strategy:      strategy,
		SlippageBps:   slippageBps,
	}}
}

func (s *Submitter) submit(ctx context.Context, payload orderPayload) (marketdataapp.SubmitResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return marketdataapp.SubmitResult{}, err
	}
	resp, err := s.authedRequest().SetBody(payload).Post(ctx, "/orders")
	if err != nil {
		return marketdataapp.SubmitResult{}, apperror.External(apperror.CodeOrderRejected, "predict submit order", err)
	}
	if resp.StatusCode == 401 {
		return marketdataapp.SubmitResult{}, apperror.Unauthorized(apperror.CodeVenueAuthFailed, "predict submit order")
	}
	if resp.StatusCode == 429 {
		return marketdataapp.SubmitResult{}, apperror.New(apperror.CodeVenueRateLimited)
	}
	if resp.IsError() {
		return marketdataapp.SubmitResult{}, apperror.New(apperror.CodeOrderRejected,
			apperror.WithContext(fmt.Sprintf("status %d", resp.StatusCode)))
	}
	return marketdataapp.SubmitResult{Hash: payload.Data.Order.Hash}, nil
}

// BuildAndSubmitLimit places a resting limit order at price for shares.
func (s *Submitter) BuildAndSubmitLimit(ctx context.Context, market domain.Market, side marketdataapp.OrderSide, price, shares float64) (marketdataapp.SubmitResult, error) {
	if shares <= 0 || price <= 0 || price >= 1 {
		return marketdataapp.SubmitResult{}, apperror.New(apperror.CodeInvalidTradeSize)
	}
	payload := s.buildOrder(market.TokenID, side, shares, price, "LIMIT", nil)
	return s.submit(ctx, payload)
}

// BuildAndSubmitMarket walks book to estimate an all-in price, then
// submits a market order with the configured slippage buffer applied on
// top (used by HedgeOnFill's FLATTEN mode).
func (s *Submitter) BuildAndSubmitMarket(ctx context.Context, market domain.Market, side marketdataapp.OrderSide, shares float64, book domain.Orderbook, slippageBps float64) (marketdataapp.SubmitResult, error) {
	if shares <= 0 {
		return marketdataapp.SubmitResult{}, apperror.New(apperror.CodeInvalidTradeSize)
	}

	var fill *vwapdomain.Fill
	if side == marketdataapp.OrderSideBid {
		fill = vwapdomain.EstimateBuy(book.Asks, shares, market.FeeRateBps, vwapdomain.FeeCurve{}, slippageBps)
	} else {
		fill = vwapdomain.EstimateSell(book.Bids, shares, market.FeeRateBps, vwapdomain.FeeCurve{}, slippageBps)
	}
	if fill == nil {
		return marketdataapp.SubmitResult{}, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext("book too thin for market order"))
	}

	bps := slippageBps
	payload := s.buildOrder(market.TokenID, side, shares, fill.AvgAllIn, "MARKET", &bps)
	return s.submit(ctx, payload)
}

// Cancel removes resting orders by hash via /orders/remove.
func (s *Submitter) Cancel(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := s.authedRequest().SetBody(cancelPayload{IDs: hashes}).Post(ctx, "/orders/remove")
	if err != nil {
		return apperror.External(apperror.CodeOrderCancelFailed, "predict cancel orders", err)
	}
	if resp.IsError() {
		return apperror.New(apperror.CodeOrderCancelFailed, apperror.WithContext(fmt.Sprintf("status %d", resp.StatusCode)))
	}
	return nil
}

// Addresses reports the signer identity orders are submitted under.
func (s *Submitter) Addresses() marketdataapp.SignerAddresses {
	return marketdataapp.SignerAddresses{Maker: s.account, Signer: s.account}
}
