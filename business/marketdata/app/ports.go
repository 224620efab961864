// Package app hosts the market-data fabric: BookStore, MarketCatalog, and
// the VenueClient/WsFeed ports each venue's infra package implements.
package app

import (
	"context"
	"time"

	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
	"github.com/predikt/arb-agent/business/marketdata/domain"
)

// VenueClient is the REST port for one venue: discovery and order-book
// fallback, plus (Predict only) order submission/cancel via OrderSubmitter
// below.
type VenueClient interface {
	ListMarkets(ctx context.Context) ([]domain.Market, error)
	FetchOrderbook(ctx context.Context, tokenID string) (domain.Orderbook, error)
}

// OrderSide is a quote's bid/ask direction, distinct from an outcome's
// YES/NO.
type OrderSide string

const (
	OrderSideBid OrderSide = "BID"
	OrderSideAsk OrderSide = "ASK"
)

// SubmitResult is returned by OrderSubmitter after placing an order.
type SubmitResult struct {
	Hash string
}

// SignerAddresses identifies the wallet/signer pair an OrderSubmitter acts
// as.
type SignerAddresses struct {
	Maker  string
	Signer string
}

// OrderSubmitter is the Predict-only port business/maker and business/arb
// drive to place, cancel, and hedge orders. It lives alongside
// VenueClient since both wrap the same venue REST client; only Predict's
// infra package implements it.
type OrderSubmitter interface {
	BuildAndSubmitLimit(ctx context.Context, market domain.Market, side OrderSide, price, shares float64) (SubmitResult, error)
	BuildAndSubmitMarket(ctx context.Context, market domain.Market, side OrderSide, shares float64, book domain.Orderbook, slippageBps float64) (SubmitResult, error)
	Cancel(ctx context.Context, hashes []string) error
	Addresses() SignerAddresses
}

// MarketOrderSubmitter is implemented by the peer venues (Polymarket,
// Opinion) that only support a simple top-of-book marketable order, no
// resting/limit orders and no signing flow. business/arb type-asserts a
// venue's VenueClient against this to build its CrossVenueSubmitter.
type MarketOrderSubmitter interface {
	SubmitMarketOrder(ctx context.Context, tokenID string, side detectdomain.Side, shares float64) (SubmitResult, error)
}

// FeedStatus reports a WsFeed's health for the supervisor's watchdog and
// the arb scanner's require-ws-health gate.
type FeedStatus struct {
	Connected     bool
	Subscribed    int
	CacheSize     int
	LastMessageAt time.Time
	MessageCount  uint64
}

// ChangeHandler is invoked after a book mutation with the venue and token
// that changed.
type ChangeHandler func(venue domain.Venue, tokenID string)

// WsFeed is the persistent per-venue WebSocket port.
type WsFeed interface {
	Start(ctx context.Context) error
	Subscribe(tokenIDs []string) error
	Snapshot(tokenID string, maxAge time.Duration) (domain.Orderbook, bool)
	Status() FeedStatus
	OnChange(handler ChangeHandler)
	Stop() error
}
