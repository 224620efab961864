package app

import (
	"context"
	"fmt"

	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/prob"
)

type limitCall struct {
	TokenID string
	Side    marketdataapp.OrderSide
	Price   float64
	Shares  float64
}

type marketCall struct {
	TokenID     string
	Side        marketdataapp.OrderSide
	Shares      float64
	SlippageBps float64
}

// fakeSubmitter records every Predict submission and returns sequential
// hashes. failOn, when positive, fails the Nth limit submission.
type fakeSubmitter struct {
	limits  []limitCall
	markets []marketCall
	cancels [][]string
	failOn  int
}

func (f *fakeSubmitter) BuildAndSubmitLimit(_ context.Context, market mdomain.Market, side marketdataapp.OrderSide, price, shares float64) (marketdataapp.SubmitResult, error) {
	if f.failOn > 0 && len(f.limits)+1 == f.failOn {
		return marketdataapp.SubmitResult{}, fmt.Errorf("venue rejected order")
	}
	f.limits = append(f.limits, limitCall{TokenID: market.TokenID, Side: side, Price: price, Shares: shares})
	return marketdataapp.SubmitResult{Hash: fmt.Sprintf("hash-%d", len(f.limits))}, nil
}

func (f *fakeSubmitter) BuildAndSubmitMarket(_ context.Context, market mdomain.Market, side marketdataapp.OrderSide, shares float64, _ mdomain.Orderbook, slippageBps float64) (marketdataapp.SubmitResult, error) {
	f.markets = append(f.markets, marketCall{TokenID: market.TokenID, Side: side, Shares: shares, SlippageBps: slippageBps})
	return marketdataapp.SubmitResult{Hash: fmt.Sprintf("mkt-%d", len(f.markets))}, nil
}

func (f *fakeSubmitter) Cancel(_ context.Context, hashes []string) error {
	f.cancels = append(f.cancels, hashes)
	return nil
}

func (f *fakeSubmitter) Addresses() marketdataapp.SignerAddresses {
	return marketdataapp.SignerAddresses{Maker: "0xmaker", Signer: "0xsigner"}
}

type crossCall struct {
	Venue   mdomain.Venue
	TokenID string
	Side    detectdomain.Side
	Shares  float64
}

type fakeCrossVenue struct {
	calls []crossCall
	err   error
}

func (f *fakeCrossVenue) SubmitMarketOrder(_ context.Context, venue mdomain.Venue, tokenID string, side detectdomain.Side, shares float64) (marketdataapp.SubmitResult, error) {
	if f.err != nil {
		return marketdataapp.SubmitResult{}, f.err
	}
	f.calls = append(f.calls, crossCall{Venue: venue, TokenID: tokenID, Side: side, Shares: shares})
	return marketdataapp.SubmitResult{Hash: fmt.Sprintf("cross-%d", len(f.calls))}, nil
}

type fakeConfirmer struct {
	answer  bool
	prompts []string
}

func (f *fakeConfirmer) Confirm(_ context.Context, prompt string) bool {
	f.prompts = append(f.prompts, prompt)
	return f.answer
}

type fakeCatalog struct {
	markets []mdomain.Market
}

func (f *fakeCatalog) Markets(_ context.Context) ([]mdomain.Market, error) {
	return f.markets, nil
}

type fakeBooks struct {
	books map[string]mdomain.Orderbook
}

func (f *fakeBooks) Snapshot(venue mdomain.Venue, tokenID string) (mdomain.Orderbook, bool) {
	ob, ok := f.books[string(venue)+":"+tokenID]
	return ob, ok
}

func lvl(price, shares float64) mdomain.OrderbookLevel {
	return mdomain.OrderbookLevel{Price: prob.New(price), Shares: shares}
}
