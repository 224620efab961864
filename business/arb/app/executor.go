package app

import (
	"context"
	"fmt"

	arbdomain "github.com/predikt/arb-agent/business/arb/domain"
	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/apperror"
	"github.com/predikt/arb-agent/internal/logger"
)

// ExecutorConfig carries the knobs Executor needs beyond its ports:
// position-size capping and the human-confirmation gate.
type ExecutorConfig struct {
	MaxPositionSizeUSD  float64
	RequireConfirmation bool
	// CrossRequireConfirm forces confirmation for cross-venue trades even
	// when the global gate is off, since a cross-venue leg can't be
	// unwound on the venue it was placed on.
	CrossRequireConfirm bool
	AutoConfirm         bool
	// DefaultValueMismatchShares sizes a VALUE_MISMATCH trade, which the
	// detector leaves unsized since it only flags a mispricing, not a
	// position.
	DefaultValueMismatchShares float64
}

// Executor exposes one method per opportunity kind; all of them funnel
// into the shared confirm/scale/submit/record pipeline.
type Executor struct {
	cfg        ExecutorConfig
	submitter  OrderSubmitter
	crossVenue CrossVenueSubmitter
	confirmer  Confirmer
	catalogs   map[mdomain.Venue]CatalogSource
	log        logger.LoggerInterface
}

// NewExecutor builds an Executor. catalogs should include every venue the
// executor may need to resolve a bare tokenID to a Market (Predict at
// least; peers only if VALUE_MISMATCH/INTRA_VENUE can fire on them).
func NewExecutor(cfg ExecutorConfig, submitter OrderSubmitter, crossVenue CrossVenueSubmitter, confirmer Confirmer, catalogs map[mdomain.Venue]CatalogSource, log logger.LoggerInterface) *Executor {
	return &Executor{cfg: cfg, submitter: submitter, crossVenue: crossVenue, confirmer: confirmer, catalogs: catalogs, log: log}
}

// Execute dispatches to the method matching opp.Kind.
func (e *Executor) Execute(ctx context.Context, opp detectdomain.Opportunity) arbdomain.ExecutionResult {
	switch opp.Kind {
	case detectdomain.KindValueMismatch:
		return e.ExecuteValueMismatch(ctx, opp)
	case detectdomain.KindIntraVenue:
		return e.ExecuteIntraVenue(ctx, opp)
	case detectdomain.KindMultiOutcome:
		return e.ExecuteMultiOutcome(ctx, opp)
	case detectdomain.KindCrossVenue:
		return e.ExecuteCrossVenue(ctx, opp)
	case detectdomain.KindDependency:
		return e.ExecuteDependency(ctx, opp)
	default:
		return arbdomain.ExecutionResult{Status: arbdomain.StatusFailed, Err: apperror.New(apperror.CodeInvariantViolation,
			apperror.WithContext("unknown opportunity kind "+string(opp.Kind)))}
	}
}

// ExecuteValueMismatch buys (or sells, if allowed upstream) the
// mispriced token at its detected fair price.
func (e *Executor) ExecuteValueMismatch(ctx context.Context, opp detectdomain.Opportunity) arbdomain.ExecutionResult {
	venue, ok := e.resolveVenue(ctx, opp.TokenID)
	if !ok {
		return failedResult(apperror.New(apperror.CodeMarketDiscoveryError, apperror.WithContext("value mismatch: unknown token "+opp.TokenID)))
	}
	shares := e.cfg.DefaultValueMismatchShares
	if shares <= 0 {
		shares = 1
	}
	legs := []detectdomain.Leg{{
		Venue:   string(venue),
		TokenID: opp.TokenID,
		Side:    opp.Side,
		Price:   opp.FairPrice,
		Shares:  shares,
	}}
	return e.run(ctx, opp, legs)
}

// ExecuteIntraVenue buys (or sells) both the YES and NO legs of a same-venue
// mispriced pair.
func (e *Executor) ExecuteIntraVenue(ctx context.Context, opp detectdomain.Opportunity) arbdomain.ExecutionResult {
	venue, ok := e.resolveVenue(ctx, opp.YesToken)
	if !ok {
		return failedResult(apperror.New(apperror.CodeMarketDiscoveryError, apperror.WithContext("intra venue: unknown token "+opp.YesToken)))
	}
	side := detectdomain.SideBuy
	if opp.Action == detectdomain.ActionSellBoth {
		side = detectdomain.SideSell
	}
	perLeg := opp.PerShareCost / 2
	legs := []detectdomain.Leg{
		{Venue: string(venue), TokenID: opp.YesToken, Side: side, Price: perLeg, Shares: opp.Size},
		{Venue: string(venue), TokenID: opp.NoToken, Side: side, Price: perLeg, Shares: opp.Size},
	}
	return e.run(ctx, opp, legs)
}

// ExecuteMultiOutcome buys every outcome leg the detector assembled.
func (e *Executor) ExecuteMultiOutcome(ctx context.Context, opp detectdomain.Opportunity) arbdomain.ExecutionResult {
	if len(opp.Legs) == 0 {
		return failedResult(apperror.New(apperror.CodeInvariantViolation, apperror.WithContext("multi outcome: no legs")))
	}
	return e.run(ctx, opp, opp.Legs)
}

// ExecuteCrossVenue submits both legs of a matched cross-venue pair.
func (e *Executor) ExecuteCrossVenue(ctx context.Context, opp detectdomain.Opportunity) arbdomain.ExecutionResult {
	legs := []detectdomain.Leg{opp.LegA, opp.LegB}
	return e.run(ctx, opp, legs)
}

// ExecuteDependency submits every leg of a constraint-solved bundle.
func (e *Executor) ExecuteDependency(ctx context.Context, opp detectdomain.Opportunity) arbdomain.ExecutionResult {
	if len(opp.Legs) == 0 {
		return failedResult(apperror.New(apperror.CodeInvariantViolation, apperror.WithContext("dependency: no legs")))
	}
	return e.run(ctx, opp, opp.Legs)
}

// run is the shared confirm/scale/submit/record pipeline every Execute*
// method funnels into.
func (e *Executor) run(ctx context.Context, opp detectdomain.Opportunity, legs []detectdomain.Leg) arbdomain.ExecutionResult {
	needsConfirm := e.cfg.RequireConfirmation ||
		(opp.Kind == detectdomain.KindCrossVenue && e.cfg.CrossRequireConfirm)
	if needsConfirm && !e.cfg.AutoConfirm {
		if e.confirmer == nil || !e.confirmer.Confirm(ctx, confirmPrompt(opp)) {
			return failedResult(apperror.New(apperror.CodeOrderRejected, apperror.WithContext("execution not confirmed")))
		}
	}

	scaled := arbdomain.ScaleLegs(legs, e.cfg.MaxPositionSizeUSD)

	result := arbdomain.ExecutionResult{Status: arbdomain.StatusPending}
	for _, leg := range scaled {
		trade, err := e.submitLeg(ctx, leg)
		if err != nil {
			result.Status = arbdomain.StatusFailed
			result.Err = err
			return result
		}
		result.Trades = append(result.Trades, trade)
		result.TotalCost += trade.Price * trade.Shares
	}
	result.Status = arbdomain.StatusExecuted
	result.ExpectedProfit = opp.Edge * representativeShares(scaled)
	return result
}

func (e *Executor) submitLeg(ctx context.Context, leg detectdomain.Leg) (arbdomain.Trade, error) {
	venue := mdomain.Venue(leg.Venue)
	if venue == mdomain.VenuePredict {
		market, ok := e.resolveMarket(ctx, venue, leg.TokenID)
		if !ok {
			return arbdomain.Trade{}, apperror.New(apperror.CodeMarketDiscoveryError, apperror.WithContext("predict leg: unknown token "+leg.TokenID))
		}
		side := marketdataapp.OrderSideBid
		if leg.Side == detectdomain.SideSell {
			side = marketdataapp.OrderSideAsk
		}
		res, err := e.submitter.BuildAndSubmitLimit(ctx, market, side, leg.Price, leg.Shares)
		if err != nil {
			return arbdomain.Trade{}, err
		}
		return arbdomain.Trade{Venue: leg.Venue, Hash: res.Hash, Side: leg.Side, Price: leg.Price, Shares: leg.Shares}, nil
	}

	if e.crossVenue == nil {
		return arbdomain.Trade{}, apperror.New(apperror.CodeOrderRejected, apperror.WithContext("no cross-venue submitter configured"))
	}
	res, err := e.crossVenue.SubmitMarketOrder(ctx, venue, leg.TokenID, leg.Side, leg.Shares)
	if err != nil {
		return arbdomain.Trade{}, err
	}
	return arbdomain.Trade{Venue: leg.Venue, Hash: res.Hash, Side: leg.Side, Price: leg.Price, Shares: leg.Shares}, nil
}

func (e *Executor) resolveVenue(ctx context.Context, tokenID string) (mdomain.Venue, bool) {
	for venue, cat := range e.catalogs {
		markets, err := cat.Markets(ctx)
		if err != nil {
			continue
		}
		for _, m := range markets {
			if m.TokenID == tokenID {
				return venue, true
			}
		}
	}
	return "", false
}

func (e *Executor) resolveMarket(ctx context.Context, venue mdomain.Venue, tokenID string) (mdomain.Market, bool) {
	cat, ok := e.catalogs[venue]
	if !ok {
		return mdomain.Market{}, false
	}
	markets, err := cat.Markets(ctx)
	if err != nil {
		return mdomain.Market{}, false
	}
	for _, m := range markets {
		if m.TokenID == tokenID {
			return m, true
		}
	}
	return mdomain.Market{}, false
}

func representativeShares(legs []detectdomain.Leg) float64 {
	if len(legs) == 0 {
		return 0
	}
	return legs[0].Shares
}

func confirmPrompt(opp detectdomain.Opportunity) string {
	return fmt.Sprintf("execute %s opportunity %s (edge %.4f)?", opp.Kind, opp.Key, opp.Edge)
}

func failedResult(err error) arbdomain.ExecutionResult {
	return arbdomain.ExecutionResult{Status: arbdomain.StatusFailed, Err: err}
}
