package app

import (
	"context"

	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
	makerdomain "github.com/predikt/arb-agent/business/maker/domain"
	mappapp "github.com/predikt/arb-agent/business/mapping/app"
	mappingdomain "github.com/predikt/arb-agent/business/mapping/domain"
	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/apperror"
	"github.com/predikt/arb-agent/internal/logger"
)

// MappingResolver is the subset of mapping/app.Mapping the hedge trigger
// needs to find a fill's peer-venue counterpart.
type MappingResolver interface {
	Resolve(predictMarketID, predictQuestion string) (mappingdomain.MappingEntry, bool)
	ResolveSimilar(question string, minSimilarity float64) (mappingdomain.MappingEntry, float64, bool)
}

var _ MappingResolver = (*mappapp.Mapping)(nil)

// HedgeOnFill implements business/maker/app.HedgeTrigger: when a Predict
// fill crosses HedgeTriggerShares, it flattens the delta on Predict itself,
// or crosses to a peer venue's opposing outcome, depending on the
// configured HedgeMode.
type HedgeOnFill struct {
	Mode           makerdomain.HedgeMode
	MaxSlippageBps float64
	MinSimilarity  float64

	Predict    CatalogSourceAndBooks
	Books      BookSource
	Submitter  OrderSubmitter
	CrossVenue CrossVenueSubmitter
	Mapping    MappingResolver
	Log        logger.LoggerInterface
}

// CatalogSourceAndBooks supplies the Predict market behind a fill's tokenID.
type CatalogSourceAndBooks interface {
	Markets(ctx context.Context) ([]mdomain.Market, error)
}

// NewHedgeOnFill builds a HedgeOnFill. Mapping/CrossVenue may be nil when
// Mode never resolves to CROSS.
func NewHedgeOnFill(mode makerdomain.HedgeMode, maxSlippageBps, minSimilarity float64, predictCatalog CatalogSourceAndBooks, books BookSource, submitter OrderSubmitter, crossVenue CrossVenueSubmitter, mapping MappingResolver, log logger.LoggerInterface) *HedgeOnFill {
	return &HedgeOnFill{
		Mode:           mode,
		MaxSlippageBps: maxSlippageBps,
		MinSimilarity:  minSimilarity,
		Predict:        predictCatalog,
		Books:          books,
		Submitter:      submitter,
		CrossVenue:     crossVenue,
		Mapping:        mapping,
		Log:            log,
	}
}

// Hedge is called by the maker service after a fill crosses
// Params.HedgeTriggerShares on a Predict token.
func (h *HedgeOnFill) Hedge(ctx context.Context, venue mdomain.Venue, tokenID string, deltaShares float64) error {
	if h.Mode == makerdomain.HedgeNone || deltaShares == 0 {
		return nil
	}

	market, ok, err := h.findPredictMarket(ctx, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.New(apperror.CodeInvariantViolation, apperror.WithContext("hedge: unknown predict token "+tokenID))
	}

	if h.Mode == makerdomain.HedgeCross {
		if err := h.hedgeCross(ctx, market, deltaShares); err == nil {
			return nil
		} else if h.Log != nil {
			h.Log.Warn(ctx, "hedge: cross failed, falling back to flatten", "token", tokenID, "err", err)
		}
	}
	return h.hedgeFlatten(ctx, market, deltaShares)
}

// hedgeFlatten submits a market order on Predict in the opposing direction
// of deltaShares, sized to exactly offset it.
func (h *HedgeOnFill) hedgeFlatten(ctx context.Context, market mdomain.Market, deltaShares float64) error {
	book, ok := h.Books.Snapshot(market.Venue, market.TokenID)
	if !ok {
		return apperror.New(apperror.CodeStaleBook, apperror.WithContext("hedge flatten: no book for "+market.TokenID))
	}
	side := marketdataapp.OrderSideAsk
	if deltaShares < 0 {
		side = marketdataapp.OrderSideBid
	}
	_, err := h.Submitter.BuildAndSubmitMarket(ctx, market, side, absF(deltaShares), book, h.MaxSlippageBps)
	return err
}

// hedgeCross resolves the fill's Predict market to a peer-venue token and
// buys the opposing outcome there at top-of-book.
func (h *HedgeOnFill) hedgeCross(ctx context.Context, market mdomain.Market, deltaShares float64) error {
	if h.CrossVenue == nil {
		return apperror.New(apperror.CodeOrderRejected, apperror.WithContext("hedge cross: no cross-venue submitter configured"))
	}

	var resolved mappingdomain.MappingEntry
	ok := false
	if h.Mapping != nil {
		if e, found := h.Mapping.Resolve(market.ConditionID, market.Question); found {
			resolved, ok = e, true
		} else if e, _, found := h.Mapping.ResolveSimilar(market.Question, h.MinSimilarity); found {
			resolved, ok = e, true
		}
	}
	if !ok {
		return apperror.New(apperror.CodeMappingLoadFailed, apperror.WithContext("hedge cross: no mapping match for "+market.Question))
	}

	venue, tokenID := peerOpposingToken(resolved, market.Outcome)
	if tokenID == "" {
		return apperror.New(apperror.CodeMappingLoadFailed, apperror.WithContext("hedge cross: mapping entry has no peer token"))
	}

	_, err := h.CrossVenue.SubmitMarketOrder(ctx, venue, tokenID, detectdomain.SideBuy, absF(deltaShares))
	return err
}

// peerOpposingToken picks the peer-venue token for the outcome opposite
// outcome, preferring Polymarket over Opinion when both are mapped.
func peerOpposingToken(e mappingdomain.MappingEntry, outcome mdomain.Outcome) (mdomain.Venue, string) {
	wantNo := outcome == mdomain.OutcomeYes
	if wantNo {
		if e.PolymarketNoToken != "" {
			return mdomain.VenuePolymarket, e.PolymarketNoToken
		}
		if e.OpinionNoToken != "" {
			return mdomain.VenueOpinion, e.OpinionNoToken
		}
		return "", ""
	}
	if e.PolymarketYesToken != "" {
		return mdomain.VenuePolymarket, e.PolymarketYesToken
	}
	if e.OpinionYesToken != "" {
		return mdomain.VenueOpinion, e.OpinionYesToken
	}
	return "", ""
}

func (h *HedgeOnFill) findPredictMarket(ctx context.Context, tokenID string) (mdomain.Market, bool, error) {
	markets, err := h.Predict.Markets(ctx)
	if err != nil {
		return mdomain.Market{}, false, err
	}
	for _, m := range markets {
		if m.TokenID == tokenID {
			return m, true, nil
		}
	}
	return mdomain.Market{}, false, nil
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
