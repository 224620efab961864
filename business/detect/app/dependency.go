package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/predikt/arb-agent/business/detect/domain"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/circuitbreaker"
	"github.com/predikt/arb-agent/internal/logger"
)

// solverRequest is the newline-delimited JSON payload written to the
// external solver's stdin: the constraints file path plus a snapshot of
// every market and its current book.
type solverRequest struct {
	ConstraintsPath string            `json:"constraintsPath"`
	MaxIterations   int               `json:"maxIterations,omitempty"`
	Markets         []mdomain.Market  `json:"markets"`
	Books           []solverBookEntry `json:"books"`
}

type solverBookEntry struct {
	Venue   mdomain.Venue     `json:"venue"`
	TokenID string            `json:"tokenId"`
	Book    mdomain.Orderbook `json:"book"`
}

// solverResponse is the solver's stdout reply: a bundle of legs and the
// edge the solver computed for trading them together.
type solverResponse struct {
	Legs []domain.Leg `json:"legs"`
	Edge float64      `json:"edge"`
}

// Dependency wraps an external constraint solver the core never
// implements: it serializes the current snapshot, invokes the solver
// process, and turns its reply into an Opportunity. Core neither invents
// the constraints nor evaluates them.
type Dependency struct {
	SolverPath      string
	ConstraintsPath string
	Timeout         time.Duration
	MaxIterations   int
	MinEdge         float64
	MaxLegs         int
	MaxNotionalUSD  float64
	Breaker         *circuitbreaker.CircuitBreaker[*solverResponse]
	Log             logger.LoggerInterface

	runCommand func(ctx context.Context, path string, stdin []byte) ([]byte, error)
}

// NewDependency builds a Dependency detector wrapping SolverPath's
// invocation in a circuit breaker so a wedged or crashing solver doesn't
// stall every scan cycle.
func NewDependency(solverPath, constraintsPath string, timeout time.Duration, maxIterations int, minEdge float64, maxLegs int, maxNotionalUSD float64, log logger.LoggerInterface) *Dependency {
	d := &Dependency{
		SolverPath:      solverPath,
		ConstraintsPath: constraintsPath,
		Timeout:         timeout,
		MaxIterations:   maxIterations,
		MinEdge:         minEdge,
		MaxLegs:         maxLegs,
		MaxNotionalUSD:  maxNotionalUSD,
		Log:             log,
	}
	d.Breaker = circuitbreaker.New[*solverResponse](circuitbreaker.DefaultConfig("dependency-solver"), log)
	d.runCommand = runSolverProcess
	return d
}

// Scan implements domain.Detector. lookup is consulted for every market's
// current book; markets whose book isn't available are still forwarded to
// the solver with a zero-value book, since the solver alone decides
// relevance.
func (d *Dependency) Scan(markets []mdomain.Market, lookup domain.BookLookup) []domain.Opportunity {
	if d.SolverPath == "" {
		return nil
	}

	req := solverRequest{ConstraintsPath: d.ConstraintsPath, MaxIterations: d.MaxIterations, Markets: markets}
	for _, m := range markets {
		book, _ := lookup(m.Venue, m.TokenID)
		req.Books = append(req.Books, solverBookEntry{Venue: m.Venue, TokenID: m.TokenID, Book: book})
	}

	payload, err := json.Marshal(req)
	if err != nil {
		if d.Log != nil {
			d.Log.Warn(context.Background(), "dependency solver request marshal failed", "error", err)
		}
		return nil
	}
	payload = append(payload, '\n')

	resp, err := d.Breaker.Execute(func() (*solverResponse, error) {
		ctx, cancel := context.WithTimeout(context.Background(), d.Timeout)
		defer cancel()
		out, err := d.runCommand(ctx, d.SolverPath, payload)
		if err != nil {
			return nil, err
		}
		var sr solverResponse
		if err := json.Unmarshal(out, &sr); err != nil {
			return nil, err
		}
		return &sr, nil
	})
	if err != nil || resp == nil {
		if d.Log != nil && err != nil {
			d.Log.Warn(context.Background(), "dependency solver call failed", "error", err)
		}
		return nil
	}

	if resp.Edge < d.MinEdge || len(resp.Legs) == 0 {
		return nil
	}
	if d.MaxLegs > 0 && len(resp.Legs) > d.MaxLegs {
		return nil
	}
	notional := 0.0
	for _, leg := range resp.Legs {
		notional += leg.Price * leg.Shares
	}
	if d.MaxNotionalUSD > 0 && notional > d.MaxNotionalUSD {
		return nil
	}

	now := time.Now()
	bundleID := bundleKey(resp.Legs)
	return []domain.Opportunity{{
		Kind:       domain.KindDependency,
		Key:        domain.NewKey(domain.KindDependency, bundleID),
		DetectedAt: now,
		ExpiresAt:  now.Add(d.Timeout),
		RiskLevel:  riskFromConfidence(0.5 + minF(resp.Edge, 0.5)),
		Confidence: minF(0.5+resp.Edge, 1),
		Edge:       resp.Edge,
		BundleID:   bundleID,
		Legs:       resp.Legs,
	}}
}

func bundleKey(legs []domain.Leg) string {
	var b bytes.Buffer
	for _, l := range legs {
		b.WriteString(l.Venue)
		b.WriteByte(':')
		b.WriteString(l.TokenID)
		b.WriteByte('|')
	}
	return b.String()
}

// runSolverProcess invokes the solver binary with the request on stdin and
// its reply on stdout; stderr is discarded since the wire contract carries
// no error channel beyond a non-zero exit code.
func runSolverProcess(ctx context.Context, path string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, path)
	cmd.Stdin = bytes.NewReader(stdin)
	return cmd.Output()
}
