package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
)

// ConsoleReporter prints every alerted opportunity to an io.Writer as a
// boxed summary. It implements business/arb/app.Notifier and returns an
// error only when the write to its io.Writer fails.
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter builds a ConsoleReporter writing to stdout.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

// NewConsoleReporterTo builds a ConsoleReporter writing to w, for tests.
func NewConsoleReporterTo(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: w}
}

// Notify implements business/arb/app.Notifier.
func (r *ConsoleReporter) Notify(ctx context.Context, opp detectdomain.Opportunity) error {
	var b strings.Builder
	line := strings.Repeat("-", 60)
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Opportunity:   %s\n", opp.Kind)
	fmt.Fprintf(&b, "Key:           %s\n", opp.Key)
	fmt.Fprintf(&b, "Detected:      %s\n", opp.DetectedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Risk:          %s (confidence %.2f)\n", opp.RiskLevel, opp.Confidence)
	fmt.Fprintf(&b, "Edge:          %.4f\n", opp.Edge)

	switch opp.Kind {
	case detectdomain.KindValueMismatch:
		fmt.Fprintf(&b, "Token:         %s\n", opp.TokenID)
		fmt.Fprintf(&b, "Side:          %s\n", opp.Side)
		fmt.Fprintf(&b, "Fair price:    %.4f\n", opp.FairPrice)
	case detectdomain.KindIntraVenue:
		fmt.Fprintf(&b, "Market:        %s\n", opp.MarketID)
		fmt.Fprintf(&b, "Yes/No tokens: %s / %s\n", opp.YesToken, opp.NoToken)
		fmt.Fprintf(&b, "Action:        %s (%.2f shares @ %.4f/share, both legs)\n", opp.Action, opp.Size, opp.PerShareCost)
	case detectdomain.KindMultiOutcome:
		fmt.Fprintf(&b, "Group:         %s\n", opp.GroupID)
		fmt.Fprintf(&b, "Action:        %s across %d legs\n", opp.Action, len(opp.Legs))
	case detectdomain.KindCrossVenue:
		fmt.Fprintf(&b, "Pair:          %s (similarity %.2f)\n", opp.PairID, opp.Similarity)
		fmt.Fprintf(&b, "Leg A:         %s %s %s %.2f @ %.4f\n", opp.LegA.Venue, opp.LegA.TokenID, opp.LegA.Side, opp.LegA.Shares, opp.LegA.Price)
		fmt.Fprintf(&b, "Leg B:         %s %s %s %.2f @ %.4f\n", opp.LegB.Venue, opp.LegB.TokenID, opp.LegB.Side, opp.LegB.Shares, opp.LegB.Price)
	case detectdomain.KindDependency:
		fmt.Fprintf(&b, "Bundle:        %s across %d legs\n", opp.BundleID, len(opp.Legs))
	}
	fmt.Fprintln(&b, line)

	_, err := io.WriteString(r.out, b.String())
	return err
}
