package infra

import (
	"context"

	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
	"github.com/predikt/arb-agent/pkg/ui"
)

// TuiReporter forwards every alerted opportunity into the running Bubble
// Tea dashboard program. It implements business/arb/app.Notifier; when no
// dashboard program is attached ui.Send is a silent no-op, so TuiReporter
// is safe to wire even in headless runs.
type TuiReporter struct{}

// NewTuiReporter builds a TuiReporter.
func NewTuiReporter() *TuiReporter {
	return &TuiReporter{}
}

// Notify implements business/arb/app.Notifier.
func (r *TuiReporter) Notify(ctx context.Context, opp detectdomain.Opportunity) error {
	ui.Send(ui.OpportunityMsg{Opportunity: opp})
	return nil
}
