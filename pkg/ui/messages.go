// Package ui provides the Bubble Tea dashboard for predikt-arb and
// predikt-mm.
package ui

import (
	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/pkg/ui/components"
)

// OpportunityMsg is sent when the scanner surfaces (and alerts on) an
// opportunity.
type OpportunityMsg struct {
	Opportunity detectdomain.Opportunity
}

// BookUpdateMsg is sent when a token's book changes in the BookStore.
type BookUpdateMsg struct {
	Venue    mdomain.Venue
	TokenID  string
	Question string
	BestBid  float64
	BestAsk  float64
	Mid      float64
}

// FeedStatusMsg carries one venue WS feed's health, polled by the binary's
// dashboard pump.
type FeedStatusMsg struct {
	Status components.VenueStatus
}

// StatsMsg carries the cumulative session counters, polled by the binary's
// dashboard pump.
type StatsMsg struct {
	Rows []components.StatRow
}

// ErrorMsg surfaces an error in the dashboard's error panel.
type ErrorMsg struct {
	Error error
}

// LogMsg appends a line to the dashboard's log tail.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}

// TickMsg drives dashboard animation.
type TickMsg struct{}

// StartModulesMsg signals that modules should start loading.
type StartModulesMsg struct{}

// StartupMsg reports progress of one named startup step.
type StartupMsg struct {
	Step    string
	Status  string // "pending", "connecting", "connected", "done", "failed"
	Message string
}
