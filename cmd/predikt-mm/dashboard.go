package main

import (
	"context"
	"fmt"
	"time"

	makerapp "github.com/predikt/arb-agent/business/maker/app"
	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	"github.com/predikt/arb-agent/internal/health"
	"github.com/predikt/arb-agent/pkg/ui"
	"github.com/predikt/arb-agent/pkg/ui/components"
)

// pumpDashboard feeds the TUI: per-venue feed health and session counters
// on a clock, book updates as the BookStore publishes them. Runs until ctx
// is done.
func pumpDashboard(ctx context.Context, feeds map[string]marketdataapp.WsFeed, store *marketdataapp.BookStore, stats func() []components.StatRow) {
	events := store.Subscribe()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			ob, ok := store.Snapshot(ev.Venue, ev.TokenID)
			if !ok {
				continue
			}
			bid, okB := ob.BestBid()
			ask, okA := ob.BestAsk()
			if !okB || !okA {
				continue
			}
			mid, _ := ob.MidPrice()
			ui.Send(ui.BookUpdateMsg{
				Venue:   ev.Venue,
				TokenID: ev.TokenID,
				BestBid: bid.Price.Float64(),
				BestAsk: ask.Price.Float64(),
				Mid:     mid.Float64(),
			})
		case <-ticker.C:
			for name, feed := range feeds {
				st := feed.Status()
				ui.Send(ui.FeedStatusMsg{Status: components.VenueStatus{
					Name:          name,
					Connected:     st.Connected,
					Subscribed:    st.Subscribed,
					Messages:      st.MessageCount,
					LastMessageAt: st.LastMessageAt,
				}})
			}
			if stats != nil {
				ui.Send(ui.StatsMsg{Rows: stats()})
			}
		}
	}
}

// registerFeedChecks exposes each venue feed on the health endpoint.
func registerFeedChecks(srv *health.Server, feeds map[string]marketdataapp.WsFeed) {
	for name, feed := range feeds {
		feed := feed
		srv.RegisterCheck(name+"-ws", func(context.Context) (bool, string) {
			st := feed.Status()
			if !st.Connected {
				return false, "disconnected"
			}
			return true, fmt.Sprintf("subscribed=%d msgs=%d", st.Subscribed, st.MessageCount)
		})
	}
}

// makerStatsRows maps the maker's counters onto the dashboard stats strip.
func makerStatsRows(s makerapp.Snapshot) []components.StatRow {
	halted := "no"
	if s.TradingHalted {
		halted = "YES"
	}
	return []components.StatRow{
		{Label: "Passes", Value: fmt.Sprintf("%d", s.PassesRun)},
		{Label: "Quotes", Value: fmt.Sprintf("%d", s.QuotesPlaced)},
		{Label: "Cancels", Value: fmt.Sprintf("%d", s.QuotesCancelled)},
		{Label: "Fills", Value: fmt.Sprintf("%d", s.FillsDetected)},
		{Label: "Hedges", Value: fmt.Sprintf("%d", s.HedgesTriggered)},
		{Label: "Guard trips", Value: fmt.Sprintf("%d", s.GuardTrips), Bad: s.GuardTrips > 0},
		{Label: "PnL", Value: fmt.Sprintf("$%.2f", s.DailyPnLUSD), Bad: s.DailyPnLUSD < 0},
		{Label: "Halted", Value: halted, Bad: s.TradingHalted},
	}
}
