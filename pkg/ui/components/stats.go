// Package components provides reusable TUI components.
package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// StatRow is one labelled counter in the stats strip. Bad renders the value
// in the alert color.
type StatRow struct {
	Label string
	Value string
	Bad   bool
}

// StatsComponent renders the session counters of whichever binary is
// driving the dashboard: scan/execution tallies for the arb scanner, pass/
// quote/fill tallies for the market maker.
type StatsComponent struct {
	rows []StatRow
}

// NewStatsComponent creates an empty stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

// Update replaces the displayed rows.
func (s *StatsComponent) Update(rows []StatRow) {
	s.rows = rows
}

// View renders the stats strip.
func (s *StatsComponent) View() string {
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	value := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	bad := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	out := label.Render("STATS") + "\n"
	if len(s.rows) == 0 {
		return out + label.Render("  collecting...")
	}
	for i, row := range s.rows {
		if i > 0 {
			if i%3 == 0 {
				out += "\n"
			} else {
				out += "  │  "
			}
		}
		style := value
		if row.Bad {
			style = bad
		}
		out += fmt.Sprintf("%s: %s", label.Render(row.Label), style.Render(row.Value))
	}
	return out
}
