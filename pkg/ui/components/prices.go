// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// PriceRow represents a row in the book table: one venue/token's top of
// book.
type PriceRow struct {
	Venue   string
	TokenID string
	BestBid float64
	BestAsk float64
	Mid     float64
}

// PricesComponent renders the order-book comparison table.
type PricesComponent struct {
	rows     []PriceRow
	question string
}

// NewPricesComponent creates a new prices component.
func NewPricesComponent() *PricesComponent {
	return &PricesComponent{
		rows:     make([]PriceRow, 0),
		question: "",
	}
}

// Update replaces the displayed rows.
func (p *PricesComponent) Update(rows []PriceRow) {
	p.rows = rows
}

// SetQuestion sets the market question shown in the header.
func (p *PricesComponent) SetQuestion(question string) {
	p.question = question
}

// View renders the prices component.
func (p *PricesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	positiveStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	title := "BOOKS"
	if p.question != "" {
		title = fmt.Sprintf("BOOKS (%s)", p.question)
	}

	var result string
	result = headerStyle.Render(title)
	result += "\n\n"

	if len(p.rows) == 0 {
		result += dimStyle.Render("  Waiting for book data...") + "\n"
		return result
	}

	result += fmt.Sprintf("  %-12s  %-14s  %10s  %10s  %10s\n",
		"Venue", "Token", "Bid", "Ask", "Mid")
	result += dimStyle.Render("  "+strings.Repeat("─", 56)) + "\n"

	for _, row := range p.rows {
		token := row.TokenID
		if len(token) > 14 {
			token = token[:11] + "..."
		}
		result += fmt.Sprintf("  %-12s  %-14s  %10s  %10s  %s\n",
			row.Venue,
			token,
			fmt.Sprintf("%.4f", row.BestBid),
			fmt.Sprintf("%.4f", row.BestAsk),
			positiveStyle.Render(fmt.Sprintf("%.4f", row.Mid)),
		)
	}

	return result
}
