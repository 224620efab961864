// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// VenueStatus is one venue feed's health as shown in the status panel.
type VenueStatus struct {
	Name          string
	Connected     bool
	Subscribed    int
	Messages      uint64
	LastMessageAt time.Time
}

// StatusComponent renders the per-venue feed health panel.
type StatusComponent struct {
	venues map[string]VenueStatus
}

// NewStatusComponent creates an empty status component.
func NewStatusComponent() *StatusComponent {
	return &StatusComponent{venues: make(map[string]VenueStatus)}
}

// Update replaces one venue's status.
func (s *StatusComponent) Update(st VenueStatus) {
	s.venues[st.Name] = st
}

// Line renders the compact single-line form used in the status bar.
func (s *StatusComponent) Line() string {
	connected := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	disconnected := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	names := make([]string, 0, len(s.venues))
	for name := range s.venues {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		v := s.venues[name]
		if v.Connected {
			label := name
			if !v.LastMessageAt.IsZero() {
				label = fmt.Sprintf("%s %s", name, time.Since(v.LastMessageAt).Round(time.Second))
			}
			parts = append(parts, connected.Render("● "+label))
		} else {
			parts = append(parts, disconnected.Render("○ "+name))
		}
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "  │  "
		}
		out += p
	}
	return out
}

// View renders the expanded per-venue table.
func (s *StatusComponent) View() string {
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	out := header.Render("FEEDS") + "\n"
	if len(s.venues) == 0 {
		return out + muted.Render("  no feeds enabled")
	}

	names := make([]string, 0, len(s.venues))
	for name := range s.venues {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := s.venues[name]
		state := "connected"
		if !v.Connected {
			state = "disconnected"
		}
		age := "-"
		if !v.LastMessageAt.IsZero() {
			age = time.Since(v.LastMessageAt).Round(time.Second).String()
		}
		out += fmt.Sprintf("  %-12s %-12s subs=%-5d msgs=%-8d last=%s\n",
			name, state, v.Subscribed, v.Messages, muted.Render(age))
	}
	return out
}
