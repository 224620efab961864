// Package ui provides the Bubble Tea dashboard for predikt-arb and
// predikt-mm.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
	"github.com/predikt/arb-agent/pkg/ui/components"
)

// Phase is the dashboard's top-level mode.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"
	PhaseStartup   Phase = "startup"
	PhaseDashboard Phase = "dashboard"
)

// WelcomeDuration is how long the welcome screen shows before
// auto-advancing.
const WelcomeDuration = 2 * time.Second

// startupGrace forces the dashboard open even if a venue never connects, so
// a dead venue can't wedge the operator on the startup screen.
const startupGrace = 15 * time.Second

// StartupStep tracks one named step on the startup screen.
type StartupStep struct {
	Name   string
	Status string
}

// ErrorEntry is one line of the persistent error panel.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// Model is the root Bubble Tea model.
type Model struct {
	keys KeyMap

	books         *components.PricesComponent
	opportunities *components.OpportunitiesComponent
	feedStatus    *components.StatusComponent
	stats         *components.StatsComponent

	phase        Phase
	welcomeStart time.Time
	startupTime  time.Time
	startupSteps map[string]*StartupStep
	stepOrder    []string

	ready    bool
	quitting bool
	paused   bool
	width    int
	height   int

	lastUpdate   time.Time
	booksByToken map[string]components.PriceRow
	activityFeed []string
	logs         []string
	errors       []ErrorEntry
}

// New creates the dashboard model.
func New() Model {
	now := time.Now()
	return Model{
		keys:          DefaultKeyMap(),
		books:         components.NewPricesComponent(),
		opportunities: components.NewOpportunitiesComponent(50),
		feedStatus:    components.NewStatusComponent(),
		stats:         components.NewStatsComponent(),
		phase:         PhaseWelcome,
		welcomeStart:  now,
		startupTime:   now,
		startupSteps: map[string]*StartupStep{
			"config": {Name: "Loading configuration", Status: "pending"},
		},
		stepOrder:    []string{"config"},
		booksByToken: make(map[string]components.PriceRow),
		activityFeed: make([]string, 0, 8),
		logs:         make([]string, 0, 5),
		errors:       make([]ErrorEntry, 0, 3),
	}
}

// Init starts the animation clock.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		if m.phase == PhaseWelcome {
			m = m.advanceToStartup()
			return m, tickCmd()
		}
		switch {
		case key.Matches(msg, m.keys.Clear):
			m.opportunities.Clear()
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.ScrollUp):
			m.opportunities.ScrollUp()
		case key.Matches(msg, m.keys.ScrollDown):
			m.opportunities.ScrollDown()
		case key.Matches(msg, m.keys.Errors):
			m.errors = m.errors[:0]
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case TickMsg:
		if m.phase == PhaseWelcome && time.Since(m.welcomeStart) >= WelcomeDuration {
			m = m.advanceToStartup()
		}
		if m.phase == PhaseStartup && (m.startupDone() || time.Since(m.startupTime) >= startupGrace) {
			m.phase = PhaseDashboard
		}
		return m, tickCmd()

	case OpportunityMsg:
		opp := msg.Opportunity
		m.opportunities.Add(components.OpportunityRow{
			Timestamp:  opp.DetectedAt.Format("15:04:05"),
			Kind:       string(opp.Kind),
			Key:        opp.Key,
			RiskLevel:  string(opp.RiskLevel),
			Confidence: opp.Confidence,
			Edge:       opp.Edge,
			Detail:     opportunityDetail(opp),
			Profitable: opp.Edge > 0,
			Status:     "DETECTED",
		})
		m.activityFeed = addLine(m.activityFeed, 6,
			fmt.Sprintf("%s edge %.2f%% (%s)", opp.Kind, opp.Edge*100, opp.Key))
		m.lastUpdate = time.Now()

	case BookUpdateMsg:
		if m.paused {
			return m, nil
		}
		cacheKey := string(msg.Venue) + "/" + msg.TokenID
		m.booksByToken[cacheKey] = components.PriceRow{
			Venue:   string(msg.Venue),
			TokenID: msg.TokenID,
			BestBid: msg.BestBid,
			BestAsk: msg.BestAsk,
			Mid:     msg.Mid,
		}
		if msg.Question != "" {
			m.books.SetQuestion(msg.Question)
		}
		rows := make([]components.PriceRow, 0, 8)
		for _, row := range m.booksByToken {
			rows = append(rows, row)
			if len(rows) >= 8 {
				break
			}
		}
		m.books.Update(rows)
		m.lastUpdate = time.Now()

	case FeedStatusMsg:
		m.feedStatus.Update(msg.Status)
		m.trackStartupStep(msg.Status)
		m.lastUpdate = time.Now()

	case StatsMsg:
		m.stats.Update(msg.Rows)
		m.lastUpdate = time.Now()

	case ErrorMsg:
		m.logs = addLine(m.logs, 5, "error: "+msg.Error.Error())
		m.errors = append(m.errors, ErrorEntry{Message: msg.Error.Error(), Timestamp: time.Now()})
		if len(m.errors) > 3 {
			m.errors = m.errors[len(m.errors)-3:]
		}

	case LogMsg:
		m.logs = addLine(m.logs, 5, msg.Level+": "+msg.Message)

	case StartupMsg:
		m.setStartupStep(msg.Step, msg.Step, msg.Status)
	}

	return m, nil
}

func (m Model) advanceToStartup() Model {
	m.phase = PhaseStartup
	m.startupTime = time.Now()
	if step, ok := m.startupSteps["config"]; ok {
		step.Status = "done"
	}
	if OnStartModules != nil {
		go OnStartModules()
	}
	return m
}

// trackStartupStep lazily grows the startup checklist from the venues that
// actually report in, so disabled feeds never show as stuck.
func (m *Model) trackStartupStep(st components.VenueStatus) {
	status := "connecting"
	if st.Connected {
		status = "connected"
	}
	m.setStartupStep(st.Name, "Connecting to "+st.Name, status)
}

func (m *Model) setStartupStep(key, name, status string) {
	if step, ok := m.startupSteps[key]; ok {
		step.Status = status
		return
	}
	m.startupSteps[key] = &StartupStep{Name: name, Status: status}
	m.stepOrder = append(m.stepOrder, key)
}

func (m Model) startupDone() bool {
	if len(m.startupSteps) < 2 {
		return false // nothing has reported in yet beyond config
	}
	for _, step := range m.startupSteps {
		if step.Status != "connected" && step.Status != "done" {
			return false
		}
	}
	return true
}

// opportunityDetail renders the kind-specific line of an opportunity row.
func opportunityDetail(opp detectdomain.Opportunity) string {
	switch opp.Kind {
	case detectdomain.KindValueMismatch:
		return fmt.Sprintf("token=%s side=%s fair=%.4f", opp.TokenID, opp.Side, opp.FairPrice)
	case detectdomain.KindIntraVenue:
		return fmt.Sprintf("market=%s %s/%s action=%s", opp.MarketID, opp.YesToken, opp.NoToken, opp.Action)
	case detectdomain.KindMultiOutcome:
		return fmt.Sprintf("group=%s legs=%d action=%s", opp.GroupID, len(opp.Legs), opp.Action)
	case detectdomain.KindCrossVenue:
		return fmt.Sprintf("pair=%s %s<->%s similarity=%.2f", opp.PairID, opp.LegA.Venue, opp.LegB.Venue, opp.Similarity)
	case detectdomain.KindDependency:
		return fmt.Sprintf("bundle=%s legs=%d", opp.BundleID, len(opp.Legs))
	default:
		return ""
	}
}

// addLine appends a timestamped line, keeping the newest max entries.
func addLine(lines []string, max int, message string) []string {
	lines = append(lines, fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), message))
	if len(lines) > max {
		lines = lines[len(lines)-max:]
	}
	return lines
}

// View renders the current phase.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}
	switch m.phase {
	case PhaseWelcome:
		return m.renderWelcome()
	case PhaseStartup:
		return m.renderStartup()
	}
	return m.renderDashboard()
}

func (m Model) renderDashboard() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render(" predikt "))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")

	leftCol := m.books.View() + "\n" + m.stats.View()

	var right strings.Builder
	right.WriteString(m.renderActivityFeed())
	right.WriteString("\n\n")
	right.WriteString(m.opportunities.View())
	rightCol := right.String()

	if m.width > 100 {
		left := BoxStyle.Width(m.width/2 - 2).Render(leftCol)
		rightBox := BoxStyle.Width(m.width/2 - 2).Render(rightCol)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, rightBox))
	} else {
		b.WriteString(BoxStyle.Width(m.width - 4).Render(leftCol))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(m.width - 4).Render(rightCol))
	}
	b.WriteString("\n\n")

	if len(m.errors) > 0 {
		b.WriteString(ErrorHeaderStyle.Render("ERRORS"))
		b.WriteString(MutedValue.Render(" (e: clear)"))
		b.WriteString("\n")
		for _, e := range m.errors {
			ago := time.Since(e.Timestamp).Round(time.Second)
			b.WriteString(NegativeValue.Render("  • " + e.Message + " "))
			b.WriteString(MutedValue.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.paused {
		b.WriteString(PausedStyle.Render("⏸ PAUSED"))
		b.WriteString(" • ")
	}
	b.WriteString(HelpStyle.Render("q: quit • c: clear • p: pause • ↑↓: scroll • e: errors"))
	return b.String()
}

func (m Model) renderStatusBar() string {
	parts := []string{m.feedStatus.Line()}
	if !m.lastUpdate.IsZero() {
		ago := time.Since(m.lastUpdate).Round(time.Second)
		parts = append(parts, MutedValue.Render(fmt.Sprintf("Updated %s ago", ago)))
	}
	return strings.Join(parts, "  │  ")
}

func (m Model) renderActivityFeed() string {
	var sb strings.Builder
	sb.WriteString(HeaderStyle.Render("LIVE ACTIVITY"))
	sb.WriteString("\n\n")
	if len(m.activityFeed) == 0 {
		sb.WriteString(MutedValue.Render("  Waiting for scans..."))
		return sb.String()
	}
	for _, line := range m.activityFeed {
		sb.WriteString(MutedValue.Render("  " + line))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderWelcome() string {
	elapsed := time.Since(m.welcomeStart)
	dots := strings.Repeat(".", int(elapsed.Milliseconds()/300)%4)

	var sb strings.Builder
	sb.WriteString("\n\n\n\n")

	logo := `
    ██████╗ ██████╗ ███████╗██████╗ ██╗██╗  ██╗████████╗
    ██╔══██╗██╔══██╗██╔════╝██╔══██╗██║██║ ██╔╝╚══██╔══╝
    ██████╔╝██████╔╝█████╗  ██║  ██║██║█████╔╝    ██║
    ██╔═══╝ ██╔══██╗██╔══╝  ██║  ██║██║██╔═██╗    ██║
    ██║     ██║  ██║███████╗██████╔╝██║██║  ██╗   ██║
    ╚═╝     ╚═╝  ╚═╝╚══════╝╚═════╝ ╚═╝╚═╝  ╚═╝   ╚═╝
`
	sb.WriteString(HeaderStyle.Render(logo))
	sb.WriteString("\n")
	sb.WriteString(MutedValue.Render("          P R E D I C T I O N   M A R K E T   A G E N T"))
	sb.WriteString("\n\n\n")
	sb.WriteString(WarnStyle.Render("              market making + cross-venue arbitrage"))
	sb.WriteString("\n\n\n")
	sb.WriteString(PositiveValue.Render("                  Initializing" + dots))
	sb.WriteString("\n\n")
	sb.WriteString(MutedValue.Render("            Press any key to skip, or wait..."))
	sb.WriteString("\n")
	return sb.String()
}

func (m Model) renderStartup() string {
	var sb strings.Builder
	sb.WriteString("\n\n")
	sb.WriteString(HeaderStyle.Render("  predikt"))
	sb.WriteString("\n\n")
	sb.WriteString(lipgloss.NewStyle().Bold(true).Render("  Starting up..."))
	sb.WriteString("\n\n")

	for _, key := range m.stepOrder {
		step, ok := m.startupSteps[key]
		if !ok {
			continue
		}
		var icon, text string
		var style lipgloss.Style
		switch step.Status {
		case "connected", "done":
			icon, text, style = "✓", "Ready", PositiveValue
		case "connecting":
			spinners := []string{"◐", "◓", "◑", "◒"}
			icon = spinners[int(time.Since(m.startupTime).Milliseconds()/200)%len(spinners)]
			text, style = "Connecting...", WarnStyle
		case "failed":
			icon, text, style = "✗", "Failed", NegativeValue
		default:
			icon, text, style = "○", "Pending", MutedValue
		}
		sb.WriteString(fmt.Sprintf("  %s %s %s\n",
			style.Render(icon), MutedValue.Render(step.Name), style.Render(text)))
	}

	sb.WriteString("\n")
	sb.WriteString(MutedValue.Render(fmt.Sprintf("  Elapsed: %s", time.Since(m.startupTime).Round(time.Second))))
	sb.WriteString("\n\n")
	sb.WriteString(MutedValue.Render("  Waiting for first book snapshot..."))
	sb.WriteString("\n")
	return sb.String()
}

// Program holds the Bubble Tea program instance for external access.
var Program *tea.Program

// OnStartModules is called when the welcome screen completes and modules
// should start.
var OnStartModules func()

// Run starts the Bubble Tea program.
func Run() error {
	Program = tea.NewProgram(New(), tea.WithAltScreen())
	_, err := Program.Run()
	return err
}

// Send delivers a message to the running program, skipping delivery when no
// dashboard is attached so reporters can send unconditionally. A
// StartModulesMsg also calls OnStartModules directly, with or without a
// dashboard.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
	if _, ok := msg.(StartModulesMsg); ok && OnStartModules != nil {
		OnStartModules()
	}
}
