package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/inferd/internal/belief"
	"github.com/fyrsmithlabs/inferd/internal/trust"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	maxSummaryRows  = 8
	maxQueueRows    = 5
)

// Model is the BubbleTea dashboard for one agent.
type Model struct {
	source     string
	agentID    string
	fetcher    Fetcher
	interval   time.Duration
	lastUpdate time.Time
	view       *AgentView
	scores     []float64
	err        error
	quitting   bool

	layerProgress progress.Model
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	// Dim style - for units and secondary info
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))

	idColumnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Width(28)
)

// NewModel creates a dashboard polling agentID through fetcher. source is
// shown when the fetch fails.
func NewModel(source, agentID string, fetcher Fetcher, interval time.Duration) Model {
	return Model{
		source:   source,
		agentID:  agentID,
		fetcher:  fetcher,
		interval: interval,
		scores:   make([]float64, 0, historySize),
		layerProgress: progress.New(
			progress.WithGradient("#00ffff", "#00ff00"),
			progress.WithWidth(40),
		),
	}
}

// getLayerBadge renders the trust layer, flagging a pending ceremony.
func getLayerBadge(s trust.State) string {
	if s.PendingCeremony != nil {
		return warningStyle.Render(fmt.Sprintf("⚠ L%d CEREMONY PENDING", *s.PendingCeremony))
	}
	if s.Layer >= 3 {
		return healthyStyle.Render(fmt.Sprintf("✓ LAYER %d", s.Layer))
	}
	return valueStyle.Render(fmt.Sprintf("LAYER %d", s.Layer))
}

// getStatusBadge renders a summary's lifecycle state.
func getStatusBadge(s SummaryView) string {
	switch {
	case s.Status == belief.StatusActive:
		return valueStyle.Render("[…]")
	case s.Outcome.IsSuccess():
		return healthyStyle.Render("[✓]")
	case s.Status == belief.StatusAbandoned:
		return dimStyle.Render("[-]")
	default:
		return errorStyle.Render("[✗]")
	}
}

// layerFraction is how far score has climbed from the current layer's
// threshold toward the next one.
func layerFraction(s trust.State) float64 {
	if s.Layer >= trust.MaxLayer {
		return 1
	}
	lo, hi := trust.Thresholds[s.Layer], trust.Thresholds[s.Layer+1]
	f := (s.RawScore - lo) / (hi - lo)
	return min(max(f, 0), 1)
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}

	return sparklineStyle.Render(spark.View())
}

// Message types
type tickMsg time.Time
type viewMsg *AgentView
type errMsg error

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchView(m.fetcher, m.agentID),
	)
}

// tick creates a tick command for auto-refresh
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchView(f Fetcher, agentID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		v, err := f.Fetch(ctx, agentID)
		if err != nil {
			return errMsg(err)
		}
		return viewMsg(v)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchView(m.fetcher, m.agentID)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchView(m.fetcher, m.agentID),
		)

	case viewMsg:
		v := (*AgentView)(msg)
		if len(m.scores) == 0 {
			// Backfill from the stored trust history on the first poll.
			for _, d := range v.Trust.History {
				m.scores = appendToHistory(m.scores, d.Score)
			}
		}
		m.scores = appendToHistory(m.scores, v.Trust.RawScore)
		m.view = v
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	header := headerStyle.Render("inferd Agent Monitor")

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(errorStyle.Render("⚠ Cannot load agent state") + "\n\n")
	b.WriteString(dimStyle.Render("Server: ") + valueStyle.Render(m.source) + "\n")
	b.WriteString(dimStyle.Render("Agent: ") + valueStyle.Render(m.agentID) + "\n")
	b.WriteString(dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n\n")
	b.WriteString(footerStyle.Render("[q] quit  [r] retry") + "\n")

	return containerStyle.Render(header + "\n" + b.String())
}

func (m Model) renderDashboard() string {
	var b strings.Builder

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}
	b.WriteString(headerStyle.Render(" inferd Monitor ") + "\n")

	if m.view == nil {
		b.WriteString(dimStyle.Render("  agent ") + valueStyle.Render(m.agentID) + "   " +
			dimStyle.Render("waiting for first poll...") + "\n")
		b.WriteString("\n" + m.footer())
		return containerStyle.Render(b.String())
	}

	st := m.view.Trust
	b.WriteString(fmt.Sprintf("%s   %s %s   %s\n",
		getLayerBadge(st),
		dimStyle.Render("Agent:"),
		valueStyle.Render(m.agentID),
		dimStyle.Render(lastUpdateStr)))

	b.WriteString("\n" + sectionStyle.Render("┃ Trust") + "\n")
	var lastDelta float64
	if n := len(st.History); n > 0 {
		lastDelta = st.History[n-1].Delta
	}
	b.WriteString(labelStyle.Render("  Score: ") +
		valueStyle.Render(FormatScore(st.RawScore, lastDelta)) +
		"   " + createSparkline(m.scores) + "\n")
	next := "max"
	if st.Layer < trust.MaxLayer {
		next = fmt.Sprintf("L%d at %.2f", st.Layer+1, trust.Thresholds[st.Layer+1])
	}
	b.WriteString(labelStyle.Render("  Next: ") +
		m.layerProgress.ViewAs(layerFraction(st)) +
		" " + dimStyle.Render(next) + "\n")
	if !st.LastHeartbeatAt.IsZero() {
		ago := int64(m.view.GeneratedAt.Sub(st.LastHeartbeatAt).Seconds())
		b.WriteString(labelStyle.Render("  Heartbeat: ") +
			valueStyle.Render(FormatDuration(ago)+" ago") + "\n")
	}

	b.WriteString("\n" + sectionStyle.Render("┃ Beliefs") + "\n")
	if len(m.view.Summaries) == 0 {
		b.WriteString(dimStyle.Render("  no experiments yet") + "\n")
	}
	for i, s := range m.view.Summaries {
		if i == maxSummaryRows {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  … %d more", len(m.view.Summaries)-i)) + "\n")
			break
		}
		b.WriteString("  " + getStatusBadge(s) + " " +
			idColumnStyle.Render(s.ID) +
			valueStyle.Render(FormatPercentage(s.SuccessProbability)) + " " +
			dimStyle.Render(FormatInterval(s.CredibleInterval)) + " " +
			labelStyle.Render(fmt.Sprintf("n=%d", s.EvidenceCount)) + "\n")
	}

	b.WriteString("\n" + sectionStyle.Render("┃ Exploration Queue") + "\n")
	if len(m.view.Queue) == 0 {
		b.WriteString(dimStyle.Render("  nothing to explore") + "\n")
	}
	for i, c := range m.view.Queue {
		if i == maxQueueRows {
			break
		}
		b.WriteString("  " + idColumnStyle.Render(c.ExperimentType) +
			valueStyle.Render(fmt.Sprintf("%.3f", c.Score)) + " " +
			dimStyle.Render(c.Reason) + "\n")
	}

	b.WriteString("\n" + m.footer())
	return containerStyle.Render(b.String())
}

func (m Model) footer() string {
	return footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
}
