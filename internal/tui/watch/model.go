package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hookgate/hookgate/internal/events"
)

const maxEventLog = 100

// Model is the bubbletea model for `hookgate watch`.
type Model struct {
	apiURL string
	apiKey string
	theme  Theme

	spin      spinner.Model
	connected bool
	health    healthMsg
	eventLog  []events.Event // newest first
	eventCh   chan events.Event
	lastErr   error

	width  int
	height int
}

func NewModel(apiURL, apiKey string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		apiURL:  apiURL,
		apiKey:  apiKey,
		theme:   NewDefaultTheme(),
		spin:    sp,
		eventCh: make(chan events.Event, 64),
		width:   80,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spin.Tick,
		subscribeToEvents(m.apiURL, m.apiKey, m.eventCh),
		receiveNextEvent(m.eventCh),
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
		tickEvery(5*time.Second),
	)
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case eventMsg:
		m.connected = true
		m.eventLog = append([]events.Event{events.Event(msg)}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		return m, receiveNextEvent(m.eventCh)

	case healthMsg:
		m.health = msg
		m.connected = true

	case tickMsg:
		return m, tea.Batch(
			func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
			tickEvery(5*time.Second),
		)

	case sseDisconnectedMsg:
		m.connected = false
		// Reconnect after a short pause.
		return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.eventCh)

	case errMsg:
		m.lastErr = msg

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

type reconnectMsg struct{}

func (m Model) View() string {
	header := m.renderHeader()
	stream := renderDecisionStream(m.eventLog, m.theme, m.width)
	footer := m.theme.Dim.Render("  q: quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, stream, footer)
}

func (m Model) renderHeader() string {
	var status string
	if m.connected {
		status = m.theme.Accepted.Render("connected")
	} else {
		status = m.spin.View() + m.theme.Warning.Render(" connecting")
	}

	info := fmt.Sprintf("connectors: %d   decisions: %d   uptime: %s",
		m.health.Connectors,
		m.health.Decisions,
		(time.Duration(m.health.UptimeSeconds) * time.Second).String(),
	)

	line := lipgloss.JoinHorizontal(lipgloss.Top,
		m.theme.Header.Render("hookgate watch  "),
		status,
		m.theme.Dim.Render("   "+info),
	)
	if m.lastErr != nil {
		line = lipgloss.JoinVertical(lipgloss.Left, line,
			m.theme.Rejected.Render("  "+m.lastErr.Error()))
	}
	return line
}
