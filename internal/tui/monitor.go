// Package tui renders the live capture monitor: connection state,
// stream counters, the rolling status line, and the latest
// recommendation.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BrandenXMachi/poker-gto-vision/internal/client"
)

// connState is the monitor's view of the transport.
type connState int

const (
	stateConnecting connState = iota
	stateConnected
	stateReconnecting
	stateFailed
)

// EventMsg wraps a client event for the bubbletea loop.
type EventMsg client.Event

// FrameSentMsg ticks the frames-sent counter.
type FrameSentMsg struct{}

// Model is the bubbletea model for the monitor.
type Model struct {
	events <-chan client.Event

	spin  spinner.Model
	state connState

	framesSent      int
	statusLine      string
	recommendations []client.Event
	lastErr         error
	quitting        bool

	width int
}

// NewModel creates a monitor fed by the client's event stream.
func NewModel(events <-chan client.Event) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	return Model{
		events:     events,
		spin:       sp,
		state:      stateConnecting,
		statusLine: "waiting for server...",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.listen())
}

// listen waits for the next client event. The channel closing means the
// client run loop ended, terminal failure included.
func (m Model) listen() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return tea.QuitMsg{}
		}
		return EventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case FrameSentMsg:
		m.framesSent++

	case EventMsg:
		m.applyEvent(client.Event(msg))
		return m, m.listen()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) applyEvent(ev client.Event) {
	switch ev.Kind {
	case client.EventConnected:
		m.state = stateConnected
		m.statusLine = "connected"
	case client.EventDisconnected:
		m.state = stateReconnecting
		m.statusLine = "connection lost, retrying"
		m.lastErr = ev.Err
	case client.EventTerminalFailure:
		m.state = stateFailed
		m.statusLine = ev.Message
		m.lastErr = ev.Err
	case client.EventStatus:
		m.statusLine = ev.Message
	case client.EventRecommendation:
		m.recommendations = append(m.recommendations, ev)
		if len(m.recommendations) > 5 {
			m.recommendations = m.recommendations[1:]
		}
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(HeaderStyle.Render("Poker Vision Monitor"))
	b.WriteString("\n\n")

	b.WriteString(m.connectionLine())
	b.WriteString("\n")
	b.WriteString(StatusStyle.Render(fmt.Sprintf("frames sent: %d", m.framesSent)))
	b.WriteString("\n")
	b.WriteString(StatusStyle.Render(m.statusLine))
	b.WriteString("\n\n")

	if len(m.recommendations) == 0 {
		b.WriteString(StatusStyle.Render("no recommendations yet"))
	} else {
		for _, ev := range m.recommendations {
			rec := ev.Recommendation
			panel := fmt.Sprintf("%s  pot %s  ev %s\n%s",
				ActionStyle.Render(rec.Action),
				rec.PotSize,
				rec.EV,
				ReasoningStyle.Render(rec.Reasoning))
			b.WriteString(PanelStyle.Render(panel))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(StatusStyle.Render("q to quit"))
	return b.String()
}

func (m Model) connectionLine() string {
	switch m.state {
	case stateConnected:
		return ConnectedStyle.Render("● connected")
	case stateReconnecting:
		return m.spin.View() + DisconnectedStyle.Render(" reconnecting")
	case stateFailed:
		return FailedStyle.Render("✗ connection failed")
	default:
		return m.spin.View() + StatusStyle.Render(" connecting")
	}
}
