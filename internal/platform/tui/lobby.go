package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/transport"
)

// Lobby layout constants
const (
	lobbyRefreshRate = 10 // link service passes per second
	lobbyChrome      = 8  // rows used by title, help and margins
)

// Browser is the discovery side of a client link.
type Browser interface {
	Scan(now time.Time) error
	Service(now time.Time)
	Sessions() []transport.DiscoveryRecord
}

// LobbyKeyMap defines the key bindings for the lobby.
type LobbyKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Join    key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

// ShortHelp returns key bindings for the short help view.
func (k LobbyKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Join, k.Refresh, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k LobbyKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Join},
		{k.Refresh, k.Quit},
	}
}

// DefaultLobbyKeyMap returns default key bindings.
func DefaultLobbyKeyMap() LobbyKeyMap {
	return LobbyKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("up/k", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("down/j", "move down"),
		),
		Join: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "join"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rescan"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// LobbyModel lists sessions discovered on the LAN.
type LobbyModel struct {
	browser  Browser
	clock    core.Clock
	sessions []transport.DiscoveryRecord
	selected *transport.DiscoveryRecord
	table    table.Model
	help     help.Model
	keys     LobbyKeyMap
	width    int
	height   int
	quitting bool
}

// NewLobbyModel creates a lobby over browser.
func NewLobbyModel(browser Browser, clock core.Clock, width, height int) LobbyModel {
	h := help.New()
	h.ShowAll = false

	m := LobbyModel{
		browser: browser,
		clock:   clock,
		keys:    DefaultLobbyKeyMap(),
		help:    h,
		width:   width,
		height:  height,
	}
	m.table = m.createTable()
	return m
}

// createTable creates a new table with appropriate columns.
func (m *LobbyModel) createTable() table.Model {
	columns := []table.Column{
		{Title: "Session", Width: 10},
		{Title: "Name", Width: 16},
		{Title: "Host", Width: 12},
		{Title: "Rules", Width: 22},
		{Title: "Players", Width: 8},
	}

	height := m.height - lobbyChrome
	if height < 3 {
		height = 3
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return t
}

// refresh reloads the session list, keeping the cursor in range.
func (m *LobbyModel) refresh() {
	m.sessions = m.browser.Sessions()
	rows := make([]table.Row, len(m.sessions))
	for i, rec := range m.sessions {
		rows[i] = sessionRow(rec)
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

func sessionRow(rec transport.DiscoveryRecord) table.Row {
	name := rec.Advert.Name
	host := "?"
	rules := rec.Advert.Ruleset()
	if rec.Details != nil {
		name = rec.Details.SessionName
		host = rec.Details.HostName
		rules = rec.Details.Ruleset
	}
	players := fmt.Sprintf("%d/%d", rec.Advert.PlayerCount, rec.Advert.Capacity)
	if !rec.Advert.Open() {
		players += " full"
	}
	return table.Row{
		fmt.Sprintf("%08x", rec.SessionID),
		name,
		host,
		rules.String(),
		players,
	}
}

// Init starts scanning.
func (m LobbyModel) Init() tea.Cmd {
	//nolint:errcheck // A failed scan is retried on the next pass
	m.browser.Scan(m.clock.Now())
	return tickCmd(lobbyRefreshRate)
}

// Update handles messages for the lobby.
func (m LobbyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case TickMsg:
		m.browser.Service(m.clock.Now())
		m.refresh()
		return m, tickCmd(lobbyRefreshRate)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Join):
			if c := m.table.Cursor(); c >= 0 && c < len(m.sessions) {
				rec := m.sessions[c]
				m.selected = &rec
				return m, tea.Quit
			}
			return m, nil

		case key.Matches(msg, m.keys.Refresh):
			//nolint:errcheck // A failed scan is retried on the next pass
			m.browser.Scan(m.clock.Now())
			return m, nil

		case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
			m.table, cmd = m.table.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table = m.createTable()
		m.refresh()
		m.help.Width = msg.Width
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the lobby.
func (m LobbyModel) View() string {
	if m.quitting || m.selected != nil {
		return ""
	}

	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("229")).
		MarginBottom(1)
	b.WriteString(titleStyle.Render(centerText(fmt.Sprintf("LAN SESSIONS (%d)", len(m.sessions)), m.width)))
	b.WriteString("\n\n")

	tableStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	if len(m.sessions) == 0 {
		emptyStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true).
			Padding(2, 4)
		b.WriteString(tableStyle.Render(emptyStyle.Render("Scanning...\nNo sessions found yet.")))
	} else {
		b.WriteString(tableStyle.Render(m.table.View()))
	}

	b.WriteString("\n")
	helpStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))
	b.WriteString(helpStyle.Render(m.help.View(m.keys)))

	return b.String()
}

// Selected returns the session the user chose to join.
func (m LobbyModel) Selected() (transport.DiscoveryRecord, bool) {
	if m.selected == nil {
		return transport.DiscoveryRecord{}, false
	}
	return *m.selected, true
}

// RunLobby runs the lobby screen until the user joins a session or quits.
func RunLobby(browser Browser, clock core.Clock, width, height int) (transport.DiscoveryRecord, bool, error) {
	model := NewLobbyModel(browser, clock, width, height)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
	)

	finalModel, err := p.Run()
	if err != nil {
		return transport.DiscoveryRecord{}, false, err
	}

	m, ok := finalModel.(LobbyModel)
	if !ok {
		return transport.DiscoveryRecord{}, false, nil
	}
	rec, joined := m.Selected()
	return rec, joined, nil
}
