package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/lockstep/internal/core"
	"github.com/vovakirdan/lockstep/internal/input"
	"github.com/vovakirdan/lockstep/internal/netsync"
)

// maxNotices is how many recent session events the view keeps.
const maxNotices = 6

// FrameFunc runs one frame of the session, normally driver.Driver.RunFrame.
type FrameFunc func(now time.Time) (int, error)

// Status is what the session view shows about the running session.
type Status struct {
	Title     string
	Role      string
	Active    bool
	Applied   int
	Consensus int
	Slots     []netsync.PlayerSlot
	Local     int
	Checksum  uint64
}

// StatusFunc samples the session state for rendering.
type StatusFunc func() Status

// SessionModel is the Bubble Tea model for a running session. Every TickMsg
// runs one driver frame; key presses go to the local input producer.
type SessionModel struct {
	frame    FrameFunc
	status   StatusFunc
	events   *netsync.EventQueue
	producer *input.Producer
	keys     *KeyMapper
	clock    core.Clock
	tickRate int

	notices  []string
	ended    bool
	err      error
	quitting bool
}

// NewSessionModel creates the session view.
func NewSessionModel(frame FrameFunc, status StatusFunc, events *netsync.EventQueue,
	producer *input.Producer, clock core.Clock, tickRate int) SessionModel {
	return SessionModel{
		frame:    frame,
		status:   status,
		events:   events,
		producer: producer,
		keys:     NewKeyMapper(),
		clock:    clock,
		tickRate: tickRate,
	}
}

// Init starts the frame loop.
func (m SessionModel) Init() tea.Cmd {
	return tickCmd(m.tickRate)
}

// Update handles messages and updates the model state.
func (m SessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.keys.Apply(msg, m.producer) {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case TickMsg:
		return m.handleTick()
	}

	return m, nil
}

// handleTick runs one frame and collects session events.
func (m SessionModel) handleTick() (tea.Model, tea.Cmd) {
	if _, err := m.frame(m.clock.Now()); err != nil {
		m.err = err
		m.notices = appendNotice(m.notices, "error: "+err.Error())
		return m, tea.Quit
	}

	if m.events != nil {
		for _, ev := range m.events.Drain() {
			m.notices = appendNotice(m.notices, DescribeEvent(ev))
			if _, ok := ev.(netsync.SessionEndedEvent); ok {
				m.ended = true
			}
		}
	}
	if m.ended {
		return m, tea.Quit
	}

	return m, tickCmd(m.tickRate)
}

func appendNotice(list []string, s string) []string {
	list = append(list, s)
	if len(list) > maxNotices {
		list = list[len(list)-maxNotices:]
	}
	return list
}

// View renders the current state to a string for display.
func (m SessionModel) View() string {
	if m.quitting {
		return ""
	}
	return RenderStatus(m.status(), m.notices)
}

// Err returns the error that stopped the session, if any.
func (m SessionModel) Err() error {
	return m.err
}

// Ended reports whether the session ended on its own.
func (m SessionModel) Ended() bool {
	return m.ended
}

// RunSession runs the session view until the session ends or the user quits.
func RunSession(model SessionModel) error {
	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
	)

	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := finalModel.(SessionModel); ok {
		return m.Err()
	}
	return nil
}
