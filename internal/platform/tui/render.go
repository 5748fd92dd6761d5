package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/lockstep/internal/netsync"
	"github.com/vovakirdan/lockstep/internal/transport"
)

// Slot state styles.
var (
	styleTitle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	styleLabel    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleOK       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleStalled  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleDeparted = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleLocal    = lipgloss.NewStyle().Bold(true)
	styleNotice   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	styleBox      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// SlotState returns a short label for a slot.
func SlotState(p netsync.PlayerSlot) string {
	switch {
	case p.Departed:
		return "departed"
	case p.Stalled:
		return "stalled"
	case p.State == transport.StateConnected:
		return "connected"
	default:
		return p.State.String()
	}
}

func slotStyle(p netsync.PlayerSlot) lipgloss.Style {
	switch {
	case p.Departed:
		return styleDeparted
	case p.Stalled:
		return styleStalled
	default:
		return styleOK
	}
}

// RenderStatus draws the session header, the slot table and recent notices.
func RenderStatus(s Status, notices []string) string {
	var b strings.Builder

	title := s.Title
	if title == "" {
		title = "lockstep"
	}
	b.WriteString(styleTitle.Render(fmt.Sprintf("%s [%s]", title, s.Role)))
	b.WriteString("\n\n")

	phase := "lobby"
	if s.Active {
		phase = "playing"
	}
	fmt.Fprintf(&b, "%s %s  %s %d  %s %d  %s %d  %s %016x\n\n",
		styleLabel.Render("phase"), phase,
		styleLabel.Render("applied"), s.Applied,
		styleLabel.Render("consensus"), s.Consensus,
		styleLabel.Render("buffered"), s.Consensus-s.Applied,
		styleLabel.Render("state"), s.Checksum,
	)

	var rows strings.Builder
	fmt.Fprintf(&rows, "%-4s %-16s %-7s %-10s %9s %9s\n", "slot", "name", "role", "state", "produced", "received")
	for _, p := range s.Slots {
		name := p.Name
		if p.Index == s.Local {
			name = styleLocal.Render(fmt.Sprintf("%-16s", name+" *"))
		} else {
			name = fmt.Sprintf("%-16s", name)
		}
		fmt.Fprintf(&rows, "%-4d %s %-7s %s %9d %9d\n",
			p.Index, name, p.Role, slotStyle(p).Render(fmt.Sprintf("%-10s", SlotState(p))), p.Produced, p.Received)
	}
	b.WriteString(styleBox.Render(strings.TrimRight(rows.String(), "\n")))
	b.WriteString("\n")

	for _, n := range notices {
		b.WriteString(styleNotice.Render(n))
		b.WriteString("\n")
	}
	b.WriteString(styleLabel.Render("arrows turn, w/s move, a/d strafe, space fire, e use, 1-7 weapon, q quit"))
	return b.String()
}

// DescribeEvent formats a session event as a one-line notice.
func DescribeEvent(ev netsync.Event) string {
	switch e := ev.(type) {
	case netsync.SessionStartedEvent:
		return fmt.Sprintf("session started: seed %d, players %s", e.Seed, strings.Join(e.Players, ", "))
	case netsync.RosterChangedEvent:
		names := make([]string, 0, len(e.Slots))
		for _, p := range e.Slots {
			names = append(names, p.Name)
		}
		return fmt.Sprintf("roster: %s", strings.Join(names, ", "))
	case netsync.PeerStalledEvent:
		return fmt.Sprintf("slot %d (%s) stalled", e.Slot, e.Name)
	case netsync.PeerRecoveredEvent:
		return fmt.Sprintf("slot %d recovered", e.Slot)
	case netsync.PeerDroppedEvent:
		return fmt.Sprintf("slot %d (%s) dropped at tic %d: %s", e.Slot, e.Name, e.DepartedAt, e.Reason)
	case netsync.SessionEndedEvent:
		if e.Err != nil {
			return fmt.Sprintf("session ended (%s) after %d tics: %v", e.Reason, e.TicsApplied, e.Err)
		}
		return fmt.Sprintf("session ended (%s) after %d tics", e.Reason, e.TicsApplied)
	default:
		return fmt.Sprintf("%T", ev)
	}
}

// centerText centers text within the given width.
func centerText(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}
