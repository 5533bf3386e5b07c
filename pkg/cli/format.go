package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/voxkit/voxkit/pkg/convo"
)

// Theme defines the color scheme for rendered conversations.
type Theme struct {
	Local  lipgloss.Color // local participant accent
	Remote lipgloss.Color // remote participant accent
	Dim    lipgloss.Color // timestamps, edited markers
	Chip   lipgloss.Color // option chips
}

// DefaultTheme is the default palette.
var DefaultTheme = Theme{
	Local:  lipgloss.Color("#00ff9f"),
	Remote: lipgloss.Color("#7aa2f7"),
	Dim:    lipgloss.Color("#6e7681"),
	Chip:   lipgloss.Color("#e0af68"),
}

// Styles holds the lipgloss styles derived from a theme.
type Styles struct {
	Local  lipgloss.Style
	Remote lipgloss.Style
	Dim    lipgloss.Style
	Chip   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Local:  lipgloss.NewStyle().Bold(true).Foreground(t.Local),
		Remote: lipgloss.NewStyle().Bold(true).Foreground(t.Remote),
		Dim:    lipgloss.NewStyle().Foreground(t.Dim),
		Chip:   lipgloss.NewStyle().Foreground(t.Chip),
	}
}

// FormatMessage renders one reconciled message as a terminal line,
// followed by numbered option chips when the message carries options.
func (s Styles) FormatMessage(m convo.Message) string {
	var b strings.Builder

	b.WriteString(s.Dim.Render(m.Timestamp.Time().Format("15:04:05")))
	b.WriteByte(' ')

	who := m.Participant
	if who == "" {
		who = string(m.Origin)
	}
	if m.Origin == convo.OriginLocal {
		b.WriteString(s.Local.Render(who))
	} else {
		b.WriteString(s.Remote.Render(who))
	}
	b.WriteString("  ")
	b.WriteString(m.Text)
	if m.EditedAt != nil {
		b.WriteByte(' ')
		b.WriteString(s.Dim.Render("(edited)"))
	}

	for i, opt := range m.Options {
		b.WriteByte('\n')
		b.WriteString("    ")
		b.WriteString(s.Chip.Render(fmt.Sprintf("[%d] %s", i+1, opt.Label)))
	}
	return b.String()
}

// FormatSequence renders the whole reconciled sequence, one message per
// block.
func (s Styles) FormatSequence(msgs []convo.Message) string {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = s.FormatMessage(m)
	}
	return strings.Join(lines, "\n")
}
