// Package components provides the widgets the costledger dashboard is built from.
package components

import (
	"strings"

	"github.com/theirongolddev/costledger/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// LayoutRow splits total into n widths that add up to exactly total.
// Leading columns take the remainder.
func LayoutRow(total, n int) []int {
	if n <= 0 {
		return nil
	}
	widths := make([]int, n)
	for i := range widths {
		widths[i] = total / n
		if i < total%n {
			widths[i]++
		}
	}
	return widths
}

// Stat is one headline number.
type Stat struct {
	Label string
	Value string
	Note  string
	Color lipgloss.Color // optional value color
}

func cardStyle(outer int) lipgloss.Style {
	t := theme.Active
	inner := outer - 2
	if inner < 10 {
		inner = 10
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		BorderBackground(t.Background).
		Background(t.Surface).
		Width(inner).
		Padding(0, 1)
}

// StatCard renders a single headline number in a bordered box.
func StatCard(s Stat, outer int) string {
	t := theme.Active
	bg := lipgloss.NewStyle().Background(t.Surface)

	color := s.Color
	if color == "" {
		color = t.Text
	}
	lines := []string{
		bg.Foreground(t.Muted).Render(s.Label),
		bg.Foreground(color).Bold(true).Render(s.Value),
	}
	if s.Note != "" {
		lines = append(lines, bg.Foreground(t.Dim).Render(s.Note))
	}
	return cardStyle(outer).Render(strings.Join(lines, "\n"))
}

// StatRow renders stats side by side filling width.
func StatRow(stats []Stat, width int) string {
	if len(stats) == 0 {
		return ""
	}
	widths := LayoutRow(width, len(stats))
	cards := make([]string, len(stats))
	for i, s := range stats {
		cards[i] = StatCard(s, widths[i])
	}
	return Row(cards...)
}

// Panel renders body inside a titled bordered box.
func Panel(title, body string, outer int) string {
	t := theme.Active
	content := body
	if title != "" {
		head := lipgloss.NewStyle().Background(t.Surface).Foreground(t.Accent).Bold(true).Render(title)
		content = head + "\n" + body
	}
	return cardStyle(outer).Render(content)
}

// PanelInner is the text width available inside a Panel of the given outer width.
func PanelInner(outer int) int {
	if outer-4 < 10 {
		return 10
	}
	return outer - 4
}

// Row joins blocks horizontally, padding shorter blocks to the tallest one so
// the row keeps its background.
func Row(blocks ...string) string {
	if len(blocks) == 0 {
		return ""
	}
	tallest := 0
	for _, b := range blocks {
		tallest = max(tallest, lipgloss.Height(b))
	}
	fill := lipgloss.NewStyle().Background(theme.Active.Background)
	padded := make([]string, len(blocks))
	for i, b := range blocks {
		padded[i] = fill.Height(tallest).Width(lipgloss.Width(b)).Render(b)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, padded...)
}
