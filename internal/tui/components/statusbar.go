package components

import (
	"strings"

	"github.com/theirongolddev/costledger/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// Hint is a key binding shown in the status bar.
type Hint struct {
	Key  string
	Desc string
}

// RenderStatusBar renders key hints on the left and right-aligned text.
func RenderStatusBar(width int, hints []Hint, right string) string {
	t := theme.Active
	bg := lipgloss.NewStyle().Background(t.Surface)
	keyStyle := bg.Foreground(t.Accent).Bold(true)
	descStyle := bg.Foreground(t.Muted)

	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, keyStyle.Render(h.Key)+descStyle.Render(" "+h.Desc))
	}
	left := bg.Render(" ") + strings.Join(parts, bg.Render("  "))
	rightText := descStyle.Render(right + " ")

	gap := width - lipgloss.Width(left) - lipgloss.Width(rightText)
	if gap < 1 {
		return bg.Width(width).Render(left)
	}
	return left + bg.Render(strings.Repeat(" ", gap)) + rightText
}
