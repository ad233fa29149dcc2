package components

import (
	"fmt"

	"github.com/theirongolddev/costledger/internal/tui/theme"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// RatioColor grades a retrieval ratio (0-1): higher reuse is better.
func RatioColor(ratio float64) lipgloss.Color {
	t := theme.Active
	switch {
	case ratio >= 0.5:
		return t.Good
	case ratio >= 0.2:
		return t.Warn
	default:
		return t.Bad
	}
}

// RatioBar renders label, a filled bar and the percentage on one line.
func RatioBar(label string, ratio float64, labelW, barW int) string {
	t := theme.Active
	ratio = min(max(ratio, 0), 1)
	color := RatioColor(ratio)

	bar := progress.New(
		progress.WithSolidFill(string(color)),
		progress.WithWidth(barW),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(t.Dim)

	bg := lipgloss.NewStyle().Background(t.Surface)
	return bg.Foreground(t.Muted).Render(fmt.Sprintf("%-*s ", labelW, label)) +
		bar.ViewAs(ratio) +
		bg.Foreground(color).Bold(true).Render(fmt.Sprintf(" %3.0f%%", ratio*100))
}
