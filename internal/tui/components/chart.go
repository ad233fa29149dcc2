package components

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/costledger/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline renders one block character per value, scaled to the peak.
func Sparkline(values []float64, color lipgloss.Color) string {
	if len(values) == 0 {
		return ""
	}
	peak := 0.0
	for _, v := range values {
		peak = max(peak, v)
	}
	if peak == 0 {
		peak = 1
	}

	var b strings.Builder
	for _, v := range values {
		idx := int(v / peak * float64(len(sparkBlocks)-1))
		idx = min(max(idx, 0), len(sparkBlocks)-1)
		b.WriteRune(sparkBlocks[idx])
	}
	return lipgloss.NewStyle().
		Foreground(color).
		Background(theme.Active.Surface).
		Render(b.String())
}

// Bar is one labelled value in a BarList.
type Bar struct {
	Label string
	Value float64
	Text  string // shown after the bar; defaults to %.2f
	Color lipgloss.Color
}

// BarList renders horizontal bars, one per line, scaled to the largest value.
// Every line is exactly width cells wide.
func BarList(bars []Bar, width int) string {
	if len(bars) == 0 {
		return ""
	}
	t := theme.Active
	bg := lipgloss.NewStyle().Background(t.Surface)

	labelW, textW := 0, 0
	peak := 0.0
	texts := make([]string, len(bars))
	for i, b := range bars {
		texts[i] = b.Text
		if texts[i] == "" {
			texts[i] = fmt.Sprintf("%.2f", b.Value)
		}
		labelW = max(labelW, lipgloss.Width(b.Label))
		textW = max(textW, lipgloss.Width(texts[i]))
		peak = max(peak, b.Value)
	}
	if peak == 0 {
		peak = 1
	}

	barW := width - labelW - textW - 2
	if barW < 1 {
		barW = 1
	}

	lines := make([]string, len(bars))
	for i, b := range bars {
		color := b.Color
		if color == "" {
			color = t.Accent
		}
		n := int(b.Value / peak * float64(barW))
		n = min(max(n, 0), barW)
		if b.Value > 0 && n == 0 {
			n = 1
		}
		line := bg.Foreground(t.Muted).Render(fmt.Sprintf("%-*s ", labelW, b.Label)) +
			bg.Foreground(color).Render(strings.Repeat("█", n)) +
			bg.Render(strings.Repeat(" ", barW-n)) +
			bg.Foreground(t.Text).Render(fmt.Sprintf(" %*s", textW, texts[i]))
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}
