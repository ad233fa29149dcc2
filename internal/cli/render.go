package cli

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/costledger/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// palette holds the CLI styles derived from one theme.
type palette struct {
	title, header, value, muted, good, warn, dim lipgloss.Style
	border                                       lipgloss.Color
}

// styles is rebuilt per call so a theme activated from config after init
// takes effect.
func styles() palette {
	t := theme.Active
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	return palette{
		title:  fg(t.Text).Bold(true).Align(lipgloss.Center),
		header: fg(t.Accent).Bold(true),
		value:  fg(t.Text),
		muted:  fg(t.Muted),
		good:   fg(t.Good),
		warn:   fg(t.Warn),
		dim:    fg(t.Dim),
		border: t.Border,
	}
}

// Table represents a bordered text table for CLI output.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Widths  []int // optional column widths, auto-calculated if nil
	// LeftCols is how many leading columns are left-aligned; the rest are
	// right-aligned. Zero means one.
	LeftCols int
}

// KV is one labelled line in a RenderKV block.
type KV struct {
	Key   string
	Value string
}

// RenderTitle renders a centered title bar in a bordered box.
func RenderTitle(title string) string {
	st := styles()
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(st.border).
		Width(55).
		Align(lipgloss.Center).
		Padding(0, 1).
		Render(st.title.Render(title))
}

// RenderKV renders aligned "key  value" lines under an optional heading.
func RenderKV(heading string, pairs []KV) string {
	st := styles()
	width := 0
	for _, p := range pairs {
		width = max(width, lipgloss.Width(p.Key))
	}

	var b strings.Builder
	if heading != "" {
		b.WriteString("  ")
		b.WriteString(st.header.Render(heading))
		b.WriteString("\n")
	}
	for _, p := range pairs {
		b.WriteString("  ")
		b.WriteString(st.muted.Render(fmt.Sprintf("%-*s", width, p.Key)))
		b.WriteString("  ")
		b.WriteString(st.value.Render(p.Value))
		b.WriteString("\n")
	}
	return b.String()
}

// Good renders text in the positive accent color.
func Good(s string) string { return styles().good.Render(s) }

// Warn renders text in the warning color.
func Warn(s string) string { return styles().warn.Render(s) }

// Muted renders secondary text.
func Muted(s string) string { return styles().muted.Render(s) }

// RenderTable renders a bordered table with headers and rows. A row holding
// the single cell "---" renders as a separator.
func RenderTable(t Table) string {
	if len(t.Rows) == 0 && len(t.Headers) == 0 {
		return ""
	}

	numCols := len(t.Headers)
	if numCols == 0 && len(t.Rows) > 0 {
		numCols = len(t.Rows[0])
	}
	st := styles()
	left := t.LeftCols
	if left <= 0 {
		left = 1
	}

	widths := make([]int, numCols)
	if t.Widths != nil {
		copy(widths, t.Widths)
	} else {
		for i, h := range t.Headers {
			widths[i] = max(widths[i], lipgloss.Width(h))
		}
		for _, row := range t.Rows {
			for i, cell := range row {
				if i < numCols {
					widths[i] = max(widths[i], lipgloss.Width(cell))
				}
			}
		}
	}

	rule := func(l, mid, r string) string {
		var b strings.Builder
		b.WriteString(st.dim.Render(l))
		for i, w := range widths {
			b.WriteString(st.dim.Render(strings.Repeat("─", w+2)))
			if i < numCols-1 {
				b.WriteString(st.dim.Render(mid))
			}
		}
		b.WriteString(st.dim.Render(r))
		b.WriteString("\n")
		return b.String()
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  ")
		b.WriteString(st.header.Render(t.Title))
		b.WriteString("\n")
	}

	b.WriteString(rule("╭", "┬", "╮"))

	if len(t.Headers) > 0 {
		b.WriteString(st.dim.Render("│"))
		for i, h := range t.Headers {
			b.WriteString(st.header.Render(fmt.Sprintf(" %-*s ", widths[i], h)))
			if i < numCols-1 {
				b.WriteString(st.dim.Render("│"))
			}
		}
		b.WriteString(st.dim.Render("│"))
		b.WriteString("\n")
		b.WriteString(rule("├", "┼", "┤"))
	}

	for _, row := range t.Rows {
		if len(row) == 1 && row[0] == "---" {
			b.WriteString(rule("├", "┼", "┤"))
			continue
		}

		b.WriteString(st.dim.Render("│"))
		for i := 0; i < numCols; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			pad := max(widths[i]-lipgloss.Width(cell), 0)
			var padded string
			if i < left {
				padded = " " + cell + strings.Repeat(" ", pad) + " "
			} else {
				padded = " " + strings.Repeat(" ", pad) + cell + " "
			}
			b.WriteString(st.value.Render(padded))
			if i < numCols-1 {
				b.WriteString(st.dim.Render("│"))
			}
		}
		b.WriteString(st.dim.Render("│"))
		b.WriteString("\n")
	}

	b.WriteString(rule("╰", "┴", "╯"))
	return b.String()
}

// RenderProgressBar renders a simple text progress bar.
func RenderProgressBar(current, total int, width int) string {
	if total <= 0 {
		return ""
	}

	st := styles()
	pct := min(float64(current)/float64(total), 1)
	filled := min(int(pct*float64(width)), width)

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("[%s] %s/%s",
		st.muted.Render(bar),
		FormatNumber(int64(current)),
		FormatNumber(int64(total)),
	)
}

// RenderSparkline generates a unicode block sparkline from a series of values.
func RenderSparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}

	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	peak := values[0]
	for _, v := range values[1:] {
		peak = max(peak, v)
	}
	if peak == 0 {
		peak = 1
	}

	var b strings.Builder
	for _, v := range values {
		idx := int(v / peak * float64(len(blocks)-1))
		idx = min(max(idx, 0), len(blocks)-1)
		b.WriteRune(blocks[idx])
	}
	return b.String()
}
