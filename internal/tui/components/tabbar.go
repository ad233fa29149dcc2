package components

import (
	"strings"

	"github.com/theirongolddev/costledger/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// Tab is one dashboard view.
type Tab struct {
	Name string
	Key  rune
}

// Tabs lists the dashboard views in display order.
var Tabs = []Tab{
	{Name: "Overview", Key: '1'},
	{Name: "Sessions", Key: '2'},
	{Name: "Patterns", Key: '3'},
	{Name: "Daily", Key: '4'},
}

// RenderTabBar renders the tab strip with active highlighted.
func RenderTabBar(active, width int) string {
	t := theme.Active
	base := lipgloss.NewStyle().Background(t.Background).Padding(0, 1)
	on := base.Background(t.Highlight).Foreground(t.Accent).Bold(true)
	off := base.Foreground(t.Muted)
	key := lipgloss.NewStyle().Background(t.Background).Foreground(t.Dim)

	parts := make([]string, len(Tabs))
	for i, tab := range Tabs {
		style := off
		if i == active {
			style = on
		}
		parts[i] = key.Render(string(tab.Key)) + style.Render(tab.Name)
	}
	bar := " " + strings.Join(parts, " ")
	return lipgloss.NewStyle().Background(t.Background).Width(width).Render(bar)
}

// TabIdxByKey maps a key to its tab index, or -1.
func TabIdxByKey(k rune) int {
	for i, tab := range Tabs {
		if tab.Key == k {
			return i
		}
	}
	return -1
}

// TabAtX returns the tab under column x of the rendered bar, or -1.
func TabAtX(x int) int {
	pos := 1
	for i, tab := range Tabs {
		w := 1 + len(tab.Name) + 2
		if x >= pos && x < pos+w {
			return i
		}
		pos += w + 1
	}
	return -1
}
