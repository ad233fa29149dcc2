package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func TestLayoutRow(t *testing.T) {
	got := LayoutRow(10, 3)
	want := []int{4, 3, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("LayoutRow(10, 3) = %v, want %v", got, want)
		}
	}
	if LayoutRow(10, 0) != nil {
		t.Error("LayoutRow with zero columns should be nil")
	}
}

func TestStatCardWidth(t *testing.T) {
	card := StatCard(Stat{Label: "Cost", Value: "$1.23", Note: "today"}, 20)
	for i, line := range strings.Split(card, "\n") {
		if w := lipgloss.Width(line); w != 20 {
			t.Errorf("line %d width = %d, want 20", i, w)
		}
	}
}

func TestStatRowFillsWidth(t *testing.T) {
	row := StatRow([]Stat{{Label: "a", Value: "1"}, {Label: "b", Value: "2"}, {Label: "c", Value: "3"}}, 61)
	if w := lipgloss.Width(row); w != 61 {
		t.Errorf("row width = %d, want 61", w)
	}
}

func TestRowPadsToTallest(t *testing.T) {
	short := Panel("Short", "x", 20)
	tall := Panel("Tall", "1\n2\n3\n4\n5", 20)
	joined := Row(short, tall)
	if got, want := lipgloss.Height(joined), lipgloss.Height(tall); got != want {
		t.Errorf("joined height = %d, want %d", got, want)
	}
	for i, line := range strings.Split(joined, "\n") {
		if w := lipgloss.Width(line); w != 40 {
			t.Errorf("line %d width = %d, want 40", i, w)
		}
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{0, 4, 8}, "#ffffff"); got != "▁▄█" {
		t.Errorf("Sparkline = %q, want %q", got, "▁▄█")
	}
	if Sparkline(nil, "#ffffff") != "" {
		t.Error("empty sparkline should render nothing")
	}
}

func TestBarListWidth(t *testing.T) {
	out := BarList([]Bar{
		{Label: "Mon", Value: 1.5, Text: "$1.50"},
		{Label: "Tue", Value: 0},
		{Label: "Wednesday", Value: 12, Text: "$12.00"},
	}, 50)
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	for i, line := range lines {
		if w := lipgloss.Width(line); w != 50 {
			t.Errorf("line %d width = %d, want 50", i, w)
		}
	}
	if strings.Contains(lines[1], "█") {
		t.Error("zero value should draw no bar")
	}
}

func TestRatioColorBands(t *testing.T) {
	if RatioColor(0.9) == RatioColor(0.1) {
		t.Error("high and low ratios should use different colors")
	}
}

func TestTabLookup(t *testing.T) {
	if got := TabIdxByKey('3'); got != 2 {
		t.Errorf("TabIdxByKey('3') = %d, want 2", got)
	}
	if got := TabIdxByKey('z'); got != -1 {
		t.Errorf("TabIdxByKey('z') = %d, want -1", got)
	}
	if got := TabAtX(2); got != 0 {
		t.Errorf("TabAtX(2) = %d, want 0", got)
	}
	if got := TabAtX(0); got != -1 {
		t.Errorf("TabAtX(0) = %d, want -1", got)
	}
}
