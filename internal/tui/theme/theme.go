// Package theme holds the color palettes for the costledger dashboard.
package theme

import "github.com/charmbracelet/lipgloss"

// Theme maps UI roles to colors.
type Theme struct {
	Name string

	Background lipgloss.Color
	Surface    lipgloss.Color
	Highlight  lipgloss.Color // selected row, active tab
	Border     lipgloss.Color
	Accent     lipgloss.Color

	Text  lipgloss.Color
	Muted lipgloss.Color
	Dim   lipgloss.Color

	Good lipgloss.Color
	Warn lipgloss.Color
	Bad  lipgloss.Color

	// Per-class series colors.
	Retrieval lipgloss.Color
	Baseline  lipgloss.Color
	Mixed     lipgloss.Color
}

var (
	FlexokiDark = Theme{
		Name:       "flexoki-dark",
		Background: "#100F0F",
		Surface:    "#1C1B1A",
		Highlight:  "#343331",
		Border:     "#403E3C",
		Accent:     "#3AA99F",
		Text:       "#FFFCF0",
		Muted:      "#878580",
		Dim:        "#575653",
		Good:       "#879A39",
		Warn:       "#D0A215",
		Bad:        "#D14D41",
		Retrieval:  "#3AA99F",
		Baseline:   "#DA702C",
		Mixed:      "#4385BE",
	}

	CatppuccinMocha = Theme{
		Name:       "catppuccin-mocha",
		Background: "#1E1E2E",
		Surface:    "#313244",
		Highlight:  "#45475A",
		Border:     "#585B70",
		Accent:     "#89B4FA",
		Text:       "#CDD6F4",
		Muted:      "#A6ADC8",
		Dim:        "#6C7086",
		Good:       "#A6E3A1",
		Warn:       "#F9E2AF",
		Bad:        "#F38BA8",
		Retrieval:  "#94E2D5",
		Baseline:   "#FAB387",
		Mixed:      "#89B4FA",
	}

	TokyoNight = Theme{
		Name:       "tokyo-night",
		Background: "#1A1B26",
		Surface:    "#24283B",
		Highlight:  "#343A52",
		Border:     "#565F89",
		Accent:     "#7AA2F7",
		Text:       "#C0CAF5",
		Muted:      "#A9B1D6",
		Dim:        "#565F89",
		Good:       "#9ECE6A",
		Warn:       "#E0AF68",
		Bad:        "#F7768E",
		Retrieval:  "#7DCFFF",
		Baseline:   "#FF9E64",
		Mixed:      "#BB9AF7",
	}

	// Terminal sticks to the 16 ANSI colors.
	Terminal = Theme{
		Name:       "terminal",
		Background: "0",
		Surface:    "0",
		Highlight:  "8",
		Border:     "8",
		Accent:     "6",
		Text:       "15",
		Muted:      "7",
		Dim:        "8",
		Good:       "2",
		Warn:       "3",
		Bad:        "1",
		Retrieval:  "6",
		Baseline:   "3",
		Mixed:      "4",
	}
)

// All lists every built-in theme. The first entry is the default.
var All = []Theme{FlexokiDark, CatppuccinMocha, TokyoNight, Terminal}

// Active is the theme used for rendering.
var Active = FlexokiDark

// ByName looks up a theme, falling back to the default for unknown names.
func ByName(name string) Theme {
	for _, t := range All {
		if t.Name == name {
			return t
		}
	}
	return All[0]
}

// Names returns the theme names in display order.
func Names() []string {
	names := make([]string, len(All))
	for i, t := range All {
		names[i] = t.Name
	}
	return names
}

// SetActive switches the active theme.
func SetActive(name string) {
	Active = ByName(name)
}

// ClassColor picks the series color for a session class label.
func (t Theme) ClassColor(class string) lipgloss.Color {
	switch class {
	case "retrieval-oriented":
		return t.Retrieval
	case "generation-baseline":
		return t.Baseline
	default:
		return t.Mixed
	}
}
