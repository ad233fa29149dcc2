package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/pipeline"
	"github.com/theirongolddev/costledger/internal/tui/components"
	"github.com/theirongolddev/costledger/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

func dailyWindow(now time.Time) (since, until time.Time) {
	l := now.Local()
	since = time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.Local).AddDate(0, 0, -(dailyWindowDays - 1))
	return since, now
}

func (a App) renderDaily(cw int) string {
	t := theme.Active
	sessions := a.ledger.All()
	since, until := dailyWindow(a.now())
	days := pipeline.AggregateDays(sessions, since, until)

	bars := make([]components.Bar, 0, len(days))
	spark := make([]float64, 0, len(days))
	for i := len(days) - 1; i >= 0; i-- {
		d := days[i]
		bars = append(bars, components.Bar{
			Label: d.Date.Format("Mon 01/02"),
			Value: d.Cost,
			Text:  fmt.Sprintf("%s  %d sess", cli.FormatCost(d.Cost), d.Sessions),
		})
		spark = append(spark, d.Cost)
	}

	halves := components.LayoutRow(cw, 2)
	chart := components.Panel(
		fmt.Sprintf("Daily cost  last %dd  %s", dailyWindowDays, components.Sparkline(spark, t.Accent)),
		components.BarList(bars, components.PanelInner(halves[0])),
		halves[0],
	)

	return components.Row(chart, a.renderBreakdown(sessions, since, until, halves[1]))
}

func (a App) renderBreakdown(sessions []model.Session, since, until time.Time, outer int) string {
	t := theme.Active
	inner := components.PanelInner(outer)
	totals, byClass := pipeline.AggregateCostBreakdown(sessions, a.eng.Rates(), since, until)
	stats := pipeline.Aggregate(sessions, since, until)

	bg := lipgloss.NewStyle().Background(t.Surface)
	var b strings.Builder
	b.WriteString(components.BarList([]components.Bar{
		{Label: "Input", Value: totals.InputCost, Text: cli.FormatCost(totals.InputCost)},
		{Label: "Output", Value: totals.OutputCost, Text: cli.FormatCost(totals.OutputCost)},
		{Label: "Thinking", Value: totals.ThinkingCost, Text: cli.FormatCost(totals.ThinkingCost)},
		{Label: "Tool", Value: totals.ToolCost, Text: cli.FormatCost(totals.ToolCost)},
	}, inner))
	b.WriteString("\n\n")

	if len(byClass) > 0 {
		classBars := make([]components.Bar, len(byClass))
		for i, c := range byClass {
			classBars[i] = components.Bar{
				Label: c.Class.Short(),
				Value: c.TotalCost,
				Text:  cli.FormatCost(c.TotalCost),
				Color: t.ClassColor(string(c.Class)),
			}
		}
		b.WriteString(components.BarList(classBars, inner))
		b.WriteString("\n\n")
	}

	b.WriteString(bg.Foreground(t.Muted).Render(fmt.Sprintf("%d sessions on %d active days, %s per active day",
		stats.TotalSessions, stats.ActiveDays, cli.FormatCost(stats.CostPerDay))))

	return components.Panel("Cost by token type and class", b.String(), outer)
}
