package tui

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/pipeline"
	"github.com/theirongolddev/costledger/internal/tui/components"
	"github.com/theirongolddev/costledger/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

func (a App) renderOverview(cw int) string {
	t := theme.Active
	st := a.status

	tracking := components.Stat{Label: "Tracking", Value: "idle", Note: "next: " + a.class.Short(), Color: t.Muted}
	sessionCost := components.Stat{Label: "Session cost", Value: "-"}
	if cur := st.Current; cur != nil {
		tracking = components.Stat{
			Label: "Tracking " + cur.Class.Short(),
			Value: a.spinner.View() + " " + cli.FormatDuration(a.now().Sub(cur.StartedAt)),
			Note:  string(cur.ID),
			Color: t.Good,
		}
		sessionCost = components.Stat{
			Label: "Session cost",
			Value: cli.FormatCost(cur.TotalCost),
			Note:  fmt.Sprintf("%d interactions, %s tokens", cur.Interactions, cli.FormatTokens(cur.Tokens.Total())),
		}
	}

	all := pipeline.Aggregate(a.ledger.All(), zeroTime, zeroTime)
	stats := components.StatRow([]components.Stat{
		tracking,
		sessionCost,
		{Label: "All-time cost", Value: cli.FormatCost(st.TotalCostAllTime), Note: cli.FormatCost(all.CostPerSession) + " per session"},
		{Label: "Sessions", Value: cli.FormatNumber(int64(st.TotalSessions)), Note: fmt.Sprintf("%d recovered", all.RecoveredSessions)},
	}, cw)

	halves := components.LayoutRow(cw, 2)
	row := components.Row(
		components.Panel("Retrieval vs baseline", a.comparisonBody(halves[0]), halves[0]),
		components.Panel("Recent checkpoints", a.ingestBody(halves[1]), halves[1]),
	)
	return lipgloss.JoinVertical(lipgloss.Left, stats, row)
}

func (a App) comparisonBody(outer int) string {
	t := theme.Active
	inner := components.PanelInner(outer)
	bg := lipgloss.NewStyle().Background(t.Surface)
	muted := bg.Foreground(t.Muted)

	var b strings.Builder
	if cur := a.status.Current; cur != nil {
		b.WriteString(components.RatioBar("Current", cur.RetrievalRatio/100, 10, max(inner-16, 6)))
		b.WriteString("\n")
	}
	all := pipeline.Aggregate(a.ledger.Sessions, zeroTime, zeroTime)
	b.WriteString(components.RatioBar("All closed", all.AvgRetrievalPct/100, 10, max(inner-16, 6)))
	b.WriteString("\n\n")

	if !a.hasCmp {
		b.WriteString(muted.Render("Needs at least one closed session of each class."))
		return b.String()
	}
	c := a.cmp
	savingsColor := t.Good
	if c.AbsoluteSavings < 0 {
		savingsColor = t.Bad
	}
	b.WriteString(components.BarList([]components.Bar{
		{Label: "Retrieval", Value: c.AvgCostA, Text: fmt.Sprintf("%s avg (%d)", cli.FormatCost(c.AvgCostA), c.CountA), Color: t.Retrieval},
		{Label: "Baseline", Value: c.AvgCostB, Text: fmt.Sprintf("%s avg (%d)", cli.FormatCost(c.AvgCostB), c.CountB), Color: t.Baseline},
	}, inner))
	b.WriteString("\n")
	b.WriteString(muted.Render("Savings per session ") + bg.Foreground(savingsColor).Bold(true).Render(cli.FormatSavings(c)))
	return b.String()
}

func (a App) ingestBody(outer int) string {
	t := theme.Active
	inner := components.PanelInner(outer)
	bg := lipgloss.NewStyle().Background(t.Surface)
	if len(a.ingests) == 0 {
		return bg.Foreground(t.Muted).Render("No checkpoints ingested yet.")
	}

	lines := make([]string, 0, len(a.ingests))
	for _, r := range a.ingests {
		mark := " "
		if r.CreatedSession {
			mark = "+"
		}
		line := fmt.Sprintf("%s %s %s %3d mk %8s %s",
			mark, r.ProcessedAt.Local().Format("01/02 15:04"), r.SessionID, r.Markers,
			cli.FormatCost(r.Cost), r.SourceID)
		lines = append(lines, bg.Foreground(t.Text).Render(truncate(line, inner)))
	}
	return strings.Join(lines, "\n")
}
