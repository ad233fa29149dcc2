package tui

import (
	"fmt"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/tui/components"
	"github.com/theirongolddev/costledger/internal/tui/theme"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

func patternColumns(width int) []table.Column {
	nameW := max(width-4-(4+2)-(8+2)-(10+2)-2, 20)
	return []table.Column{
		{Title: "#", Width: 4},
		{Title: "Pattern", Width: nameW},
		{Title: "Uses", Width: 8},
		{Title: "Savings", Width: 10},
	}
}

func patternRows(roi []model.PatternUsage) []table.Row {
	rows := make([]table.Row, len(roi))
	for i, p := range roi {
		rows[i] = table.Row{
			fmt.Sprintf("%d", i+1),
			p.Name,
			cli.FormatNumber(int64(p.Uses)),
			cli.FormatCost(p.TotalSavings),
		}
	}
	return rows
}

func (a App) renderPatterns(cw int) string {
	t := theme.Active
	title := fmt.Sprintf("Pattern ROI  (%s credit per use)", cli.FormatCost(a.cfg.Tracking.PatternCredit))
	if len(a.roi) == 0 {
		muted := lipgloss.NewStyle().Background(t.Surface).Foreground(t.Muted)
		return components.Panel(title, muted.Render("No pattern usage recorded yet."), cw)
	}

	total := 0.0
	uses := 0
	for _, p := range a.roi {
		total += p.TotalSavings
		uses += p.Uses
	}
	stats := components.StatRow([]components.Stat{
		{Label: "Patterns tracked", Value: cli.FormatNumber(int64(len(a.ledger.Patterns)))},
		{Label: "Uses (top list)", Value: cli.FormatNumber(int64(uses))},
		{Label: "Estimated savings", Value: cli.FormatCost(total), Color: t.Good},
	}, cw)

	return lipgloss.JoinVertical(lipgloss.Left, stats, components.Panel(title, a.patTable.View(), cw))
}
