package pipeline

import (
	"sort"
	"time"

	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/model"
)

// TokenTypeCosts holds aggregate costs split by token type.
type TokenTypeCosts struct {
	InputCost    float64
	OutputCost   float64
	ThinkingCost float64
	ToolCost     float64
	TotalCost    float64
}

// ClassCostBreakdown holds cost components for one session class.
type ClassCostBreakdown struct {
	Class model.SessionClass
	TokenTypeCosts
}

// AggregateCostBreakdown prices each session's token totals by type at the
// given rates and splits the result per class, most expensive class first.
func AggregateCostBreakdown(
	sessions []model.Session,
	rates config.Rates,
	since time.Time,
	until time.Time,
) (TokenTypeCosts, []ClassCostBreakdown) {
	filtered := FilterByTime(sessions, since, until)

	var totals TokenTypeCosts
	byClass := make(map[model.SessionClass]*ClassCostBreakdown)

	for _, s := range filtered {
		tok := s.TokenTotals
		inputCost := rates.Cost(tok.Input, 0, 0, 0, 0)
		outputCost := rates.Cost(0, 0, tok.Output, 0, 0)
		thinkingCost := rates.Cost(0, 0, 0, tok.Thinking, 0)
		toolCost := rates.Cost(0, 0, 0, 0, tok.Tool)

		totals.InputCost += inputCost
		totals.OutputCost += outputCost
		totals.ThinkingCost += thinkingCost
		totals.ToolCost += toolCost

		row, ok := byClass[s.Class]
		if !ok {
			row = &ClassCostBreakdown{Class: s.Class}
			byClass[s.Class] = row
		}
		row.InputCost += inputCost
		row.OutputCost += outputCost
		row.ThinkingCost += thinkingCost
		row.ToolCost += toolCost
	}

	totals.TotalCost = totals.InputCost + totals.OutputCost + totals.ThinkingCost + totals.ToolCost

	rows := make([]ClassCostBreakdown, 0, len(byClass))
	for _, row := range byClass {
		row.TotalCost = row.InputCost + row.OutputCost + row.ThinkingCost + row.ToolCost
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].TotalCost > rows[j].TotalCost
	})

	return totals, rows
}
