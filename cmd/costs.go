package cmd

import (
	"fmt"
	"time"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/engine"
	"github.com/theirongolddev/costledger/internal/pipeline"

	"github.com/spf13/cobra"
)

var flagCostsDays int

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Cost breakdown by token type and session class",
	RunE:  runCosts,
}

func init() {
	costsCmd.Flags().IntVarP(&flagCostsDays, "days", "n", 30, "Time window in days (0 for all)")
	rootCmd.AddCommand(costsCmd)
}

func runCosts(_ *cobra.Command, _ []string) error {
	return withEngine(func(e *engine.Engine, _ config.Config) error {
		sessions := e.Sessions()
		since, until := window(flagCostsDays)
		totals, byClass := pipeline.AggregateCostBreakdown(sessions, e.Rates(), since, until)
		if totals.TotalCost == 0 {
			fmt.Println("\n  No costs recorded in the selected time range.")
			return nil
		}

		fmt.Println()
		fmt.Println(cli.RenderTitle("COST BREAKDOWN  " + windowLabel(flagCostsDays)))
		fmt.Println()

		type tokenCost struct {
			name string
			cost float64
		}
		costs := []tokenCost{
			{"Output", totals.OutputCost},
			{"Input", totals.InputCost},
			{"Thinking", totals.ThinkingCost},
			{"Tool calls", totals.ToolCost},
		}

		typeRows := make([][]string, 0, len(costs)+2)
		for _, tc := range costs {
			typeRows = append(typeRows, []string{tc.name, cli.FormatCost(tc.cost),
				cli.FormatPercent(tc.cost / totals.TotalCost * 100)})
		}
		typeRows = append(typeRows, []string{"---"})
		typeRows = append(typeRows, []string{"TOTAL", cli.FormatCost(totals.TotalCost), ""})

		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "By Token Type",
			Headers: []string{"Type", "Cost", "Share"},
			Rows:    typeRows,
		}))

		// The previous window of equal length, when bounded.
		if flagCostsDays > 0 {
			prevTotals, _ := pipeline.AggregateCostBreakdown(sessions, e.Rates(), since.Add(-until.Sub(since)), since)
			if prevTotals.TotalCost > 0 {
				fmt.Printf("  This %dd %s   previous %dd %s   change %s\n\n",
					flagCostsDays, cli.FormatCost(totals.TotalCost),
					flagCostsDays, cli.FormatCost(prevTotals.TotalCost),
					formatDelta(totals.TotalCost, prevTotals.TotalCost))
			}
		}

		classRows := make([][]string, 0, len(byClass)+2)
		for _, c := range byClass {
			classRows = append(classRows, []string{
				string(c.Class),
				cli.FormatCost(c.InputCost),
				cli.FormatCost(c.OutputCost),
				cli.FormatCost(c.ThinkingCost + c.ToolCost),
				cli.FormatCost(c.TotalCost),
			})
		}
		classRows = append(classRows, []string{"---"})
		classRows = append(classRows, []string{
			"TOTAL",
			cli.FormatCost(totals.InputCost),
			cli.FormatCost(totals.OutputCost),
			cli.FormatCost(totals.ThinkingCost + totals.ToolCost),
			cli.FormatCost(totals.TotalCost),
		})

		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "By Session Class",
			Headers: []string{"Class", "Input", "Output", "Think+Tool", "Total"},
			Rows:    classRows,
		}))
		fmt.Println()
		return nil
	})
}

// window returns the [since, until) range for a --days value. Zero days is
// unbounded.
func window(days int) (time.Time, time.Time) {
	if days <= 0 {
		return time.Time{}, time.Time{}
	}
	now := time.Now()
	return now.AddDate(0, 0, -days), now
}

func windowLabel(days int) string {
	if days <= 0 {
		return "All time"
	}
	return fmt.Sprintf("Last %dd", days)
}

func formatDelta(current, previous float64) string {
	delta := current - previous
	if delta >= 0 {
		return cli.Warn("+" + cli.FormatCost(delta))
	}
	return cli.Good("-" + cli.FormatCost(-delta))
}
