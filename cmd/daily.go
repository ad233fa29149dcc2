package cmd

import (
	"fmt"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/engine"
	"github.com/theirongolddev/costledger/internal/pipeline"

	"github.com/spf13/cobra"
)

var flagDailyDays int

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Daily usage table",
	RunE:  runDaily,
}

func init() {
	dailyCmd.Flags().IntVarP(&flagDailyDays, "days", "n", 14, "Time window in days")
	rootCmd.AddCommand(dailyCmd)
}

func runDaily(_ *cobra.Command, _ []string) error {
	if flagDailyDays <= 0 {
		flagDailyDays = 14
	}
	return withEngine(func(e *engine.Engine, _ config.Config) error {
		since, until := window(flagDailyDays)
		days := pipeline.AggregateDays(e.Sessions(), since, until)

		var active int
		costs := make([]float64, 0, len(days))
		for i := len(days) - 1; i >= 0; i-- {
			costs = append(costs, days[i].Cost)
			if days[i].Sessions > 0 {
				active++
			}
		}
		if active == 0 {
			fmt.Println("\n  No sessions in the selected period.")
			return nil
		}

		fmt.Println()
		fmt.Println(cli.RenderTitle(fmt.Sprintf("DAILY USAGE  Last %dd", flagDailyDays)))
		fmt.Printf("\n  Cost trend  %s\n\n", cli.RenderSparkline(costs))

		rows := make([][]string, 0, len(days))
		for _, d := range days {
			rows = append(rows, []string{
				d.Date.Format("2006-01-02"),
				d.Date.Format("Mon"),
				cli.FormatNumber(int64(d.Sessions)),
				cli.FormatNumber(int64(d.Interactions)),
				cli.FormatTokens(d.Tokens),
				cli.FormatCost(d.Cost),
			})
		}

		fmt.Print(cli.RenderTable(cli.Table{
			Headers:  []string{"Date", "Day", "Sessions", "Interactions", "Tokens", "Cost"},
			Rows:     rows,
			LeftCols: 2,
		}))
		return nil
	})
}
