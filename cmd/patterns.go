package cmd

import (
	"fmt"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/engine"

	"github.com/spf13/cobra"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Top patterns by estimated savings",
	RunE:  runPatterns,
}

func init() {
	rootCmd.AddCommand(patternsCmd)
}

func runPatterns(_ *cobra.Command, _ []string) error {
	return withEngine(func(e *engine.Engine, cfg config.Config) error {
		top := e.PatternROI()
		if len(top) == 0 {
			fmt.Println("\n  No pattern usage recorded yet.")
			return nil
		}

		rows := make([][]string, 0, len(top))
		for i, p := range top {
			rows = append(rows, []string{
				fmt.Sprintf("%d", i+1),
				truncate(p.Name, 40),
				cli.FormatNumber(int64(p.Uses)),
				cli.FormatCost(p.TotalSavings),
			})
		}

		fmt.Println()
		fmt.Print(cli.RenderTable(cli.Table{
			Title:    fmt.Sprintf("Pattern ROI  (%s credit per use)", cli.FormatCost(cfg.Tracking.PatternCredit)),
			Headers:  []string{"#", "Pattern", "Uses", "Savings"},
			Rows:     rows,
			LeftCols: 2,
		}))
		fmt.Println()
		return nil
	})
}
