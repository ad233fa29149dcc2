package cmd

import (
	"fmt"
	"sort"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/engine"
	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/pipeline"

	"github.com/spf13/cobra"
)

var flagAnalyzeDays int

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compare retrieval sessions against generation baselines",
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVarP(&flagAnalyzeDays, "days", "n", 0, "Limit per-class stats to the last N days (0 for all)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(_ *cobra.Command, _ []string) error {
	return withEngine(func(e *engine.Engine, _ config.Config) error {
		fmt.Println()
		fmt.Println(cli.RenderTitle("RETRIEVAL vs BASELINE"))
		fmt.Println()

		cmp, ok := e.Comparative()
		if !ok {
			fmt.Println("  Not enough data: need at least one closed retrieval session and one closed baseline session.")
		} else {
			fmt.Print(cli.RenderTable(cli.Table{
				Headers: []string{"Metric", "Retrieval", "Baseline"},
				Rows: [][]string{
					{"Closed sessions", cli.FormatNumber(int64(cmp.CountA)), cli.FormatNumber(int64(cmp.CountB))},
					{"Avg cost", cli.FormatCost(cmp.AvgCostA), cli.FormatCost(cmp.AvgCostB)},
				},
			}))
			savings := cli.FormatSavings(cmp)
			if cmp.AbsoluteSavings >= 0 {
				savings = cli.Good(savings)
			} else {
				savings = cli.Warn(savings)
			}
			fmt.Printf("  Savings per session: %s\n", savings)
		}
		fmt.Println()

		since, until := window(flagAnalyzeDays)
		stats := pipeline.Aggregate(e.Sessions(), since, until)
		if stats.TotalSessions == 0 {
			return nil
		}

		classes := make([]*model.ClassStats, 0, len(stats.ByClass))
		for _, cs := range stats.ByClass {
			classes = append(classes, cs)
		}
		sort.Slice(classes, func(i, j int) bool { return classes[i].Class < classes[j].Class })

		rows := make([][]string, 0, len(classes)+2)
		for _, cs := range classes {
			rows = append(rows, []string{
				string(cs.Class),
				cli.FormatNumber(int64(cs.Sessions)),
				cli.FormatNumber(int64(cs.Interactions)),
				cli.FormatTokens(cs.Tokens.Total()),
				cli.FormatCost(cs.AvgCost),
				cli.FormatPercent(cs.RetrievalRatio),
			})
		}
		rows = append(rows, []string{"---"})
		rows = append(rows, []string{
			"ALL",
			cli.FormatNumber(int64(stats.TotalSessions)),
			cli.FormatNumber(int64(stats.TotalInteractions)),
			cli.FormatTokens(stats.Tokens.Total()),
			cli.FormatCost(stats.CostPerSession),
			cli.FormatPercent(stats.AvgRetrievalPct),
		})

		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "By Class  " + windowLabel(flagAnalyzeDays),
			Headers: []string{"Class", "Sessions", "Interactions", "Tokens", "Avg Cost", "Retrieval"},
			Rows:    rows,
		}))
		if stats.RecoveredSessions > 0 {
			fmt.Printf("  %s\n", cli.Muted(fmt.Sprintf("%d sessions were auto-closed after an improper shutdown", stats.RecoveredSessions)))
		}
		fmt.Println()
		return nil
	})
}
