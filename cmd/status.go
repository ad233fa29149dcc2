package cmd

import (
	"fmt"
	"time"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/engine"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the open session and all-time totals",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	return withEngine(func(e *engine.Engine, _ config.Config) error {
		st := e.Status()

		fmt.Println()
		if st.Current == nil {
			fmt.Printf("  %s\n", cli.Muted("No session is being tracked. Start one with `costledger start`."))
		} else {
			cur := st.Current
			fmt.Print(cli.RenderKV("Tracking session "+string(cur.ID), []cli.KV{
				{Key: "Class", Value: string(cur.Class)},
				{Key: "Running", Value: cli.FormatDuration(time.Since(cur.StartedAt))},
				{Key: "Interactions", Value: cli.FormatNumber(int64(cur.Interactions))},
				{Key: "Tokens", Value: fmt.Sprintf("%s (in %s, out %s, think %s, tool %s)",
					cli.FormatTokens(cur.Tokens.Total()),
					cli.FormatTokens(cur.Tokens.Input), cli.FormatTokens(cur.Tokens.Output),
					cli.FormatTokens(cur.Tokens.Thinking), cli.FormatTokens(cur.Tokens.Tool))},
				{Key: "Cost", Value: cli.FormatCost(cur.TotalCost)},
				{Key: "Retrieval", Value: cli.FormatPercent(cur.RetrievalRatio)},
			}))
		}
		fmt.Println()

		fmt.Print(cli.RenderKV("All time", []cli.KV{
			{Key: "Sessions", Value: cli.FormatNumber(int64(st.TotalSessions))},
			{Key: "Cost", Value: cli.FormatCost(st.TotalCostAllTime)},
			{Key: "Ledger", Value: e.LedgerPath()},
		}))
		fmt.Println()
		return nil
	})
}
