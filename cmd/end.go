package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/engine"

	"github.com/spf13/cobra"
)

var endCmd = &cobra.Command{
	Use:   "end",
	Short: "Close the open session",
	RunE:  runEnd,
}

func init() {
	rootCmd.AddCommand(endCmd)
}

func runEnd(_ *cobra.Command, _ []string) error {
	return mutateEngine(func(e *engine.Engine, _ config.Config) error {
		s := e.EndSession()
		if s == nil {
			fmt.Println("\n  No session is open.")
			return nil
		}

		end := time.Now()
		if s.EndedAt != nil {
			end = *s.EndedAt
		}
		pairs := []cli.KV{
			{Key: "Class", Value: string(s.Class)},
			{Key: "Duration", Value: cli.FormatDuration(s.Duration(end))},
			{Key: "Interactions", Value: cli.FormatNumber(int64(len(s.Interactions)))},
			{Key: "Tokens", Value: cli.FormatTokens(s.TokenTotals.Total())},
			{Key: "Cost", Value: cli.FormatCost(s.TotalCost)},
			{Key: "Retrieval", Value: cli.FormatPercent(s.RetrievalRatio)},
		}
		if len(s.PatternsUsed) > 0 {
			pairs = append(pairs, cli.KV{Key: "Patterns", Value: strings.Join(s.PatternsUsed, ", ")})
		}

		fmt.Println()
		fmt.Print(cli.RenderKV("Session "+string(s.ID)+" closed", pairs))
		fmt.Println()
		return nil
	})
}
