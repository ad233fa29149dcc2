package cmd

import (
	"fmt"
	"time"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/engine"
	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/pipeline"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Session list with details",
	RunE:  runSessions,
}

var (
	sessionsLimit int
	sessionsClass string
)

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "l", 20, "Number of sessions to show")
	sessionsCmd.Flags().StringVar(&sessionsClass, "class", "", "Only show one class (retrieval, baseline, mixed)")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(_ *cobra.Command, _ []string) error {
	return withEngine(func(e *engine.Engine, _ config.Config) error {
		sessions := e.Sessions()
		if sessionsClass != "" {
			sessions = pipeline.FilterByClass(sessions, model.ParseClass(sessionsClass))
		}
		if len(sessions) == 0 {
			fmt.Println("\n  No sessions found.")
			return nil
		}
		sessions = pipeline.Recent(sessions, sessionsLimit)

		fmt.Println()
		fmt.Println(cli.RenderTitle(fmt.Sprintf("SESSIONS  (showing %d)", len(sessions))))
		fmt.Println()

		now := time.Now()
		rows := make([][]string, 0, len(sessions))
		for i := range sessions {
			s := &sessions[i]
			state := "open"
			switch {
			case s.CloseReason == model.CloseRecovered:
				state = "recovered"
			case !s.IsOpen():
				state = "closed"
			}
			rows = append(rows, []string{
				string(s.ID),
				s.StartedAt.Local().Format("Jan 02 15:04"),
				s.Class.Short(),
				state,
				cli.FormatDuration(s.Duration(now)),
				cli.FormatNumber(int64(len(s.Interactions))),
				cli.FormatTokens(s.TokenTotals.Total()),
				cli.FormatCost(s.TotalCost),
				cli.FormatPercent(s.RetrievalRatio),
			})
		}

		fmt.Print(cli.RenderTable(cli.Table{
			Headers:  []string{"ID", "Start", "Class", "State", "Duration", "Turns", "Tokens", "Cost", "Retrieval"},
			Rows:     rows,
			LeftCols: 4,
		}))
		return nil
	})
}
