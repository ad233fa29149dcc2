package cmd

import (
	"fmt"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/engine"
	"github.com/theirongolddev/costledger/internal/model"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start [retrieval|baseline|mixed]",
	Short: "Start a tracked session, closing any open one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(_ *cobra.Command, args []string) error {
	return mutateEngine(func(e *engine.Engine, cfg config.Config) error {
		class := model.ParseClass(cfg.Ingest.DefaultClass)
		if len(args) == 1 {
			class = model.ParseClass(args[0])
		}

		prev := e.Status().Current
		s := e.StartSession(class)

		fmt.Println()
		if prev != nil {
			fmt.Printf("  Closed session %s (%s)\n", prev.ID, cli.FormatCost(prev.TotalCost))
		}
		fmt.Printf("  Started %s session %s\n\n", s.Class, s.ID)
		return nil
	})
}
