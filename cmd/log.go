package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/engine"
	"github.com/theirongolddev/costledger/internal/tracker"

	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log [prompt | -]",
	Short: "Record one interaction in the open session",
	Long: "Record one interaction. Input tokens are estimated from the prompt " +
		"unless --input is given. Pass - to read the prompt from stdin.",
	RunE: runLog,
}

var (
	flagLogInput     int64
	flagLogContext   int64
	flagLogResponse  int64
	flagLogThinking  int64
	flagLogTool      int64
	flagLogRetrieval bool
	flagLogPatterns  []string
)

func init() {
	logCmd.Flags().Int64Var(&flagLogInput, "input", 0, "Input tokens (overrides the estimate)")
	logCmd.Flags().Int64Var(&flagLogContext, "context", 0, "Context tokens, billed as input")
	logCmd.Flags().Int64Var(&flagLogResponse, "response", 0, "Response tokens")
	logCmd.Flags().Int64Var(&flagLogThinking, "thinking", 0, "Thinking tokens")
	logCmd.Flags().Int64Var(&flagLogTool, "tool", 0, "Tool-call tokens")
	logCmd.Flags().BoolVarP(&flagLogRetrieval, "retrieval", "r", false, "Mark as a retrieval interaction")
	logCmd.Flags().StringSliceVarP(&flagLogPatterns, "pattern", "p", nil, "Pattern used (repeatable)")
	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")
	if prompt == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading prompt: %w", err)
		}
		prompt = string(data)
	}

	in := tracker.InteractionInput{
		Prompt:         prompt,
		ContextTokens:  flagLogContext,
		ResponseTokens: flagLogResponse,
		ThinkingTokens: flagLogThinking,
		ToolTokens:     flagLogTool,
		WasRetrieval:   flagLogRetrieval,
		PatternsUsed:   flagLogPatterns,
	}
	if cmd.Flags().Changed("input") {
		n := flagLogInput
		in.InputTokens = &n
	}

	return mutateEngine(func(e *engine.Engine, _ config.Config) error {
		rec := e.LogInteraction(in)
		st := e.Status()

		fmt.Println()
		fmt.Printf("  Logged %s tokens for %s\n", cli.FormatTokens(rec.Tokens().Total()), cli.FormatCost(rec.Cost))
		if st.Current != nil {
			fmt.Printf("  Session %s: %d interactions, %s, %s retrieval\n\n",
				st.Current.ID, st.Current.Interactions,
				cli.FormatCost(st.Current.TotalCost), cli.FormatPercent(st.Current.RetrievalRatio))
		}
		return nil
	})
}
