package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/engine"
	"github.com/theirongolddev/costledger/internal/ingest"
	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/pipeline"
	"github.com/theirongolddev/costledger/internal/source"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Fold captured usage checkpoints into the ledger",
	Long: "Ingest checkpoint files, every checkpoint in a directory (--dir), " +
		"or a blob on stdin when no files are given.",
	RunE: runIngest,
}

var (
	flagIngestDir   string
	flagIngestClass string
)

func init() {
	ingestCmd.Flags().StringVar(&flagIngestDir, "dir", "", "Ingest every checkpoint in a directory, oldest first")
	ingestCmd.Flags().StringVar(&flagIngestClass, "class", "", "Class for sessions a checkpoint creates (default from config)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(_ *cobra.Command, args []string) error {
	events, err := collectCheckpoints(args)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("\n  No checkpoints found.")
		return nil
	}

	return mutateEngine(func(e *engine.Engine, cfg config.Config) error {
		class := model.ParseClass(cfg.Ingest.DefaultClass)
		if flagIngestClass != "" {
			class = model.ParseClass(flagIngestClass)
		}

		var rows [][]string
		var skipped int
		for _, ev := range events {
			res, ok := e.Ingest(ev.Text, ev.SourceID, class)
			if !ok {
				skipped++
				continue
			}
			rows = append(rows, ingestRow(ev, res))
		}

		fmt.Println()
		if len(rows) > 0 {
			fmt.Print(cli.RenderTable(cli.Table{
				Title:    "Ingested checkpoints",
				Headers:  []string{"Source", "Session", "Markers", "Tokens", "Cost", "Session Cost"},
				Rows:     rows,
				LeftCols: 2,
			}))
		}
		if skipped > 0 {
			fmt.Printf("  %s\n", cli.Muted(fmt.Sprintf("%d skipped (no usage marker or already processed)", skipped)))
		}
		fmt.Println()
		return nil
	})
}

func collectCheckpoints(args []string) ([]source.Event, error) {
	var events []source.Event

	if flagIngestDir != "" {
		progress := func(current, total int) {
			if flagQuiet {
				return
			}
			fmt.Fprintf(os.Stderr, "\r  Reading %s", cli.RenderProgressBar(current, total, 24))
		}
		res, err := pipeline.LoadCheckpoints(flagIngestDir, progress)
		if err != nil {
			return nil, err
		}
		if !flagQuiet && res.TotalFiles > 0 {
			fmt.Fprintln(os.Stderr)
		}
		if res.ReadErrors > 0 {
			fmt.Fprintf(os.Stderr, "  %d files could not be read\n", res.ReadErrors)
		}
		events = append(events, res.Events...)
	}

	for _, path := range args {
		ev, err := source.ReadCheckpoint(path)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if flagIngestDir == "" && len(args) == 0 {
		data, err := io.ReadAll(io.LimitReader(os.Stdin, source.MaxCheckpointBytes))
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil, errors.New("no checkpoint on stdin; pass files or --dir")
		}
		if !ingest.HasMarker(text) {
			return nil, fmt.Errorf("%w: stdin has no usage marker", model.ErrMalformedCheckpoint)
		}
		events = append(events, source.Event{Text: text, Origin: source.OriginScan})
	}
	return events, nil
}

func ingestRow(ev source.Event, res *ingest.Result) []string {
	name := "stdin"
	if ev.SourceID != "" {
		name = filepath.Base(ev.SourceID)
	}
	session := string(res.SessionID)
	if res.CreatedSession {
		session += " (new)"
	}
	return []string{
		truncate(name, 28),
		session,
		cli.FormatNumber(int64(res.Markers)),
		cli.FormatTokens(res.Delta),
		cli.FormatCost(res.Cost),
		cli.FormatCost(res.SessionCost),
	}
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
