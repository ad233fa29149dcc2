// Package cmd implements the costledger CLI commands.
package cmd

import (
	"fmt"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg := loadConfig()

	state := "using defaults (no config file)"
	if config.Exists() {
		state = "loaded"
	}
	on := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}

	sections := []struct {
		heading string
		pairs   []cli.KV
	}{
		{"Config", []cli.KV{
			{Key: "File", Value: config.ConfigPath()},
			{Key: "Status", Value: state},
		}},
		{"General", []cli.KV{
			{Key: "Data directory", Value: config.DataDir(cfg)},
			{Key: "Export directory", Value: config.ExportDir(cfg)},
		}},
		{"Pricing (USD per million tokens)", []cli.KV{
			{Key: "Input", Value: fmt.Sprintf("%.2f", cfg.Pricing.InputPerMTok)},
			{Key: "Output", Value: fmt.Sprintf("%.2f", cfg.Pricing.OutputPerMTok)},
			{Key: "Thinking", Value: fmt.Sprintf("%.2f", cfg.Pricing.ThinkingPerMTok)},
			{Key: "Chars per token", Value: fmt.Sprint(cfg.Pricing.CharsPerToken)},
		}},
		{"Ingest", []cli.KV{
			{Key: "Checkpoints dir", Value: config.CheckpointsDir(cfg)},
			{Key: "Input share", Value: cli.FormatPercent(cfg.Ingest.InputShare * 100)},
			{Key: "Default class", Value: cfg.Ingest.DefaultClass},
			{Key: "Settle delay", Value: cfg.SettleDelay().String()},
			{Key: "Dedup window", Value: fmt.Sprintf("%s, max %s keys, persistent %s",
				cfg.DedupWindow(), cli.FormatNumber(int64(cfg.Ingest.DedupMaxEntries)), on(cfg.Ingest.PersistentDedup))},
			{Key: "Clipboard poll", Value: cfg.ClipboardPoll().String()},
			{Key: "Extract patterns", Value: on(cfg.Ingest.ExtractPatterns)},
		}},
		{"Tracking", []cli.KV{
			{Key: "Autosave", Value: cfg.AutosaveInterval().String()},
			{Key: "Recovery after", Value: cfg.RecoveryThreshold().String()},
			{Key: "Pattern credit", Value: cli.FormatCost(cfg.Tracking.PatternCredit) + " per use"},
		}},
		{"Daemon", []cli.KV{
			{Key: "Address", Value: cfg.Daemon.Addr},
			{Key: "Events buffer", Value: fmt.Sprint(cfg.Daemon.EventsBuffer)},
		}},
		{"Appearance", []cli.KV{
			{Key: "Theme", Value: cfg.Appearance.Theme},
		}},
	}
	for _, sec := range sections {
		fmt.Println(cli.RenderKV(sec.heading, sec.pairs))
	}
	fmt.Println(cli.Muted("  Run `costledger setup` to reconfigure."))
	return nil
}
