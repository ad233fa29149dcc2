package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/daemon"
	"github.com/theirongolddev/costledger/internal/engine"
	"github.com/theirongolddev/costledger/internal/recovery"
	"github.com/theirongolddev/costledger/internal/tui/theme"

	"github.com/spf13/cobra"
)

var (
	flagDataDir string
	flagQuiet   bool
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:               "costledger",
	Short:             "Track token usage and cost of assistant sessions",
	Long:              "Record sessions and interactions, fold in captured usage checkpoints, and compare retrieval-oriented sessions against generation baselines.",
	PersistentPreRunE: setupLogging,
	RunE:              runStatus,
	SilenceUsage:      true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagDataDir, "data-dir", "d", "", "Ledger directory (default $XDG_DATA_HOME/costledger)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Only log errors")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug detail")
}

func setupLogging(_ *cobra.Command, _ []string) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(slog.LevelWarn)})))
	return nil
}

// logLevel applies --quiet and --verbose to a command's base level.
func logLevel(base slog.Level) slog.Level {
	switch {
	case flagVerbose:
		return slog.LevelDebug
	case flagQuiet:
		return slog.LevelError
	default:
		return base
	}
}

// loadConfig reads the config file and applies --data-dir.
func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("config unreadable, using defaults", "path", config.ConfigPath(), "err", err)
		cfg = config.DefaultConfig()
	}
	if flagDataDir != "" {
		cfg.General.DataDir = flagDataDir
	}
	theme.SetActive(cfg.Appearance.Theme)
	return cfg
}

// withEngine opens the engine for one command, reports a startup recovery,
// and closes it afterwards.
func withEngine(fn func(e *engine.Engine, cfg config.Config) error) error {
	return runEngine(loadConfig(), fn)
}

// mutateEngine is withEngine for commands that change the ledger; it warns
// first when a daemon holds its own copy.
func mutateEngine(fn func(e *engine.Engine, cfg config.Config) error) error {
	cfg := loadConfig()
	if msg := daemonConflict(cfg); msg != "" && !flagQuiet {
		fmt.Fprintln(os.Stderr, cli.Warn("  "+msg))
	}
	return runEngine(cfg, fn)
}

// daemonConflict describes a running daemon whose autosave would overwrite
// this process's ledger changes, or returns "".
func daemonConflict(cfg config.Config) string {
	pid, ok := daemon.DefaultPIDFile(config.DataDir(cfg)).OtherLive()
	if !ok {
		return ""
	}
	return fmt.Sprintf("daemon (pid %d) is running on this data dir; its next autosave may overwrite this change", pid)
}

func runEngine(cfg config.Config, fn func(e *engine.Engine, cfg config.Config) error) error {
	opts := engine.OptionsFromConfig(cfg)
	opts.Logger = slog.Default()
	e := engine.New(opts)

	reportRecovery(e.Open())
	runErr := fn(e, cfg)
	if err := e.Close(); err != nil && runErr == nil {
		slog.Warn("final save failed", "err", err)
	}
	return runErr
}

func reportRecovery(rep recovery.Report) {
	if !rep.Changed() || flagQuiet {
		return
	}
	fmt.Fprintf(os.Stderr, "  Session %s was left open by an improper shutdown and has been closed.\n", rep.SessionID)
}
