package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/engine"
	"github.com/theirongolddev/costledger/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive dashboard",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(_ *cobra.Command, _ []string) error {
	cfg := loadConfig()

	// Force TrueColor so background fills render even when detection
	// falls back to Ascii.
	lipgloss.SetColorProfile(termenv.TrueColor)

	// Anything logged to stderr would tear the alt screen.
	var logOut io.Writer = io.Discard
	dataDir := config.DataDir(cfg)
	if err := os.MkdirAll(dataDir, 0o750); err == nil {
		//nolint:gosec // log path lives under the user's data dir
		if f, err := os.OpenFile(filepath.Join(dataDir, "tui.log"), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600); err == nil {
			defer func() { _ = f.Close() }()
			logOut = f
		}
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: logLevel(slog.LevelInfo)}))
	slog.SetDefault(logger)

	opts := engine.OptionsFromConfig(cfg)
	opts.Logger = logger
	eng := engine.New(opts)
	eng.Open()
	defer func() {
		if err := eng.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "  final save failed: %v\n", err)
		}
	}()

	app := tui.NewApp(eng, cfg, !config.Exists()).WithNotice(daemonConflict(cfg))
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
