package cmd

import (
	"errors"
	"fmt"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/tui"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive configuration wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

// runSetup edits the config through the same form the dashboard shows on
// first run.
func runSetup(_ *cobra.Command, _ []string) error {
	cfg := loadConfig()
	vals := tui.SetupValuesFrom(cfg)

	err := tui.NewSetupForm(&vals).Run()
	switch {
	case errors.Is(err, huh.ErrUserAborted):
		fmt.Println(cli.Muted("  Setup cancelled, nothing saved."))
		return nil
	case err != nil:
		return err
	}

	updated, err := vals.Apply(cfg)
	if err != nil {
		return err
	}
	if err := config.Save(updated); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println(cli.RenderKV("Setup saved", []cli.KV{
		{Key: "Config", Value: config.ConfigPath()},
		{Key: "Data directory", Value: config.DataDir(updated)},
		{Key: "Theme", Value: updated.Appearance.Theme},
	}))
	return nil
}
