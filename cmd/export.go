package cmd

import (
	"fmt"

	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/engine"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the ledger and its analyses to a JSON file",
	RunE:  runExport,
}

var flagExportDir string

func init() {
	exportCmd.Flags().StringVarP(&flagExportDir, "out", "o", "", "Output directory (default from config)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(_ *cobra.Command, _ []string) error {
	return withEngine(func(e *engine.Engine, cfg config.Config) error {
		dir := flagExportDir
		if dir == "" {
			dir = config.ExportDir(cfg)
		}
		path, err := e.Export(dir)
		if err != nil {
			return err
		}
		fmt.Printf("\n  Exported to %s\n\n", path)
		return nil
	})
}
