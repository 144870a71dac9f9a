package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slugwatch/citation-cli/internal/export"
	"github.com/slugwatch/citation-cli/internal/ledger"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the citation ledger as an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ldg, err := ledger.Open(cfg.Ledger.ScrapedPath)
		if err != nil {
			return err
		}
		if err := export.WriteFile(ldg, exportOut); err != nil {
			return err
		}
		zap.L().Info("export: workbook written",
			zap.String("path", exportOut),
			zap.Int("citations", ldg.Len()),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "citations.xlsx", "output file path")
	rootCmd.AddCommand(exportCmd)
}
