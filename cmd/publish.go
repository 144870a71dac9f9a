package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slugwatch/citation-cli/internal/ledger"
	"github.com/slugwatch/citation-cli/internal/publish"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the public citations list to the site host",
	RunE: func(cmd *cobra.Command, args []string) error {
		ldg, err := ledger.Open(cfg.Ledger.ScrapedPath)
		if err != nil {
			return err
		}

		if _, err := publish.WriteLocal(ldg, cfg.Ledger.PublicDir); err != nil {
			return err
		}
		if err := publish.New(cfg.Publish).Upload(cmd.Context(), ldg); err != nil {
			return err
		}
		zap.L().Info("publish: citations list uploaded", zap.Int("citations", ldg.Len()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
