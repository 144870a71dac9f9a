package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slugwatch/citation-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "citation-cli",
	Short: "Campus parking citation monitor",
	Long:  "Crawls the campus ticket-lookup site, keeps an append-only citation ledger, reconciles user submissions and parking sessions, and emails parkers when a citation lands near their vehicle.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
