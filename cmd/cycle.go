package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slugwatch/citation-cli/internal/publish"
)

var cyclePublish bool

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one reconciliation cycle",
	Long:  "Expires parking sessions, promotes user submissions, drains the legacy queue, and re-verifies the pending queue against the ticket site.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initCrawl(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Cycle.Run(ctx); err != nil {
			return err
		}

		// Keep the locally served copy current even when not uploading.
		if _, err := publish.WriteLocal(env.Ledger, cfg.Ledger.PublicDir); err != nil {
			zap.L().Warn("cycle: write public citations list failed", zap.Error(err))
		}
		if cyclePublish {
			if err := publish.New(cfg.Publish).Upload(ctx, env.Ledger); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	cycleCmd.Flags().BoolVar(&cyclePublish, "publish", false, "upload the citations list after the cycle")
	rootCmd.AddCommand(cycleCmd)
}
