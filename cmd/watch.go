package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slugwatch/citation-cli/internal/publish"
)

var (
	watchSchedule string
	watchPublish  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run reconciliation cycles on a cron schedule",
	Long:  "Runs full cycles on the given cron expression. A cycle in progress is never interrupted; shutdown is honored between cycles.",
	RunE: func(cmd *cobra.Command, args []string) error {
		sched, err := cron.ParseStandard(watchSchedule)
		if err != nil {
			return eris.Wrapf(err, "parse schedule %q", watchSchedule)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initCrawl(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		log := zap.L().With(zap.String("component", "watch"))
		for {
			next := sched.Next(time.Now())
			log.Info("watch: sleeping until next cycle", zap.Time("next", next))

			select {
			case <-ctx.Done():
				log.Info("watch: shutdown requested")
				return nil
			case <-time.After(time.Until(next)):
			}

			// The cycle runs to completion on its own context; shutdown is
			// only honored between cycles.
			cycleCtx := context.Background()
			if err := env.Cycle.Run(cycleCtx); err != nil {
				log.Error("watch: cycle failed", zap.Error(err))
			}
			if _, err := publish.WriteLocal(env.Ledger, cfg.Ledger.PublicDir); err != nil {
				log.Warn("watch: write public citations list failed", zap.Error(err))
			}
			if watchPublish {
				if err := publish.New(cfg.Publish).Upload(cycleCtx, env.Ledger); err != nil {
					log.Error("watch: publish failed", zap.Error(err))
				}
			}

			if ctx.Err() != nil {
				log.Info("watch: shutdown requested")
				return nil
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "*/30 * * * *", "cron expression for cycle runs")
	watchCmd.Flags().BoolVar(&watchPublish, "publish", false, "upload the citations list after each cycle")
	rootCmd.AddCommand(watchCmd)
}
