package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slugwatch/citation-cli/internal/ledger"
	"github.com/slugwatch/citation-cli/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the citation ledger and session cache over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// The server only reads files the cycle owns; it does not need the
		// store, browser, or mailer.
		ldg, err := ledger.Open(cfg.Ledger.ScrapedPath)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port()),
			Handler: server.New(ldg, cfg.Ledger.SessionsPath, promhttp.Handler()).Router(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func port() int {
	if servePort != 0 {
		return servePort
	}
	return cfg.Server.Port
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
