package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/repowatch/internal/api"
	"github.com/user/repowatch/internal/watcher"
	"github.com/user/repowatch/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the admin HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		logger.Info().
			Str("platform", a.cfg.Chat.Platform).
			Str("schedule", a.cfg.CronSchedule()).
			Msg("Starting GitHub repository watcher")

		dispatcher, err := a.dispatcher()
		if err != nil {
			return err
		}

		engine := watcher.NewEngine(a.registry, a.github, dispatcher)
		scheduler, err := watcher.NewScheduler(engine, a.cfg.CronSchedule(), a.cfg.GitHub.RunOnStart)
		if err != nil {
			return err
		}
		scheduler.Start()

		var server *http.Server
		if a.cfg.Server.Enabled {
			server = &http.Server{
				Addr: a.cfg.ServerAddress(),
				Handler: api.NewRouter(api.Options{
					Watchlist:  a.watchlist,
					Cycles:     scheduler,
					RateLimit:  a.github,
					AdminToken: a.cfg.Server.AdminToken,
				}),
			}

			go func() {
				logger.Info().Str("address", a.cfg.ServerAddress()).Msg("Starting HTTP server")
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("HTTP server error")
				}
			}()
		}

		// Wait for shutdown signal
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if server != nil {
			if err := server.Shutdown(ctx); err != nil {
				logger.Error().Err(err).Msg("HTTP server shutdown error")
			}
		}

		scheduler.Stop()

		logger.Info().Msg("Shutdown complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
