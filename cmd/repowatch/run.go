package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/repowatch/internal/watcher"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single poll cycle and print its report",
	Long: `Run one poll cycle over the whole watch list and exit. Suitable for
driving repowatch from an external scheduler such as a system cron job.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		dispatcher, err := a.dispatcher()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine := watcher.NewEngine(a.registry, a.github, dispatcher)
		report, err := engine.RunCycle(ctx, time.Now())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
