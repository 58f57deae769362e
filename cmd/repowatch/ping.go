package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check GitHub connectivity and show the API rate limit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		limit, err := a.github.GetRateLimit(cmd.Context())
		if err != nil {
			return fmt.Errorf("GitHub API unreachable: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "🏓 Pong! GitHub API rate limit: %d/%d, resets %s\n",
			limit.Remaining, limit.Limit, limit.Reset.Local().Format("15:04 MST"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
