package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/repowatch/internal/storage"
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage the watch list",
}

var reposListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched repositories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		repos, err := a.watchlist.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(repos) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No repositories are being watched.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "REPO\tCHANNEL\tEVENTS\tADDED BY")
		for _, repo := range repos {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", repo.RepoID, repo.ChannelID, joinEvents(repo.WatchedEvents), repo.AddedBy)
		}
		return w.Flush()
	},
}

var (
	addChannel string
	addEvents  string
	addBy      string
)

var reposAddCmd = &cobra.Command{
	Use:   "add <owner/repo>",
	Short: "Start watching a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var events []storage.EventCategory
		if addEvents != "" {
			parsed, err := storage.ParseEvents(addEvents)
			if err != nil {
				return err
			}
			events = parsed
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		repo, err := a.watchlist.Add(cmd.Context(), args[0], addChannel, addBy, events)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✅ Now watching %s in channel %s\nEvents: %s\n",
			repo.RepoID, repo.ChannelID, joinEvents(repo.WatchedEvents))
		return nil
	},
}

var reposRemoveCmd = &cobra.Command{
	Use:   "remove <owner/repo>",
	Short: "Stop watching a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.watchlist.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Stopped watching %s\n", args[0])
		return nil
	},
}

var reposEventsCmd = &cobra.Command{
	Use:   "events <owner/repo> <event,...>",
	Short: "Change which events of a repository are watched",
	Long:  "Change which events of a repository are watched.\n\nAvailable events:\n" + eventHelp(),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := storage.ParseEvents(args[1])
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		previous, err := a.watchlist.UpdateEvents(cmd.Context(), args[0], events)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\nPrevious: %s\nNew: %s\n",
			args[0], joinEvents(previous), joinEvents(events))
		return nil
	},
}

func joinEvents(events []storage.EventCategory) string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = string(ev)
	}
	return strings.Join(names, ", ")
}

func eventHelp() string {
	var b strings.Builder
	for _, ev := range storage.AllEvents() {
		fmt.Fprintf(&b, "  %-14s %s\n", ev, storage.EventDescriptions[ev])
	}
	return b.String()
}

func init() {
	reposAddCmd.Flags().StringVar(&addChannel, "channel", "", "Chat channel id to notify (required)")
	reposAddCmd.Flags().StringVar(&addEvents, "events", "", "Comma separated events to watch (default commits)")
	reposAddCmd.Flags().StringVar(&addBy, "added-by", "cli", "Who added the repository")
	_ = reposAddCmd.MarkFlagRequired("channel")
	reposAddCmd.Long = "Start watching a repository.\n\nAvailable events:\n" + eventHelp()

	reposCmd.AddCommand(reposListCmd, reposAddCmd, reposRemoveCmd, reposEventsCmd)
	rootCmd.AddCommand(reposCmd)
}
