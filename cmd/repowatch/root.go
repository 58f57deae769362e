package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/repowatch/internal/config"
	"github.com/user/repowatch/internal/github"
	"github.com/user/repowatch/internal/notifier"
	"github.com/user/repowatch/internal/storage"
	"github.com/user/repowatch/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "repowatch",
	Short: "Watch GitHub repositories and post activity to chat channels",
	Long: `repowatch polls GitHub for new commits, pull requests, issues and releases
of the repositories on its watch list and posts a notification for each new
item to the repository's chat channel (Discord or Telegram).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
}

// app holds the components shared by the subcommands.
type app struct {
	cfg       *config.Config
	registry  storage.Registry
	github    *github.Client
	watchlist *storage.Watchlist
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		// Fall back to a console logger so the error is visible
		_ = logger.Init("info", "")
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	registry, err := storage.OpenRegistry(cfg.Registry.Driver, cfg.Registry.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	logger.Debug().Str("driver", cfg.Registry.Driver).Msg("Registry opened")

	gh, err := github.NewClient(github.Options{
		Token:     cfg.GitHub.Token,
		UserAgent: cfg.GitHub.UserAgent,
		BaseURL:   cfg.GitHub.BaseURL,
		Timeout:   time.Duration(cfg.GitHub.Timeout) * time.Second,
	})
	if err != nil {
		_ = registry.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		registry:  registry,
		github:    gh,
		watchlist: storage.NewWatchlist(registry, gh),
	}, nil
}

// sender builds the chat sender for the configured platform.
func (a *app) sender() (notifier.Sender, error) {
	switch a.cfg.Chat.Platform {
	case config.PlatformTelegram:
		return notifier.NewTelegramSender(a.cfg.Chat.Token, a.cfg.Chat.APIBase, a.cfg.Log.Level == "debug")
	default:
		return notifier.NewDiscordSender(a.cfg.Chat.Token, a.cfg.Chat.APIBase), nil
	}
}

func (a *app) dispatcher() (*notifier.Dispatcher, error) {
	sender, err := a.sender()
	if err != nil {
		return nil, err
	}
	delay := time.Duration(a.cfg.Chat.SendDelayMS) * time.Millisecond
	return notifier.NewDispatcher(sender, delay), nil
}

func (a *app) Close() {
	if err := a.registry.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close registry")
	}
}
