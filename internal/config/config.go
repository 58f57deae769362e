// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Supported chat platforms.
const (
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"
)

// Supported registry drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverBolt   = "bolt"
)

// MinPollInterval is the shortest poll interval accepted, in seconds.
const MinPollInterval = 60

// Config represents the application configuration.
type Config struct {
	GitHub   GitHubConfig   `mapstructure:"github"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Registry RegistryConfig `mapstructure:"registry"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// GitHubConfig holds GitHub API configuration.
type GitHubConfig struct {
	Token        string `mapstructure:"token"`
	UserAgent    string `mapstructure:"user_agent"`
	BaseURL      string `mapstructure:"base_url"`      // empty for api.github.com
	Timeout      int    `mapstructure:"timeout"`       // HTTP timeout in seconds
	Schedule     string `mapstructure:"schedule"`      // cron expression, overrides poll_interval
	PollInterval int    `mapstructure:"poll_interval"` // Polling interval in seconds
	RunOnStart   bool   `mapstructure:"run_on_start"`
}

// ChatConfig holds notification channel configuration.
type ChatConfig struct {
	Platform    string `mapstructure:"platform"` // discord or telegram
	Token       string `mapstructure:"token"`
	APIBase     string `mapstructure:"api_base"`
	SendDelayMS int    `mapstructure:"send_delay_ms"`
}

// RegistryConfig holds watch registry storage configuration.
type RegistryConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, mysql or bolt
	DSN    string `mapstructure:"dsn"`    // file path for sqlite/bolt, DSN for mysql
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	AdminToken string `mapstructure:"admin_token"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("github.user_agent", "Discord-Bot-GitHub-Watcher")
	v.SetDefault("github.timeout", 30)
	v.SetDefault("github.poll_interval", 300) // 5 minutes default
	v.SetDefault("github.run_on_start", true)
	v.SetDefault("chat.platform", PlatformDiscord)
	v.SetDefault("chat.send_delay_ms", 1000)
	v.SetDefault("registry.driver", DriverSQLite)
	v.SetDefault("registry.dsn", "./data/repowatch.db")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Read environment variables
	v.SetEnvPrefix("REPOWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults are invisible to AutomaticEnv during Unmarshal.
	for _, key := range []string{
		"github.token", "github.base_url", "github.schedule",
		"chat.token", "chat.api_base", "server.admin_token", "log.file",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks if all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Chat.Token == "" {
		return fmt.Errorf("chat token is required")
	}

	switch c.Chat.Platform {
	case PlatformDiscord, PlatformTelegram:
	default:
		return fmt.Errorf("unsupported chat platform %q", c.Chat.Platform)
	}

	switch c.Registry.Driver {
	case DriverSQLite, DriverMySQL, DriverBolt:
	default:
		return fmt.Errorf("unsupported registry driver %q", c.Registry.Driver)
	}
	if c.Registry.DSN == "" {
		return fmt.Errorf("registry dsn is required")
	}

	if c.Chat.SendDelayMS < 0 {
		return fmt.Errorf("chat send_delay_ms must not be negative")
	}

	if _, err := cron.ParseStandard(c.CronSchedule()); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", c.CronSchedule(), err)
	}
	return nil
}

// CronSchedule returns the cron expression driving poll cycles.
// An explicit schedule wins; otherwise poll_interval becomes an @every
// descriptor, never shorter than MinPollInterval to respect rate limits.
func (c *Config) CronSchedule() string {
	if s := strings.TrimSpace(c.GitHub.Schedule); s != "" {
		return s
	}
	interval := c.GitHub.PollInterval
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	return fmt.Sprintf("@every %ds", interval)
}

// ServerAddress returns the full server address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
