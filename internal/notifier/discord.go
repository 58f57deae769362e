package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DiscordAPIBase is the Discord REST API root.
	DiscordAPIBase = "https://discord.com/api/v10"

	// Discord rejects message content longer than 2000 characters.
	discordMaxContent = 2000
)

// DiscordSender posts messages to Discord channels with a bot token.
type DiscordSender struct {
	token   string
	apiBase string
	client  *http.Client
}

// NewDiscordSender creates a Discord sender. An empty apiBase uses DiscordAPIBase.
func NewDiscordSender(token, apiBase string) *DiscordSender {
	if apiBase == "" {
		apiBase = DiscordAPIBase
	}
	return &DiscordSender{
		token:   token,
		apiBase: strings.TrimRight(apiBase, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordSender) Name() string { return "discord" }

// Send posts {"content": content} to the channel's messages endpoint.
func (d *DiscordSender) Send(ctx context.Context, channelID, content string) error {
	b, err := json.Marshal(map[string]string{
		"content": truncateString(content, discordMaxContent),
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/channels/%s/messages", d.apiBase, url.PathEscape(channelID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+d.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
