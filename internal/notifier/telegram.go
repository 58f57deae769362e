package notifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/repowatch/pkg/logger"
)

// Telegram max message length is 4096 chars.
const telegramMaxContent = 4096

// TelegramSender delivers messages through the Telegram Bot API.
// Channel ids are numeric chat ids or @channel usernames.
type TelegramSender struct {
	api *tgbotapi.BotAPI
}

// NewTelegramSender creates a Telegram sender. apiBase overrides
// https://api.telegram.org when non-empty.
func NewTelegramSender(token, apiBase string, debug bool) (*TelegramSender, error) {
	var (
		api *tgbotapi.BotAPI
		err error
	)
	if apiBase != "" {
		api, err = tgbotapi.NewBotAPIWithAPIEndpoint(token, strings.TrimRight(apiBase, "/")+"/bot%s/%s")
	} else {
		api, err = tgbotapi.NewBotAPI(token)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	api.Debug = debug

	logger.Info().Str("username", api.Self.UserName).Msg("Telegram bot authorized")

	return &TelegramSender{api: api}, nil
}

func (t *TelegramSender) Name() string { return "telegram" }

// Send delivers content as plain text. The Discord-style bold markers are
// stripped since Telegram would reject them as malformed Markdown.
func (t *TelegramSender) Send(_ context.Context, channelID, content string) error {
	text := truncateString(strings.ReplaceAll(content, "**", ""), telegramMaxContent)

	var msg tgbotapi.MessageConfig
	if chatID, err := strconv.ParseInt(channelID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(chatID, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(channelID, text)
	}
	msg.DisableWebPagePreview = true

	_, err := t.api.Send(msg)
	return err
}
