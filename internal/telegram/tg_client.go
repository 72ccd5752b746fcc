// Package telegram delivers push notifications through a Telegram bot. Each
// push token is the chat id of a user who started the bot.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// BotAPI is the part of *tgbotapi.BotAPI the sender uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client implements push.Sender.
type Client struct {
	bot BotAPI
	log zerolog.Logger
}

// NewClient logs into the Bot API with token.
func NewClient(token string, logger zerolog.Logger) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram push sender authorized")
	return NewClientWithAPI(bot, logger), nil
}

func NewClientWithAPI(bot BotAPI, logger zerolog.Logger) *Client {
	return &Client{bot: bot, log: logger.With().Str("component", "telegram").Logger()}
}

// SendBulk sends one text message per chat. It keeps going after a failed
// chat and reports an error only when no chat received the notification.
func (c *Client) SendBulk(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	text := render(title, body)

	var (
		sent    int
		lastErr error
	)
	for _, token := range tokens {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Конвертуємо токен (string) назад у ChatID (int64)
		chatID, err := strconv.ParseInt(strings.TrimSpace(token), 10, 64)
		if err != nil || chatID == 0 {
			c.log.Warn().Str("token", token).Msg("push token is not a telegram chat id")
			lastErr = fmt.Errorf("invalid chat id %q", token)
			continue
		}

		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := c.bot.Send(msg); err != nil {
			c.log.Warn().Err(err).Int64("chat_id", chatID).Str("room_id", data["room_id"]).Msg("failed to send telegram notification")
			lastErr = err
			continue
		}
		sent++
	}

	if sent == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// render keeps the message plain text; user content is never parsed as markup.
func render(title, body string) string {
	switch {
	case title == "":
		return body
	case body == "":
		return title
	default:
		return title + "\n\n" + body
	}
}
