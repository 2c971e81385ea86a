// Package telegram adapts go-telegram/bot into the narrow outbound-only
// sender the Turn Orchestrator's Response Routing stage dispatches through.
// It carries no long-poll/webhook ingestion loop,
// attachment upload handling, or rate limiter — those belong to a
// channel-ingestion runtime outside this module's scope.
package telegram

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"

	pkgmodels "github.com/arcbound/turnloop/pkg/models"
)

// Config holds the bot token used to authenticate outbound Telegram calls.
type Config struct {
	Token string
}

// Client sends messages to Telegram via the Bot API.
type Client struct {
	api *bot.Bot
}

// NewClient builds a bot.Bot client. It issues outbound calls only; it
// never starts the bot's update-polling loop, and skips the startup getMe
// probe so construction works without network access.
func NewClient(cfg Config) (*Client, error) {
	b, err := bot.New(cfg.Token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &Client{api: b}, nil
}

// Type reports the Telegram channel type.
func (c *Client) Type() pkgmodels.ChannelType { return pkgmodels.ChannelTelegram }

// Send delivers msg.Content to the chat named by msg.ChannelID, which must
// parse as a Telegram chat ID.
func (c *Client) Send(ctx context.Context, msg *pkgmodels.Message) error {
	chatID, err := strconv.ParseInt(msg.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", msg.ChannelID, err)
	}

	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   msg.Content,
	}
	if _, err := c.api.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}
