// Package slack adapts the slack-go client into the narrow outbound-only
// sender the Turn Orchestrator's Response Routing stage dispatches through.
// It carries no Socket Mode ingestion, event handling, or
// reaction bookkeeping — those belong to a channel-ingestion runtime outside
// this module's scope.
package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	pkgmodels "github.com/arcbound/turnloop/pkg/models"
)

// Config holds the bot token used for outbound Slack API calls.
type Config struct {
	BotToken string // xoxb- token
}

// Client sends messages to Slack via the Web API.
type Client struct {
	api *slack.Client
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	return &Client{api: slack.New(cfg.BotToken)}
}

// Type reports the Slack channel type.
func (c *Client) Type() pkgmodels.ChannelType { return pkgmodels.ChannelSlack }

// Send posts msg.Content as a Block Kit section message to the channel named
// by msg.ChannelID, then appends image attachments as image blocks and all
// other attachments as context blocks.
func (c *Client) Send(ctx context.Context, msg *pkgmodels.Message) error {
	if msg.ChannelID == "" {
		return fmt.Errorf("slack: missing channel id")
	}

	options := buildBlockKitMessage(msg)
	if threadTS, ok := msg.Metadata["slack_thread_ts"].(string); ok && threadTS != "" {
		options = append(options, slack.MsgOptionTS(threadTS))
	}

	_, _, err := c.api.PostMessageContext(ctx, msg.ChannelID, options...)
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

func buildBlockKitMessage(msg *pkgmodels.Message) []slack.MsgOption {
	var options []slack.MsgOption

	if msg.Content != "" {
		textBlock := slack.NewTextBlockObject("mrkdwn", msg.Content, false, false)
		options = append(options, slack.MsgOptionBlocks(slack.NewSectionBlock(textBlock, nil, nil)))
	}

	for _, att := range msg.Attachments {
		if att.Type == "image" {
			options = append(options, slack.MsgOptionBlocks(slack.NewImageBlock(att.URL, att.Filename, "", nil)))
			continue
		}
		contextText := fmt.Sprintf("📎 %s (%s)", att.Filename, att.MimeType)
		options = append(options, slack.MsgOptionBlocks(
			slack.NewContextBlock("", slack.NewTextBlockObject("mrkdwn", contextText, false, false)),
		))
	}

	return options
}
