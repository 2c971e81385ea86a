// Package discord adapts discordgo into the narrow outbound-only sender the
// Turn Orchestrator's Response Routing stage dispatches through. It carries
// no gateway event handlers, rate limiter, or reconnect
// loop — those belong to a channel-ingestion runtime outside this module's
// scope; a bare session is enough to issue outbound REST calls.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	pkgmodels "github.com/arcbound/turnloop/pkg/models"
)

// Config holds the bot token used to authenticate outbound Discord calls.
type Config struct {
	Token string
}

// Client sends messages to Discord via the REST API.
type Client struct {
	session *discordgo.Session
}

// NewClient opens a discordgo session authenticated as a bot. The returned
// Client issues REST calls only; it never registers gateway handlers.
func NewClient(cfg Config) (*Client, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return &Client{session: session}, nil
}

// Type reports the Discord channel type.
func (c *Client) Type() pkgmodels.ChannelType { return pkgmodels.ChannelDiscord }

// Send delivers msg.Content to the channel named by msg.ChannelID, or an
// embed when embed fields are present in Metadata.
func (c *Client) Send(ctx context.Context, msg *pkgmodels.Message) error {
	if msg.ChannelID == "" {
		return fmt.Errorf("discord: missing channel id")
	}

	title, hasTitle := msg.Metadata["discord_embed_title"].(string)
	description, hasDescription := msg.Metadata["discord_embed_description"].(string)
	color, hasColor := msg.Metadata["discord_embed_color"].(int)

	var err error
	switch {
	case hasTitle || hasDescription || hasColor:
		embed := &discordgo.MessageEmbed{Title: title, Description: description, Color: color}
		if embed.Description == "" {
			embed.Description = msg.Content
		}
		_, err = c.session.ChannelMessageSendComplex(msg.ChannelID, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{embed},
		})
	case msg.Content != "":
		_, err = c.session.ChannelMessageSend(msg.ChannelID, msg.Content)
	}
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}
