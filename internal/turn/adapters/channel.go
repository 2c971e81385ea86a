package adapters

import (
	"context"
	"fmt"

	"github.com/arcbound/turnloop/internal/turn/model"
	"github.com/arcbound/turnloop/internal/turn/ports"
	pkgmodels "github.com/arcbound/turnloop/pkg/models"
)

// platformSender is the shape internal/channels/{discord,slack,telegram}
// adapters all share: Send delivers one outbound message, Type reports the
// platform's channel type. Wrapping this narrow interface (rather than each
// concrete *Adapter) lets one ChannelAdapter implementation serve all three
// transports Response Routing dispatches to.
type platformSender interface {
	Send(ctx context.Context, msg *pkgmodels.Message) error
	Type() pkgmodels.ChannelType
}

// ChannelAdapter implements ports.ChannelPort over a platform transport
// adapter (Discord, Slack, or Telegram).
type ChannelAdapter struct {
	platform platformSender
}

// NewChannelAdapter wraps platform as a ports.ChannelPort.
func NewChannelAdapter(platform platformSender) *ChannelAdapter {
	return &ChannelAdapter{platform: platform}
}

// ChannelType reports the wrapped platform's channel type string.
func (c *ChannelAdapter) ChannelType() string {
	return string(c.platform.Type())
}

// SendMessage delivers text (with optional attachments) through the
// wrapped platform transport.
func (c *ChannelAdapter) SendMessage(ctx context.Context, chatID, text string, opts *ports.SendOptions) error {
	msg := &pkgmodels.Message{
		Channel:   c.platform.Type(),
		ChannelID: chatID,
		Direction: pkgmodels.DirectionOutbound,
		Role:      pkgmodels.RoleAssistant,
		Content:   text,
	}
	if opts != nil {
		for _, url := range opts.Attachments {
			msg.Attachments = append(msg.Attachments, pkgmodels.Attachment{URL: url})
		}
	}
	return c.platform.Send(ctx, msg)
}

// SendRuntimeEvent renders event as a terse system-style text message, since
// none of the wrapped platforms have a dedicated lifecycle-event primitive.
func (c *ChannelAdapter) SendRuntimeEvent(ctx context.Context, chatID string, event model.RuntimeEvent) error {
	msg := &pkgmodels.Message{
		Channel:   c.platform.Type(),
		ChannelID: chatID,
		Direction: pkgmodels.DirectionOutbound,
		Role:      pkgmodels.RoleSystem,
		Content:   fmt.Sprintf("[%s]", event.Type),
		Metadata:  event.Payload,
	}
	return c.platform.Send(ctx, msg)
}
