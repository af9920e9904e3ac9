package dispatch

import (
	"context"

	"github.com/podwatch/podwatch/internal/config"
	"github.com/podwatch/podwatch/internal/types"
)

// Message is the channel-independent payload of one alert delivery.
type Message struct {
	Subject string
	Body    string
	Level   types.Severity
}

// Channel is one delivery transport. Implementations are external
// collaborators; Send must respect context cancellation.
type Channel interface {
	Name() types.ChannelType
	Send(ctx context.Context, address string, msg Message) error
}

// BuildChannels assembles the channel adapters enabled by the current
// transport configuration.
func BuildChannels(cfg config.Config) map[types.ChannelType]Channel {
	channels := make(map[types.ChannelType]Channel)
	if cfg.Email.Enabled {
		channels[types.ChannelEmail] = NewEmailChannel(cfg.Email)
	}
	if cfg.ChatAPI.Enabled {
		channels[types.ChannelChatAPI] = NewWebhookChannel(types.ChannelChatAPI, cfg.ChatAPI)
	}
	if cfg.SMS.Enabled {
		channels[types.ChannelSMS] = NewWebhookChannel(types.ChannelSMS, cfg.SMS)
	}
	if cfg.Bot.Enabled {
		channels[types.ChannelBot] = NewWebhookChannel(types.ChannelBot, cfg.Bot)
	}
	return channels
}
