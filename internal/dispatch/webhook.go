package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/podwatch/podwatch/internal/config"
	"github.com/podwatch/podwatch/internal/types"
)

// WebhookChannel delivers alerts through a token-authenticated HTTP
// API. The chat-api, sms, and bot transports share this shape and
// differ only in endpoint and payload recipient semantics.
type WebhookChannel struct {
	name   types.ChannelType
	cfg    config.WebhookSettings
	client *resty.Client
}

func NewWebhookChannel(name types.ChannelType, cfg config.WebhookSettings) *WebhookChannel {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetHeader("Content-Type", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &WebhookChannel{name: name, cfg: cfg, client: client}
}

func (w *WebhookChannel) Name() types.ChannelType {
	return w.name
}

type webhookPayload struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject,omitempty"`
	Message   string `json:"message"`
	Level     string `json:"level,omitempty"`
}

func (w *WebhookChannel) Send(ctx context.Context, address string, msg Message) error {
	if w.cfg.URL == "" {
		return fmt.Errorf("%s channel has no API URL configured", w.name)
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{
			Recipient: address,
			Subject:   msg.Subject,
			Message:   msg.Body,
			Level:     string(msg.Level),
		}).
		Post(w.cfg.URL)
	if err != nil {
		return fmt.Errorf("%s delivery failed: %w", w.name, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s delivery rejected: status %d", w.name, resp.StatusCode())
	}
	return nil
}
