package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podwatch/podwatch/internal/config"
	"github.com/podwatch/podwatch/internal/types"
)

func TestWebhookChannel_Send(t *testing.T) {
	var received webhookPayload
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(types.ChannelChatAPI, config.WebhookSettings{
		Enabled: true, URL: srv.URL, Token: "secret-token",
	})

	err := ch.Send(context.Background(), "room-7", Message{
		Subject: "Pod status change: api",
		Body:    "Pod api changed from Running to Failed",
		Level:   types.SeverityWarning,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", authHeader)
	assert.Equal(t, "room-7", received.Recipient)
	assert.Equal(t, "warning", received.Level)
	assert.Contains(t, received.Message, "Running to Failed")
}

func TestWebhookChannel_RejectedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(types.ChannelSMS, config.WebhookSettings{Enabled: true, URL: srv.URL})

	err := ch.Send(context.Background(), "+15550100", Message{Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestWebhookChannel_MissingURL(t *testing.T) {
	ch := NewWebhookChannel(types.ChannelBot, config.WebhookSettings{Enabled: true})
	err := ch.Send(context.Background(), "@ops", Message{Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API URL")
}

func TestBuildChannels(t *testing.T) {
	cfg := config.Default()
	cfg.Email.Enabled = true
	cfg.SMS = config.WebhookSettings{Enabled: true, URL: "http://sms.local"}

	channels := BuildChannels(cfg)

	assert.Len(t, channels, 2)
	assert.Contains(t, channels, types.ChannelEmail)
	assert.Contains(t, channels, types.ChannelSMS)
	assert.NotContains(t, channels, types.ChannelBot)
}
