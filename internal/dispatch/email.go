package dispatch

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/podwatch/podwatch/internal/config"
	"github.com/podwatch/podwatch/internal/types"
)

// EmailChannel delivers alerts over SMTP.
type EmailChannel struct {
	cfg config.EmailSettings
}

func NewEmailChannel(cfg config.EmailSettings) *EmailChannel {
	return &EmailChannel{cfg: cfg}
}

func (e *EmailChannel) Name() types.ChannelType {
	return types.ChannelEmail
}

func (e *EmailChannel) Send(ctx context.Context, address string, msg Message) error {
	if address == "" {
		return fmt.Errorf("no recipient provided for email")
	}

	from := e.cfg.From
	if from == "" {
		from = "podwatch@localhost"
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", address)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	d := gomail.NewDialer(e.cfg.SMTPHost, e.cfg.SMTPPort, e.cfg.Username, e.cfg.Password)
	d.SSL = e.cfg.UseTLS // true = 465 SSL, false = 587 STARTTLS

	// gomail has no context support; run the dial in a goroutine so a
	// stuck SMTP server cannot outlive the dispatch timeout.
	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("email send abandoned: %w", ctx.Err())
	}
}
