// Package notify delivers reminder and escalation messages over SMTP and
// Slack incoming webhooks.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/consent/internal/consent/service"
	"github.com/aussiebroadwan/consent/pkg/slogx"
)

var ErrNoRecipients = errors.New("notify: no recipients")

type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

type ChatPoster interface {
	Post(ctx context.Context, channel, text string) error
}

// Notifier routes email to Mail and Slack messages to Chat. A nil transport
// only logs the message, which is what local development runs with.
type Notifier struct {
	Mail Mailer
	Chat ChatPoster
}

var _ service.Notifier = (*Notifier)(nil)

func (n *Notifier) SendEmail(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if n.Mail == nil {
		slogx.FromContext(ctx).Info("email not sent: no mailer configured",
			slog.Any("to", to),
			slog.String("subject", subject),
		)
		return nil
	}
	return n.Mail.Send(ctx, to, subject, body)
}

func (n *Notifier) SendSlack(ctx context.Context, channel, message string) error {
	if n.Chat == nil {
		slogx.FromContext(ctx).Info("slack message not sent: no webhook configured",
			slog.String("channel", channel),
			slog.String("message", message),
		)
		return nil
	}
	return n.Chat.Post(ctx, channel, message)
}
