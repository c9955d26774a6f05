package notify

import (
	"context"
	"errors"

	"moneta.app/internal/obs"
)

// Email is an outgoing message.
type Email struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// ConsoleMailer writes emails to the structured log instead of sending them.
type ConsoleMailer struct{}

func (ConsoleMailer) Send(ctx context.Context, e Email) error {
	if e.To == "" {
		return errors.New("email recipient is empty")
	}
	obs.Info("email_sent", map[string]any{
		"from":    e.From,
		"to":      e.To,
		"subject": e.Subject,
		"body":    e.Body,
	})
	return nil
}
