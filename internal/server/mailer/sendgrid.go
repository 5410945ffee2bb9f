package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/identkit/identkit/internal/logging"
)

// NewSendGridSender returns a Sender delivering through the SendGrid API.
func NewSendGridSender(apiKey, sender string) Sender {
	client := sendgrid.NewSendClient(apiKey)

	return func(ctx context.Context, task Task) error {
		from := mail.NewEmail("IdentKit", sender)
		to := mail.NewEmail(task.Locals["username"], task.Recipient)
		body := renderBody(task)

		message := mail.NewSingleEmail(from, task.Subject, to, body, "")
		resp, err := client.SendWithContext(ctx, message)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("sendgrid: unexpected status %d", resp.StatusCode)
		}
		return nil
	}
}

// NewLogSender returns a Sender that only logs the task. Used when no
// SendGrid API key is configured (local development).
func NewLogSender(logger logging.Logger) Sender {
	return func(ctx context.Context, task Task) error {
		logger.Info(ctx, "mail delivery skipped (no API key configured)",
			"recipient", task.Recipient, "subject", task.Subject, "template", task.Template)
		return nil
	}
}
