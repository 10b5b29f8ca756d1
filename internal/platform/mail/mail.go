// Package mail sends transactional email for job completion notices.
package mail

import (
	"context"
	"fmt"

	"github.com/brightleads/dmengine/internal/config"
	"github.com/resend/resend-go/v2"
)

// Client wraps the Resend API for the notifications this service sends.
// When disabled (no API key configured) every send is a no-op so the
// Job Runner never blocks on an absent mail provider.
type Client struct {
	client    *resend.Client
	fromEmail string
	enabled   bool
}

// New creates a mail client from configuration. A disabled config yields a
// Client whose sends always succeed without making a request.
func New(cfg config.MailConfig) *Client {
	if !cfg.Enabled {
		return &Client{enabled: false}
	}
	return &Client{
		client:    resend.NewClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		enabled:   true,
	}
}

// SendJobCompletion notifies a user that their job finished, including how
// many decision makers were found.
func (c *Client) SendJobCompletion(ctx context.Context, toEmail, jobID string, decisionMakersFound int) error {
	if !c.enabled {
		return nil
	}

	subject := fmt.Sprintf("Your job is ready (%d contacts found)", decisionMakersFound)
	html := fmt.Sprintf(
		"<p>Your job <strong>%s</strong> has finished processing.</p><p>We found <strong>%d</strong> decision makers.</p>",
		jobID, decisionMakersFound,
	)

	params := &resend.SendEmailRequest{
		From:    c.fromEmail,
		To:      []string{toEmail},
		Subject: subject,
		Html:    html,
	}

	if _, err := c.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("failed to send job completion email: %w", err)
	}

	return nil
}
