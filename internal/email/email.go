package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sethvargo/go-retry"
)

// Client sends transactional email through SendGrid. When no API key is
// configured it logs the message instead, so local development works without
// a provider account.
type Client struct {
	apiKey    string
	fromEmail string
	fromName  string
	baseURL   string
	host      string
	logger    *slog.Logger
}

type Option func(*Client)

// WithHost overrides the SendGrid API host. Tests point this at a local server.
func WithHost(host string) Option {
	return func(c *Client) {
		c.host = host
	}
}

func NewClient(apiKey, fromEmail, fromName, baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
		baseURL:   baseURL,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// SendMagicLink emails a sign-in link. The link embeds a short-lived signed
// token; it expires in 15 minutes.
func (c *Client) SendMagicLink(toEmail, link string) error {
	msg, err := renderMagicLink(link)
	if err != nil {
		return err
	}
	return c.send(toEmail, "", msg)
}

// SendWelcome greets a newly created user.
func (c *Client) SendWelcome(toEmail, name string) error {
	msg, err := renderWelcome(name, c.baseURL)
	if err != nil {
		return err
	}
	return c.send(toEmail, name, msg)
}

// SendSubscriptionConfirmed notifies a user that their plan is active.
func (c *Client) SendSubscriptionConfirmed(toEmail, planName string) error {
	msg, err := renderSubscriptionConfirmed(planName, c.baseURL)
	if err != nil {
		return err
	}
	return c.send(toEmail, "", msg)
}

// SendOnboardingComplete congratulates a user on finishing onboarding.
func (c *Client) SendOnboardingComplete(toEmail, name string) error {
	msg, err := renderOnboardingComplete(name, c.baseURL)
	if err != nil {
		return err
	}
	return c.send(toEmail, name, msg)
}

func (c *Client) send(toEmail, toName string, msg *message) error {
	if !c.Configured() {
		c.logger.Info("email not configured, logging instead",
			"to", toEmail, "subject", msg.subject)
		return nil
	}

	from := mail.NewEmail(c.fromName, c.fromEmail)
	to := mail.NewEmail(toName, toEmail)
	m := mail.NewSingleEmail(from, msg.subject, to, msg.text, msg.html)

	req := sendgrid.GetRequest(c.apiKey, "/v3/mail/send", c.host)
	req.Method = "POST"
	req.Body = mail.GetRequestBody(m)

	// Transient provider failures get a couple of bounded retries; 4xx
	// responses are permanent and fail immediately.
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(500*time.Millisecond))
	return retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		resp, err := sendgrid.API(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("send email: %w", err))
		}
		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("sendgrid API error: status %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("sendgrid API error: status %d", resp.StatusCode)
		}
		return nil
	})
}
