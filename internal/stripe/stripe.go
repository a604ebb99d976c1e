package stripe

import (
	"fmt"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// Client wraps an injected Stripe API handle. No package-level key or
// singleton is involved; construct one in main and pass it down.
type Client struct {
	cfg Config
	api *client.API
}

func NewClient(cfg Config) *Client {
	return NewClientWithBackends(cfg, nil)
}

// NewClientWithBackends allows overriding the API backends, which tests use
// to point the client at a local server.
func NewClientWithBackends(cfg Config, backends *stripe.Backends) *Client {
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &Client{cfg: cfg, api: api}
}

type CheckoutParams struct {
	PriceID   string
	UserID    string
	UserEmail string
	// CouponID is a resolved provider coupon ID, not the human code.
	CouponID string
}

// CreateCheckoutSession creates a subscription-mode checkout session with the
// user's email prefilled and the user ID carried in both client_reference_id
// and session metadata so the webhook can attribute the completed session.
func (c *Client) CreateCheckoutSession(p CheckoutParams) (string, error) {
	params := &stripe.CheckoutSessionParams{
		CustomerEmail:     stripe.String(p.UserEmail),
		ClientReferenceID: stripe.String(p.UserID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.cfg.SuccessURL),
		CancelURL:  stripe.String(c.cfg.CancelURL),
	}
	params.AddMetadata("userId", p.UserID)
	if p.CouponID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{
			{Coupon: stripe.String(p.CouponID)},
		}
	}

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreateBillingPortalSession creates a self-service billing portal session
// and returns its URL.
func (c *Client) CreateBillingPortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// GetSubscription fetches the full subscription object by ID.
func (c *Client) GetSubscription(subscriptionID string) (*stripe.Subscription, error) {
	sub, err := c.api.Subscriptions.Get(subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", subscriptionID, err)
	}
	return sub, nil
}

// ConstructWebhookEvent verifies the signature header against the shared
// webhook secret and returns the parsed event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, c.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
