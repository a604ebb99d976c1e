package model

import "time"

// Subscription statuses mirrored from the billing provider.
const (
	StatusActive     = "active"
	StatusCanceled   = "canceled"
	StatusPastDue    = "past_due"
	StatusTrialing   = "trialing"
	StatusIncomplete = "incomplete"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Onboarded bool      `json:"onboarded"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscription is the local mirror of a provider subscription. At most one
// row exists per user; rows are closed by setting status to canceled, never
// deleted.
type Subscription struct {
	ID                   int64      `json:"id"`
	UserID               string     `json:"user_id"`
	Status               string     `json:"status"`
	StripeCustomerID     string     `json:"stripe_customer_id"`
	StripeSubscriptionID string     `json:"stripe_subscription_id"`
	StripePriceID        string     `json:"stripe_price_id"`
	CurrentPeriodStart   *time.Time `json:"current_period_start"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
