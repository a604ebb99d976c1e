package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rcasteel/launchpad/internal/model"
)

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	var periodStart, periodEnd sql.NullTime
	var cancelAtPeriodEnd int
	err := scanner.Scan(
		&sub.ID, &sub.UserID, &sub.Status,
		&sub.StripeCustomerID, &sub.StripeSubscriptionID, &sub.StripePriceID,
		&periodStart, &periodEnd, &cancelAtPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if periodStart.Valid {
		sub.CurrentPeriodStart = &periodStart.Time
	}
	if periodEnd.Valid {
		sub.CurrentPeriodEnd = &periodEnd.Time
	}
	sub.CancelAtPeriodEnd = cancelAtPeriodEnd != 0
	return &sub, nil
}

const subscriptionCols = `id, user_id, status, stripe_customer_id, stripe_subscription_id, stripe_price_id, current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at`

// Upsert inserts or replaces the subscription row for rec.UserID. The user_id
// uniqueness constraint is the conflict key, so redelivered checkout events
// converge on a single row instead of duplicating.
func (s *SubscriptionStore) Upsert(rec *model.Subscription) error {
	cancel := 0
	if rec.CancelAtPeriodEnd {
		cancel = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO subscriptions
			(user_id, status, stripe_customer_id, stripe_subscription_id, stripe_price_id,
			 current_period_start, current_period_end, cancel_at_period_end, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id) DO UPDATE SET
			status = excluded.status,
			stripe_customer_id = excluded.stripe_customer_id,
			stripe_subscription_id = excluded.stripe_subscription_id,
			stripe_price_id = excluded.stripe_price_id,
			current_period_start = excluded.current_period_start,
			current_period_end = excluded.current_period_end,
			cancel_at_period_end = excluded.cancel_at_period_end,
			updated_at = CURRENT_TIMESTAMP`,
		rec.UserID, rec.Status, rec.StripeCustomerID, rec.StripeSubscriptionID, rec.StripePriceID,
		nullTime(rec.CurrentPeriodStart), nullTime(rec.CurrentPeriodEnd), cancel,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) GetByUserID(userID string) (*model.Subscription, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM subscriptions WHERE user_id = ?`, userID)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by user: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) GetByStripeID(stripeSubID string) (*model.Subscription, error) {
	row := s.db.QueryRow(
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE stripe_subscription_id = ?`,
		stripeSubID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by stripe id: %w", err)
	}
	return sub, nil
}

// UpdateByStripeID applies provider state to the row matched by
// stripe_subscription_id. Returns false without error when no row matches.
func (s *SubscriptionStore) UpdateByStripeID(stripeSubID, status, priceID string, periodStart, periodEnd time.Time, cancelAtPeriodEnd bool) (bool, error) {
	cancel := 0
	if cancelAtPeriodEnd {
		cancel = 1
	}
	result, err := s.db.Exec(
		`UPDATE subscriptions SET
			status = ?, stripe_price_id = ?,
			current_period_start = ?, current_period_end = ?,
			cancel_at_period_end = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE stripe_subscription_id = ?`,
		status, priceID, periodStart, periodEnd, cancel, stripeSubID,
	)
	if err != nil {
		return false, fmt.Errorf("update subscription by stripe id: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkCanceled sets status to canceled on the row matched by
// stripe_subscription_id, leaving period bounds intact for history. Returns
// false without error when no row matches.
func (s *SubscriptionStore) MarkCanceled(stripeSubID string) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE subscriptions SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE stripe_subscription_id = ?`,
		model.StatusCanceled, stripeSubID,
	)
	if err != nil {
		return false, fmt.Errorf("mark subscription canceled: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
