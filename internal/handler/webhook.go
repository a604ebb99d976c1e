package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v76"

	"github.com/rcasteel/launchpad/internal/metrics"
	"github.com/rcasteel/launchpad/internal/model"
	"github.com/rcasteel/launchpad/internal/store"
	billingstripe "github.com/rcasteel/launchpad/internal/stripe"
)

const maxWebhookBody = 65536

// eventKind is the closed set of webhook event types this service acts on.
// Everything else is acknowledged without action so the provider does not
// retry events we will never handle.
type eventKind int

const (
	eventUnknown eventKind = iota
	eventCheckoutCompleted
	eventSubscriptionUpdated
	eventSubscriptionDeleted
)

func eventKindOf(eventType string) eventKind {
	switch eventType {
	case "checkout.session.completed":
		return eventCheckoutCompleted
	case "customer.subscription.updated":
		return eventSubscriptionUpdated
	case "customer.subscription.deleted":
		return eventSubscriptionDeleted
	default:
		return eventUnknown
	}
}

type WebhookHandler struct {
	stripeClient  *billingstripe.Client
	subscriptions *store.SubscriptionStore
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func NewWebhookHandler(
	sc *billingstripe.Client,
	ss *store.SubscriptionStore,
	m *metrics.Metrics,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		stripeClient:  sc,
		subscriptions: ss,
		metrics:       m,
		logger:        logger,
	}
}

// HandleStripeWebhook verifies the event signature and dispatches by type.
// The provider gets 200 for anything handled or deliberately ignored; 500 is
// reserved for failures we want it to retry.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.metrics.WebhookEvent("unknown", "rejected")
		respondError(w, http.StatusBadRequest, "Missing stripe-signature header")
		return
	}

	event, err := h.stripeClient.ConstructWebhookEvent(body, sigHeader)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		h.metrics.WebhookEvent("unknown", "rejected")
		respondError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	eventType := string(event.Type)
	h.logger.Info("webhook event received", "type", eventType, "id", event.ID)

	var handleErr error
	switch eventKindOf(eventType) {
	case eventCheckoutCompleted:
		handleErr = h.checkoutCompleted(event)
	case eventSubscriptionUpdated:
		handleErr = h.subscriptionUpdated(event)
	case eventSubscriptionDeleted:
		handleErr = h.subscriptionDeleted(event)
	default:
		h.logger.Info("unhandled event type", "type", eventType)
		h.metrics.WebhookEvent(eventType, "ignored")
	}

	if handleErr != nil {
		h.logger.Error("webhook handler failed", "type", eventType, "error", handleErr)
		h.metrics.WebhookEvent(eventType, "failed")
		respondError(w, http.StatusInternalServerError, "Webhook handler failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// checkoutCompleted attributes the session to a user and upserts the local
// subscription record from the full provider subscription. A returned error
// means the provider should redeliver; attribution gaps are logged and
// acknowledged because redelivery could never fix them.
func (h *WebhookHandler) checkoutCompleted(event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		h.logger.Error("unmarshal checkout session", "error", err)
		h.metrics.WebhookEvent(string(event.Type), "skipped")
		return nil
	}

	userID := sess.Metadata["userId"]
	if userID == "" {
		userID = sess.ClientReferenceID
	}
	if userID == "" {
		h.logger.Error("checkout session has no user reference", "session", sess.ID)
		h.metrics.WebhookEvent(string(event.Type), "skipped")
		return nil
	}

	if sess.Subscription == nil {
		h.logger.Error("checkout session has no subscription", "session", sess.ID)
		h.metrics.WebhookEvent(string(event.Type), "skipped")
		return nil
	}

	stripeSub, err := h.stripeClient.GetSubscription(sess.Subscription.ID)
	if err != nil {
		return err
	}

	rec := &model.Subscription{
		UserID:               userID,
		Status:               string(stripeSub.Status),
		StripeSubscriptionID: stripeSub.ID,
		StripePriceID:        priceIDOf(stripeSub),
		CurrentPeriodStart:   unixTime(stripeSub.CurrentPeriodStart),
		CurrentPeriodEnd:     unixTime(stripeSub.CurrentPeriodEnd),
		CancelAtPeriodEnd:    stripeSub.CancelAtPeriodEnd,
	}
	if sess.Customer != nil {
		rec.StripeCustomerID = sess.Customer.ID
	}

	if err := h.subscriptions.Upsert(rec); err != nil {
		return err
	}

	h.logger.Info("subscription synced from checkout", "user", userID, "subscription", stripeSub.ID)
	h.metrics.WebhookEvent(string(event.Type), "handled")
	return nil
}

// subscriptionUpdated applies status, price, period, and cancellation changes
// to the row matched by the provider subscription ID. No matching row is a
// no-op: the update may concern a subscription this deployment never created.
func (h *WebhookHandler) subscriptionUpdated(event stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		h.logger.Error("unmarshal subscription", "error", err)
		h.metrics.WebhookEvent(string(event.Type), "skipped")
		return nil
	}

	matched, err := h.subscriptions.UpdateByStripeID(
		stripeSub.ID,
		string(stripeSub.Status),
		priceIDOf(&stripeSub),
		time.Unix(stripeSub.CurrentPeriodStart, 0).UTC(),
		time.Unix(stripeSub.CurrentPeriodEnd, 0).UTC(),
		stripeSub.CancelAtPeriodEnd,
	)
	if err != nil {
		return err
	}
	if !matched {
		h.logger.Info("subscription update for unknown subscription", "subscription", stripeSub.ID)
		h.metrics.WebhookEvent(string(event.Type), "skipped")
		return nil
	}

	h.logger.Info("subscription updated", "subscription", stripeSub.ID, "status", stripeSub.Status)
	h.metrics.WebhookEvent(string(event.Type), "handled")
	return nil
}

// subscriptionDeleted closes the matched row by setting status to canceled.
// Period bounds and price are preserved for history.
func (h *WebhookHandler) subscriptionDeleted(event stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		h.logger.Error("unmarshal subscription", "error", err)
		h.metrics.WebhookEvent(string(event.Type), "skipped")
		return nil
	}

	matched, err := h.subscriptions.MarkCanceled(stripeSub.ID)
	if err != nil {
		return err
	}
	if !matched {
		h.logger.Info("subscription delete for unknown subscription", "subscription", stripeSub.ID)
		h.metrics.WebhookEvent(string(event.Type), "skipped")
		return nil
	}

	h.logger.Info("subscription canceled", "subscription", stripeSub.ID)
	h.metrics.WebhookEvent(string(event.Type), "handled")
	return nil
}

func priceIDOf(sub *stripe.Subscription) string {
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		return sub.Items.Data[0].Price.ID
	}
	return ""
}

func unixTime(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
