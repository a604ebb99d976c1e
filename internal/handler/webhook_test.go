package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v76"

	"github.com/rcasteel/launchpad/internal/database"
	"github.com/rcasteel/launchpad/internal/metrics"
	"github.com/rcasteel/launchpad/internal/model"
	"github.com/rcasteel/launchpad/internal/store"
	billingstripe "github.com/rcasteel/launchpad/internal/stripe"
)

const testWebhookSecret = "whsec_test"

const testSubscriptionBody = `{
	"id": "sub_123",
	"object": "subscription",
	"status": "active",
	"customer": "cus_123",
	"cancel_at_period_end": false,
	"current_period_start": 1700000000,
	"current_period_end": 1702592000,
	"items": {
		"object": "list",
		"has_more": false,
		"url": "/v1/subscription_items?subscription=sub_123",
		"data": [
			{"id": "si_1", "object": "subscription_item", "price": {"id": "price_abc", "object": "price"}}
		]
	}
}`

type webhookEnv struct {
	handler *WebhookHandler
	db      *sql.DB
	subs    *store.SubscriptionStore
}

// newWebhookEnv builds a webhook handler backed by an in-memory database and
// a fake Stripe API served by stripeStub.
func newWebhookEnv(t *testing.T, stripeStub http.Handler) *webhookEnv {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if stripeStub == nil {
		stripeStub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
	}
	srv := httptest.NewServer(stripeStub)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
	})
	backends := &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	sc := billingstripe.NewClientWithBackends(billingstripe.Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
	}, backends)

	subs := store.NewSubscriptionStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewWebhookHandler(sc, subs, metrics.New(), logger)

	return &webhookEnv{handler: h, db: db, subs: subs}
}

func subscriptionGetStub(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/subscriptions/sub_123" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, testSubscriptionBody)
	})
}

// signPayload produces a Stripe-Signature header value for the payload.
func signPayload(secret string, payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func webhookEvent(t *testing.T, eventType string, object any) []byte {
	t.Helper()
	raw, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("marshal event object: %v", err)
	}
	payload, err := json.Marshal(map[string]any{
		"id":     "evt_test_1",
		"object": "event",
		"type":   eventType,
		"data":   map[string]any{"object": json.RawMessage(raw)},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func (env *webhookEnv) deliver(t *testing.T, payload []byte, sigHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(payload)))
	if sigHeader != "" {
		req.Header.Set("Stripe-Signature", sigHeader)
	}
	rec := httptest.NewRecorder()
	env.handler.HandleStripeWebhook(rec, req)
	return rec
}

func checkoutCompletedObject(userID string) map[string]any {
	obj := map[string]any{
		"id":           "cs_test_1",
		"object":       "checkout.session",
		"customer":     "cus_123",
		"subscription": "sub_123",
		"metadata":     map[string]string{},
	}
	if userID != "" {
		obj["metadata"] = map[string]string{"userId": userID}
	}
	return obj
}

func TestWebhookMissingSignatureHeader(t *testing.T) {
	env := newWebhookEnv(t, nil)

	payload := webhookEvent(t, "checkout.session.completed", checkoutCompletedObject("user-1"))
	rec := env.deliver(t, payload, "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Missing stripe-signature header") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestWebhookInvalidSignature(t *testing.T) {
	env := newWebhookEnv(t, nil)

	payload := webhookEvent(t, "checkout.session.completed", checkoutCompletedObject("user-1"))
	sig := signPayload("whsec_wrong", payload, time.Now())
	rec := env.deliver(t, payload, sig)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid signature") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestWebhookTamperedPayload(t *testing.T) {
	env := newWebhookEnv(t, nil)

	payload := webhookEvent(t, "checkout.session.completed", checkoutCompletedObject("user-1"))
	sig := signPayload(testWebhookSecret, payload, time.Now())
	tampered := []byte(strings.Replace(string(payload), "user-1", "user-2", 1))
	rec := env.deliver(t, tampered, sig)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookCheckoutCompleted(t *testing.T) {
	env := newWebhookEnv(t, subscriptionGetStub(t))

	payload := webhookEvent(t, "checkout.session.completed", checkoutCompletedObject("user-1"))
	rec := env.deliver(t, payload, signPayload(testWebhookSecret, payload, time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	sub, err := env.subs.GetByUserID("user-1")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub == nil {
		t.Fatal("expected subscription row after checkout")
	}
	if sub.Status != model.StatusActive {
		t.Errorf("status = %q, want %q", sub.Status, model.StatusActive)
	}
	if sub.StripeCustomerID != "cus_123" {
		t.Errorf("customer = %q", sub.StripeCustomerID)
	}
	if sub.StripeSubscriptionID != "sub_123" {
		t.Errorf("subscription = %q", sub.StripeSubscriptionID)
	}
	if sub.StripePriceID != "price_abc" {
		t.Errorf("price = %q", sub.StripePriceID)
	}
	if sub.CurrentPeriodEnd == nil || sub.CurrentPeriodEnd.Unix() != 1702592000 {
		t.Errorf("period end = %v", sub.CurrentPeriodEnd)
	}
}

func TestWebhookCheckoutCompletedClientReferenceFallback(t *testing.T) {
	env := newWebhookEnv(t, subscriptionGetStub(t))

	obj := checkoutCompletedObject("")
	obj["client_reference_id"] = "user-9"
	payload := webhookEvent(t, "checkout.session.completed", obj)
	rec := env.deliver(t, payload, signPayload(testWebhookSecret, payload, time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	sub, err := env.subs.GetByUserID("user-9")
	if err != nil || sub == nil {
		t.Fatalf("expected subscription for client_reference_id user, got %v, %v", sub, err)
	}
}

func TestWebhookCheckoutCompletedReplayIsIdempotent(t *testing.T) {
	env := newWebhookEnv(t, subscriptionGetStub(t))

	payload := webhookEvent(t, "checkout.session.completed", checkoutCompletedObject("user-1"))
	for i := 0; i < 2; i++ {
		rec := env.deliver(t, payload, signPayload(testWebhookSecret, payload, time.Now()))
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: status = %d", i, rec.Code)
		}
	}

	var count int
	if err := env.db.QueryRow(`SELECT COUNT(*) FROM subscriptions WHERE user_id = ?`, "user-1").Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Errorf("subscription rows = %d, want 1", count)
	}
}

func TestWebhookCheckoutCompletedNoUserReference(t *testing.T) {
	env := newWebhookEnv(t, subscriptionGetStub(t))

	payload := webhookEvent(t, "checkout.session.completed", checkoutCompletedObject(""))
	rec := env.deliver(t, payload, signPayload(testWebhookSecret, payload, time.Now()))

	// Unattributable sessions are acknowledged, not retried.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var count int
	if err := env.db.QueryRow(`SELECT COUNT(*) FROM subscriptions`).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 0 {
		t.Errorf("subscription rows = %d, want 0", count)
	}
}

func TestWebhookCheckoutCompletedProviderFailure(t *testing.T) {
	env := newWebhookEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error": {"type": "api_error"}}`)
	}))

	payload := webhookEvent(t, "checkout.session.completed", checkoutCompletedObject("user-1"))
	rec := env.deliver(t, payload, signPayload(testWebhookSecret, payload, time.Now()))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 so the provider retries", rec.Code)
	}
}

func subscriptionEventObject(id, status string, cancel bool) map[string]any {
	return map[string]any{
		"id":                   id,
		"object":               "subscription",
		"status":               status,
		"cancel_at_period_end": cancel,
		"current_period_start": 1703000000,
		"current_period_end":   1705592000,
		"items": map[string]any{
			"object":   "list",
			"has_more": false,
			"url":      "/v1/subscription_items?subscription=" + id,
			"data": []any{
				map[string]any{
					"id":     "si_1",
					"object": "subscription_item",
					"price":  map[string]any{"id": "price_abc", "object": "price"},
				},
			},
		},
	}
}

func seedSubscription(t *testing.T, env *webhookEnv, userID, stripeSubID string) {
	t.Helper()
	start := time.Unix(1700000000, 0).UTC()
	end := time.Unix(1702592000, 0).UTC()
	err := env.subs.Upsert(&model.Subscription{
		UserID:               userID,
		Status:               model.StatusActive,
		StripeCustomerID:     "cus_123",
		StripeSubscriptionID: stripeSubID,
		StripePriceID:        "price_abc",
		CurrentPeriodStart:   &start,
		CurrentPeriodEnd:     &end,
	})
	if err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
}

func TestWebhookSubscriptionUpdated(t *testing.T) {
	env := newWebhookEnv(t, nil)
	seedSubscription(t, env, "user-1", "sub_123")

	payload := webhookEvent(t, "customer.subscription.updated", subscriptionEventObject("sub_123", "past_due", true))
	rec := env.deliver(t, payload, signPayload(testWebhookSecret, payload, time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	sub, err := env.subs.GetByUserID("user-1")
	if err != nil || sub == nil {
		t.Fatalf("get subscription: %v, %v", sub, err)
	}
	if sub.Status != model.StatusPastDue {
		t.Errorf("status = %q, want %q", sub.Status, model.StatusPastDue)
	}
	if !sub.CancelAtPeriodEnd {
		t.Error("expected cancel_at_period_end to be set")
	}
	if sub.CurrentPeriodEnd == nil || sub.CurrentPeriodEnd.Unix() != 1705592000 {
		t.Errorf("period end = %v", sub.CurrentPeriodEnd)
	}
}

func TestWebhookSubscriptionUpdatedUnknownSubscription(t *testing.T) {
	env := newWebhookEnv(t, nil)

	payload := webhookEvent(t, "customer.subscription.updated", subscriptionEventObject("sub_other", "active", false))
	rec := env.deliver(t, payload, signPayload(testWebhookSecret, payload, time.Now()))

	// No matching row is a no-op acknowledgment, never an insert.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var count int
	if err := env.db.QueryRow(`SELECT COUNT(*) FROM subscriptions`).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 0 {
		t.Errorf("subscription rows = %d, want 0", count)
	}
}

func TestWebhookSubscriptionDeleted(t *testing.T) {
	env := newWebhookEnv(t, nil)
	seedSubscription(t, env, "user-1", "sub_123")

	payload := webhookEvent(t, "customer.subscription.deleted", subscriptionEventObject("sub_123", "canceled", false))
	rec := env.deliver(t, payload, signPayload(testWebhookSecret, payload, time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	sub, err := env.subs.GetByUserID("user-1")
	if err != nil || sub == nil {
		t.Fatalf("get subscription: %v, %v", sub, err)
	}
	if sub.Status != model.StatusCanceled {
		t.Errorf("status = %q, want %q", sub.Status, model.StatusCanceled)
	}
	// Period bounds survive for history.
	if sub.CurrentPeriodEnd == nil || sub.CurrentPeriodEnd.Unix() != 1702592000 {
		t.Errorf("period end = %v, want preserved value", sub.CurrentPeriodEnd)
	}
}

func TestWebhookUnknownEventTypeAcknowledged(t *testing.T) {
	env := newWebhookEnv(t, nil)

	payload := webhookEvent(t, "invoice.payment_succeeded", map[string]any{"id": "in_1", "object": "invoice"})
	rec := env.deliver(t, payload, signPayload(testWebhookSecret, payload, time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Received bool `json:"received"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Received {
		t.Error("expected received acknowledgment")
	}
}
