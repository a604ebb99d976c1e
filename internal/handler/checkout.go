package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rcasteel/launchpad/internal/metrics"
	"github.com/rcasteel/launchpad/internal/store"
	billingstripe "github.com/rcasteel/launchpad/internal/stripe"
)

type CheckoutHandler struct {
	stripeClient  *billingstripe.Client
	users         *store.UserStore
	subscriptions *store.SubscriptionStore
	metrics       *metrics.Metrics
	baseURL       string
	logger        *slog.Logger
}

func NewCheckoutHandler(
	sc *billingstripe.Client,
	us *store.UserStore,
	ss *store.SubscriptionStore,
	m *metrics.Metrics,
	baseURL string,
	logger *slog.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		stripeClient:  sc,
		users:         us,
		subscriptions: ss,
		metrics:       m,
		baseURL:       baseURL,
		logger:        logger,
	}
}

// CreateCheckoutSession creates a subscription-mode checkout session and
// returns the provider-hosted URL. An invalid coupon code fails the whole
// request rather than silently dropping the discount.
func (h *CheckoutHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "Authentication required. Please sign in.")
		return
	}

	var req struct {
		PriceID string `json:"priceId"`
		Coupon  string `json:"coupon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PriceID == "" {
		respondError(w, http.StatusBadRequest, "Price ID is required")
		return
	}

	user, err := h.users.GetByID(userID)
	if err != nil || user == nil {
		respondError(w, http.StatusNotFound, "Account not found")
		return
	}

	couponID := ""
	if req.Coupon != "" {
		result, err := h.stripeClient.ValidatePromotionCode(req.Coupon)
		if err != nil {
			h.logger.Error("validate coupon", "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to validate coupon")
			return
		}
		if !result.Valid {
			respondError(w, http.StatusBadRequest, result.Reason)
			return
		}
		couponID = result.CouponID
	}

	url, err := h.stripeClient.CreateCheckoutSession(billingstripe.CheckoutParams{
		PriceID:   req.PriceID,
		UserID:    user.ID,
		UserEmail: user.Email,
		CouponID:  couponID,
	})
	if err != nil {
		h.logger.Error("create checkout session", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create checkout session")
		return
	}

	h.metrics.CheckoutSessionCreated()
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// BillingPortal returns a self-service billing management URL for the user's
// provider customer record.
func (h *CheckoutHandler) BillingPortal(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "Authentication required. Please sign in.")
		return
	}

	sub, err := h.subscriptions.GetByUserID(userID)
	if err != nil {
		h.logger.Error("get subscription", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create portal session")
		return
	}
	if sub == nil || sub.StripeCustomerID == "" {
		respondError(w, http.StatusNotFound, "No subscription found")
		return
	}

	url, err := h.stripeClient.CreateBillingPortalSession(sub.StripeCustomerID, h.baseURL+"/dashboard")
	if err != nil {
		h.logger.Error("create billing portal session", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create portal session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}
