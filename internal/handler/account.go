package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rcasteel/launchpad/internal/email"
	"github.com/rcasteel/launchpad/internal/plans"
	"github.com/rcasteel/launchpad/internal/store"
)

type AccountHandler struct {
	users         *store.UserStore
	subscriptions *store.SubscriptionStore
	emailClient   *email.Client
	catalog       *plans.Catalog
	logger        *slog.Logger
}

func NewAccountHandler(
	us *store.UserStore,
	ss *store.SubscriptionStore,
	ec *email.Client,
	catalog *plans.Catalog,
	logger *slog.Logger,
) *AccountHandler {
	return &AccountHandler{
		users:         us,
		subscriptions: ss,
		emailClient:   ec,
		catalog:       catalog,
		logger:        logger,
	}
}

// Account returns the authenticated user, their subscription (if any), and
// the resolved plan name.
func (h *AccountHandler) Account(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	user, err := h.users.GetByID(userID)
	if err != nil || user == nil {
		respondError(w, http.StatusNotFound, "Account not found")
		return
	}

	sub, err := h.subscriptions.GetByUserID(userID)
	if err != nil {
		h.logger.Error("get subscription", "error", err)
		respondError(w, http.StatusInternalServerError, "Unable to load account")
		return
	}

	planName := "Free"
	if sub != nil {
		planName = h.catalog.NameForPriceID(sub.StripePriceID)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user":         user,
		"subscription": sub,
		"plan":         planName,
	})
}

// CompleteOnboarding records the user's name, flips the onboarded flag, and
// sends the onboarding-complete email.
func (h *AccountHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.users.GetByID(userID)
	if err != nil || user == nil {
		respondError(w, http.StatusNotFound, "Account not found")
		return
	}

	if req.Name != "" && req.Name != user.Name {
		if err := h.users.UpdateName(user.ID, req.Name); err != nil {
			h.logger.Error("update name", "error", err)
			respondError(w, http.StatusInternalServerError, "Unable to save onboarding")
			return
		}
	}
	if err := h.users.SetOnboarded(user.ID, true); err != nil {
		h.logger.Error("set onboarded", "error", err)
		respondError(w, http.StatusInternalServerError, "Unable to save onboarding")
		return
	}

	// Best effort; the flag is already persisted.
	if err := h.emailClient.SendOnboardingComplete(user.Email, req.Name); err != nil {
		h.logger.Error("send onboarding email", "error", err)
	}

	updated, err := h.users.GetByID(user.ID)
	if err != nil || updated == nil {
		respondError(w, http.StatusInternalServerError, "Unable to load account")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user": updated})
}

// Plans serves the static plan catalog.
func (h *AccountHandler) Plans(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"plans": h.catalog.All()})
}
