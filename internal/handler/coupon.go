package handler

import (
	"log/slog"
	"net/http"

	billingstripe "github.com/rcasteel/launchpad/internal/stripe"
)

type CouponHandler struct {
	stripeClient *billingstripe.Client
	logger       *slog.Logger
}

func NewCouponHandler(sc *billingstripe.Client, logger *slog.Logger) *CouponHandler {
	return &CouponHandler{stripeClient: sc, logger: logger}
}

// InitLaunchCoupon creates the OPEN60 launch coupon on the provider if it
// does not exist yet. Idempotent; meant to be hit once during setup.
func (h *CouponHandler) InitLaunchCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := h.stripeClient.EnsureLaunchCoupon()
	if err != nil {
		h.logger.Error("init launch coupon", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to initialize coupon")
		return
	}

	h.logger.Info("launch coupon ready", "coupon", id)
	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"couponId": id,
	})
}
