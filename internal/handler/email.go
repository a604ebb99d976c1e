package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rcasteel/launchpad/internal/email"
)

type EmailHandler struct {
	emailClient *email.Client
	logger      *slog.Logger
}

func NewEmailHandler(ec *email.Client, logger *slog.Logger) *EmailHandler {
	return &EmailHandler{emailClient: ec, logger: logger}
}

// Send dispatches a transactional email by template name. Only templates in
// the fixed set are accepted.
func (h *EmailHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Template string `json:"template"`
		To       string `json:"to"`
		Data     struct {
			Name     string `json:"name"`
			PlanName string `json:"planName"`
		} `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.To == "" {
		respondError(w, http.StatusBadRequest, "Recipient email required")
		return
	}
	if req.Template == "" {
		respondError(w, http.StatusBadRequest, "Template required")
		return
	}

	var err error
	switch req.Template {
	case "welcome":
		err = h.emailClient.SendWelcome(req.To, req.Data.Name)
	case "subscriptionConfirmed":
		planName := req.Data.PlanName
		if planName == "" {
			planName = "your plan"
		}
		err = h.emailClient.SendSubscriptionConfirmed(req.To, planName)
	case "onboardingComplete":
		err = h.emailClient.SendOnboardingComplete(req.To, req.Data.Name)
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown template: %s", req.Template))
		return
	}
	if err != nil {
		h.logger.Error("send email", "template", req.Template, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to send email")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
