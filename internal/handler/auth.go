package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rcasteel/launchpad/internal/authtoken"
	"github.com/rcasteel/launchpad/internal/email"
	"github.com/rcasteel/launchpad/internal/store"
)

const sessionCookieName = "launchpad_session"

type AuthHandler struct {
	users       *store.UserStore
	sessions    *store.SessionStore
	signer      *authtoken.Signer
	emailClient *email.Client
	baseURL     string
	logger      *slog.Logger
}

func NewAuthHandler(
	us *store.UserStore,
	ss *store.SessionStore,
	signer *authtoken.Signer,
	ec *email.Client,
	baseURL string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:       us,
		sessions:    ss,
		signer:      signer,
		emailClient: ec,
		baseURL:     baseURL,
		logger:      logger,
	}
}

// Login handles a magic-link request. The response is the same whether or
// not the account existed, to prevent user enumeration.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		respondError(w, http.StatusBadRequest, "Email is required")
		return
	}

	user, err := h.users.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("get user", "error", err)
		respondError(w, http.StatusInternalServerError, "Unable to process request")
		return
	}
	created := false
	if user == nil {
		user, err = h.users.Create(req.Email)
		if err != nil {
			h.logger.Error("create user", "error", err)
			respondError(w, http.StatusInternalServerError, "Unable to process request")
			return
		}
		created = true
	}

	token, err := h.signer.Issue(user.ID)
	if err != nil {
		h.logger.Error("issue magic link token", "error", err)
		respondError(w, http.StatusInternalServerError, "Unable to process request")
		return
	}
	link := fmt.Sprintf("%s/auth/verify?token=%s", h.baseURL, token)

	if h.emailClient.Configured() {
		if created {
			if err := h.emailClient.SendWelcome(user.Email, user.Name); err != nil {
				h.logger.Error("send welcome email", "error", err)
			}
		}
		if err := h.emailClient.SendMagicLink(user.Email, link); err != nil {
			h.logger.Error("send magic link", "error", err)
		}
	} else {
		h.logger.Info("magic link generated", "email", user.Email, "link", link)
	}

	respondJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

// Verify exchanges a valid magic-link token for a durable session cookie.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusBadRequest, "Invalid or expired link")
		return
	}

	userID, err := h.signer.Verify(token)
	if err != nil {
		h.logger.Warn("magic link verification failed", "error", err)
		respondError(w, http.StatusBadRequest, "Invalid or expired link")
		return
	}

	user, err := h.users.GetByID(userID)
	if err != nil || user == nil {
		respondError(w, http.StatusBadRequest, "Invalid or expired link")
		return
	}

	sess, err := h.sessions.Create(user.ID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		respondError(w, http.StatusInternalServerError, "Unable to process request")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   90 * 24 * 60 * 60, // 90 days
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// Signout destroys the session and clears the cookie.
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		sess, err := h.sessions.GetByToken(cookie.Value)
		if err == nil && sess != nil {
			h.sessions.Delete(sess.ID)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
