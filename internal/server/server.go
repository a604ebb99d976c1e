package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rcasteel/launchpad/internal/authtoken"
	"github.com/rcasteel/launchpad/internal/email"
	"github.com/rcasteel/launchpad/internal/handler"
	"github.com/rcasteel/launchpad/internal/metrics"
	"github.com/rcasteel/launchpad/internal/middleware"
	"github.com/rcasteel/launchpad/internal/plans"
	"github.com/rcasteel/launchpad/internal/store"
	billingstripe "github.com/rcasteel/launchpad/internal/stripe"
)

type Server struct {
	db           *sql.DB
	users        *store.UserStore
	subs         *store.SubscriptionStore
	sessions     *store.SessionStore
	webhookH     *handler.WebhookHandler
	checkoutH    *handler.CheckoutHandler
	couponH      *handler.CouponHandler
	authH        *handler.AuthHandler
	accountH     *handler.AccountHandler
	emailH       *handler.EmailHandler
	stripeClient *billingstripe.Client
	metrics      *metrics.Metrics
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

type Config struct {
	Stripe      billingstripe.Config
	BaseURL     string
	AuthSecret  string
	ProPriceID  string
	EmailClient *email.Client
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	users := store.NewUserStore(db)
	subs := store.NewSubscriptionStore(db)
	sessions := store.NewSessionStore(db)
	m := metrics.New()
	catalog := plans.NewCatalog(cfg.ProPriceID)
	signer := authtoken.NewSigner(cfg.AuthSecret)

	var stripeClient *billingstripe.Client
	if cfg.Stripe.SecretKey != "" {
		stripeClient = billingstripe.NewClient(cfg.Stripe)
	}

	var webhookH *handler.WebhookHandler
	var checkoutH *handler.CheckoutHandler
	var couponH *handler.CouponHandler
	if stripeClient != nil {
		webhookH = handler.NewWebhookHandler(stripeClient, subs, m, logger.With("component", "webhook"))
		checkoutH = handler.NewCheckoutHandler(stripeClient, users, subs, m, cfg.BaseURL, logger.With("component", "checkout"))
		couponH = handler.NewCouponHandler(stripeClient, logger.With("component", "coupon"))
	}

	authH := handler.NewAuthHandler(users, sessions, signer, cfg.EmailClient, cfg.BaseURL, logger.With("component", "auth"))
	accountH := handler.NewAccountHandler(users, subs, cfg.EmailClient, catalog, logger.With("component", "account"))
	emailH := handler.NewEmailHandler(cfg.EmailClient, logger.With("component", "email"))

	return &Server{
		db:           db,
		users:        users,
		subs:         subs,
		sessions:     sessions,
		webhookH:     webhookH,
		checkoutH:    checkoutH,
		couponH:      couponH,
		authH:        authH,
		accountH:     accountH,
		emailH:       emailH,
		stripeClient: stripeClient,
		metrics:      m,
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessions
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthCheck)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Public
	mux.HandleFunc("GET /api/plans", s.accountH.Plans)
	mux.HandleFunc("POST /auth/login", s.rateLimited(s.authH.Login))
	mux.HandleFunc("GET /auth/verify", s.authH.Verify)

	// Stripe webhook (public; authenticated by signature)
	if s.webhookH != nil {
		mux.HandleFunc("POST /webhooks/stripe", s.webhookH.HandleStripeWebhook)
	}

	// Protected
	authMw := middleware.RequireAuth(s.sessions)
	mux.Handle("POST /auth/signout", authMw(http.HandlerFunc(s.authH.Signout)))
	mux.Handle("GET /api/account", authMw(http.HandlerFunc(s.accountH.Account)))
	mux.Handle("POST /api/onboarding", authMw(http.HandlerFunc(s.accountH.CompleteOnboarding)))
	mux.Handle("POST /api/email/send", authMw(http.HandlerFunc(s.emailH.Send)))

	if s.checkoutH != nil {
		mux.Handle("POST /api/checkout", authMw(http.HandlerFunc(s.checkoutH.CreateCheckoutSession)))
		mux.Handle("POST /api/portal", authMw(http.HandlerFunc(s.checkoutH.BillingPortal)))
		mux.Handle("POST /api/coupons/init", authMw(http.HandlerFunc(s.couponH.InitLaunchCoupon)))
	}

	return middleware.RequestLogger(s.logger, s.metrics)(mux)
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := middleware.RealIP
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
