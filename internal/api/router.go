package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/marden/bookpool/internal/api/handlers"
	"github.com/marden/bookpool/internal/api/middleware"
	"github.com/marden/bookpool/internal/auth"
	"github.com/marden/bookpool/internal/bookings"
	"github.com/marden/bookpool/internal/calendars"
	"github.com/marden/bookpool/internal/database/models"
	"github.com/marden/bookpool/internal/mailer"
	"github.com/marden/bookpool/internal/onboarding"
	"github.com/marden/bookpool/internal/provision"
	"github.com/marden/bookpool/internal/ranking"
	"github.com/marden/bookpool/internal/tasks"
	"github.com/marden/bookpool/internal/teams"
	"github.com/marden/bookpool/pkg/config"
	"github.com/marden/bookpool/pkg/crypto"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Logger         *slog.Logger
	Config         *config.Config
	JWTService     *auth.JWTService
	AuthService    *auth.Service
	Encryptor      *crypto.Encryptor
	Queue          tasks.Enqueuer
	Mailer         mailer.Mailer
	Provisioner    provision.Provisioner
	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// Rate limiting - applied globally to prevent abuse
	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	// CORS - restrict to configured origins, or allow all in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	csrfStore := middleware.NewCSRFStore()

	// Initialize services
	rankingService := ranking.NewService(cfg.DB, cfg.Logger)

	registry := calendars.NewRegistry()
	if cfg.Config != nil && cfg.Config.Google.ClientID != "" {
		registry.Register(models.ReferenceGoogleCalendar,
			calendars.NewGoogle(cfg.DB, cfg.Logger, cfg.Encryptor, &cfg.Config.Google))
	} else {
		registry.Register(models.ReferenceGoogleCalendar, calendars.NewNoop(cfg.Logger))
	}
	registry.Register(models.ReferenceVideoMeeting, calendars.NewNoop(cfg.Logger))

	bookingService := bookings.NewService(cfg.DB, cfg.Logger, rankingService, cfg.Queue, registry)
	teamService := teams.NewService(cfg.DB, cfg.Logger, cfg.Mailer)
	finalizer := onboarding.NewFinalizer(cfg.DB, cfg.Logger, cfg.Mailer, cfg.Provisioner, teamService)

	var billingSecret string
	if cfg.Config != nil {
		billingSecret = cfg.Config.Billing.WebhookSecret
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService)
	eventTypeHandler := handlers.NewEventTypeHandler(cfg.DB)
	bookingHandler := handlers.NewBookingHandler(cfg.DB, bookingService)
	onboardingHandler := handlers.NewOnboardingHandler(cfg.DB)
	billingHandler := handlers.NewBillingHandler(cfg.DB, cfg.Redis, cfg.Logger, finalizer, billingSecret)
	webhookHandler := handlers.NewWebhookHandler(cfg.DB)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)

		// Public booking flow: invitees book and cancel without accounts
		r.Post("/bookings", bookingHandler.Create)
		r.Get("/bookings/{uid}", bookingHandler.Get)
		r.Post("/bookings/{uid}/cancel", bookingHandler.Cancel)

		// Billing provider callback, authenticated by signature
		r.Post("/billing/webhook", billingHandler.Webhook)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))
			// Cookie-authenticated mutations need a CSRF token; Bearer
			// requests pass through.
			r.Use(middleware.CSRF(csrfStore))

			// User endpoints
			r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
				userID := middleware.GetUserID(r.Context())
				user, err := cfg.AuthService.GetUserByID(r.Context(), userID)
				if err != nil {
					http.Error(w, "User not found", http.StatusNotFound)
					return
				}
				writeJSON(w, http.StatusOK, user)
			})

			// Event type endpoints
			r.Route("/event-types", func(r chi.Router) {
				r.Get("/", eventTypeHandler.List)
				r.Post("/", eventTypeHandler.Create)
				r.Get("/{id}", eventTypeHandler.Get)
				r.Put("/{id}", eventTypeHandler.Update)
				r.Delete("/{id}", eventTypeHandler.Delete)
			})

			// Booking management
			r.Get("/bookings", bookingHandler.List)

			// Organization onboarding
			r.Route("/onboarding", func(r chi.Router) {
				r.Post("/", onboardingHandler.Create)
				r.Get("/{id}", onboardingHandler.Get)
			})

			// Webhook subscriptions
			r.Route("/webhooks", func(r chi.Router) {
				r.Get("/", webhookHandler.List)
				r.Post("/", webhookHandler.Create)
				r.Delete("/{id}", webhookHandler.Delete)
			})
		})
	})

	return &Router{r}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
