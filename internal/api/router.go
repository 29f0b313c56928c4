package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/forenx/sentinel/internal/api/alerts"
	"github.com/forenx/sentinel/internal/api/auth"
	"github.com/forenx/sentinel/internal/api/export"
	"github.com/forenx/sentinel/internal/api/logs"
	"github.com/forenx/sentinel/internal/api/middleware"
	"github.com/forenx/sentinel/internal/api/stats"
	"github.com/forenx/sentinel/internal/api/uploads"
	"github.com/forenx/sentinel/internal/api/users"
	"github.com/forenx/sentinel/internal/models"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Create JWT service
	jwtService := auth.NewJWTService(s.config.JWTSecret, s.config.AccessTokenTTL)

	// Create lockout tracker
	lockoutTracker := auth.NewLockoutTracker(s.config.LockoutThreshold, s.config.LockoutDuration)

	// Create rate limiters
	ipLimiter := middleware.NewClientLimiter(s.config.RateLimitPerIP)
	userLimiter := middleware.NewClientLimiter(s.config.RateLimitPerUser)

	// Global middleware
	r.Use(middleware.RequestLogger(s.config.Verbose))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer)
	r.Use(middleware.PrometheusMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrNotFound)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (mostly public)
		r.Route("/auth", func(r chi.Router) {
			authHandler := auth.NewHandler(
				s.deps.Store,
				jwtService,
				lockoutTracker,
				s.config.RefreshTokenTTL,
			)

			// Public routes with IP rate limiting
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimitByIP(ipLimiter))
				r.Post("/login", authHandler.Login)
				r.Post("/refresh", authHandler.Refresh)
			})

			// Protected routes
			r.Group(func(r chi.Router) {
				r.Use(middleware.JWTAuth(jwtService))
				r.Post("/logout", authHandler.Logout)
			})
		})

		// Everything else requires a valid token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(jwtService))
			r.Use(middleware.RateLimitByUser(userLimiter))

			// Upload ingestion and history
			r.Route("/uploads", func(r chi.Router) {
				uploadHandler := uploads.NewHandler(s.deps.Pipeline, s.deps.Store, s.deps.Archive)

				r.Get("/", uploadHandler.List)
				r.Get("/{id}", uploadHandler.GetByID)

				// Viewers can read history but not ingest
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireCanUpload)
					r.Post("/", uploadHandler.Create)
				})

				// Delete cascades into alerts and the archive
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(models.RoleAdmin))
					r.Delete("/{id}", uploadHandler.Delete)
				})
			})

			// Parsed entry querying
			logsHandler := logs.NewHandler(s.deps.Buffer, s.deps.Archive)
			r.Get("/logs", logsHandler.Query)

			// Alerts
			r.Route("/alerts", func(r chi.Router) {
				alertHandler := alerts.NewHandler(s.deps.Store, s.feed)

				r.Get("/", alertHandler.List)
				r.Get("/types", alertHandler.Types)
				r.Get("/stream", alertHandler.Stream)
				r.Get("/{id}", alertHandler.GetByID)
			})

			// Statistics
			statsHandler := stats.NewHandler(s.deps.Store, s.deps.Buffer, s.deps.Geo)
			r.Get("/stats", statsHandler.Overview)
			r.Get("/stats/top", statsHandler.Top)
			r.Get("/timeline", statsHandler.Timeline)

			// Bulk export
			exportHandler := export.NewHandler(s.deps.Store, s.deps.Buffer, s.deps.Archive)
			r.Get("/export", exportHandler.Export)

			// User management
			r.Route("/users", func(r chi.Router) {
				userHandler := users.NewHandler(s.deps.Store)

				// Current user endpoints (any authenticated user)
				r.Get("/me", userHandler.GetCurrentUser)
				r.Put("/me/password", userHandler.ChangePassword)

				// Admin-only endpoints
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(models.RoleAdmin))
					r.Get("/", userHandler.List)
					r.Post("/", userHandler.Create)
				})

				// Per-user endpoints (admin or self)
				r.Route("/{id}", func(r chi.Router) {
					r.Use(middleware.RequireAdminOrSelf)
					r.Get("/", userHandler.GetByID)
					r.Put("/", userHandler.Update)

					// Delete is admin-only
					r.Group(func(r chi.Router) {
						r.Use(middleware.RequireRole(models.RoleAdmin))
						r.Delete("/", userHandler.Delete)
					})
				})
			})
		})
	})

	// Health checks (public, no rate limit)
	r.Get("/health", s.health.Health)
	r.Get("/health/live", s.health.Live)
	r.Get("/health/ready", s.health.Ready)

	return r
}
