package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"trid/internal/config"
	"trid/internal/flow"
	"trid/internal/identity"
	"trid/internal/platform/metrics"
	"trid/internal/session"
)

// Backend is everything the web tier asks of the Trid REST backend.
type Backend interface {
	flow.Backend
	profileFetcher
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Services carries the collaborators the router wires into handlers.
type Services struct {
	Backend  Backend
	Sessions *session.Manager
	Flows    *flow.Registry
	OAuth    authURLBuilder
	Metrics  *metrics.Metrics
	Checks   map[string]HealthCheck
}

// NewRouter wires application routes and middleware using chi.
func NewRouter(cfg config.Config, svc Services, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))
	r.Use(newSlogMiddleware(logger))

	r.Get("/health", healthHandler(cfg.Environment, svc.Checks))
	r.Method(http.MethodGet, "/metrics", svc.Metrics.Handler())

	flows := NewFlowHandler(svc.Backend, svc.Flows, logger)
	sessions := NewSessionHandler(cfg.Environment, logger)
	pages := PageHandler{}

	r.Group(func(r chi.Router) {
		r.Use(newSessionMiddleware(svc.Sessions, svc.Flows, cfg.SessionTTL, !cfg.IsDevelopment(), logger))

		r.Get("/", pages.Home)
		r.Get("/home", pages.Home)
		r.Get("/unauthorized", pages.Unauthorized)

		r.Get("/login", flows.ShowLogin)
		r.Post("/login", flows.SubmitLogin)
		r.Get("/signup", flows.ShowSignup)
		r.Post("/signup", flows.SubmitSignup)
		r.Get("/forgot-password", flows.ShowForgotPassword)
		r.Post("/forgot-password", flows.SubmitForgotPassword)
		r.Get("/activate-account", flows.ShowActivation)
		r.Post("/activate-account", flows.SubmitActivation)
		r.Get("/reset-password", flows.ShowResetPassword)
		r.Post("/reset-password", flows.SubmitResetPassword)

		if cfg.OAuthEnabled && svc.OAuth != nil {
			oauthHandler := NewOAuthHandler(svc.OAuth, svc.Backend, cfg.Environment, logger)
			r.Get("/auth/oauth2/google", oauthHandler.InitiateGoogle)
			r.Get("/auth/oauth2/redirect", oauthHandler.CallbackGoogle)
		} else {
			logger.Warn("OAuth login disabled; /auth/oauth2 routes are not mounted")
		}

		r.Post("/logout", sessions.Logout)
		r.Route("/api/session", func(r chi.Router) {
			r.Get("/", sessions.Status)
			r.Delete("/", sessions.Delete)
		})

		guarded := []struct {
			prefix string
			roles  []string
		}{
			{"/admin", []string{identity.RoleAdmin}},
			{"/seller-shop", []string{identity.RoleSeller, identity.RoleAdmin}},
			{"/account", nil},
			{"/cart", nil},
			{"/wish", nil},
			{"/checkout", nil},
			{"/orders", nil},
		}
		for _, g := range guarded {
			section := pages.Section(g.prefix[1:])
			r.Route(g.prefix, func(r chi.Router) {
				r.Use(requireRoles(svc.Metrics, g.roles...))
				r.Get("/", section)
				r.Get("/*", section)
			})
		}
	})

	r.NotFound(http.NotFoundHandler().ServeHTTP)

	return r
}

func healthHandler(environment string, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := check(ctx)
			cancel()
			if err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		writeJSON(w, status, map[string]any{
			"status":      overall,
			"environment": environment,
			"checks":      results,
		})
	}
}
