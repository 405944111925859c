package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"trid/internal/flow"
	"trid/internal/guard"
	"trid/internal/identity"
	"trid/internal/platform/metrics"
	"trid/internal/session"
)

const (
	sessionCookieName = "trid_session"
	unauthorizedPath  = "/unauthorized"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func newSlogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration", duration.String(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// newSessionMiddleware attaches the browser's session provider to the request context,
// issuing a session cookie to browsers that do not have one yet. A login during the request
// moves the browser to the rotated key and carries its forms along; a logout tears the forms down.
func newSessionMiddleware(manager *session.Manager, flows *flow.Registry, ttl time.Duration, secureCookie bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if cookie, err := r.Cookie(sessionCookieName); err == nil {
				key = strings.TrimSpace(cookie.Value)
			}

			if key == "" {
				fresh, err := session.NewKey()
				if err != nil {
					logger.Error("issue session key", "error", err)
					writeError(w, http.StatusInternalServerError, "internal error")
					return
				}
				key = fresh
				http.SetCookie(w, sessionCookie(key, ttl, secureCookie))
			}

			follow := func(c session.Change) {
				switch {
				case c.Rotated():
					http.SetCookie(w, sessionCookie(c.Key, ttl, secureCookie))
					flows.Rekey(c.PreviousKeyHash, c.KeyHash)
				case !c.Present:
					flows.Forget(c.KeyHash)
				}
			}

			provider, err := manager.Open(r.Context(), key, follow)
			if err != nil {
				logger.Error("open session", "error", err, "ip", clientIPFromRequest(r))
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			next.ServeHTTP(w, r.WithContext(session.WithProvider(r.Context(), provider)))
		})
	}
}

func sessionCookie(key string, ttl time.Duration, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
	}
}

// requireRoles evaluates the guard on every request against the session's current identity.
// Denied requests are redirected to the unauthorized view.
func requireRoles(m *metrics.Metrics, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				id      identity.Identity
				present bool
			)
			if p := session.FromContext(r.Context()); p != nil {
				id, present = p.Current()
			}
			decision := guard.Evaluate(id, present, roles)
			m.ObserveGuard(decision.Label())

			if !decision.Allowed {
				target := unauthorizedPath + "?reason=" + url.QueryEscape(string(decision.Reason))
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newSecurityHeadersMiddleware(environment string) func(http.Handler) http.Handler {
	isDev := strings.EqualFold(environment, "development")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "geolocation=(), camera=(), microphone=(self)")
			w.Header().Set("Cache-Control", "no-store")

			if !isDev {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
