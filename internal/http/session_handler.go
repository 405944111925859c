package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"trid/internal/flow"
	"trid/internal/session"
)

// SessionHandler reports and ends browser sessions.
type SessionHandler struct {
	logger       *slog.Logger
	secureCookie bool
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(env string, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		logger:       logger,
		secureCookie: !strings.EqualFold(env, "development"),
	}
}

// Status handles GET /api/session.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	p := session.FromContext(r.Context())
	if p == nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	id, ok := p.Current()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          id.Public(),
	})
}

// Logout handles POST /logout and redirects to the login form.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.end(w, r) {
		return
	}
	http.Redirect(w, r, flow.RouteLogin, http.StatusSeeOther)
}

// Delete handles DELETE /api/session.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.end(w, r) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// end clears the identity and expires the cookie. The session middleware tears down the forms.
func (h *SessionHandler) end(w http.ResponseWriter, r *http.Request) bool {
	p := session.FromContext(r.Context())
	if p != nil {
		if err := p.Logout(r.Context()); err != nil {
			h.logger.Error("logout", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to log out")
			return false
		}
	}

	clearCookie := sessionCookie("", 0, h.secureCookie)
	clearCookie.MaxAge = -1
	clearCookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, clearCookie)
	return true
}
