package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"trid/internal/guard"
	"trid/internal/session"
)

// PageHandler renders the non-form views.
type PageHandler struct{}

// Home handles GET / and GET /home.
func (PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newView("home", session.FromContext(r.Context())))
}

// Unauthorized handles GET /unauthorized?reason=.
func (PageHandler) Unauthorized(w http.ResponseWriter, r *http.Request) {
	reason := guard.Reason(r.URL.Query().Get("reason"))
	switch reason {
	case guard.ReasonUnauthenticated, guard.ReasonForbidden:
	default:
		reason = guard.ReasonNone
	}

	v := newView("unauthorized", session.FromContext(r.Context())).
		with("reason", string(reason)).
		with("message", guard.Message(reason))
	writeJSON(w, http.StatusOK, v)
}

// Section renders a guarded area. The view is named after the section; the sub-path is passed along.
func (PageHandler) Section(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := newView(name, session.FromContext(r.Context()))
		if rest := strings.Trim(chi.URLParam(r, "*"), "/"); rest != "" {
			v = v.with("path", rest)
		}
		writeJSON(w, http.StatusOK, v)
	}
}
