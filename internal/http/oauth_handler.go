package http

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trid/internal/flow"
	"trid/internal/gateway"
	"trid/internal/identity"
	"trid/internal/oauth"
	"trid/internal/session"
)

const (
	oauthStateCookieName = "trid_oauth_state"
	oauthStateCookiePath = "/auth/oauth2"
	oauthStateCookieTTL  = 10 * time.Minute
)

type authURLBuilder interface {
	AuthURL(state string) string
}

type profileFetcher interface {
	Profile(ctx context.Context, accessToken, refreshToken string) gateway.Result[identity.Identity]
}

// OAuthHandler starts the Google round-trip through the backend and completes it.
type OAuthHandler struct {
	initiator    authURLBuilder
	profiles     profileFetcher
	logger       *slog.Logger
	secureCookie bool
}

// NewOAuthHandler creates a new OAuthHandler.
func NewOAuthHandler(initiator authURLBuilder, profiles profileFetcher, env string, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		initiator:    initiator,
		profiles:     profiles,
		logger:       logger,
		secureCookie: !strings.EqualFold(env, "development"),
	}
}

// InitiateGoogle handles GET /auth/oauth2/google.
func (h *OAuthHandler) InitiateGoogle(w http.ResponseWriter, r *http.Request) {
	nonce, err := oauth.GenerateState()
	if err != nil {
		h.logger.Error("failed to generate state", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    nonce,
		Path:     oauthStateCookiePath,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(oauthStateCookieTTL.Seconds()),
	})

	state := oauth.State{Nonce: nonce, RedirectTo: r.URL.Query().Get("redirectTo")}
	http.Redirect(w, r, h.initiator.AuthURL(state.Encode()), http.StatusTemporaryRedirect)
}

// CallbackGoogle handles GET /auth/oauth2/redirect?token=&refreshToken=&state=.
// It only accepts a redirect whose state matches the cookie set by InitiateGoogle.
func (h *OAuthHandler) CallbackGoogle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	stateCookie, err := r.Cookie(oauthStateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("oauth callback: missing state cookie")
		h.redirectWithError(w, r, "invalid_request", "Session expired. Please try again.")
		return
	}

	state, err := oauth.DecodeState(query.Get("state"))
	if err != nil {
		h.logger.Warn("oauth callback: invalid state", "error", err)
		h.redirectWithError(w, r, "invalid_request", "Invalid state. Please try again.")
		return
	}
	if subtle.ConstantTimeCompare([]byte(state.Nonce), []byte(stateCookie.Value)) != 1 {
		h.logger.Warn("oauth callback: state mismatch")
		h.redirectWithError(w, r, "invalid_request", "Invalid state. Please try again.")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    "",
		Path:     oauthStateCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
	})

	if errParam := query.Get("error"); errParam != "" {
		h.logger.Warn("oauth callback: provider error", "error", errParam)
		h.redirectWithError(w, r, errParam, query.Get("error_description"))
		return
	}

	accessToken := strings.TrimSpace(query.Get("token"))
	refreshToken := strings.TrimSpace(query.Get("refreshToken"))
	if accessToken == "" || refreshToken == "" {
		h.redirectWithError(w, r, "invalid_request", "Missing authentication tokens.")
		return
	}

	p := session.FromContext(r.Context())
	if p == nil {
		h.logger.Error("oauth callback: no session in context")
		h.redirectWithError(w, r, "internal_error", "Failed to create session.")
		return
	}

	result := h.profiles.Profile(r.Context(), accessToken, refreshToken)
	if failure, failed := result.Err(); failed {
		h.logger.Warn("oauth callback: profile lookup failed", "kind", failure.Kind, "status", failure.StatusCode)
		h.redirectWithError(w, r, "profile_error", failure.Message)
		return
	}
	id, _ := result.Data()

	if err := p.Login(r.Context(), id); err != nil {
		h.logger.Error("oauth callback: session login failed", "error", err)
		h.redirectWithError(w, r, "internal_error", "Failed to create session.")
		return
	}

	h.logger.Info("oauth login successful", "email", id.Email)

	redirectTo := state.RedirectTo
	if redirectTo == "" {
		redirectTo = flow.LandingRoute(id)
	}
	http.Redirect(w, r, redirectTo, http.StatusSeeOther)
}

// redirectWithError redirects to the login page with error details.
func (h *OAuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code, message string) {
	target := flow.RouteLogin + "?error=" + url.QueryEscape(code)
	if message != "" {
		target += "&message=" + url.QueryEscape(message)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
