package http

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"trid/internal/flow"
	"trid/internal/identity"
	"trid/internal/platform/metrics"
	"trid/internal/session"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func providerWith(t *testing.T, id *identity.Identity) *session.Provider {
	t.Helper()
	p := session.NewProvider(session.NewMemoryStore(), "hash", time.Hour, nil)
	if id != nil {
		if err := p.Login(t.Context(), *id); err != nil {
			t.Fatalf("login: %v", err)
		}
	}
	return p
}

func TestRequireRolesDecisions(t *testing.T) {
	admin := testIdentity(identity.RoleAdmin)
	plain := testIdentity()

	cases := []struct {
		name     string
		provider *session.Provider
		roles    []string
		status   int
		location string
	}{
		{"no provider", nil, []string{identity.RoleAdmin}, http.StatusSeeOther, "/unauthorized?reason=login_required"},
		{"absent identity", providerWith(t, nil), []string{identity.RoleAdmin}, http.StatusSeeOther, "/unauthorized?reason=login_required"},
		{"missing role", providerWith(t, &plain), []string{identity.RoleAdmin}, http.StatusSeeOther, "/unauthorized?reason=forbidden"},
		{"matching role", providerWith(t, &admin), []string{identity.RoleAdmin}, http.StatusOK, ""},
		{"any identity", providerWith(t, &plain), nil, http.StatusOK, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.provider != nil {
				req = req.WithContext(session.WithProvider(req.Context(), tc.provider))
			}
			rec := httptest.NewRecorder()

			requireRoles(nil, tc.roles...)(okHandler()).ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
			if got := rec.Header().Get("Location"); got != tc.location {
				t.Fatalf("expected location %q, got %q", tc.location, got)
			}
		})
	}
}

func TestRequireRolesReadsIdentityOnEveryRequest(t *testing.T) {
	p := providerWith(t, nil)
	handler := requireRoles(nil, identity.RoleAdmin)(okHandler())
	serve := func() int {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req = req.WithContext(session.WithProvider(req.Context(), p))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if serve() != http.StatusSeeOther {
		t.Fatal("expected redirect before login")
	}
	if err := p.Login(t.Context(), testIdentity(identity.RoleAdmin)); err != nil {
		t.Fatalf("login: %v", err)
	}
	if serve() != http.StatusOK {
		t.Fatal("expected access right after login")
	}
	if err := p.Logout(t.Context()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if serve() != http.StatusSeeOther {
		t.Fatal("expected redirect right after logout")
	}
}

func TestRequireRolesCountsDecisions(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	handler := requireRoles(m, identity.RoleAdmin)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin", nil))

	if got := testutil.ToFloat64(m.GuardDecisions.WithLabelValues("login_required")); got != 1 {
		t.Fatalf("expected one login_required decision, got %v", got)
	}
}

func TestSessionMiddlewareIssuesCookieOnce(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := session.NewManager(session.NewMemoryStore(), nil, time.Hour, logger, nil)
	var seen *session.Provider
	handler := newSessionMiddleware(manager, flow.NewRegistry(time.Minute, nil), time.Hour, true, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = session.FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookieName {
		t.Fatalf("expected a session cookie, got %v", cookies)
	}
	if !cookies[0].HttpOnly || !cookies[0].Secure || cookies[0].SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookie attributes %+v", cookies[0])
	}
	if seen == nil || seen.KeyHash() != session.HashKey(cookies[0].Value) {
		t.Fatal("expected the provider for the issued key")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("expected existing cookie to be reused")
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	newSecurityHeadersMiddleware("production")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("expected X-Frame-Options header")
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatal("expected HSTS outside development")
	}

	rec = httptest.NewRecorder()
	newSecurityHeadersMiddleware("development")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("expected no HSTS in development")
	}
}

func TestSessionMiddlewareFollowsLoginAndLogout(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := session.NewManager(session.NewMemoryStore(), nil, time.Hour, logger, nil)
	flows := flow.NewRegistry(time.Minute, nil)
	middleware := newSessionMiddleware(manager, flows, time.Hour, false, logger)

	var (
		before  string
		machine *flow.Machine
	)
	login := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := session.FromContext(r.Context())
		before = p.KeyHash()
		machine = flows.Machine(before, flow.KindLogin)
		if err := p.Login(r.Context(), testIdentity(identity.RoleUser)); err != nil {
			t.Errorf("login: %v", err)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "old-key"})
	rec := httptest.NewRecorder()
	login.ServeHTTP(rec, req)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value == "old-key" {
		t.Fatalf("expected one rotated session cookie, got %v", cookies)
	}
	if before != session.HashKey("old-key") {
		t.Fatal("expected the request to start on the presented key")
	}
	if flows.Len() != 1 || flows.Machine(session.HashKey(cookies[0].Value), flow.KindLogin) != machine {
		t.Fatal("expected the form to follow the rotated key")
	}

	logout := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := session.FromContext(r.Context()).Logout(r.Context()); err != nil {
			t.Errorf("logout: %v", err)
		}
	}))
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	logout.ServeHTTP(httptest.NewRecorder(), req)

	if flows.Len() != 0 {
		t.Fatalf("expected logout to tear down forms, got %d", flows.Len())
	}
}
