package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trid/internal/config"
	"trid/internal/flow"
	"trid/internal/gateway"
	"trid/internal/identity"
	"trid/internal/oauth"
	"trid/internal/session"
)

type backendStub struct {
	authenticate func(ctx context.Context, creds gateway.Credentials) gateway.Result[identity.Identity]
	activate     func(ctx context.Context, token string) gateway.Result[struct{}]
	reset        func(ctx context.Context, token, password string) gateway.Result[struct{}]
	register     func(ctx context.Context, reg gateway.Registration) gateway.Result[struct{}]
	forgot       func(ctx context.Context, email string) gateway.Result[struct{}]
	profile      func(ctx context.Context, accessToken, refreshToken string) gateway.Result[identity.Identity]

	calls atomic.Int32
}

func unexpected[T any]() gateway.Result[T] {
	return gateway.Fail[T](gateway.Failure{Kind: gateway.KindApplication, StatusCode: http.StatusNotImplemented})
}

func (b *backendStub) Authenticate(ctx context.Context, creds gateway.Credentials) gateway.Result[identity.Identity] {
	b.calls.Add(1)
	if b.authenticate != nil {
		return b.authenticate(ctx, creds)
	}
	return unexpected[identity.Identity]()
}

func (b *backendStub) ActivateAccount(ctx context.Context, token string) gateway.Result[struct{}] {
	b.calls.Add(1)
	if b.activate != nil {
		return b.activate(ctx, token)
	}
	return unexpected[struct{}]()
}

func (b *backendStub) ResetPassword(ctx context.Context, token, password string) gateway.Result[struct{}] {
	b.calls.Add(1)
	if b.reset != nil {
		return b.reset(ctx, token, password)
	}
	return unexpected[struct{}]()
}

func (b *backendStub) Register(ctx context.Context, reg gateway.Registration) gateway.Result[struct{}] {
	b.calls.Add(1)
	if b.register != nil {
		return b.register(ctx, reg)
	}
	return unexpected[struct{}]()
}

func (b *backendStub) ForgotPassword(ctx context.Context, email string) gateway.Result[struct{}] {
	b.calls.Add(1)
	if b.forgot != nil {
		return b.forgot(ctx, email)
	}
	return unexpected[struct{}]()
}

func (b *backendStub) Profile(ctx context.Context, accessToken, refreshToken string) gateway.Result[identity.Identity] {
	b.calls.Add(1)
	if b.profile != nil {
		return b.profile(ctx, accessToken, refreshToken)
	}
	return unexpected[identity.Identity]()
}

func testIdentity(roles ...string) identity.Identity {
	return identity.Identity{
		Email:        "user@trid.test",
		FullName:     "Trid User",
		Roles:        roles,
		AccessToken:  "opaque-access",
		RefreshToken: "opaque-refresh",
	}
}

func testConfig() config.Config {
	return config.Config{
		Environment:    "development",
		AllowedOrigins: []string{"http://localhost:5173"},
		SessionTTL:     time.Hour,
		OAuthEnabled:   true,
	}
}

type testApp struct {
	handler http.Handler
	store   *session.MemoryStore
	flows   *flow.Registry
}

func newTestApp(t *testing.T, backend *backendStub) *testApp {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := session.NewMemoryStore()
	flows := flow.NewRegistry(time.Minute, nil)

	handler := NewRouter(testConfig(), Services{
		Backend:  backend,
		Sessions: session.NewManager(store, nil, time.Hour, logger, nil),
		Flows:    flows,
		OAuth:    oauth.NewInitiator("http://backend.test/api/v1", "http://shop.test", "trid-web"),
	}, logger)

	return &testApp{handler: handler, store: store, flows: flows}
}

// browser replays cookies across requests the way a real browser would.
type browser struct {
	t   *testing.T
	app *testApp

	mu      sync.Mutex
	cookies map[string]string
}

func (a *testApp) browser(t *testing.T) *browser {
	return &browser{t: t, app: a, cookies: make(map[string]string)}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	b.mu.Lock()
	for name, value := range b.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	b.mu.Unlock()

	rec := httptest.NewRecorder()
	b.app.handler.ServeHTTP(rec, req)

	b.mu.Lock()
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c.Value
	}
	b.mu.Unlock()
	return rec
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (b *browser) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return b.do(req)
}

func (b *browser) cookie(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cookies[name]
}

type viewResponse struct {
	View     string           `json:"view"`
	Identity *identity.Public `json:"identity"`
	State    *struct {
		Status          string `json:"status"`
		Message         string `json:"message"`
		Cause           string `json:"cause"`
		RedirectTo      string `json:"redirectTo"`
		RedirectAfterMS int64  `json:"redirectAfterMs"`
	} `json:"state"`
	Data map[string]any `json:"data"`
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) viewResponse {
	t.Helper()
	var v viewResponse
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode view: %v", err)
	}
	return v
}
