package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trid/internal/identity"
	"trid/internal/platform/metrics"
)

const maxResponseBytes = 1 << 20

// Fallback messages used when the backend does not explain a failure.
const (
	msgAuthFailed     = "Authentication failed. Please check your credentials."
	msgActivateFailed = "Failed to activate your account. Please check the code."
	msgResetFailed    = "Failed to reset your password. The reset link may have expired."
	msgRegisterFailed = "Registration failed. Please try again."
	msgForgotFailed   = "Failed to send the reset code. Please try again."
	msgProfileFailed  = "Failed to load your profile."
	msgRefreshFailed  = "Your session has expired. Please log in again."
)

// Credentials are the inputs of a credential login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the signup payload.
type Registration struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Client calls the Trid auth backend. It never retries: one operation, one request.
type Client struct {
	client  *http.Client
	baseURL string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures the Client during construction.
type Option func(*Client)

// WithMetrics records every call in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger overrides the discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a Client for the backend rooted at baseURL.
func NewClient(baseURL string, client *http.Client, opts ...Option) *Client {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	c := &Client{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type tokenResponse struct {
	Email        string   `json:"email"`
	FullName     string   `json:"fullName"`
	Roles        []string `json:"roles"`
	Token        string   `json:"token"`
	RefreshToken string   `json:"refreshToken"`
}

func (r tokenResponse) identity() identity.Identity {
	return identity.Identity{
		Email:        r.Email,
		FullName:     r.FullName,
		Roles:        r.Roles,
		AccessToken:  r.Token,
		RefreshToken: r.RefreshToken,
	}
}

// Authenticate exchanges credentials for an identity.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) Result[identity.Identity] {
	var payload tokenResponse
	if f, ok := c.do(ctx, request{
		operation: "login",
		method:    http.MethodPost,
		path:      "/login",
		body:      creds,
		fallback:  msgAuthFailed,
	}, &payload); !ok {
		return Fail[identity.Identity](f)
	}
	return c.completeIdentity("login", payload.identity(), msgAuthFailed)
}

// ActivateAccount confirms an account with the emailed activation token.
func (c *Client) ActivateAccount(ctx context.Context, token string) Result[struct{}] {
	return c.acknowledge(ctx, request{
		operation: "activate",
		method:    http.MethodPost,
		path:      "/activate",
		body:      map[string]string{"token": token},
		fallback:  msgActivateFailed,
	})
}

// ResetPassword sets a new password using a reset token.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) Result[struct{}] {
	return c.acknowledge(ctx, request{
		operation: "reset_password",
		method:    http.MethodPost,
		path:      "/reset-password",
		query:     url.Values{"token": {token}},
		body:      map[string]string{"password": newPassword},
		fallback:  msgResetFailed,
	})
}

// Register creates an account that must then be activated.
func (c *Client) Register(ctx context.Context, reg Registration) Result[struct{}] {
	return c.acknowledge(ctx, request{
		operation: "register",
		method:    http.MethodPost,
		path:      "/register",
		body:      reg,
		fallback:  msgRegisterFailed,
	})
}

// ForgotPassword asks the backend to email a reset token.
func (c *Client) ForgotPassword(ctx context.Context, email string) Result[struct{}] {
	return c.acknowledge(ctx, request{
		operation: "forgot_password",
		method:    http.MethodPost,
		path:      "/forgot-password",
		body:      map[string]string{"email": email},
		fallback:  msgForgotFailed,
	})
}

// Profile loads the profile behind an access token issued by the OAuth round-trip.
// The returned identity carries the supplied tokens.
func (c *Client) Profile(ctx context.Context, accessToken, refreshToken string) Result[identity.Identity] {
	var payload tokenResponse
	if f, ok := c.do(ctx, request{
		operation: "profile",
		method:    http.MethodGet,
		path:      "/users/me",
		bearer:    accessToken,
		fallback:  msgProfileFailed,
	}, &payload); !ok {
		return Fail[identity.Identity](f)
	}
	id := payload.identity()
	id.AccessToken = accessToken
	id.RefreshToken = refreshToken
	return c.completeIdentity("profile", id, msgProfileFailed)
}

// Refresh trades a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) Result[identity.Identity] {
	var payload tokenResponse
	if f, ok := c.do(ctx, request{
		operation: "refresh",
		method:    http.MethodPost,
		path:      "/refresh-token",
		body:      map[string]string{"refreshToken": refreshToken},
		fallback:  msgRefreshFailed,
	}, &payload); !ok {
		return Fail[identity.Identity](f)
	}
	id := payload.identity()
	if id.RefreshToken == "" {
		id.RefreshToken = refreshToken
	}
	return c.completeIdentity("refresh", id, msgRefreshFailed)
}

func (c *Client) completeIdentity(operation string, id identity.Identity, fallback string) Result[identity.Identity] {
	if err := id.Validate(); err != nil {
		c.logger.Warn("backend returned incomplete identity", "operation", operation, "error", err)
		return Fail[identity.Identity](Failure{Kind: KindApplication, Message: fallback, StatusCode: http.StatusOK})
	}
	return Success(id)
}

func (c *Client) acknowledge(ctx context.Context, req request) Result[struct{}] {
	if f, ok := c.do(ctx, req, nil); !ok {
		return Fail[struct{}](f)
	}
	return Success(struct{}{})
}

type request struct {
	operation string
	method    string
	path      string
	query     url.Values
	bearer    string
	body      any
	fallback  string
}

// do performs a single request. Every error is converted into a Failure.
func (c *Client) do(ctx context.Context, req request, out any) (Failure, bool) {
	f, ok := c.roundTrip(ctx, req, out)
	if ok {
		c.metrics.ObserveGateway(req.operation, "success")
		return Failure{}, true
	}
	c.metrics.ObserveGateway(req.operation, string(f.Kind))
	return f, false
}

func (c *Client) roundTrip(ctx context.Context, req request, out any) (Failure, bool) {
	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			c.logger.Error("encode backend request", "operation", req.operation, "error", err)
			return Failure{Kind: KindTransport, Message: GenericMessage}, false
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		c.logger.Error("create backend request", "operation", req.operation, "error", err)
		return Failure{Kind: KindTransport, Message: GenericMessage}, false
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Warn("backend unreachable", "operation", req.operation, "error", err)
		return Failure{Kind: KindTransport, Message: GenericMessage}, false
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Warn("read backend response", "operation", req.operation, "status", resp.StatusCode, "error", err)
		return Failure{Kind: KindTransport, Message: GenericMessage, StatusCode: resp.StatusCode}, false
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Info("backend rejected request", "operation", req.operation, "status", resp.StatusCode)
		return Failure{
			Kind:       KindApplication,
			Message:    errorMessage(raw, req.fallback),
			StatusCode: resp.StatusCode,
		}, false
	}

	if out == nil {
		return Failure{}, true
	}

	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("decode backend response", "operation", req.operation, "error", fmt.Errorf("decode %s response: %w", req.operation, err))
		return Failure{Kind: KindApplication, Message: req.fallback, StatusCode: resp.StatusCode}, false
	}

	return Failure{}, true
}

// errorMessage picks the most specific human-readable message from an error body.
func errorMessage(raw []byte, fallback string) string {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fallback
	}

	for _, key := range []string{"details", "message", "error"} {
		if value, ok := payload[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return fallback
}
