package session

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"trid/internal/gateway"
	"trid/internal/identity"
	"trid/internal/platform/metrics"
)

// Refresher trades a refresh token for a fresh identity.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) gateway.Result[identity.Identity]
}

// Manager opens providers for session keys and keeps their tokens fresh.
type Manager struct {
	store     Store
	refresher Refresher
	ttl       time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	refreshes singleflight.Group
}

// NewManager creates a Manager. refresher may be nil, in which case expired
// identities are logged out instead of refreshed.
func NewManager(store Store, refresher Refresher, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		store:     store,
		refresher: refresher,
		ttl:       ttl,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Open returns a hydrated provider for key with listeners already subscribed, so they also see
// changes made while opening. An expired access token is refreshed once per key. A rejected
// refresh destroys the identity; an unreachable backend leaves it for the next request to retry.
func (m *Manager) Open(ctx context.Context, key string, listeners ...Listener) (*Provider, error) {
	if key == "" {
		return nil, ErrNoSession
	}

	p := NewProvider(m.store, HashKey(key), m.ttl, m.logger)
	p.now = m.now
	for _, l := range listeners {
		p.Subscribe(l)
	}
	if err := p.Hydrate(ctx); err != nil {
		return nil, err
	}

	if id, ok := p.Current(); ok && id.Expired(m.now()) {
		m.refresh(ctx, p, id)
	}
	return p, nil
}

func (m *Manager) refresh(ctx context.Context, p *Provider, id identity.Identity) {
	if m.refresher != nil {
		// The flight is shared by every waiter and must not end with the first caller's request.
		flightCtx := context.WithoutCancel(ctx)
		v, _, _ := m.refreshes.Do(p.KeyHash(), func() (any, error) {
			return m.refresher.Refresh(flightCtx, id.RefreshToken), nil
		})
		result := v.(gateway.Result[identity.Identity])

		if fresh, ok := result.Data(); ok {
			err := p.replace(flightCtx, fresh)
			if err == nil {
				m.metrics.ObserveRefresh("success")
				return
			}
			m.logger.Error("store refreshed session", "error", err)
		} else if failure, _ := result.Err(); failure.Kind == gateway.KindTransport {
			m.metrics.ObserveRefresh("unavailable")
			m.logger.Warn("token refresh unavailable; keeping session", "error", failure.Message)
			return
		}
	}

	m.metrics.ObserveRefresh("failure")
	m.logger.Info("access token expired; clearing session", "email", id.Email)
	if err := p.Logout(ctx); err != nil {
		m.logger.Error("clear expired session", "error", err)
	}
}

// Sweep removes expired records from the store.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	removed, err := m.store.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, err
	}
	m.metrics.ObserveExpired(removed)
	return removed, nil
}
