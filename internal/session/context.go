package session

import "context"

type contextKey struct{}

// WithProvider returns a context carrying p.
func WithProvider(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext extracts the provider injected by WithProvider, or nil.
func FromContext(ctx context.Context) *Provider {
	p, _ := ctx.Value(contextKey{}).(*Provider)
	return p
}
