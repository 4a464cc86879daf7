// Package ratelimit enforces per-caller request budgets in front of the
// registry API. Budgets are keyed by principal when the caller is
// authenticated and by remote address otherwise, with separate limits per
// endpoint class.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"

	"agentledger/internal/ratelimit/models"
	"agentledger/internal/ratelimit/store"
)

// Limiter checks request budgets against a window store.
type Limiter struct {
	store  store.WindowStore
	limits map[models.EndpointClass]models.Limit
	logger *slog.Logger
}

type Option func(*Limiter)

// WithLimits overrides the per-class budgets.
func WithLimits(limits map[models.EndpointClass]models.Limit) Option {
	return func(l *Limiter) {
		l.limits = limits
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func New(windowStore store.WindowStore, opts ...Option) *Limiter {
	l := &Limiter{
		store:  windowStore,
		limits: models.DefaultLimits(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records one request from the caller against the class budget.
func (l *Limiter) Check(ctx context.Context, caller string, class models.EndpointClass) (*models.Result, error) {
	limit, ok := l.limits[class]
	if !ok {
		limit = models.DefaultLimits()[models.ClassRead]
	}
	key := fmt.Sprintf("%s:%s", class, caller)
	return l.store.Allow(ctx, key, limit.Requests, limit.Window)
}

// Reset clears the caller's budget for a class, for administrative unblocks.
func (l *Limiter) Reset(ctx context.Context, caller string, class models.EndpointClass) error {
	return l.store.Reset(ctx, fmt.Sprintf("%s:%s", class, caller))
}
