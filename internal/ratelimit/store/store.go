// Package store provides sliding-window counters backing the rate limiter.
package store

import (
	"context"
	"time"

	"agentledger/internal/ratelimit/models"
)

// WindowStore counts requests per key over a sliding window.
type WindowStore interface {
	// Allow records one request against key and reports whether it fits
	// within limit requests per window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)

	// Reset clears the counter for a key.
	Reset(ctx context.Context, key string) error
}
